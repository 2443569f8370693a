package twitch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/shared/httpclient"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/reshetovitsme/voice-of-light/internal/sources/websub"
	"github.com/samber/oops"
)

const (
	DefaultAPIURL = "https://api.twitch.tv/helix"
	DefaultHubURL = "https://api.twitch.tv/helix/webhooks/hub"

	// unknownGame is what a stream without a category is live with.
	unknownGame = "a game"
)

// Options configures the Twitch client.
type Options struct {
	APIURL       string
	HubURL       string
	ClientID     string
	AppToken     string
	CallbackURL  string
	Secret       string
	LeaseSeconds int
}

// Client talks to the Twitch Helix API and its webhook hub.
type Client struct {
	http   *httpclient.Client
	apiURL string
	header http.Header
	hub    *websub.Hub
}

// User is a Twitch broadcaster
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Game is a Twitch category
type Game struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
}

// New creates a Twitch client
func New(client *httpclient.Client, opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.HubURL == "" {
		opts.HubURL = DefaultHubURL
	}

	header := http.Header{}
	header.Set("Client-ID", opts.ClientID)
	if opts.AppToken != "" {
		header.Set("Authorization", "Bearer "+opts.AppToken)
	}

	return &Client{
		http:   client,
		apiURL: strings.TrimRight(opts.APIURL, "/"),
		header: header,
		hub: websub.New(client, websub.Options{
			HubURL:       opts.HubURL,
			CallbackURL:  opts.CallbackURL,
			Secret:       opts.Secret,
			LeaseSeconds: opts.LeaseSeconds,
			Encoding:     websub.EncodingJSON,
			Header:       header,
		}),
	}
}

// Resolve finds a broadcaster by login name.
func (c *Client) Resolve(ctx context.Context, query string) (domain.Resource, error) {
	login := strings.ToLower(strings.TrimSpace(query))
	if login == "" {
		return domain.Resource{}, oops.New("channel name is required")
	}
	user, err := c.user(ctx, url.Values{"login": {login}})
	if err != nil {
		return domain.Resource{}, oops.With("login", login).Wrap(err)
	}
	return domain.Resource{ID: user.ID, Type: domain.SourceTypeStream, Name: user.DisplayName}, nil
}

// User fetches a broadcaster by id.
func (c *Client) User(ctx context.Context, id string) (*User, error) {
	user, err := c.user(ctx, url.Values{"id": {id}})
	if err != nil {
		return nil, oops.With("user_id", id).Wrap(err)
	}
	return user, nil
}

func (c *Client) user(ctx context.Context, q url.Values) (*User, error) {
	var resp struct {
		Data []User `json:"data"`
	}
	if err := c.http.GetJSON(ctx, c.apiURL+"/users?"+q.Encode(), c.header, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.ErrNotFound
	}
	return &resp.Data[0], nil
}

// Game fetches a category by id. Streams without a category, or with one
// Twitch no longer knows, get a placeholder.
func (c *Client) Game(ctx context.Context, id string) (Game, error) {
	if id == "" {
		return Game{Name: unknownGame}, nil
	}
	var resp struct {
		Data []Game `json:"data"`
	}
	if err := c.http.GetJSON(ctx, c.apiURL+"/games?"+url.Values{"id": {id}}.Encode(), c.header, &resp); err != nil {
		return Game{}, oops.With("game_id", id).Wrap(err)
	}
	if len(resp.Data) == 0 {
		return Game{Name: unknownGame}, nil
	}
	return resp.Data[0], nil
}

// Lease subscribes to or unsubscribes from stream changes of a broadcaster.
func (c *Client) Lease(ctx context.Context, resourceID string, mode sources.LeaseMode) error {
	return c.hub.Request(ctx, Topic(resourceID), mode)
}

// Topic is the hub topic for stream changes of a broadcaster.
func Topic(userID string) string {
	return DefaultAPIURL + "/streams?user_id=" + url.QueryEscape(userID)
}

// thumbnail fills the size placeholders Twitch leaves in image URLs.
func thumbnail(template string, width, height string) string {
	return strings.NewReplacer("{width}", width, "{height}", height).Replace(template)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
