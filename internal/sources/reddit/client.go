package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/shared/httpclient"
	"github.com/samber/oops"
)

const DefaultBaseURL = "https://www.reddit.com"

// Client reads subreddits through reddit's public JSON listings.
type Client struct {
	http    *httpclient.Client
	baseURL string
}

// New creates a reddit client
func New(http *httpclient.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: http, baseURL: strings.TrimRight(baseURL, "/")}
}

// Latest returns the newest post of the subreddit named by the resource.
func (c *Client) Latest(ctx context.Context, r domain.Resource) (*domain.Event, error) {
	post, err := c.newest(ctx, r.Name)
	if err != nil || post == nil {
		return nil, err
	}
	ev := c.event(r, post)
	return &ev, nil
}

// Resolve finds a subreddit by name and starts its cursor at the current
// newest post, so subscribing never announces an old one.
func (c *Client) Resolve(ctx context.Context, query string) (domain.Resource, error) {
	name := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(query), "/"), "r/")
	if name == "" {
		return domain.Resource{}, oops.New("subreddit name is required")
	}

	var about aboutResponse
	if err := c.http.GetJSON(ctx, fmt.Sprintf("%s/r/%s/about.json", c.baseURL, url.PathEscape(name)), nil, &about); err != nil {
		return domain.Resource{}, oops.With("subreddit", name).Wrap(err)
	}
	// reddit answers unknown subreddits with a search listing instead of a 404.
	if about.Kind != "t5" || about.Data.ID == "" {
		return domain.Resource{}, oops.With("subreddit", name).Wrap(errors.ErrNotFound)
	}

	r := domain.Resource{ID: about.Data.ID, Type: domain.SourceTypeForum, Name: about.Data.DisplayName}
	post, err := c.newest(ctx, r.Name)
	if err != nil {
		return domain.Resource{}, err
	}
	if post != nil {
		r.LastEventID = post.ID
		r.LastEventTime = post.createdAt()
	}
	return r, nil
}

func (c *Client) newest(ctx context.Context, subreddit string) (*post, error) {
	var l listing
	endpoint := fmt.Sprintf("%s/r/%s/new.json?limit=1", c.baseURL, url.PathEscape(subreddit))
	if err := c.http.GetJSON(ctx, endpoint, http.Header{}, &l); err != nil {
		return nil, oops.With("subreddit", subreddit).Wrap(err)
	}
	if len(l.Data.Children) == 0 {
		return nil, nil
	}
	p := l.Data.Children[0].Data
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}

func (c *Client) event(r domain.Resource, p *post) domain.Event {
	ev := domain.Event{
		Source:     domain.SourceTypeForum,
		ResourceID: r.ID,
		Kind:       domain.EventKindPost,
		ID:         p.ID,
		Time:       p.createdAt(),
		Payload: domain.Payload{
			ResourceName: r.Name,
			Title:        p.Title,
			URL:          c.baseURL + p.Permalink,
			Body:         p.Selftext,
			Author:       "u/" + p.Author,
			AuthorURL:    c.baseURL + "/user/" + p.Author,
		},
	}
	// Reddit uses placeholder words ("self", "default", "nsfw") for posts
	// without a preview image.
	if strings.HasPrefix(p.Thumbnail, "http://") || strings.HasPrefix(p.Thumbnail, "https://") {
		ev.Payload.ThumbnailURL = p.Thumbnail
	}
	return ev
}

type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Author     string  `json:"author"`
	Permalink  string  `json:"permalink"`
	Thumbnail  string  `json:"thumbnail"`
	CreatedUTC float64 `json:"created_utc"`
}

func (p post) createdAt() time.Time {
	sec := int64(p.CreatedUTC)
	nsec := int64((p.CreatedUTC - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

type aboutResponse struct {
	Kind string `json:"kind"`
	Data struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}
