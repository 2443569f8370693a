package youtube

import (
	"context"
	"net/url"
	"strconv"
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
	DefaultAPIURL = "https://www.googleapis.com/youtube/v3"
	DefaultHubURL = "https://pubsubhubbub.appspot.com/subscribe"
)

// Options configures the YouTube client.
type Options struct {
	APIURL       string
	HubURL       string
	APIKey       string
	CallbackURL  string
	Secret       string
	LeaseSeconds int
}

// Client talks to the YouTube Data API and the WebSub hub YouTube pushes
// channel feeds through.
type Client struct {
	http   *httpclient.Client
	apiURL string
	apiKey string
	hub    *websub.Hub
}

// Video is the part of a video resource announcements need.
type Video struct {
	ID                   string
	ChannelID            string
	ChannelTitle         string
	Title                string
	Description          string
	PublishedAt          time.Time
	ThumbnailURL         string
	LiveBroadcastContent string
}

// New creates a YouTube client
func New(client *httpclient.Client, opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.HubURL == "" {
		opts.HubURL = DefaultHubURL
	}
	return &Client{
		http:   client,
		apiURL: strings.TrimRight(opts.APIURL, "/"),
		apiKey: opts.APIKey,
		hub: websub.New(client, websub.Options{
			HubURL:       opts.HubURL,
			CallbackURL:  opts.CallbackURL,
			Secret:       opts.Secret,
			LeaseSeconds: opts.LeaseSeconds,
		}),
	}
}

// Resolve searches for a channel and starts its cursor at the latest upload
// and the current upload count.
func (c *Client) Resolve(ctx context.Context, query string) (domain.Resource, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Resource{}, oops.New("channel name is required")
	}

	var search struct {
		Items []struct {
			ID struct {
				ChannelID string `json:"channelId"`
			} `json:"id"`
		} `json:"items"`
	}
	if err := c.get(ctx, "search", url.Values{
		"part": {"snippet"}, "q": {query}, "type": {"channel"}, "maxResults": {"1"},
	}, &search); err != nil {
		return domain.Resource{}, oops.With("query", query).Wrap(err)
	}
	if len(search.Items) == 0 || search.Items[0].ID.ChannelID == "" {
		return domain.Resource{}, oops.With("query", query).Wrap(errors.ErrNotFound)
	}

	ch, err := c.channel(ctx, search.Items[0].ID.ChannelID, "snippet,contentDetails,statistics")
	if err != nil {
		return domain.Resource{}, err
	}
	count, _ := strconv.ParseInt(ch.Statistics.VideoCount, 10, 64)
	r := domain.Resource{
		ID:         ch.ID,
		Type:       domain.SourceTypeVideo,
		Name:       ch.Snippet.Title,
		EventCount: count,
	}

	if uploads := ch.ContentDetails.RelatedPlaylists.Uploads; uploads != "" {
		var playlist struct {
			Items []struct {
				ContentDetails struct {
					VideoID          string `json:"videoId"`
					VideoPublishedAt string `json:"videoPublishedAt"`
				} `json:"contentDetails"`
			} `json:"items"`
		}
		if err := c.get(ctx, "playlistItems", url.Values{
			"part": {"contentDetails"}, "playlistId": {uploads}, "maxResults": {"1"},
		}, &playlist); err != nil {
			return domain.Resource{}, oops.With("channel_id", ch.ID).Wrap(err)
		}
		if len(playlist.Items) > 0 {
			r.LastEventID = playlist.Items[0].ContentDetails.VideoID
			r.LastEventTime = parseTime(playlist.Items[0].ContentDetails.VideoPublishedAt)
		}
	}
	return r, nil
}

// VideoCount returns how many public uploads a channel currently has.
func (c *Client) VideoCount(ctx context.Context, channelID string) (int64, error) {
	ch, err := c.channel(ctx, channelID, "statistics")
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseInt(ch.Statistics.VideoCount, 10, 64)
	if err != nil {
		return 0, oops.With("channel_id", channelID, "video_count", ch.Statistics.VideoCount).Wrapf(errors.ErrUpstreamRejected, "bad video count")
	}
	return count, nil
}

// Video fetches a video. It returns nil when the video no longer exists.
func (c *Client) Video(ctx context.Context, id string) (*Video, error) {
	var resp struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				ChannelID            string     `json:"channelId"`
				ChannelTitle         string     `json:"channelTitle"`
				Title                string     `json:"title"`
				Description          string     `json:"description"`
				PublishedAt          string     `json:"publishedAt"`
				LiveBroadcastContent string     `json:"liveBroadcastContent"`
				Thumbnails           thumbnails `json:"thumbnails"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := c.get(ctx, "videos", url.Values{"part": {"snippet"}, "id": {id}, "maxResults": {"1"}}, &resp); err != nil {
		return nil, oops.With("video_id", id).Wrap(err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	it := resp.Items[0]
	return &Video{
		ID:                   it.ID,
		ChannelID:            it.Snippet.ChannelID,
		ChannelTitle:         it.Snippet.ChannelTitle,
		Title:                it.Snippet.Title,
		Description:          it.Snippet.Description,
		PublishedAt:          parseTime(it.Snippet.PublishedAt),
		ThumbnailURL:         it.Snippet.Thumbnails.best(),
		LiveBroadcastContent: it.Snippet.LiveBroadcastContent,
	}, nil
}

// Lease subscribes to or unsubscribes from a channel's upload feed.
func (c *Client) Lease(ctx context.Context, resourceID string, mode sources.LeaseMode) error {
	return c.hub.Request(ctx, Topic(resourceID), mode)
}

// Topic is the hub topic of a channel's upload feed.
func Topic(channelID string) string {
	return "https://www.youtube.com/xml/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
}

type channelResource struct {
	ID      string `json:"id"`
	Snippet struct {
		Title      string     `json:"title"`
		Thumbnails thumbnails `json:"thumbnails"`
	} `json:"snippet"`
	ContentDetails struct {
		RelatedPlaylists struct {
			Uploads string `json:"uploads"`
		} `json:"relatedPlaylists"`
	} `json:"contentDetails"`
	Statistics struct {
		VideoCount string `json:"videoCount"`
	} `json:"statistics"`
}

func (c *Client) channel(ctx context.Context, id, parts string) (*channelResource, error) {
	var resp struct {
		Items []channelResource `json:"items"`
	}
	if err := c.get(ctx, "channels", url.Values{"part": {parts}, "id": {id}, "maxResults": {"1"}}, &resp); err != nil {
		return nil, oops.With("channel_id", id).Wrap(err)
	}
	if len(resp.Items) == 0 {
		return nil, oops.With("channel_id", id).Wrap(errors.ErrNotFound)
	}
	return &resp.Items[0], nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	q.Set("key", c.apiKey)
	return c.http.GetJSON(ctx, c.apiURL+"/"+endpoint+"?"+q.Encode(), nil, out)
}

type thumbnail struct {
	URL string `json:"url"`
}

type thumbnails struct {
	Default thumbnail `json:"default"`
	Medium  thumbnail `json:"medium"`
	High    thumbnail `json:"high"`
}

func (t thumbnails) best() string {
	for _, u := range []string{t.High.URL, t.Medium.URL, t.Default.URL} {
		if u != "" {
			return u
		}
	}
	return ""
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
