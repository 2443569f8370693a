package youtube

import (
	"bytes"
	"context"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/samber/oops"
)

const (
	broadcastNone = "none"
	broadcastLive = "live"
)

// FeedNotification is an Atom document pushed by the hub. It announces
// either an upload or edit of one video, or the deletion of one.
type FeedNotification struct {
	client *Client

	videoID   string
	channelID string
	link      string
	deleted   bool
}

// ParseNotification parses the pushed Atom feed.
func (c *Client) ParseNotification(body []byte, _ string) (sources.Notification, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, oops.Wrapf(errors.ErrUpstreamRejected, "parse feed notification: %v", err)
	}

	if tomb, ok := extension(feed.Extensions, "at", "deleted-entry"); ok {
		channelID := lastSegment(childValue(tomb, "by", "uri"))
		if channelID == "" {
			return nil, oops.Wrapf(errors.ErrUpstreamRejected, "deleted entry without channel")
		}
		return &FeedNotification{
			client:    c,
			videoID:   strings.TrimPrefix(tomb.Attrs["ref"], "yt:video:"),
			channelID: channelID,
			deleted:   true,
		}, nil
	}

	if len(feed.Items) == 0 {
		return nil, oops.Wrapf(errors.ErrUpstreamRejected, "feed notification without entry")
	}
	item := feed.Items[0]
	n := &FeedNotification{client: c, link: item.Link}
	if e, ok := extension(item.Extensions, "yt", "videoId"); ok {
		n.videoID = e.Value
	}
	if e, ok := extension(item.Extensions, "yt", "channelId"); ok {
		n.channelID = e.Value
	}
	if n.videoID == "" || n.channelID == "" {
		return nil, oops.Wrapf(errors.ErrUpstreamRejected, "feed entry without video or channel id")
	}
	return n, nil
}

// Events resolves the notification against the Data API. Uploads carry the
// channel's current upload count so the video policy can tell them from
// edits. Scheduled premieres and upcoming streams produce nothing.
func (n *FeedNotification) Events(ctx context.Context) ([]domain.Event, error) {
	if n.deleted {
		count, err := n.client.VideoCount(ctx, n.channelID)
		if err != nil {
			return nil, err
		}
		return []domain.Event{{
			Source:        domain.SourceTypeVideo,
			ResourceID:    n.channelID,
			Kind:          domain.EventKindDeleted,
			ID:            n.videoID,
			ReportedCount: count,
		}}, nil
	}

	video, err := n.client.Video(ctx, n.videoID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		// Deleted before we got to it.
		return nil, nil
	}

	ev := domain.Event{
		Source:     domain.SourceTypeVideo,
		ResourceID: n.channelID,
		ID:         video.ID,
		Time:       video.PublishedAt,
		Payload: domain.Payload{
			ResourceName: video.ChannelTitle,
			Title:        video.Title,
			URL:          n.link,
			Body:         video.ChannelTitle,
			Author:       video.ChannelTitle,
			AuthorURL:    "https://www.youtube.com/channel/" + n.channelID,
			ImageURL:     video.ThumbnailURL,
		},
	}
	if ev.Payload.URL == "" {
		ev.Payload.URL = "https://www.youtube.com/watch?v=" + video.ID
	}

	switch video.LiveBroadcastContent {
	case broadcastLive:
		ev.Kind = domain.EventKindLive
	case broadcastNone:
		count, err := n.client.VideoCount(ctx, n.channelID)
		if err != nil {
			return nil, err
		}
		ev.Kind = domain.EventKindVideo
		ev.ReportedCount = count
	default:
		return nil, nil
	}
	return []domain.Event{ev}, nil
}

func extension(exts ext.Extensions, prefix, name string) (ext.Extension, bool) {
	if exts == nil {
		return ext.Extension{}, false
	}
	values := exts[prefix][name]
	if len(values) == 0 {
		return ext.Extension{}, false
	}
	return values[0], true
}

// childValue follows a path of child elements and returns the text of the
// last one.
func childValue(e ext.Extension, path ...string) string {
	for _, name := range path {
		children := e.Children[name]
		if len(children) == 0 {
			return ""
		}
		e = children[0]
	}
	return strings.TrimSpace(e.Value)
}

func lastSegment(uri string) string {
	uri = strings.TrimRight(uri, "/")
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
