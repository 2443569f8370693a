package blogger

import (
	"context"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/samber/oops"
)

type item struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	PermalinkURL string   `json:"permalinkUrl"`
	Categories   []string `json:"categories"`
	Published    int64    `json:"published"`
	Content      *string  `json:"content"`
	Actor        struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Permalink   string `json:"permalinkUrl"`
	} `json:"actor"`
}

// PostNotification is a new post pushed for one blog.
type PostNotification struct {
	client *Client
	blogID string
	item   item
}

// ParseNotification validates a pushed post. resourceID is the blog id
// taken from the callback path.
func (c *Client) ParseNotification(body []byte, resourceID string) (sources.Notification, error) {
	if resourceID == "" {
		return nil, oops.Wrapf(errors.ErrUpstreamRejected, "blog notification without blog id")
	}
	var payload struct {
		Items []item `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, oops.With("blog_id", resourceID).Wrapf(errors.ErrUpstreamRejected, "decode blog notification: %v", err)
	}
	if len(payload.Items) == 0 || payload.Items[0].ID == "" {
		return nil, oops.With("blog_id", resourceID).Wrapf(errors.ErrUpstreamRejected, "blog notification without items")
	}
	return &PostNotification{client: c, blogID: resourceID, item: payload.Items[0]}, nil
}

// Events builds the post event, fetching the body when the push left it out.
func (n *PostNotification) Events(ctx context.Context) ([]domain.Event, error) {
	it := n.item

	var content string
	if it.Content != nil {
		content = *it.Content
	} else {
		postID := PostID(it.ID)
		if postID == "" {
			return nil, oops.With("item_id", it.ID).Wrapf(errors.ErrUpstreamRejected, "cannot derive post id")
		}
		var err error
		if content, err = n.client.PostContent(ctx, n.blogID, postID); err != nil {
			return nil, err
		}
	}

	text, image, err := CleanContent(content)
	if err != nil {
		return nil, err
	}

	ev := domain.Event{
		Source:     domain.SourceTypeBlog,
		ResourceID: n.blogID,
		Kind:       domain.EventKindPost,
		ID:         it.ID,
		Categories: it.Categories,
		Payload: domain.Payload{
			Title:     it.Title,
			URL:       it.PermalinkURL,
			Body:      text,
			Author:    it.Actor.DisplayName,
			AuthorURL: it.Actor.Permalink,
			ImageURL:  image,
		},
	}
	if it.Published > 0 {
		ev.Time = time.Unix(it.Published, 0).UTC()
	}
	return []domain.Event{ev}, nil
}

// PostID extracts the numeric post id from a Blogger atom id such as
// "tag:blogger.com,1999:blog-123.post-456".
func PostID(itemID string) string {
	_, id, ok := strings.Cut(itemID, ".post-")
	if !ok {
		return ""
	}
	return id
}
