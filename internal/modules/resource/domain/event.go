package domain

import "time"

// Event is a single unit of content observed on a resource. It lives only
// for the duration of one dispatch.
type Event struct {
	Source     SourceType
	ResourceID string
	Kind       EventKind
	ID         string
	Time       time.Time
	// ReportedCount is the item count the source reported when the event
	// was observed (video channels only).
	ReportedCount int64
	// Categories are the blog labels attached to the post.
	Categories []string
	Payload    Payload
}

// Payload carries what is needed to format an announcement.
type Payload struct {
	ResourceName string
	Title        string
	URL          string
	Body         string
	Author       string
	AuthorURL    string
	ImageURL     string
	ThumbnailURL string
	// Activity is what a stream is live with (a game title for twitch).
	Activity string
}

// ResourceKey returns the key of the resource the event belongs to.
func (e Event) ResourceKey() Key {
	return Key{Type: e.Source, ID: e.ResourceID}
}
