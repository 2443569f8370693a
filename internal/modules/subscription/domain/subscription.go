package domain

import (
	"time"

	resourceDomain "github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
)

// Subscription binds a subscriber's interest to one resource
type Subscription struct {
	Source       resourceDomain.SourceType `json:"source"`
	ResourceID   string                    `json:"resource_id"`
	SubscriberID string                    `json:"subscriber_id"`
	Filter       Filter                    `json:"filter"`
	CreatedAt    time.Time                 `json:"created_at"`
}

// Filter holds the source-specific subscription flags.
type Filter struct {
	// OnlyStreams drops plain uploads for video resources.
	OnlyStreams bool `json:"only_streams"`
	// Categories is the blog category set the subscriber wants.
	Categories CategoryMask `json:"categories"`
}

func (s Subscription) ResourceKey() resourceDomain.Key {
	return resourceDomain.Key{Type: s.Source, ID: s.ResourceID}
}

// Subscriber is a tenant receiving announcements
type Subscriber struct {
	ID string `json:"id"`
	// Channels maps a source type to the destination announcements go to.
	Channels map[resourceDomain.SourceType]string `json:"channels"`
	Keywords []string                             `json:"keywords"`
}

// ChannelFor returns the destination bound for a source type.
func (s Subscriber) ChannelFor(t resourceDomain.SourceType) (string, bool) {
	ch, ok := s.Channels[t]
	return ch, ok && ch != ""
}
