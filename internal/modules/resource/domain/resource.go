package domain

import "time"

// Resource is an external entity being tracked (a subreddit, a streamer, a
// video channel, a blog) together with its dedup cursor.
type Resource struct {
	ID            string     `json:"id"`
	Type          SourceType `json:"type"`
	Name          string     `json:"name"`
	LastEventID   string     `json:"last_event_id,omitempty"`
	LastEventTime time.Time  `json:"last_event_time"`
	LastLiveAt    time.Time  `json:"last_live_at"`
	EventCount    int64      `json:"event_count"`
	// CountOffset folds item deletions reported by the source into
	// EventCount so that the counter never goes backwards.
	CountOffset int64     `json:"count_offset"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key identifies a resource across source types.
type Key struct {
	Type SourceType
	ID   string
}

func (k Key) String() string {
	return string(k.Type) + ":" + k.ID
}

// Key returns the resource identity.
func (r Resource) Key() Key {
	return Key{Type: r.Type, ID: r.ID}
}

// NormalizedCount maps a count reported by the source onto the resource's
// monotonic counter.
func (r Resource) NormalizedCount(reported int64) int64 {
	return reported + r.CountOffset
}

// Follows reports whether next is a valid successor cursor of r: the same
// resource, with neither the event time nor the event count going backwards.
func (r Resource) Follows(next Resource) bool {
	if r.Key() != next.Key() {
		return false
	}
	if next.LastEventTime.Before(r.LastEventTime) {
		return false
	}
	if next.LastLiveAt.Before(r.LastLiveAt) {
		return false
	}
	return next.EventCount >= r.EventCount
}
