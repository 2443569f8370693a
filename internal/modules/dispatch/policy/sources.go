package policy

import (
	"time"

	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
)

// Forum accepts a post only when both its id differs from the last one and
// its time is strictly later. The same id with a refreshed time and a new id
// with a stale time are both ignored.
type Forum struct{}

func (Forum) Evaluate(state domain.Resource, ev domain.Event, _ time.Time) Decision {
	if ev.Kind != domain.EventKindPost {
		return suppress("unsupported event kind")
	}
	if ev.ID == "" || ev.ID == state.LastEventID {
		return suppress("same post")
	}
	if !ev.Time.After(state.LastEventTime) {
		return suppress("post not newer than cursor")
	}
	next := state
	next.LastEventID = ev.ID
	next.LastEventTime = ev.Time
	return Decision{Deliver: true, Next: &next}
}

// Stream handles go-live notifications from a streaming platform.
type Stream struct {
	Cooldown time.Duration
}

func (p Stream) Evaluate(state domain.Resource, ev domain.Event, now time.Time) Decision {
	if ev.Kind != domain.EventKindLive {
		return suppress("unsupported event kind")
	}
	return live(state, now, p.Cooldown)
}

// Video handles a video channel feed, which announces uploads and edits the
// same way. An upload is only new when the id changed and the channel's item
// count went up; deletions lower the baseline without announcing anything.
type Video struct {
	Cooldown time.Duration
}

func (p Video) Evaluate(state domain.Resource, ev domain.Event, now time.Time) Decision {
	switch ev.Kind {
	case domain.EventKindLive:
		return live(state, now, p.Cooldown)

	case domain.EventKindVideo:
		count := state.NormalizedCount(ev.ReportedCount)
		if ev.ID == "" || ev.ID == state.LastEventID {
			return suppress("same video")
		}
		if count <= state.EventCount {
			return suppress("item count did not advance")
		}
		next := state
		next.LastEventID = ev.ID
		next.EventCount = count
		next.LastEventTime = laterOf(state.LastEventTime, ev.Time)
		return Decision{Deliver: true, Next: &next}

	case domain.EventKindDeleted:
		if state.NormalizedCount(ev.ReportedCount) >= state.EventCount {
			return suppress("deletion does not lower the count")
		}
		next := state
		next.CountOffset = state.EventCount - ev.ReportedCount
		return Decision{Next: &next, Reason: "deletion recorded"}
	}
	return suppress("unsupported event kind")
}

// Blog has no real cursor: every delivered post is new, and the decision is
// made per subscriber by category. Redelivery of the last post is dropped.
type Blog struct{}

func (Blog) Evaluate(state domain.Resource, ev domain.Event, _ time.Time) Decision {
	if ev.Kind != domain.EventKindPost {
		return suppress("unsupported event kind")
	}
	if ev.ID != "" && ev.ID == state.LastEventID {
		return suppress("same post")
	}
	next := state
	next.LastEventID = ev.ID
	next.LastEventTime = laterOf(state.LastEventTime, ev.Time)
	next.EventCount = state.EventCount + 1
	return Decision{Deliver: true, Next: &next}
}
