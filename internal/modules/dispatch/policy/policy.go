package policy

import (
	"time"

	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
)

// DefaultCooldown is the minimum gap between two "went live" announcements
// for the same resource.
const DefaultCooldown = time.Hour

// Decision is the outcome of evaluating an event against a resource cursor.
type Decision struct {
	// Deliver fans the event out to subscribers.
	Deliver bool
	// Next is the cursor to persist before any delivery; nil leaves the
	// stored resource untouched.
	Next *domain.Resource
	// Reason explains a suppression, for debug logs.
	Reason string
}

// Policy decides whether an event is new for a resource. Implementations
// are pure: everything they need is in state, ev and now.
type Policy interface {
	Evaluate(state domain.Resource, ev domain.Event, now time.Time) Decision
}

// Set selects the policy by the resource's source type.
type Set map[domain.SourceType]Policy

// NewSet builds the policy for every source type.
func NewSet(cooldown time.Duration) Set {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return Set{
		domain.SourceTypeForum:  Forum{},
		domain.SourceTypeStream: Stream{Cooldown: cooldown},
		domain.SourceTypeVideo:  Video{Cooldown: cooldown},
		domain.SourceTypeBlog:   Blog{},
	}
}

// For returns the policy for a source type
func (s Set) For(t domain.SourceType) (Policy, bool) {
	p, ok := s[t]
	return p, ok
}

func suppress(reason string) Decision {
	return Decision{Reason: reason}
}

// live applies the cooldown shared by every source that can go live. The
// cursor moves to now on acceptance so a duplicate arriving right after is
// already suppressed.
func live(state domain.Resource, now time.Time, cooldown time.Duration) Decision {
	if now.Sub(state.LastLiveAt) <= cooldown {
		return suppress("live within cooldown")
	}
	next := state
	next.LastLiveAt = now
	return Decision{Deliver: true, Next: &next}
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
