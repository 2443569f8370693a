// Package sources defines what the engine needs from a content platform.
// Each platform adapter lives in its own subpackage.
package sources

import (
	"context"

	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
)

// Fetcher returns the newest item of a resource. A nil event with a nil
// error means the resource currently has nothing to report.
type Fetcher interface {
	Latest(ctx context.Context, r domain.Resource) (*domain.Event, error)
}

// Resolver looks a resource up by what a tenant typed and returns it with
// the cursor it should start from.
type Resolver interface {
	Resolve(ctx context.Context, query string) (domain.Resource, error)
}

// Notification is a validated push payload that still has to be turned into
// events, which may take further calls to the platform.
type Notification interface {
	Events(ctx context.Context) ([]domain.Event, error)
}

// PushSource validates push payloads. ParseNotification must not do any
// network I/O: it runs before the webhook is acknowledged.
type PushSource interface {
	ParseNotification(body []byte, resourceID string) (Notification, error)
}

// LeaseMode is the hub.mode of a push subscription request
type LeaseMode string

const (
	LeaseSubscribe   LeaseMode = "subscribe"
	LeaseUnsubscribe LeaseMode = "unsubscribe"
)

// Leaser manages push subscriptions for one platform.
type Leaser interface {
	Lease(ctx context.Context, resourceID string, mode LeaseMode) error
}
