package repository

import (
	"context"

	resourceDomain "github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/modules/subscription/domain"
)

// Repository persists the subscription registry: subscriptions, subscribers
// with their channel bindings and keywords, and the lifecycle of the
// resource rows they reference.
type Repository interface {
	// Subscribe stores sub, creating resource first if it is not tracked
	// yet. It reports whether the resource row was created.
	Subscribe(ctx context.Context, resource *resourceDomain.Resource, sub *domain.Subscription) (bool, error)
	// Unsubscribe removes one subscription and drops the resource row when
	// nobody is subscribed to it anymore. It reports whether it was dropped.
	Unsubscribe(ctx context.Context, key resourceDomain.Key, subscriberID string) (bool, error)
	ListByResource(ctx context.Context, key resourceDomain.Key) ([]*domain.Subscription, error)
	ListBySubscriber(ctx context.Context, subscriberID string) ([]*domain.Subscription, error)

	GetSubscriber(ctx context.Context, subscriberID string) (*domain.Subscriber, error)
	SetChannel(ctx context.Context, subscriberID string, sourceTypes []resourceDomain.SourceType, channel string) error
	AddKeyword(ctx context.Context, subscriberID, keyword string) error
	RemoveKeyword(ctx context.Context, subscriberID, keyword string) error
	// RemoveSubscriber deletes everything owned by the subscriber and returns
	// the resources left without subscribers.
	RemoveSubscriber(ctx context.Context, subscriberID string) ([]resourceDomain.Key, error)
}
