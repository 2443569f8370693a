package service

import (
	"context"
	stderrors "errors"
	"log/slog"

	resourceDomain "github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/modules/subscription/domain"
	"github.com/reshetovitsme/voice-of-light/internal/modules/subscription/repository"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/shared/metrics"
	"github.com/samber/oops"
)

// LeaseRegistrar keeps push subscriptions in step with the tracked resources.
type LeaseRegistrar interface {
	Register(ctx context.Context, key resourceDomain.Key) error
	Release(ctx context.Context, key resourceDomain.Key) error
}

// Service is the subscription registry used by the command layer and by the
// dispatcher for cleanup.
type Service struct {
	repo   repository.Repository
	leases LeaseRegistrar
	logger *slog.Logger
}

// New creates a new subscription service
func New(repo repository.Repository) *Service {
	return &Service{
		repo:   repo,
		logger: slog.Default(),
	}
}

// SetLeaseRegistrar sets the push lease hook
func (s *Service) SetLeaseRegistrar(leases LeaseRegistrar) {
	s.leases = leases
}

// SetLogger sets the logger
func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Subscribe starts tracking resource for the subscriber. The resource carries
// the initial cursor used if it was not tracked before.
func (s *Service) Subscribe(ctx context.Context, resource resourceDomain.Resource, subscriberID string, filter domain.Filter) error {
	sub := &domain.Subscription{
		Source:       resource.Type,
		ResourceID:   resource.ID,
		SubscriberID: subscriberID,
		Filter:       filter,
	}
	created, err := s.repo.Subscribe(ctx, &resource, sub)
	if err != nil {
		return err
	}

	s.logger.Info("Subscription added", "resource", resource.Key().String(), "subscriber_id", subscriberID, "new_resource", created)

	// A failed registration is retried by the next lease renewal.
	if created && s.leases != nil {
		if err := s.leases.Register(ctx, resource.Key()); err != nil {
			s.logger.Error("Failed to register push lease", "resource", resource.Key().String(), "error", err)
		}
	}
	return nil
}

// Unsubscribe removes one subscription, dropping the resource and releasing
// its lease when it was the last one.
func (s *Service) Unsubscribe(ctx context.Context, key resourceDomain.Key, subscriberID string) error {
	removed, err := s.repo.Unsubscribe(ctx, key, subscriberID)
	if err != nil {
		return err
	}
	s.logger.Info("Subscription removed", "resource", key.String(), "subscriber_id", subscriberID, "resource_dropped", removed)
	if removed {
		s.release(ctx, key)
	}
	return nil
}

// RemoveDangling drops a subscription whose destination no longer exists.
// A subscription already gone is not an error.
func (s *Service) RemoveDangling(ctx context.Context, key resourceDomain.Key, subscriberID string) error {
	err := s.Unsubscribe(ctx, key, subscriberID)
	if stderrors.Is(err, errors.ErrNotSubscribed) {
		return nil
	}
	if err != nil {
		return oops.With("resource", key.String(), "subscriber_id", subscriberID, "context", "failed to remove dangling subscription").Wrap(err)
	}
	metrics.SubscriptionCleanups.WithLabelValues(string(key.Type)).Inc()
	return nil
}

// RemoveSubscriber forgets a tenant entirely.
func (s *Service) RemoveSubscriber(ctx context.Context, subscriberID string) error {
	dropped, err := s.repo.RemoveSubscriber(ctx, subscriberID)
	if err != nil {
		return err
	}
	s.logger.Info("Subscriber removed", "subscriber_id", subscriberID, "resources_dropped", len(dropped))
	for _, key := range dropped {
		s.release(ctx, key)
	}
	return nil
}

// Subscriptions lists who is subscribed to a resource
func (s *Service) Subscriptions(ctx context.Context, key resourceDomain.Key) ([]*domain.Subscription, error) {
	return s.repo.ListByResource(ctx, key)
}

// SubscriptionsOf lists what a subscriber is subscribed to
func (s *Service) SubscriptionsOf(ctx context.Context, subscriberID string) ([]*domain.Subscription, error) {
	return s.repo.ListBySubscriber(ctx, subscriberID)
}

// Subscriber returns the subscriber with its bindings and keywords
func (s *Service) Subscriber(ctx context.Context, subscriberID string) (*domain.Subscriber, error) {
	return s.repo.GetSubscriber(ctx, subscriberID)
}

// SetChannel binds the announcement destination for the given source types
func (s *Service) SetChannel(ctx context.Context, subscriberID string, sourceTypes []resourceDomain.SourceType, channel string) error {
	return s.repo.SetChannel(ctx, subscriberID, sourceTypes, channel)
}

// AddKeyword adds a keyword to the subscriber
func (s *Service) AddKeyword(ctx context.Context, subscriberID, keyword string) error {
	return s.repo.AddKeyword(ctx, subscriberID, keyword)
}

// RemoveKeyword removes a keyword from the subscriber
func (s *Service) RemoveKeyword(ctx context.Context, subscriberID, keyword string) error {
	return s.repo.RemoveKeyword(ctx, subscriberID, keyword)
}

func (s *Service) release(ctx context.Context, key resourceDomain.Key) {
	if s.leases == nil {
		return
	}
	if err := s.leases.Release(ctx, key); err != nil {
		s.logger.Error("Failed to release push lease", "resource", key.String(), "error", err)
	}
}
