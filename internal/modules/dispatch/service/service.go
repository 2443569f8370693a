package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reshetovitsme/voice-of-light/internal/modules/dispatch/policy"
	notificationDomain "github.com/reshetovitsme/voice-of-light/internal/modules/notification/domain"
	notificationService "github.com/reshetovitsme/voice-of-light/internal/modules/notification/service"
	resourceDomain "github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	resourceRepo "github.com/reshetovitsme/voice-of-light/internal/modules/resource/repository"
	subscriptionDomain "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/shared/metrics"
	"github.com/samber/oops"
)

// DefaultMaxAttempts bounds how often a dispatch re-reads the cursor after
// losing a compare-and-swap race.
const DefaultMaxAttempts = 5

// Registry is what the dispatcher needs from the subscription registry.
type Registry interface {
	Subscriptions(ctx context.Context, key resourceDomain.Key) ([]*subscriptionDomain.Subscription, error)
	Subscriber(ctx context.Context, subscriberID string) (*subscriptionDomain.Subscriber, error)
	RemoveDangling(ctx context.Context, key resourceDomain.Key, subscriberID string) error
}

// Options tunes fan-out.
type Options struct {
	ExcerptBudget int
	Concurrency   int
	MaxAttempts   int
}

// Outcome summarizes what a dispatch did with an event.
type Outcome string

const (
	OutcomeDelivered  Outcome = "delivered"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeRecorded   Outcome = "recorded"
	OutcomeUntracked  Outcome = "untracked"
)

// Result reports a dispatch.
type Result struct {
	Outcome   Outcome
	Reason    string
	Delivered int
	Skipped   int
	Refused   int
	Failed    int
	Removed   int
}

// Service applies the novelty policy to events and fans accepted ones out to
// subscribers.
type Service struct {
	resources resourceRepo.Repository
	registry  Registry
	policies  policy.Set
	sender    notificationService.Sender
	opts      Options
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a new dispatcher
func New(resources resourceRepo.Repository, registry Registry, policies policy.Set, sender notificationService.Sender, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ExcerptBudget <= 0 {
		opts.ExcerptBudget = DefaultExcerptBudget
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Service{
		resources: resources,
		registry:  registry,
		policies:  policies,
		sender:    sender,
		opts:      opts,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger
func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Dispatch runs one event through the novelty policy of its resource and,
// if accepted, delivers it. The cursor is written before any delivery.
// Errors are only returned for store failures; delivery problems are
// isolated per subscriber and reported in the result.
func (s *Service) Dispatch(ctx context.Context, ev resourceDomain.Event) (Result, error) {
	key := ev.ResourceKey()
	metrics.EventsReceived.WithLabelValues(string(ev.Source), string(ev.Kind)).Inc()

	p, ok := s.policies.For(ev.Source)
	if !ok {
		return Result{}, oops.With("resource", key.String()).Wrap(errors.ErrUnsupportedSource)
	}

	var (
		state    *resourceDomain.Resource
		decision policy.Decision
	)
	for attempt := 1; ; attempt++ {
		var err error
		state, err = s.resources.GetResource(ctx, key)
		if stderrors.Is(err, errors.ErrResourceNotFound) {
			s.logger.Debug("Event for untracked resource", "resource", key.String(), "event_id", ev.ID)
			return Result{Outcome: OutcomeUntracked}, nil
		}
		if err != nil {
			return Result{}, oops.With("resource", key.String(), "context", "failed to read cursor").Wrap(err)
		}

		decision = p.Evaluate(*state, ev, s.now())
		if decision.Next == nil {
			break
		}

		err = s.resources.CompareAndSwap(ctx, state, decision.Next)
		if err == nil {
			break
		}
		if !stderrors.Is(err, errors.ErrCursorConflict) {
			return Result{}, oops.With("resource", key.String(), "event_id", ev.ID, "context", "failed to advance cursor").Wrap(err)
		}
		metrics.Decisions.WithLabelValues(string(ev.Source), "conflict").Inc()
		if attempt >= s.opts.MaxAttempts {
			metrics.Decisions.WithLabelValues(string(ev.Source), "exhausted").Inc()
			s.logger.Error("Gave up advancing cursor", "resource", key.String(), "event_id", ev.ID, "attempts", attempt)
			return Result{}, oops.With("resource", key.String(), "event_id", ev.ID, "attempts", attempt).Wrap(err)
		}
	}

	if !decision.Deliver {
		outcome := OutcomeSuppressed
		if decision.Next != nil {
			outcome = OutcomeRecorded
		}
		metrics.Decisions.WithLabelValues(string(ev.Source), string(outcome)).Inc()
		s.logger.Debug("Event not announced", "resource", key.String(), "event_id", ev.ID, "kind", ev.Kind, "reason", decision.Reason)
		return Result{Outcome: outcome, Reason: decision.Reason}, nil
	}
	metrics.Decisions.WithLabelValues(string(ev.Source), "deliver").Inc()

	if ev.Payload.ResourceName == "" {
		ev.Payload.ResourceName = state.Name
	}
	res, err := s.fanOut(ctx, key, ev)
	if err != nil {
		return res, err
	}
	s.logger.Info("Event announced",
		"resource", key.String(), "event_id", ev.ID, "kind", ev.Kind,
		"delivered", res.Delivered, "skipped", res.Skipped, "refused", res.Refused,
		"failed", res.Failed, "removed", res.Removed)
	return res, nil
}

type deliveryResult int

const (
	deliveryOK deliveryResult = iota
	deliverySkipped
	deliveryRefused
	deliveryFailed
	deliveryRemoved
)

func (s *Service) fanOut(ctx context.Context, key resourceDomain.Key, ev resourceDomain.Event) (Result, error) {
	res := Result{Outcome: OutcomeDelivered}

	subs, err := s.registry.Subscriptions(ctx, key)
	if err != nil {
		return res, oops.With("resource", key.String(), "context", "failed to resolve subscribers").Wrap(err)
	}

	base := notificationService.Format(ev)
	eventCategories := subscriptionDomain.MaskOf(ev.Categories)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.opts.Concurrency)
	)
	for _, sub := range subs {
		wg.Add(1)
		sem <- struct{}{}
		go func(sub *subscriptionDomain.Subscription) {
			defer wg.Done()
			defer func() { <-sem }()

			r := s.deliver(ctx, key, ev, eventCategories, base, sub)

			mu.Lock()
			defer mu.Unlock()
			switch r {
			case deliveryOK:
				res.Delivered++
			case deliverySkipped:
				res.Skipped++
			case deliveryRefused:
				res.Refused++
			case deliveryFailed:
				res.Failed++
			case deliveryRemoved:
				res.Removed++
			}
		}(sub)
	}
	wg.Wait()
	return res, nil
}

// deliver handles one subscriber. Nothing that goes wrong here may affect
// the other subscribers.
func (s *Service) deliver(
	ctx context.Context,
	key resourceDomain.Key,
	ev resourceDomain.Event,
	eventCategories subscriptionDomain.CategoryMask,
	base notificationDomain.Notification,
	sub *subscriptionDomain.Subscription,
) (result deliveryResult) {
	source := string(ev.Source)
	log := s.logger.With("resource", key.String(), "subscriber_id", sub.SubscriberID, "event_id", ev.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Delivery panicked", "panic", fmt.Sprint(r))
			metrics.Deliveries.WithLabelValues(source, "failed").Inc()
			result = deliveryFailed
		}
	}()

	if !accepts(sub.Filter, ev, eventCategories) {
		metrics.Deliveries.WithLabelValues(source, "filtered").Inc()
		return deliverySkipped
	}

	subscriber, err := s.registry.Subscriber(ctx, sub.SubscriberID)
	if stderrors.Is(err, errors.ErrSubscriberUnknown) {
		metrics.Deliveries.WithLabelValues(source, "unbound").Inc()
		return deliverySkipped
	}
	if err != nil {
		log.Error("Failed to load subscriber", "error", err)
		metrics.Deliveries.WithLabelValues(source, "failed").Inc()
		return deliveryFailed
	}

	channel, ok := subscriber.ChannelFor(ev.Source)
	if !ok {
		metrics.Deliveries.WithLabelValues(source, "unbound").Inc()
		return deliverySkipped
	}

	n := base
	if ev.Source == resourceDomain.SourceTypeBlog && len(subscriber.Keywords) > 0 {
		n = base.WithFields(Excerpts(ev.Payload.Body, subscriber.Keywords, s.opts.ExcerptBudget)...)
	}

	err = s.sender.Send(ctx, channel, n)
	switch {
	case err == nil:
		metrics.Deliveries.WithLabelValues(source, "ok").Inc()
		return deliveryOK

	case stderrors.Is(err, errors.ErrDestinationGone):
		metrics.Deliveries.WithLabelValues(source, "gone").Inc()
		log.Warn("Destination gone, removing subscription", "channel", channel, "error", err)
		if err := s.registry.RemoveDangling(ctx, key, sub.SubscriberID); err != nil {
			log.Error("Failed to remove dangling subscription", "error", err)
			return deliveryFailed
		}
		return deliveryRemoved

	case stderrors.Is(err, errors.ErrPermissionDenied):
		metrics.Deliveries.WithLabelValues(source, "refused").Inc()
		log.Warn("Destination refused announcement", "channel", channel, "error", err)
		return deliveryRefused

	default:
		metrics.Deliveries.WithLabelValues(source, "failed").Inc()
		log.Error("Failed to deliver announcement", "channel", channel, "error", err)
		return deliveryFailed
	}
}

// accepts applies the subscription's filter flags to an event.
func accepts(f subscriptionDomain.Filter, ev resourceDomain.Event, eventCategories subscriptionDomain.CategoryMask) bool {
	switch ev.Source {
	case resourceDomain.SourceTypeVideo:
		return !f.OnlyStreams || ev.Kind == resourceDomain.EventKindLive
	case resourceDomain.SourceTypeBlog:
		return eventCategories.Intersects(f.Categories)
	}
	return true
}
