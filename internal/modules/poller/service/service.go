package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	dispatchService "github.com/reshetovitsme/voice-of-light/internal/modules/dispatch/service"
	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	resourceRepo "github.com/reshetovitsme/voice-of-light/internal/modules/resource/repository"
	"github.com/reshetovitsme/voice-of-light/internal/shared/metrics"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

const (
	DefaultInterval      = 5 * time.Second
	DefaultResourceDelay = time.Second
)

// Dispatcher receives events that passed the poller's pre-check.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event) (dispatchService.Result, error)
}

// Options tunes polling.
type Options struct {
	// Interval is the pause between two cycles.
	Interval time.Duration
	// ResourceDelay is the minimum gap between two upstream queries.
	ResourceDelay time.Duration
}

// Stats describes one cycle.
type Stats struct {
	Checked int
	// Failed counts resources whose source call failed.
	Failed int
	// HandedOff counts items the dispatcher accepted without error.
	HandedOff      int
	DispatchFailed int
}

// Service polls resources of the pull-based source types.
type Service struct {
	resources  resourceRepo.Repository
	fetchers   map[domain.SourceType]sources.Fetcher
	dispatcher Dispatcher
	opts       Options
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a new poller. Only source types with a fetcher are polled.
func New(resources resourceRepo.Repository, fetchers map[domain.SourceType]sources.Fetcher, dispatcher Dispatcher, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ResourceDelay < 0 {
		opts.ResourceDelay = 0
	}
	limit := rate.Inf
	if opts.ResourceDelay > 0 {
		limit = rate.Every(opts.ResourceDelay)
	}
	return &Service{
		resources:  resources,
		fetchers:   fetchers,
		dispatcher: dispatcher,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger
func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// String names the service in supervisor logs.
func (s *Service) String() string {
	return "poller"
}

// Serve polls until ctx is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	s.logger.Info("Poller started", "interval", s.opts.Interval, "resource_delay", s.opts.ResourceDelay)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Poller stopped")
			return ctx.Err()
		case <-timer.C:
		}

		stats, err := s.PollOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("Poll cycle failed", "error", err)
		} else if stats.Checked > 0 {
			s.logger.Debug("Poll cycle finished", "checked", stats.Checked, "failed", stats.Failed, "handed_off", stats.HandedOff, "dispatch_failed", stats.DispatchFailed)
		}
		timer.Reset(s.opts.Interval)
	}
}

// PollOnce runs one cycle over every polled resource. A failing resource is
// skipped; only a failure to list resources or cancellation ends the cycle
// early.
func (s *Service) PollOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	types := lo.Keys(s.fetchers)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, sourceType := range types {
		fetcher := s.fetchers[sourceType]
		resources, err := s.resources.ListResources(ctx, sourceType)
		if err != nil {
			return stats, oops.With("source", sourceType, "context", "failed to list resources").Wrap(err)
		}

		for _, r := range resources {
			if err := s.limiter.Wait(ctx); err != nil {
				return stats, err
			}
			stats.Checked++
			ev, err := s.candidate(ctx, fetcher, r)
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if err != nil {
				stats.Failed++
				metrics.PollErrors.WithLabelValues(string(r.Type), "fetch").Inc()
				s.logger.Warn("Failed to fetch latest item", "resource", r.Key().String(), "name", r.Name, "error", err)
				continue
			}
			if ev == nil {
				continue
			}

			if _, err := s.dispatcher.Dispatch(ctx, *ev); err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				stats.DispatchFailed++
				metrics.PollErrors.WithLabelValues(string(r.Type), "dispatch").Inc()
				s.logger.Error("Failed to dispatch polled item", "resource", r.Key().String(), "event_id", ev.ID, "error", err)
				continue
			}
			stats.HandedOff++
		}
	}
	return stats, nil
}

// candidate fetches the newest item of r and returns it if it passes the
// pre-check, nil otherwise.
func (s *Service) candidate(ctx context.Context, fetcher sources.Fetcher, r *domain.Resource) (*domain.Event, error) {
	ev, err := fetcher.Latest(ctx, *r)
	if err != nil {
		return nil, err
	}
	if ev == nil || !IsCandidate(*r, *ev) {
		return nil, nil
	}
	return ev, nil
}

// IsCandidate is the poller's pre-check: the item must differ from the
// cursor and be strictly newer than it.
func IsCandidate(r domain.Resource, ev domain.Event) bool {
	return ev.ID != "" && ev.ID != r.LastEventID && ev.Time.After(r.LastEventTime)
}
