package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	resourceRepo "github.com/reshetovitsme/voice-of-light/internal/modules/resource/repository"
	"github.com/reshetovitsme/voice-of-light/internal/shared/httpclient"
	"github.com/reshetovitsme/voice-of-light/internal/shared/metrics"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

const (
	DefaultRenewInterval = 72 * time.Hour
	DefaultRequestDelay  = 2 * time.Second
	DefaultPingInterval  = 3 * time.Minute
)

// Options configures lease upkeep.
type Options struct {
	RenewInterval time.Duration
	RequestDelay  time.Duration
	PingInterval  time.Duration
	PingURLs      []string
}

// RenewStats describes one renewal run.
type RenewStats struct {
	Renewed int
	Failed  int
}

// Service keeps push subscriptions alive for every tracked resource of a
// push-based source type, and nudges feed services to refresh.
type Service struct {
	resources resourceRepo.Repository
	leasers   map[domain.SourceType]sources.Leaser
	pinger    *httpclient.Client
	opts      Options
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a lease manager. pinger may be nil when no ping URLs are set.
func New(resources resourceRepo.Repository, leasers map[domain.SourceType]sources.Leaser, pinger *httpclient.Client, opts Options) *Service {
	if opts.RenewInterval <= 0 {
		opts.RenewInterval = DefaultRenewInterval
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}
	return &Service{
		resources: resources,
		leasers:   leasers,
		pinger:    pinger,
		opts:      opts,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger
func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Register asks the source's hub to start pushing a newly tracked resource.
// Sources without push support are ignored.
func (s *Service) Register(ctx context.Context, key domain.Key) error {
	return s.lease(ctx, key, sources.LeaseSubscribe)
}

// Release asks the source's hub to stop pushing a dropped resource.
func (s *Service) Release(ctx context.Context, key domain.Key) error {
	return s.lease(ctx, key, sources.LeaseUnsubscribe)
}

func (s *Service) lease(ctx context.Context, key domain.Key, mode sources.LeaseMode) error {
	leaser, ok := s.leasers[key.Type]
	if !ok {
		return nil
	}
	err := leaser.Lease(ctx, key.ID, mode)
	result := "ok"
	if err != nil {
		result = "failed"
	}
	metrics.LeaseRenewals.WithLabelValues(string(key.Type), string(mode), result).Inc()
	if err != nil {
		return oops.With("resource", key.String(), "mode", mode).Wrap(err)
	}
	return nil
}

// RenewAll re-subscribes every tracked resource of every push source. A
// failed request is logged and left for the next run.
func (s *Service) RenewAll(ctx context.Context) (RenewStats, error) {
	var stats RenewStats

	types := lo.Keys(s.leasers)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, sourceType := range types {
		ids, err := s.resources.ListResourceIDs(ctx, sourceType)
		if err != nil {
			return stats, oops.With("source", sourceType, "context", "failed to list resources").Wrap(err)
		}
		for _, id := range ids {
			if err := s.limiter.Wait(ctx); err != nil {
				return stats, err
			}
			key := domain.Key{Type: sourceType, ID: id}
			if err := s.Register(ctx, key); err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				stats.Failed++
				s.logger.Warn("Failed to renew push lease", "resource", key.String(), "error", err)
				continue
			}
			stats.Renewed++
		}
	}

	s.logger.Info("Push leases renewed", "renewed", stats.Renewed, "failed", stats.Failed)
	return stats, nil
}

// PingFeeds hits every configured feed refresh endpoint. Failures are only
// logged at debug level.
func (s *Service) PingFeeds(ctx context.Context) {
	if s.pinger == nil {
		return
	}
	for _, u := range s.opts.PingURLs {
		if _, err := s.pinger.Get(ctx, u); err != nil {
			s.logger.Debug("Feed ping failed", "url", u, "error", err)
		}
	}
}

// Renewer returns the supervised job that runs RenewAll on start and then
// every renew interval.
func (s *Service) Renewer() *Job {
	return &Job{name: "lease-renewer", interval: s.opts.RenewInterval, immediate: true, logger: s.logger, run: func(ctx context.Context) {
		if _, err := s.RenewAll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Lease renewal run failed", "error", err)
		}
	}}
}

// Pinger returns the supervised job that runs PingFeeds every ping interval.
func (s *Service) Pinger() *Job {
	return &Job{name: "feed-pinger", interval: s.opts.PingInterval, logger: s.logger, run: s.PingFeeds}
}

// Job runs a function on a fixed interval until its context is cancelled.
type Job struct {
	name      string
	interval  time.Duration
	immediate bool
	logger    *slog.Logger
	run       func(ctx context.Context)
}

// String names the job in supervisor logs.
func (j *Job) String() string {
	return j.name
}

// Serve runs the job until ctx is cancelled.
func (j *Job) Serve(ctx context.Context) error {
	if j.immediate {
		j.run(ctx)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Debug("Scheduled job stopped", "job", j.name)
			return ctx.Err()
		case <-ticker.C:
			j.run(ctx)
		}
	}
}
