package di

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/voice-of-light/internal/modules/dispatch/policy"
	dispatchService "github.com/reshetovitsme/voice-of-light/internal/modules/dispatch/service"
	leaseService "github.com/reshetovitsme/voice-of-light/internal/modules/lease/service"
	notificationService "github.com/reshetovitsme/voice-of-light/internal/modules/notification/service"
	pollerService "github.com/reshetovitsme/voice-of-light/internal/modules/poller/service"
	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	resourceRepo "github.com/reshetovitsme/voice-of-light/internal/modules/resource/repository"
	subscriptionRepo "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/repository"
	subscriptionService "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/service"
	"github.com/reshetovitsme/voice-of-light/internal/shared/config"
	"github.com/reshetovitsme/voice-of-light/internal/shared/database"
	"github.com/reshetovitsme/voice-of-light/internal/shared/httpclient"
	"github.com/reshetovitsme/voice-of-light/internal/shared/metrics"
	"github.com/reshetovitsme/voice-of-light/internal/shared/task"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/reshetovitsme/voice-of-light/internal/sources/blogger"
	"github.com/reshetovitsme/voice-of-light/internal/sources/reddit"
	"github.com/reshetovitsme/voice-of-light/internal/sources/twitch"
	"github.com/reshetovitsme/voice-of-light/internal/sources/youtube"
	"github.com/reshetovitsme/voice-of-light/internal/transport/discord"
	httpServer "github.com/reshetovitsme/voice-of-light/internal/transport/http"
	"github.com/reshetovitsme/voice-of-light/internal/transport/telegram"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
)

const shutdownTimeout = 10 * time.Second

// Sources holds the configured platform adapters, indexed by what they can
// do. A platform without credentials is simply absent.
type Sources struct {
	Fetchers  map[domain.SourceType]sources.Fetcher
	Resolvers map[domain.SourceType]sources.Resolver
	Push      map[domain.SourceType]sources.PushSource
	Leasers   map[domain.SourceType]sources.Leaser
}

// Setup initializes the dependency injection container. Services are built
// lazily, so commands that never touch the bot do not need its token.
// Background work spawned by the webhook server is bound to ctx.
func Setup(ctx context.Context, cfg *config.Config) (do.Injector, error) {
	if cfg == nil {
		return nil, oops.New("config is required")
	}
	injector := do.New()

	// Register Config
	do.ProvideValue(injector, cfg)

	// Register Database
	do.Provide(injector, func(i do.Injector) (*database.DB, error) {
		cfg := do.MustInvoke[*config.Config](i)
		db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DSN())
		if err != nil {
			return nil, oops.With("driver", cfg.DatabaseDriver, "context", "failed to open database").Wrap(err)
		}
		return db, nil
	})

	// Register Repositories
	do.Provide(injector, func(i do.Injector) (resourceRepo.Repository, error) {
		return resourceRepo.NewSQLStorage(do.MustInvoke[*database.DB](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (subscriptionRepo.Repository, error) {
		return subscriptionRepo.NewSQLStorage(do.MustInvoke[*database.DB](i)), nil
	})

	// Register Source adapters
	do.Provide(injector, func(i do.Injector) (*Sources, error) {
		return newSources(do.MustInvoke[*config.Config](i)), nil
	})

	// Register Lease Service
	do.Provide(injector, func(i do.Injector) (*leaseService.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		srcs := do.MustInvoke[*Sources](i)
		pinger := httpclient.New(httpclient.Options{Name: "feed-ping"})
		svc := leaseService.New(do.MustInvoke[resourceRepo.Repository](i), srcs.Leasers, pinger, leaseService.Options{
			RenewInterval: cfg.LeaseRenewInterval,
			RequestDelay:  cfg.LeaseRequestDelay,
			PingInterval:  cfg.FeedPingInterval,
			PingURLs:      cfg.FeedPingURLs,
		})
		svc.SetLogger(slog.Default())
		return svc, nil
	})

	// Register Subscription Service
	do.Provide(injector, func(i do.Injector) (*subscriptionService.Service, error) {
		svc := subscriptionService.New(do.MustInvoke[subscriptionRepo.Repository](i))
		svc.SetLeaseRegistrar(do.MustInvoke[*leaseService.Service](i))
		svc.SetLogger(slog.Default())
		return svc, nil
	})

	// Register Bot
	do.Provide(injector, func(i do.Injector) (*bot.Bot, error) {
		cfg := do.MustInvoke[*config.Config](i)

		opts := []bot.Option{
			bot.WithServerURL(cfg.TelegramAPIURL),
		}

		b, err := bot.New(cfg.TelegramBotToken, opts...)
		if err != nil {
			return nil, oops.With("context", "failed to create telegram bot").Wrap(err)
		}
		return b, nil
	})

	// Register Notification sink
	do.Provide(injector, func(i do.Injector) (notificationService.Sender, error) {
		cfg := do.MustInvoke[*config.Config](i)
		webhooks := httpclient.New(httpclient.Options{
			Name:             "discord",
			FailureThreshold: cfg.BreakerFailureThreshold,
			OpenTimeout:      cfg.BreakerTimeout,
		})
		return notificationService.NewRouter(
			telegram.NewSender(do.MustInvoke[*bot.Bot](i)),
			discord.NewSender(webhooks),
		), nil
	})

	// Register Dispatcher
	do.Provide(injector, func(i do.Injector) (*dispatchService.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		svc := dispatchService.New(
			do.MustInvoke[resourceRepo.Repository](i),
			do.MustInvoke[*subscriptionService.Service](i),
			policy.NewSet(cfg.LiveCooldown),
			do.MustInvoke[notificationService.Sender](i),
			dispatchService.Options{
				ExcerptBudget: cfg.ExcerptBudget,
				Concurrency:   cfg.DeliveryConcurrency,
				MaxAttempts:   cfg.CursorMaxAttempts,
			},
		)
		svc.SetLogger(slog.Default())
		return svc, nil
	})

	// Register Poller
	do.Provide(injector, func(i do.Injector) (*pollerService.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		svc := pollerService.New(
			do.MustInvoke[resourceRepo.Repository](i),
			do.MustInvoke[*Sources](i).Fetchers,
			do.MustInvoke[*dispatchService.Service](i),
			pollerService.Options{Interval: cfg.PollInterval, ResourceDelay: cfg.PollResourceDelay},
		)
		svc.SetLogger(slog.Default())
		return svc, nil
	})

	// Register Spawner
	do.Provide(injector, func(i do.Injector) (*task.Spawner, error) {
		spawner := task.NewSpawner(ctx, slog.Default())
		spawner.OnDone = func(name string, err error) {
			result := "ok"
			if err != nil {
				result = "failed"
			}
			metrics.WebhookTasks.WithLabelValues(name, result).Inc()
		}
		return spawner, nil
	})

	// Register HTTP Server
	do.Provide(injector, func(i do.Injector) (*httpServer.Server, error) {
		server := httpServer.New(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*Sources](i).Push,
			do.MustInvoke[*dispatchService.Service](i),
			do.MustInvoke[*task.Spawner](i),
		)
		server.SetLogger(slog.Default())
		return server, nil
	})

	// Register Telegram Handler
	do.Provide(injector, func(i do.Injector) (*telegram.Handler, error) {
		h := telegram.New(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*subscriptionService.Service](i),
			do.MustInvoke[resourceRepo.Repository](i),
			do.MustInvoke[*Sources](i).Resolvers,
		)
		h.SetLogger(slog.Default())
		h.RegisterCommands(do.MustInvoke[*bot.Bot](i))
		return h, nil
	})

	return injector, nil
}

func newSources(cfg *config.Config) *Sources {
	s := &Sources{
		Fetchers:  map[domain.SourceType]sources.Fetcher{},
		Resolvers: map[domain.SourceType]sources.Resolver{},
		Push:      map[domain.SourceType]sources.PushSource{},
		Leasers:   map[domain.SourceType]sources.Leaser{},
	}
	client := func(name string) *httpclient.Client {
		return httpclient.New(httpclient.Options{
			Name:             name,
			UserAgent:        cfg.RedditUserAgent,
			FailureThreshold: cfg.BreakerFailureThreshold,
			OpenTimeout:      cfg.BreakerTimeout,
		})
	}

	// Reddit needs no credentials.
	forum := reddit.New(client("reddit"), reddit.DefaultBaseURL)
	s.Fetchers[domain.SourceTypeForum] = forum
	s.Resolvers[domain.SourceTypeForum] = forum

	if cfg.TwitchClientID != "" {
		stream := twitch.New(client("twitch"), twitch.Options{
			HubURL:       cfg.TwitchHubURL,
			ClientID:     cfg.TwitchClientID,
			AppToken:     cfg.TwitchAppToken,
			CallbackURL:  cfg.CallbackURL("/webhooks/twitch"),
			Secret:       cfg.WebSubSecret,
			LeaseSeconds: cfg.LeaseSeconds,
		})
		s.Resolvers[domain.SourceTypeStream] = stream
		s.Push[domain.SourceTypeStream] = stream
		s.Leasers[domain.SourceTypeStream] = stream
	}

	if cfg.YouTubeAPIKey != "" {
		video := youtube.New(client("youtube"), youtube.Options{
			HubURL:       cfg.YouTubeHubURL,
			APIKey:       cfg.YouTubeAPIKey,
			CallbackURL:  cfg.CallbackURL("/webhooks/youtube"),
			Secret:       cfg.WebSubSecret,
			LeaseSeconds: cfg.LeaseSeconds,
		})
		s.Resolvers[domain.SourceTypeVideo] = video
		s.Push[domain.SourceTypeVideo] = video
		s.Leasers[domain.SourceTypeVideo] = video
	}

	// Blog posts are pushed by a feed service configured out of band, so
	// there is no lease to manage.
	if cfg.BloggerAPIKey != "" {
		blog := blogger.New(client("blogger"), blogger.Options{APIKey: cfg.BloggerAPIKey})
		s.Resolvers[domain.SourceTypeBlog] = blog
		s.Push[domain.SourceTypeBlog] = blog
	}
	return s
}

// Shutdown gracefully shuts down the services that were built. Nothing is
// constructed just to be closed.
func Shutdown(injector do.Injector) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Detached webhook work writes cursors, so it drains before the store
	// closes. The container has no edge between the two.
	if err := do.ShutdownWithContext[*task.Spawner](ctx, injector); err != nil && !stderrors.Is(err, do.ErrServiceNotFound) {
		slog.Error("Background tasks did not finish", "error", err)
	}

	if report := injector.ShutdownWithContext(ctx); report != nil && !report.Succeed {
		return oops.With("context", "failed to shut down services").Wrap(report)
	}
	return nil
}
