package cli

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/voice-of-light/internal/di"
	leaseService "github.com/reshetovitsme/voice-of-light/internal/modules/lease/service"
	pollerService "github.com/reshetovitsme/voice-of-light/internal/modules/poller/service"
	"github.com/reshetovitsme/voice-of-light/internal/shared/config"
	"github.com/reshetovitsme/voice-of-light/internal/supervisor"
	httpServer "github.com/reshetovitsme/voice-of-light/internal/transport/http"
	"github.com/reshetovitsme/voice-of-light/internal/transport/telegram"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot: poller, webhook server, lease renewal and chat commands",
	RunE:  serveAction,
}

func serveAction(cmd *cobra.Command, _ []string) error {
	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return oops.With("context", "failed to load config").Wrap(err)
	}
	applyLogLevel(cfg)

	// Setup dependency injection
	injector, err := di.Setup(ctx, cfg)
	if err != nil {
		return oops.With("context", "failed to setup dependency injection").Wrap(err)
	}
	defer func() {
		if err := di.Shutdown(injector); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	// Get services from DI container
	poller, err := do.Invoke[*pollerService.Service](injector)
	if err != nil {
		return err
	}
	leases := do.MustInvoke[*leaseService.Service](injector)
	server := do.MustInvoke[*httpServer.Server](injector)
	b, err := do.Invoke[*bot.Bot](injector)
	if err != nil {
		return err
	}
	// Registers the chat commands on the bot
	_ = do.MustInvoke[*telegram.Handler](injector)

	tree := supervisor.NewTree(slog.Default(), supervisor.TreeConfig{})
	tree.AddIngest(poller)
	tree.AddIngest(leases.Renewer())
	if len(cfg.FeedPingURLs) > 0 {
		tree.AddIngest(leases.Pinger())
	}
	tree.AddTransport(server)
	tree.AddTransport(telegram.NewService(b))

	slog.Info("Application started",
		"port", cfg.HTTPPort,
		"app_env", cfg.AppEnv,
		"database_driver", cfg.DatabaseDriver,
		"push_enabled", cfg.PushEnabled())
	slog.Info("Press Ctrl+C to stop")

	err = tree.Serve(ctx)
	slog.Info("Shutting down...")
	if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
