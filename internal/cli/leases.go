package cli

import (
	"fmt"

	"github.com/reshetovitsme/voice-of-light/internal/di"
	leaseService "github.com/reshetovitsme/voice-of-light/internal/modules/lease/service"
	"github.com/reshetovitsme/voice-of-light/internal/shared/config"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

var renewLeasesCmd = &cobra.Command{
	Use:   "renew-leases",
	Short: "Renew the push subscription of every tracked resource once",
	RunE:  renewLeasesAction,
}

func renewLeasesAction(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Read()
	if err != nil {
		return oops.With("context", "failed to load config").Wrap(err)
	}
	applyLogLevel(cfg)
	if cfg.PushEnabled() && cfg.PublicURL == "" {
		return errors.ErrMissingPublicURL
	}

	injector, err := di.Setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer di.Shutdown(injector)

	leases, err := do.Invoke[*leaseService.Service](injector)
	if err != nil {
		return err
	}
	stats, err := leases.RenewAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Renewed %d leases, %d failed.\n", stats.Renewed, stats.Failed)
	return nil
}
