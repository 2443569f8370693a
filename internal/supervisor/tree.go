// Package supervisor runs the long-lived services under a suture tree so a
// crashed loop is restarted with backoff instead of taking the process down.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes restart behavior. Zero values fall back to suture's
// defaults.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// Tree has two layers: ingest (poller, lease renewer, feed pinger) and
// transport (webhook server, telegram bot). A crashing poller does not stop
// the webhook receiver.
type Tree struct {
	root      *suture.Supervisor
	ingest    *suture.Supervisor
	transport *suture.Supervisor
}

// NewTree creates the supervisor tree
func NewTree(logger *slog.Logger, cfg TreeConfig) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}
	spec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = handler.MustHook()

	root := suture.New("voice-of-light", rootSpec)
	ingest := suture.New("ingest", spec)
	transport := suture.New("transport", spec)
	root.Add(ingest)
	root.Add(transport)

	return &Tree{root: root, ingest: ingest, transport: transport}
}

// AddIngest adds a service that pulls or renews upstream state.
func (t *Tree) AddIngest(svc suture.Service) suture.ServiceToken {
	return t.ingest.Add(svc)
}

// AddTransport adds a service that talks to clients or hubs.
func (t *Tree) AddTransport(svc suture.Service) suture.ServiceToken {
	return t.transport.Add(svc)
}

// Serve blocks until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// UnstoppedServiceReport lists services that ignored the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
