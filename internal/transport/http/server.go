package http

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dispatchService "github.com/reshetovitsme/voice-of-light/internal/modules/dispatch/service"
	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/config"
	"github.com/reshetovitsme/voice-of-light/internal/shared/task"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/reshetovitsme/voice-of-light/internal/sources/websub"
	"github.com/samber/oops"
	sloghttp "github.com/samber/slog-http"
)

const (
	maxBodySize     = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Dispatcher receives the events extracted from push notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event) (dispatchService.Result, error)
}

// Server receives push notifications from the platforms' hubs
type Server struct {
	cfg        *config.Config
	push       map[domain.SourceType]sources.PushSource
	dispatcher Dispatcher
	spawner    *task.Spawner
	logger     *slog.Logger
}

// New creates a new HTTP server. Only source types present in push get a
// webhook route.
func New(cfg *config.Config, push map[domain.SourceType]sources.PushSource, dispatcher Dispatcher, spawner *task.Spawner) *Server {
	return &Server{
		cfg:        cfg,
		push:       push,
		dispatcher: dispatcher,
		spawner:    spawner,
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handler builds the routed handler with logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if _, ok := s.push[domain.SourceTypeVideo]; ok {
		mux.HandleFunc("GET /webhooks/youtube", s.handleVerify)
		mux.HandleFunc("POST /webhooks/youtube", s.notifyHandler(domain.SourceTypeVideo))
	}
	if _, ok := s.push[domain.SourceTypeStream]; ok {
		mux.HandleFunc("GET /webhooks/twitch", s.handleVerify)
		mux.HandleFunc("POST /webhooks/twitch", s.notifyHandler(domain.SourceTypeStream))
	}
	if _, ok := s.push[domain.SourceTypeBlog]; ok {
		mux.HandleFunc("GET /webhooks/blog/{resourceID}", s.handleVerify)
		mux.HandleFunc("POST /webhooks/blog/{resourceID}", s.notifyHandler(domain.SourceTypeBlog))
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Use slog-http middleware with recovery
	handler := sloghttp.Recovery(mux)
	return sloghttp.New(s.logger)(handler)
}

// Serve runs the server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%s", s.cfg.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return oops.With("addr", addr).Wrap(err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Webhook server shutdown failed", "error", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *Server) String() string {
	return "webhook-server"
}

// handleVerify answers a hub's intent verification by echoing the challenge.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("hub.challenge")
	if challenge == "" {
		http.Error(w, "hub.challenge is required", http.StatusBadRequest)
		return
	}
	s.logger.Info("Push subscription verified",
		"path", r.URL.Path,
		"mode", r.URL.Query().Get("hub.mode"),
		"topic", r.URL.Query().Get("hub.topic"))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

func (s *Server) notifyHandler(source domain.SourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if stderrors.As(err, &tooLarge) {
				http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		if err := websub.VerifySignature(s.secretFor(source), r.Header, body); err != nil {
			s.logger.Warn("Rejected webhook with a bad signature", "source", source, "error", err)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}

		resourceID := r.PathValue("resourceID")
		notification, err := s.push[source].ParseNotification(body, resourceID)
		if err != nil {
			s.logger.Warn("Rejected invalid webhook payload", "source", source, "resource_id", resourceID, "error", err)
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusOK)

		// The hub has its answer; everything below runs detached from the
		// request.
		id := s.spawner.Spawn(string(source), func(ctx context.Context) error {
			return s.process(ctx, source, notification)
		})
		s.logger.Debug("Webhook accepted", "source", source, "task_id", id)
	}
}

// secretFor returns the key pushes of source are signed with. Blog hubs are
// not subscribed by the bot, so they carry their own.
func (s *Server) secretFor(source domain.SourceType) string {
	if source == domain.SourceTypeBlog {
		return s.cfg.BlogPushSecret
	}
	return s.cfg.WebSubSecret
}

func (s *Server) process(ctx context.Context, source domain.SourceType, n sources.Notification) error {
	events, err := n.Events(ctx)
	if err != nil {
		return oops.With("source", source).Wrapf(err, "failed to resolve notification")
	}
	for _, ev := range events {
		result, err := s.dispatcher.Dispatch(ctx, ev)
		if err != nil {
			return oops.With("source", source, "resource_id", ev.ResourceID, "event_id", ev.ID).Wrap(err)
		}
		s.logger.Debug("Webhook event dispatched",
			"source", source,
			"resource_id", ev.ResourceID,
			"event_id", ev.ID,
			"outcome", result.Outcome,
			"delivered", result.Delivered)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
