// Package task runs detached units of work that must outlive the request
// that started them.
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Func is a unit of work.
type Func func(ctx context.Context) error

// Spawner starts tasks in the background. Every task runs under the
// spawner's base context, not the caller's, and its outcome (including a
// panic) is logged when it finishes. Tasks are never retried.
type Spawner struct {
	base   context.Context
	logger *slog.Logger
	wg     sync.WaitGroup

	// OnDone is called after every task with its name and error. Used for
	// metrics.
	OnDone func(name string, err error)
}

// NewSpawner creates a spawner whose tasks are cancelled with base.
func NewSpawner(base context.Context, logger *slog.Logger) *Spawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{base: base, logger: logger}
}

// Spawn runs fn in its own goroutine and returns the task id.
func (s *Spawner) Spawn(name string, fn Func) string {
	id := uuid.NewString()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()

		var err error
		if perr := oops.Recover(func() { err = fn(s.base) }); perr != nil {
			err = oops.With("task", name, "task_id", id).Wrapf(perr, "task panicked")
		}

		log := s.logger.With("task", name, "task_id", id, "duration", time.Since(start))
		if err != nil {
			log.Error("Background task failed", "error", err)
		} else {
			log.Debug("Background task finished")
		}
		if s.OnDone != nil {
			s.OnDone(name, err)
		}
	}()
	return id
}

// Shutdown drains spawned tasks when the container shuts down.
func (s *Spawner) Shutdown(ctx context.Context) error {
	return s.Wait(ctx)
}

// Wait blocks until all spawned tasks finished or ctx is done.
func (s *Spawner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
