package service

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	dispatchService "github.com/reshetovitsme/voice-of-light/internal/modules/dispatch/service"
	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	resourceRepo "github.com/reshetovitsme/voice-of-light/internal/modules/resource/repository"
	subscriptionDomain "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/domain"
	subscriptionRepo "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/repository"
	"github.com/reshetovitsme/voice-of-light/internal/shared/database"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
)

// fakeFetcher serves a fixed latest item or error per resource id.
type fakeFetcher struct {
	mu     sync.Mutex
	items  map[string]*domain.Event
	errs   map[string]error
	called []string
}

func (f *fakeFetcher) Latest(_ context.Context, r domain.Resource) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, r.ID)
	if err := f.errs[r.ID]; err != nil {
		return nil, err
	}
	return f.items[r.ID], nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []domain.Event
	// fail holds resource ids whose dispatch returns an error.
	fail map[string]error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev domain.Event) (dispatchService.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[ev.ResourceID]; err != nil {
		return dispatchService.Result{}, err
	}
	d.events = append(d.events, ev)
	return dispatchService.Result{Outcome: dispatchService.OutcomeDelivered}, nil
}

func newStore(t *testing.T, resources ...domain.Resource) resourceRepo.Repository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.DriverSqlite, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	subs := subscriptionRepo.NewSQLStorage(db)
	for _, r := range resources {
		if _, err := subs.Subscribe(ctx, &r, &subscriptionDomain.Subscription{Source: r.Type, ResourceID: r.ID, SubscriberID: "g1"}); err != nil {
			t.Fatalf("seed %s: %v", r.ID, err)
		}
	}
	return resourceRepo.NewSQLStorage(db)
}

func TestPollOnceSkipsFailingResource(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newStore(t,
		domain.Resource{ID: "a", Type: domain.SourceTypeForum, Name: "a", LastEventID: "a0", LastEventTime: base},
		domain.Resource{ID: "b", Type: domain.SourceTypeForum, Name: "b", LastEventID: "b0", LastEventTime: base},
		domain.Resource{ID: "c", Type: domain.SourceTypeForum, Name: "c", LastEventID: "c0", LastEventTime: base},
	)
	fetcher := &fakeFetcher{
		items: map[string]*domain.Event{
			"a": {Source: domain.SourceTypeForum, ResourceID: "a", Kind: domain.EventKindPost, ID: "a1", Time: base.Add(time.Minute)},
			"c": {Source: domain.SourceTypeForum, ResourceID: "c", Kind: domain.EventKindPost, ID: "c1", Time: base.Add(time.Minute)},
		},
		errs: map[string]error{"b": errors.ErrUpstreamTransient},
	}
	dispatcher := &recordingDispatcher{}
	p := New(store, map[domain.SourceType]sources.Fetcher{domain.SourceTypeForum: fetcher}, dispatcher, Options{})

	stats, err := p.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if stats.Checked != 3 || stats.Failed != 1 || stats.HandedOff != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(dispatcher.events) != 2 {
		t.Fatalf("dispatched %d events, want 2", len(dispatcher.events))
	}
}

func TestPollOnceCountsDispatchFailuresSeparately(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newStore(t,
		domain.Resource{ID: "a", Type: domain.SourceTypeForum, Name: "a", LastEventID: "a0", LastEventTime: base},
		domain.Resource{ID: "b", Type: domain.SourceTypeForum, Name: "b", LastEventID: "b0", LastEventTime: base},
	)
	fetcher := &fakeFetcher{items: map[string]*domain.Event{
		"a": {Source: domain.SourceTypeForum, ResourceID: "a", Kind: domain.EventKindPost, ID: "a1", Time: base.Add(time.Minute)},
		"b": {Source: domain.SourceTypeForum, ResourceID: "b", Kind: domain.EventKindPost, ID: "b1", Time: base.Add(time.Minute)},
	}}
	dispatcher := &recordingDispatcher{fail: map[string]error{"a": errors.ErrCursorConflict}}
	p := New(store, map[domain.SourceType]sources.Fetcher{domain.SourceTypeForum: fetcher}, dispatcher, Options{})

	stats, err := p.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if stats.Checked != 2 || stats.Failed != 0 || stats.DispatchFailed != 1 || stats.HandedOff != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPollOnceOnlyHandsOffNewerItems(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newStore(t, domain.Resource{ID: "r", Type: domain.SourceTypeForum, Name: "r", LastEventID: "p1", LastEventTime: base})

	tests := []struct {
		name string
		ev   *domain.Event
		want bool
	}{
		{"nothing", nil, false},
		{"same id", &domain.Event{ID: "p1", Time: base.Add(time.Hour)}, false},
		{"same time", &domain.Event{ID: "p2", Time: base}, false},
		{"older", &domain.Event{ID: "p2", Time: base.Add(-time.Hour)}, false},
		{"newer", &domain.Event{ID: "p2", Time: base.Add(time.Second)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{items: map[string]*domain.Event{"r": tt.ev}}
			dispatcher := &recordingDispatcher{}
			p := New(store, map[domain.SourceType]sources.Fetcher{domain.SourceTypeForum: fetcher}, dispatcher, Options{})

			stats, err := p.PollOnce(context.Background())
			if err != nil {
				t.Fatalf("PollOnce: %v", err)
			}
			if got := stats.HandedOff == 1; got != tt.want {
				t.Fatalf("handed off = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPollOnceIgnoresUnpolledTypes(t *testing.T) {
	store := newStore(t, domain.Resource{ID: "s", Type: domain.SourceTypeStream, Name: "s"})
	fetcher := &fakeFetcher{}
	p := New(store, map[domain.SourceType]sources.Fetcher{domain.SourceTypeForum: fetcher}, &recordingDispatcher{}, Options{})

	if _, err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(fetcher.called) != 0 {
		t.Fatalf("stream resource was polled: %v", fetcher.called)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	store := newStore(t, domain.Resource{ID: "a", Type: domain.SourceTypeForum, Name: "a"})
	fetcher := &fakeFetcher{}
	p := New(store, map[domain.SourceType]sources.Fetcher{domain.SourceTypeForum: fetcher}, &recordingDispatcher{}, Options{
		Interval:      10 * time.Millisecond,
		ResourceDelay: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		fetcher.mu.Lock()
		n := len(fetcher.called)
		fetcher.mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poller did not run repeated cycles")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !stderrors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestPollOnceEndToEndAdvancesCursor(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newStore(t, domain.Resource{ID: "r", Type: domain.SourceTypeForum, Name: "r", LastEventID: "p1", LastEventTime: base})
	ev := &domain.Event{Source: domain.SourceTypeForum, ResourceID: "r", Kind: domain.EventKindPost, ID: "p2", Time: base.Add(time.Minute)}

	// A dispatcher that advances the cursor the way the real one does, so a
	// second cycle sees the item as already announced.
	var dispatched int
	dispatcher := dispatchFunc(func(ctx context.Context, e domain.Event) (dispatchService.Result, error) {
		dispatched++
		cur, err := store.GetResource(ctx, e.ResourceKey())
		if err != nil {
			return dispatchService.Result{}, err
		}
		next := *cur
		next.LastEventID, next.LastEventTime = e.ID, e.Time
		return dispatchService.Result{}, store.CompareAndSwap(ctx, cur, &next)
	})
	p := New(store, map[domain.SourceType]sources.Fetcher{domain.SourceTypeForum: &fakeFetcher{items: map[string]*domain.Event{"r": ev}}}, dispatcher, Options{})

	for i := 0; i < 3; i++ {
		if _, err := p.PollOnce(context.Background()); err != nil {
			t.Fatalf("PollOnce: %v", err)
		}
	}
	if dispatched != 1 {
		t.Fatalf("dispatched %d times, want 1", dispatched)
	}
}

type dispatchFunc func(context.Context, domain.Event) (dispatchService.Result, error)

func (f dispatchFunc) Dispatch(ctx context.Context, ev domain.Event) (dispatchService.Result, error) {
	return f(ctx, ev)
}
