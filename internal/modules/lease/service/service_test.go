package service

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	resourceRepo "github.com/reshetovitsme/voice-of-light/internal/modules/resource/repository"
	subscriptionDomain "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/domain"
	subscriptionRepo "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/repository"
	"github.com/reshetovitsme/voice-of-light/internal/shared/database"
	"github.com/reshetovitsme/voice-of-light/internal/shared/httpclient"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/reshetovitsme/voice-of-light/internal/sources/youtube"
)

type leaseCall struct {
	id   string
	mode sources.LeaseMode
}

type fakeLeaser struct {
	mu    sync.Mutex
	calls []leaseCall
	fail  map[string]bool
}

func (f *fakeLeaser) Lease(_ context.Context, id string, mode sources.LeaseMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, leaseCall{id: id, mode: mode})
	if f.fail[id] {
		return stderrors.New("hub said no")
	}
	return nil
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

func TestRenewAllContinuesPastFailures(t *testing.T) {
	store := newStore(t,
		domain.Resource{ID: "s1", Type: domain.SourceTypeStream, Name: "s1"},
		domain.Resource{ID: "s2", Type: domain.SourceTypeStream, Name: "s2"},
		domain.Resource{ID: "v1", Type: domain.SourceTypeVideo, Name: "v1"},
		domain.Resource{ID: "f1", Type: domain.SourceTypeForum, Name: "f1"},
	)
	streams := &fakeLeaser{fail: map[string]bool{"s1": true}}
	videos := &fakeLeaser{}
	m := New(store, map[domain.SourceType]sources.Leaser{
		domain.SourceTypeStream: streams,
		domain.SourceTypeVideo:  videos,
	}, nil, Options{})

	stats, err := m.RenewAll(context.Background())
	if err != nil {
		t.Fatalf("RenewAll: %v", err)
	}
	if stats.Renewed != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want 2 renewed and 1 failed", stats)
	}
	if len(streams.calls) != 2 || len(videos.calls) != 1 {
		t.Fatalf("calls: streams %v, videos %v", streams.calls, videos.calls)
	}
	for _, c := range append(streams.calls, videos.calls...) {
		if c.mode != sources.LeaseSubscribe {
			t.Fatalf("renewal used mode %q", c.mode)
		}
	}
}

func TestRegisterAndRelease(t *testing.T) {
	leaser := &fakeLeaser{}
	m := New(newStore(t), map[domain.SourceType]sources.Leaser{domain.SourceTypeVideo: leaser}, nil, Options{})
	ctx := context.Background()

	if err := m.Register(ctx, domain.Key{Type: domain.SourceTypeVideo, ID: "UC1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Release(ctx, domain.Key{Type: domain.SourceTypeVideo, ID: "UC1"}); err != nil {
		t.Fatalf("Release: %v", err)
	}
	// Poll-based sources have no lease.
	if err := m.Register(ctx, domain.Key{Type: domain.SourceTypeForum, ID: "go"}); err != nil {
		t.Fatalf("Register forum: %v", err)
	}

	want := []leaseCall{{"UC1", sources.LeaseSubscribe}, {"UC1", sources.LeaseUnsubscribe}}
	if len(leaser.calls) != len(want) || leaser.calls[0] != want[0] || leaser.calls[1] != want[1] {
		t.Fatalf("calls = %v, want %v", leaser.calls, want)
	}
}

func TestRenewAllAgainstHub(t *testing.T) {
	var topics []string
	var mu sync.Mutex
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		mu.Lock()
		topics = append(topics, r.PostForm.Get("hub.topic"))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer hub.Close()

	yt := youtube.New(httpclient.New(httpclient.Options{Name: "youtube"}), youtube.Options{
		HubURL:       hub.URL,
		CallbackURL:  "https://bot.example.com/webhooks/youtube",
		LeaseSeconds: 864000,
	})
	store := newStore(t,
		domain.Resource{ID: "UC1", Type: domain.SourceTypeVideo, Name: "one"},
		domain.Resource{ID: "UC2", Type: domain.SourceTypeVideo, Name: "two"},
	)
	m := New(store, map[domain.SourceType]sources.Leaser{domain.SourceTypeVideo: yt}, nil, Options{RequestDelay: time.Millisecond})

	stats, err := m.RenewAll(context.Background())
	if err != nil {
		t.Fatalf("RenewAll: %v", err)
	}
	if stats.Renewed != 2 || len(topics) != 2 {
		t.Fatalf("stats = %+v, topics = %v", stats, topics)
	}
	if topics[0] != youtube.Topic("UC1") && topics[1] != youtube.Topic("UC1") {
		t.Fatalf("topics = %v", topics)
	}
}

func TestPingFeedsFailsSilently(t *testing.T) {
	var hits atomic.Int32
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	m := New(newStore(t), nil, httpclient.New(httpclient.Options{Name: "pinger"}), Options{PingURLs: []string{broken.URL, ok.URL}})
	m.PingFeeds(context.Background())
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want both endpoints pinged", hits.Load())
	}
}

func TestRenewerRunsImmediatelyAndStops(t *testing.T) {
	store := newStore(t, domain.Resource{ID: "s1", Type: domain.SourceTypeStream, Name: "s1"})
	leaser := &fakeLeaser{}
	m := New(store, map[domain.SourceType]sources.Leaser{domain.SourceTypeStream: leaser}, nil, Options{RenewInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	job := m.Renewer()
	go func() { done <- job.Serve(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		leaser.mu.Lock()
		n := len(leaser.calls)
		leaser.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("renewer did not run on start")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Serve = %v", err)
	}
	if job.String() != "lease-renewer" {
		t.Fatalf("String = %q", job.String())
	}
}
