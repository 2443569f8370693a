package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/reshetovitsme/voice-of-light/internal/modules/dispatch/policy"
	notificationDomain "github.com/reshetovitsme/voice-of-light/internal/modules/notification/domain"
	resourceDomain "github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	resourceRepo "github.com/reshetovitsme/voice-of-light/internal/modules/resource/repository"
	subscriptionDomain "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/domain"
	subscriptionRepo "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/repository"
	subscriptionService "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/service"
	"github.com/reshetovitsme/voice-of-light/internal/shared/database"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/shared/metrics"
)

type sent struct {
	channel string
	n       notificationDomain.Notification
}

// fakeSender records deliveries and fails for configured channels.
type fakeSender struct {
	mu       sync.Mutex
	sent     []sent
	failures map[string]error
}

func (f *fakeSender) Send(_ context.Context, channel string, n notificationDomain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[channel]; ok {
		return err
	}
	f.sent = append(f.sent, sent{channel: channel, n: n})
	return nil
}

func (f *fakeSender) channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.channel)
	}
	sort.Strings(out)
	return out
}

type fixture struct {
	dispatcher *Service
	registry   *subscriptionService.Service
	resources  resourceRepo.Repository
	sender     *fakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(context.Background(), database.DriverSqlite, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	resources := resourceRepo.NewSQLStorage(db)
	registry := subscriptionService.New(subscriptionRepo.NewSQLStorage(db))
	sender := &fakeSender{failures: map[string]error{}}
	d := New(resources, registry, policy.NewSet(time.Hour), sender, Options{Concurrency: 3})
	return &fixture{dispatcher: d, registry: registry, resources: resources, sender: sender}
}

func (f *fixture) subscribe(t *testing.T, r resourceDomain.Resource, subscriberID string, filter subscriptionDomain.Filter) {
	t.Helper()
	ctx := context.Background()
	if err := f.registry.Subscribe(ctx, r, subscriberID, filter); err != nil {
		t.Fatalf("Subscribe %s: %v", subscriberID, err)
	}
	if err := f.registry.SetChannel(ctx, subscriberID, []resourceDomain.SourceType{r.Type}, "chan-"+subscriberID); err != nil {
		t.Fatalf("SetChannel %s: %v", subscriberID, err)
	}
}

func TestFanOutIsolatesPermanentFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := resourceDomain.Resource{ID: "t5_go", Type: resourceDomain.SourceTypeForum, Name: "golang"}
	for i := 1; i <= 5; i++ {
		f.subscribe(t, r, fmt.Sprintf("g%d", i), subscriptionDomain.Filter{})
	}
	f.sender.failures["chan-g3"] = fmt.Errorf("chat not found: %w", errors.ErrDestinationGone)

	ev := resourceDomain.Event{Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindPost, ID: "p1", Time: time.Now()}
	res, err := f.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Delivered != 4 || res.Removed != 1 {
		t.Fatalf("result = %+v, want 4 delivered and 1 removed", res)
	}
	want := []string{"chan-g1", "chan-g2", "chan-g4", "chan-g5"}
	if got := f.sender.channels(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("delivered to %v, want %v", got, want)
	}

	subs, _ := f.registry.Subscriptions(ctx, r.Key())
	if len(subs) != 4 {
		t.Fatalf("subscriptions left = %d, want 4", len(subs))
	}
	for _, s := range subs {
		if s.SubscriberID == "g3" {
			t.Fatal("g3's subscription should have been removed")
		}
	}
}

func TestPermissionFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := resourceDomain.Resource{ID: "t5_go", Type: resourceDomain.SourceTypeForum, Name: "golang"}
	f.subscribe(t, r, "g1", subscriptionDomain.Filter{})
	f.subscribe(t, r, "g2", subscriptionDomain.Filter{})
	f.sender.failures["chan-g1"] = fmt.Errorf("forbidden: %w", errors.ErrPermissionDenied)
	f.sender.failures["chan-g2"] = stderrors.New("connection reset")

	ev := resourceDomain.Event{Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindPost, ID: "p1", Time: time.Now()}
	res, err := f.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Refused != 1 || res.Failed != 1 || res.Removed != 0 {
		t.Fatalf("result = %+v", res)
	}
	subs, _ := f.registry.Subscriptions(ctx, r.Key())
	if len(subs) != 2 {
		t.Fatal("non-permanent failures must not remove subscriptions")
	}

	stored, _ := f.resources.GetResource(ctx, r.Key())
	if stored.LastEventID != "p1" {
		t.Fatal("cursor must advance even when deliveries fail")
	}
}

func TestBlogCategoryFanOutAndExcerpts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := resourceDomain.Resource{ID: "8141971962311514602", Type: resourceDomain.SourceTypeBlog, Name: "Surrender@20"}

	A, B, C := subscriptionDomain.CategoryRedPosts, subscriptionDomain.CategoryPBE, subscriptionDomain.CategoryRotations
	f.subscribe(t, r, "s1", subscriptionDomain.Filter{Categories: A})
	f.subscribe(t, r, "s2", subscriptionDomain.Filter{Categories: C})
	f.subscribe(t, r, "s3", subscriptionDomain.Filter{Categories: A | B})
	f.registry.AddKeyword(ctx, "s1", "Ahri")
	f.registry.AddKeyword(ctx, "s3", "zed")

	ev := resourceDomain.Event{
		Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindPost, ID: "post-1", Time: time.Now(),
		Categories: []string{"Red Posts", "PBE"},
		Payload:    resourceDomain.Payload{Title: "Patch", Body: "Intro.\n\nAHRI changes are coming.\n\nZeddicus is not Zed-adjacent"},
	}
	res, err := f.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Delivered != 2 || res.Skipped != 1 {
		t.Fatalf("result = %+v, want 2 delivered 1 skipped", res)
	}
	if got := f.sender.channels(); fmt.Sprint(got) != "[chan-s1 chan-s3]" {
		t.Fatalf("delivered to %v", got)
	}

	for _, s := range f.sender.sent {
		switch s.channel {
		case "chan-s1":
			if len(s.n.Fields) != 1 || s.n.Fields[0].Value != "AHRI changes are coming." {
				t.Fatalf("s1 excerpt = %+v", s.n.Fields)
			}
		case "chan-s3":
			// "Zed-adjacent" is a whole-word mention of zed.
			if len(s.n.Fields) != 1 {
				t.Fatalf("s3 excerpt = %+v", s.n.Fields)
			}
		}
	}
}

func TestBlogWithoutKeywordMatchHasNoExcerpt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := resourceDomain.Resource{ID: "blog", Type: resourceDomain.SourceTypeBlog, Name: "Blog"}
	f.subscribe(t, r, "s1", subscriptionDomain.Filter{Categories: subscriptionDomain.CategoryPBE})
	f.registry.AddKeyword(ctx, "s1", "lux")

	ev := resourceDomain.Event{
		Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindPost, ID: "p", Time: time.Now(),
		Categories: []string{"PBE"},
		Payload:    resourceDomain.Payload{Body: "Luxury skins arrive."},
	}
	if _, err := f.dispatcher.Dispatch(ctx, ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(f.sender.sent) != 1 || len(f.sender.sent[0].n.Fields) != 0 {
		t.Fatalf("unexpected delivery: %+v", f.sender.sent)
	}
}

func TestConcurrentLiveDuplicatesDeliverOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := resourceDomain.Resource{ID: "1234", Type: resourceDomain.SourceTypeStream, Name: "streamer"}
	f.subscribe(t, r, "g1", subscriptionDomain.Filter{})

	now := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
	f.dispatcher.SetClock(func() time.Time { return now })

	ev := resourceDomain.Event{Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindLive, ID: "s-1"}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.dispatcher.Dispatch(ctx, ev); err != nil {
				t.Errorf("Dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(f.sender.channels()); n != 1 {
		t.Fatalf("deliveries = %d, want exactly 1", n)
	}
	stored, _ := f.resources.GetResource(ctx, r.Key())
	if !stored.LastLiveAt.Equal(now) {
		t.Fatalf("last_live_at = %v, want %v", stored.LastLiveAt, now)
	}
}

func TestVideoScenarioThroughStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := resourceDomain.Resource{ID: "V", Type: resourceDomain.SourceTypeVideo, Name: "channel", LastEventID: "v1", EventCount: 10}
	f.subscribe(t, r, "g1", subscriptionDomain.Filter{})

	edit := resourceDomain.Event{Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindVideo, ID: "v2", ReportedCount: 10}
	res, err := f.dispatcher.Dispatch(ctx, edit)
	if err != nil || res.Outcome != OutcomeSuppressed {
		t.Fatalf("edit: result %+v err %v", res, err)
	}

	upload := edit
	upload.ReportedCount = 11
	res, err = f.dispatcher.Dispatch(ctx, upload)
	if err != nil || res.Outcome != OutcomeDelivered || res.Delivered != 1 {
		t.Fatalf("upload: result %+v err %v", res, err)
	}
	stored, _ := f.resources.GetResource(ctx, r.Key())
	if stored.LastEventID != "v2" || stored.EventCount != 11 {
		t.Fatalf("cursor = (%s, %d), want (v2, 11)", stored.LastEventID, stored.EventCount)
	}
}

func TestOnlyStreamsFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := resourceDomain.Resource{ID: "V", Type: resourceDomain.SourceTypeVideo, Name: "channel", LastEventID: "v1", EventCount: 1}
	f.subscribe(t, r, "all", subscriptionDomain.Filter{})
	f.subscribe(t, r, "streams", subscriptionDomain.Filter{OnlyStreams: true})

	upload := resourceDomain.Event{Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindVideo, ID: "v2", ReportedCount: 2}
	f.dispatcher.Dispatch(ctx, upload)
	if got := f.sender.channels(); fmt.Sprint(got) != "[chan-all]" {
		t.Fatalf("upload delivered to %v", got)
	}

	live := resourceDomain.Event{Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindLive, ID: "l1"}
	f.dispatcher.Dispatch(ctx, live)
	if got := f.sender.channels(); fmt.Sprint(got) != "[chan-all chan-all chan-streams]" {
		t.Fatalf("after live delivered to %v", got)
	}
}

func TestUnboundSubscriberIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := resourceDomain.Resource{ID: "t5", Type: resourceDomain.SourceTypeForum, Name: "golang"}
	if err := f.registry.Subscribe(ctx, r, "nochannel", subscriptionDomain.Filter{}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ev := resourceDomain.Event{Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindPost, ID: "p1", Time: time.Now()}
	res, err := f.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Skipped != 1 || len(f.sender.sent) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestUntrackedResourceIsNoop(t *testing.T) {
	f := newFixture(t)
	ev := resourceDomain.Event{Source: resourceDomain.SourceTypeStream, ResourceID: "ghost", Kind: resourceDomain.EventKindLive}
	res, err := f.dispatcher.Dispatch(context.Background(), ev)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Outcome != OutcomeUntracked {
		t.Fatalf("outcome = %s", res.Outcome)
	}
}

func TestDeletionOnlyRecordsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := resourceDomain.Resource{ID: "V", Type: resourceDomain.SourceTypeVideo, LastEventID: "v1", EventCount: 10}
	f.subscribe(t, r, "g1", subscriptionDomain.Filter{})

	ev := resourceDomain.Event{Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindDeleted, ReportedCount: 9}
	res, err := f.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Outcome != OutcomeRecorded || len(f.sender.sent) != 0 {
		t.Fatalf("deletion result = %+v", res)
	}
	stored, _ := f.resources.GetResource(ctx, r.Key())
	if stored.EventCount != 10 || stored.CountOffset != 1 {
		t.Fatalf("stored = %+v", stored)
	}
}

// contendedStore loses every compare-and-swap.
type contendedStore struct {
	resourceRepo.Repository
	swaps int
}

func (s *contendedStore) CompareAndSwap(context.Context, *resourceDomain.Resource, *resourceDomain.Resource) error {
	s.swaps++
	return errors.ErrCursorConflict
}

func TestCursorContentionGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := resourceDomain.Resource{ID: "contended", Type: resourceDomain.SourceTypeStream, Name: "streamer"}
	f.subscribe(t, r, "g1", subscriptionDomain.Filter{})

	store := &contendedStore{Repository: f.resources}
	d := New(store, f.registry, policy.NewSet(time.Hour), f.sender, Options{MaxAttempts: 3})
	exhausted := testutil.ToFloat64(metrics.Decisions.WithLabelValues(string(r.Type), "exhausted"))

	ev := resourceDomain.Event{Source: r.Type, ResourceID: r.ID, Kind: resourceDomain.EventKindLive, ID: "s-1"}
	_, err := d.Dispatch(ctx, ev)
	if !stderrors.Is(err, errors.ErrCursorConflict) {
		t.Fatalf("err = %v, want cursor conflict", err)
	}
	if store.swaps != 3 {
		t.Fatalf("swaps = %d, want 3", store.swaps)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("event delivered without a cursor write")
	}
	if got := testutil.ToFloat64(metrics.Decisions.WithLabelValues(string(r.Type), "exhausted")) - exhausted; got != 1 {
		t.Fatalf("exhausted counter moved by %v, want 1", got)
	}
}

func TestMaxAttemptsDefault(t *testing.T) {
	d := New(nil, nil, policy.NewSet(time.Hour), nil, Options{})
	if d.opts.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("max attempts = %d", d.opts.MaxAttempts)
	}
}
