package twitch

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/shared/httpclient"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, handle func(*http.Request) (int, string)) *Client {
	t.Helper()
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Client-ID") != "cid" {
			t.Errorf("missing Client-ID on %s", req.URL)
		}
		if req.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token on %s", req.URL)
		}
		status, body := handle(req)
		return &http.Response{StatusCode: status, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(body))}, nil
	})
	return New(httpclient.New(httpclient.Options{Name: "twitch", Transport: transport}), Options{
		APIURL:   "https://twitch.test/helix",
		HubURL:   "https://twitch.test/helix/webhooks/hub",
		ClientID: "cid",
		AppToken: "tok",
	})
}

func helix(req *http.Request) (int, string) {
	switch req.URL.Path {
	case "/helix/users":
		if req.URL.Query().Get("login") == "ghost" {
			return http.StatusOK, `{"data":[]}`
		}
		return http.StatusOK, `{"data":[{"id":"42","login":"faker","display_name":"Faker","profile_image_url":"https://img/faker.png"}]}`
	case "/helix/games":
		if req.URL.Query().Get("id") == "21779" {
			return http.StatusOK, `{"data":[{"id":"21779","name":"League of Legends","box_art_url":"https://img/lol-{width}x{height}.jpg"}]}`
		}
		return http.StatusOK, `{"data":[]}`
	}
	return http.StatusNotFound, ""
}

func TestResolve(t *testing.T) {
	c := newTestClient(t, helix)
	r, err := c.Resolve(context.Background(), "Faker")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.ID != "42" || r.Name != "Faker" || r.Type != domain.SourceTypeStream {
		t.Fatalf("resource = %+v", r)
	}
}

func TestResolveUnknownLogin(t *testing.T) {
	c := newTestClient(t, helix)
	_, err := c.Resolve(context.Background(), "ghost")
	if !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestNotificationEvents(t *testing.T) {
	c := newTestClient(t, helix)
	body := `{"data":[{"id":"s1","user_id":"42","user_name":"Faker","game_id":"21779","type":"live",
		"title":"Ranked","started_at":"2024-01-02T15:04:05Z","thumbnail_url":"https://img/live-{width}x{height}.jpg"}]}`

	n, err := c.ParseNotification([]byte(body), "")
	if err != nil {
		t.Fatalf("ParseNotification: %v", err)
	}
	events, err := n.Events(context.Background())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != domain.EventKindLive || ev.ResourceID != "42" || ev.Source != domain.SourceTypeStream {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Payload.Activity != "League of Legends" {
		t.Errorf("activity = %q", ev.Payload.Activity)
	}
	if ev.Payload.ImageURL != "https://img/live-320x180.jpg" {
		t.Errorf("image = %q", ev.Payload.ImageURL)
	}
	if ev.Payload.ThumbnailURL != "https://img/lol-300x300.jpg" {
		t.Errorf("thumbnail = %q", ev.Payload.ThumbnailURL)
	}
	if ev.Payload.URL != "https://www.twitch.tv/faker" {
		t.Errorf("url = %q", ev.Payload.URL)
	}
}

func TestNotificationWithoutGame(t *testing.T) {
	c := newTestClient(t, helix)
	n, err := c.ParseNotification([]byte(`{"data":[{"id":"s2","user_id":"42","game_id":"","title":"Just chatting"}]}`), "")
	if err != nil {
		t.Fatalf("ParseNotification: %v", err)
	}
	events, err := n.Events(context.Background())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if events[0].Payload.Activity != "a game" {
		t.Fatalf("activity = %q, want placeholder", events[0].Payload.Activity)
	}
}

func TestStreamDownHasNoEvents(t *testing.T) {
	c := newTestClient(t, helix)
	n, err := c.ParseNotification([]byte(`{"data":[]}`), "")
	if err != nil {
		t.Fatalf("ParseNotification: %v", err)
	}
	events, err := n.Events(context.Background())
	if err != nil || len(events) != 0 {
		t.Fatalf("Events = %v, %v; want none", events, err)
	}
}

func TestParseNotificationRejectsGarbage(t *testing.T) {
	c := newTestClient(t, helix)
	for _, body := range []string{`not json`, `{}`, `{"data":[{"id":"x"}]}`} {
		if _, err := c.ParseNotification([]byte(body), ""); !stderrors.Is(err, errors.ErrUpstreamRejected) {
			t.Errorf("%s: err = %v, want rejected", body, err)
		}
	}
}
