package discord

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/reshetovitsme/voice-of-light/internal/modules/notification/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/shared/httpclient"
)

func TestSendPostsEmbed(t *testing.T) {
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wait") != "true" {
			t.Errorf("wait flag missing")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(httpclient.New(httpclient.Options{Name: "discord"}))
	n := domain.Notification{
		Announcement: "New Video live!",
		Title:        "Patch 14.1",
		URL:          "https://youtu.be/v1",
		Color:        0xFF0000,
		Timestamp:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		ImageURL:     "https://img/v1.jpg",
		Fields:       []domain.Field{{Name: "'jinx' was mentioned in this post!", Value: "Jinx buffs"}},
	}
	if err := s.Send(context.Background(), srv.URL+"/api/webhooks/1/token", n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Content != "New Video live!" || len(got.Embeds) != 1 {
		t.Fatalf("message = %+v", got)
	}
	e := got.Embeds[0]
	if e.Title != "Patch 14.1" || e.Image == nil || e.Image.URL != "https://img/v1.jpg" || e.Timestamp != "2024-01-02T00:00:00Z" {
		t.Fatalf("embed = %+v", e)
	}
	if len(e.Fields) != 1 || e.Fields[0].Inline {
		t.Fatalf("fields = %+v", e.Fields)
	}
}

func TestSendClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, errors.ErrDestinationGone},
		{http.StatusGone, errors.ErrDestinationGone},
		{http.StatusUnauthorized, errors.ErrPermissionDenied},
		{http.StatusForbidden, errors.ErrPermissionDenied},
		{http.StatusTooManyRequests, errors.ErrUpstreamTransient},
		{http.StatusBadGateway, errors.ErrUpstreamTransient},
		{http.StatusBadRequest, errors.ErrUpstreamRejected},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		s := NewSender(httpclient.New(httpclient.Options{Name: "discord"}))
		err := s.Send(context.Background(), srv.URL, domain.Notification{Title: "x"})
		srv.Close()
		if !stderrors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestPayloadTruncates(t *testing.T) {
	fields := make([]domain.Field, 30)
	for i := range fields {
		fields[i] = domain.Field{Name: "f", Value: string(make([]rune, 2000))}
	}
	msg := Payload(domain.Notification{Fields: fields}).(webhookMessage)
	if len(msg.Embeds[0].Fields) != maxFields {
		t.Fatalf("fields = %d, want %d", len(msg.Embeds[0].Fields), maxFields)
	}
	if n := len([]rune(msg.Embeds[0].Fields[0].Value)); n != maxFieldValue {
		t.Fatalf("field value = %d runes, want %d", n, maxFieldValue)
	}
}
