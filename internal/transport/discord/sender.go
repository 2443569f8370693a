// Package discord delivers notifications to Discord channels through
// incoming webhooks.
package discord

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/reshetovitsme/voice-of-light/internal/modules/notification/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/shared/httpclient"
	"github.com/samber/oops"
)

// Discord embed limits.
const (
	maxFields     = 25
	maxFieldValue = 1024
	maxDescLength = 4096
)

// Sender posts notifications as embeds to webhook URLs.
type Sender struct {
	http *httpclient.Client
}

// NewSender creates a Discord webhook sink
func NewSender(client *httpclient.Client) *Sender {
	return &Sender{http: client}
}

// Send posts n to the webhook URL in channel.
func (s *Sender) Send(ctx context.Context, channel string, n domain.Notification) error {
	body, err := json.Marshal(Payload(n))
	if err != nil {
		return oops.Wrap(err)
	}

	resp, err := s.http.Post(ctx, channel+"?wait=true", body, http.Header{"Content-Type": []string{"application/json"}})
	if err == nil {
		return nil
	}

	// Never log the webhook URL, it is a credential.
	builder := oops.With("sink", "discord")
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return builder.Wrapf(errors.ErrDestinationGone, "webhook status %d", status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return builder.Wrapf(errors.ErrPermissionDenied, "webhook status %d", status)
	case stderrors.Is(err, errors.ErrUpstreamTransient):
		return builder.Wrapf(errors.ErrUpstreamTransient, "webhook status %d", status)
	}
	return builder.Wrapf(errors.ErrUpstreamRejected, "webhook status %d", status)
}

type webhookMessage struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Author      *embedAuthor `json:"author,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
	Thumbnail   *embedImage  `json:"thumbnail,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedAuthor struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Payload builds the webhook message for a notification.
func Payload(n domain.Notification) any {
	e := embed{
		Title:       n.Title,
		URL:         n.URL,
		Description: truncate(n.Description, maxDescLength),
		Color:       n.Color,
	}
	if !n.Timestamp.IsZero() {
		e.Timestamp = n.Timestamp.UTC().Format(time.RFC3339)
	}
	if n.Author != "" {
		e.Author = &embedAuthor{Name: n.Author, URL: n.AuthorURL}
	}
	if n.ImageURL != "" {
		e.Image = &embedImage{URL: n.ImageURL}
	}
	if n.ThumbnailURL != "" {
		e.Thumbnail = &embedImage{URL: n.ThumbnailURL}
	}
	if n.Footer != "" {
		e.Footer = &embedFooter{Text: n.Footer}
	}
	for i, f := range n.Fields {
		if i == maxFields {
			break
		}
		e.Fields = append(e.Fields, embedField{Name: f.Name, Value: truncate(f.Value, maxFieldValue)})
	}
	return webhookMessage{Content: n.Announcement, Embeds: []embed{e}}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
