package twitch

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/samber/oops"
)

type stream struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	GameID       string `json:"game_id"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	StartedAt    string `json:"started_at"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// StreamNotification is a stream change pushed by the hub. It carries no
// stream when the broadcaster went offline.
type StreamNotification struct {
	client *Client
	stream *stream
}

// ParseNotification validates a stream change payload.
func (c *Client) ParseNotification(body []byte, _ string) (sources.Notification, error) {
	var payload struct {
		Data *[]stream `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, oops.Wrapf(errors.ErrUpstreamRejected, "decode stream notification: %v", err)
	}
	if payload.Data == nil {
		return nil, oops.Wrapf(errors.ErrUpstreamRejected, "stream notification without data")
	}
	n := &StreamNotification{client: c}
	if len(*payload.Data) > 0 {
		s := (*payload.Data)[0]
		if s.UserID == "" {
			return nil, oops.Wrapf(errors.ErrUpstreamRejected, "stream notification without user_id")
		}
		n.stream = &s
	}
	return n, nil
}

// Events turns the notification into a go-live event, looking up the
// broadcaster and the game being played.
func (n *StreamNotification) Events(ctx context.Context) ([]domain.Event, error) {
	if n.stream == nil {
		return nil, nil
	}
	s := n.stream

	user, err := n.client.User(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	game, err := n.client.Game(ctx, s.GameID)
	if err != nil {
		return nil, err
	}

	ev := domain.Event{
		Source:     domain.SourceTypeStream,
		ResourceID: user.ID,
		Kind:       domain.EventKindLive,
		ID:         s.ID,
		Time:       parseTime(s.StartedAt),
		Payload: domain.Payload{
			ResourceName: user.DisplayName,
			Title:        s.Title,
			URL:          "https://www.twitch.tv/" + user.Login,
			Body:         user.DisplayName,
			Author:       user.DisplayName,
			AuthorURL:    "https://www.twitch.tv/" + user.Login,
			ImageURL:     thumbnail(s.ThumbnailURL, "320", "180"),
			Activity:     game.Name,
		},
	}
	if game.BoxArtURL != "" {
		ev.Payload.ThumbnailURL = thumbnail(game.BoxArtURL, "300", "300")
	}
	return []domain.Event{ev}, nil
}
