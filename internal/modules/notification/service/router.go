package service

import (
	"context"
	"strings"

	"github.com/reshetovitsme/voice-of-light/internal/modules/notification/domain"
	"github.com/samber/oops"
)

// Sender delivers one notification to one destination. Implementations
// report a destination that no longer exists with errors.ErrDestinationGone.
type Sender interface {
	Send(ctx context.Context, channel string, n domain.Notification) error
}

// Router picks the sink for a destination: discord webhook URLs go to the
// webhook sink, anything else is a telegram chat.
type Router struct {
	telegram Sender
	discord  Sender
}

// NewRouter creates a sink router; either sender may be nil.
func NewRouter(telegram, discord Sender) *Router {
	return &Router{telegram: telegram, discord: discord}
}

func (r *Router) Send(ctx context.Context, channel string, n domain.Notification) error {
	sender := r.telegram
	if IsDiscordWebhook(channel) {
		sender = r.discord
	}
	if sender == nil {
		return oops.With("channel", channel).New("no sink configured for destination")
	}
	return sender.Send(ctx, channel, n)
}

// IsDiscordWebhook reports whether a destination is a discord webhook URL.
func IsDiscordWebhook(channel string) bool {
	return strings.HasPrefix(channel, "https://discord.com/api/webhooks/") ||
		strings.HasPrefix(channel, "https://discordapp.com/api/webhooks/")
}
