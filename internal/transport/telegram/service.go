package telegram

import (
	"context"

	"github.com/go-telegram/bot"
)

// Service runs the bot's long polling loop under the supervisor.
type Service struct {
	bot *bot.Bot
}

// NewService wraps b as a supervised service
func NewService(b *bot.Bot) *Service {
	return &Service{bot: b}
}

// Serve polls for updates until ctx is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	s.bot.Start(ctx)
	return ctx.Err()
}

func (s *Service) String() string {
	return "telegram-bot"
}
