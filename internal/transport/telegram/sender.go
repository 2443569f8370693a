package telegram

import (
	"context"
	stderrors "errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/reshetovitsme/voice-of-light/internal/modules/notification/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/samber/oops"
)

// maxMessageLength is Telegram's limit for one text message.
const maxMessageLength = 4096

// goneDescriptions are Telegram error descriptions for chats that will never
// accept a message again.
var goneDescriptions = []string{
	"chat not found",
	"chat was deleted",
	"user is deactivated",
	"bot was kicked",
	"group chat was deactivated",
}

// MessageSender is the part of the bot API the sender needs.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Sender delivers notifications as HTML messages to Telegram chats.
type Sender struct {
	api MessageSender
}

// NewSender creates a Telegram sink
func NewSender(api MessageSender) *Sender {
	return &Sender{api: api}
}

// Send posts n to channel, which is a numeric chat id or an @username.
func (s *Sender) Send(ctx context.Context, channel string, n domain.Notification) error {
	_, err := s.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    ChatID(channel),
		Text:      Render(n),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return classify(channel, err)
	}
	return nil
}

// ChatID converts a stored destination into what the bot API expects.
func ChatID(channel string) any {
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return id
	}
	if !strings.HasPrefix(channel, "@") {
		return "@" + channel
	}
	return channel
}

func classify(channel string, err error) error {
	builder := oops.With("channel", channel)
	description := strings.ToLower(err.Error())
	for _, d := range goneDescriptions {
		if strings.Contains(description, d) {
			return builder.Wrapf(errors.ErrDestinationGone, "%v", err)
		}
	}
	switch {
	case stderrors.Is(err, bot.ErrorNotFound):
		return builder.Wrapf(errors.ErrDestinationGone, "%v", err)
	case stderrors.Is(err, bot.ErrorForbidden):
		return builder.Wrapf(errors.ErrPermissionDenied, "%v", err)
	}
	return builder.Wrap(err)
}

// Render formats a notification as Telegram HTML. Fields that would push the
// message past Telegram's size limit are left out.
func Render(n domain.Notification) string {
	var b strings.Builder

	if n.Announcement != "" {
		fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(n.Announcement))
	}
	if n.Title != "" {
		if n.URL != "" {
			fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\n", html.EscapeString(n.URL), html.EscapeString(n.Title))
		} else {
			fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(n.Title))
		}
	} else if n.URL != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(n.URL))
	}
	if n.Description != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(n.Description))
	}
	if n.Author != "" {
		if n.AuthorURL != "" {
			fmt.Fprintf(&b, "\n<i>by <a href=\"%s\">%s</a></i>\n", html.EscapeString(n.AuthorURL), html.EscapeString(n.Author))
		} else {
			fmt.Fprintf(&b, "\n<i>by %s</i>\n", html.EscapeString(n.Author))
		}
	}
	if n.Footer != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(n.Footer))
	}

	for _, f := range n.Fields {
		block := fmt.Sprintf("\n<b>%s</b>\n%s\n", html.EscapeString(f.Name), html.EscapeString(f.Value))
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(block) > maxMessageLength {
			break
		}
		b.WriteString(block)
	}
	return strings.TrimRight(b.String(), "\n")
}
