package telegram

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	notificationService "github.com/reshetovitsme/voice-of-light/internal/modules/notification/service"
	resourceDomain "github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	subscriptionDomain "github.com/reshetovitsme/voice-of-light/internal/modules/subscription/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/config"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/samber/lo"
)

// sourceAliases maps what users type to a source type.
var sourceAliases = map[string]resourceDomain.SourceType{
	"forum":   resourceDomain.SourceTypeForum,
	"reddit":  resourceDomain.SourceTypeForum,
	"stream":  resourceDomain.SourceTypeStream,
	"twitch":  resourceDomain.SourceTypeStream,
	"video":   resourceDomain.SourceTypeVideo,
	"youtube": resourceDomain.SourceTypeVideo,
	"blog":    resourceDomain.SourceTypeBlog,
	"blogger": resourceDomain.SourceTypeBlog,
}

// Registry is what the command layer needs from the subscription registry.
type Registry interface {
	Subscribe(ctx context.Context, resource resourceDomain.Resource, subscriberID string, filter subscriptionDomain.Filter) error
	Unsubscribe(ctx context.Context, key resourceDomain.Key, subscriberID string) error
	SubscriptionsOf(ctx context.Context, subscriberID string) ([]*subscriptionDomain.Subscription, error)
	Subscriber(ctx context.Context, subscriberID string) (*subscriptionDomain.Subscriber, error)
	SetChannel(ctx context.Context, subscriberID string, sourceTypes []resourceDomain.SourceType, channel string) error
	AddKeyword(ctx context.Context, subscriberID, keyword string) error
	RemoveKeyword(ctx context.Context, subscriberID, keyword string) error
}

// ResourceReader looks tracked resources up for display.
type ResourceReader interface {
	GetResource(ctx context.Context, key resourceDomain.Key) (*resourceDomain.Resource, error)
}

// Handler handles Telegram bot commands. The chat a command is sent from is
// the subscriber.
type Handler struct {
	cfg       *config.Config
	registry  Registry
	resources ResourceReader
	resolvers map[resourceDomain.SourceType]sources.Resolver
	logger    *slog.Logger
}

// New creates a new Telegram handler. Only source types with a resolver can
// be subscribed to.
func New(cfg *config.Config, registry Registry, resources ResourceReader, resolvers map[resourceDomain.SourceType]sources.Resolver) *Handler {
	return &Handler{
		cfg:       cfg,
		registry:  registry,
		resources: resources,
		resolvers: resolvers,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger
func (h *Handler) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

// RegisterCommands registers bot commands
func (h *Handler) RegisterCommands(b *bot.Bot) {
	handle := func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.Handle(ctx, b, update.Message)
	}
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, handle)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, handle)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/setchannel", bot.MatchTypePrefix, handle)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/subscribe", bot.MatchTypePrefix, handle)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/unsubscribe", bot.MatchTypePrefix, handle)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/list", bot.MatchTypeExact, handle)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/keyword", bot.MatchTypePrefix, handle)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypeExact, handle)
}

// Handle runs one command message and replies in the same chat.
func (h *Handler) Handle(ctx context.Context, api MessageSender, msg *models.Message) {
	if msg == nil || msg.From == nil {
		return
	}
	parts := strings.Fields(msg.Text)
	if len(parts) == 0 {
		return
	}
	// Commands in groups arrive as /command@botname.
	command, _, _ := strings.Cut(parts[0], "@")
	args := parts[1:]

	if !h.checkAuthorization(msg.From.ID) {
		h.reply(ctx, api, msg, "❌ You are not authorized to use this bot.")
		return
	}

	subscriberID := strconv.FormatInt(msg.Chat.ID, 10)
	var text string
	switch command {
	case "/start", "/help":
		text = helpText
	case "/setchannel":
		text = h.handleSetChannel(ctx, subscriberID, args)
	case "/subscribe":
		text = h.handleSubscribe(ctx, subscriberID, args)
	case "/unsubscribe":
		text = h.handleUnsubscribe(ctx, subscriberID, args)
	case "/list":
		text = h.handleList(ctx, subscriberID)
	case "/keyword":
		text = h.handleKeyword(ctx, subscriberID, args)
	case "/keywords":
		text = h.handleKeywords(ctx, subscriberID)
	case "/status":
		text = h.handleStatus(ctx, subscriberID)
	default:
		return
	}
	h.reply(ctx, api, msg, text)
}

const helpText = `👋 Welcome to Voice of Light!

I announce new posts, videos, streams and blog entries in your chats.

Available commands:
/help - Show this help message
/setchannel <type|all> [chat] - Where announcements of a type go (defaults to this chat)
/subscribe <type> <name> [onlystreams|categories...] - Follow a resource
/unsubscribe <type> <name> - Stop following a resource
/list - List your subscriptions
/keyword add|remove <keyword> - Manage highlighted keywords
/keywords - List your keywords
/status - Show bot status

Types: reddit, twitch, youtube, blog

Example:
/setchannel all
/subscribe reddit golang`

func (h *Handler) checkAuthorization(userID int64) bool {
	// No restrictions
	if len(h.cfg.AllowedUsers) == 0 {
		return true
	}
	return lo.Contains(h.cfg.AllowedUsers, userID)
}

func (h *Handler) reply(ctx context.Context, api MessageSender, msg *models.Message, text string) {
	_, err := api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to reply to command", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (h *Handler) handleSetChannel(ctx context.Context, subscriberID string, args []string) string {
	if len(args) < 1 {
		return "Usage: /setchannel <type|all> [chat]\nExample: /setchannel youtube @my_channel"
	}

	var types []resourceDomain.SourceType
	if strings.EqualFold(args[0], "all") {
		types = allSourceTypes()
	} else {
		t, ok := parseSourceType(args[0])
		if !ok {
			return fmt.Sprintf("❌ Unknown type: %s", args[0])
		}
		types = []resourceDomain.SourceType{t}
	}

	channel := subscriberID
	if len(args) >= 2 {
		channel = args[1]
	}
	if strings.HasPrefix(channel, "https://") && !notificationService.IsDiscordWebhook(channel) {
		return "❌ Only Discord webhook URLs are supported as links"
	}

	if err := h.registry.SetChannel(ctx, subscriberID, types, channel); err != nil {
		h.logger.Error("Failed to set channel", "subscriber_id", subscriberID, "error", err)
		return fmt.Sprintf("❌ Failed to set channel: %v", err)
	}

	shown := channel
	if notificationService.IsDiscordWebhook(channel) {
		shown = "a Discord webhook"
	}
	return fmt.Sprintf("✅ Announcements for %s will be sent to %s", joinTypes(types), shown)
}

func (h *Handler) handleSubscribe(ctx context.Context, subscriberID string, args []string) string {
	if len(args) < 2 {
		return "Usage: /subscribe <type> <name> [onlystreams|categories...]\nExample: /subscribe youtube LeagueOfLegends onlystreams"
	}
	sourceType, ok := parseSourceType(args[0])
	if !ok {
		return fmt.Sprintf("❌ Unknown type: %s", args[0])
	}
	resolver, ok := h.resolvers[sourceType]
	if !ok {
		return fmt.Sprintf("❌ %s is not configured on this bot", args[0])
	}

	filter, err := parseFilter(sourceType, args[2:])
	if err != nil {
		return "❌ " + err.Error()
	}

	resource, err := resolver.Resolve(ctx, args[1])
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return fmt.Sprintf("❌ Could not find %s %s", args[0], args[1])
		}
		h.logger.Error("Failed to resolve resource", "source", sourceType, "query", args[1], "error", err)
		return fmt.Sprintf("❌ Failed to look up %s: %v", args[1], err)
	}

	if err := h.registry.Subscribe(ctx, resource, subscriberID, filter); err != nil {
		if stderrors.Is(err, errors.ErrAlreadySubscribed) {
			return fmt.Sprintf("You are already subscribed to %s", resource.Name)
		}
		h.logger.Error("Failed to subscribe", "resource", resource.Key().String(), "subscriber_id", subscriberID, "error", err)
		return fmt.Sprintf("❌ Failed to subscribe: %v", err)
	}

	text := fmt.Sprintf("✅ Subscribed to %s (%s)", resource.Name, sourceType)
	if sub, err := h.registry.Subscriber(ctx, subscriberID); err == nil {
		if _, bound := sub.ChannelFor(sourceType); !bound {
			text += fmt.Sprintf("\nUse /setchannel %s to choose where announcements go.", sourceType)
		}
	}
	return text
}

func (h *Handler) handleUnsubscribe(ctx context.Context, subscriberID string, args []string) string {
	if len(args) < 2 {
		return "Usage: /unsubscribe <type> <name>"
	}
	sourceType, ok := parseSourceType(args[0])
	if !ok {
		return fmt.Sprintf("❌ Unknown type: %s", args[0])
	}

	subs, err := h.registry.SubscriptionsOf(ctx, subscriberID)
	if err != nil {
		return fmt.Sprintf("❌ Failed to list subscriptions: %v", err)
	}

	name := strings.TrimPrefix(strings.TrimPrefix(args[1], "/"), "r/")
	for _, sub := range subs {
		if sub.Source != sourceType {
			continue
		}
		key := sub.ResourceKey()
		if !strings.EqualFold(key.ID, name) && !strings.EqualFold(h.resourceName(ctx, key), name) {
			continue
		}
		if err := h.registry.Unsubscribe(ctx, key, subscriberID); err != nil {
			h.logger.Error("Failed to unsubscribe", "resource", key.String(), "subscriber_id", subscriberID, "error", err)
			return fmt.Sprintf("❌ Failed to unsubscribe: %v", err)
		}
		return fmt.Sprintf("✅ Unsubscribed from %s", args[1])
	}
	return fmt.Sprintf("❌ You are not subscribed to %s %s", args[0], args[1])
}

func (h *Handler) handleList(ctx context.Context, subscriberID string) string {
	subs, err := h.registry.SubscriptionsOf(ctx, subscriberID)
	if err != nil {
		return fmt.Sprintf("❌ Failed to list subscriptions: %v", err)
	}
	if len(subs) == 0 {
		return "📭 No subscriptions yet.\nUse /subscribe to add one."
	}

	var text strings.Builder
	text.WriteString("📋 Subscriptions:\n\n")
	for i, sub := range subs {
		key := sub.ResourceKey()
		text.WriteString(fmt.Sprintf("%d. [%s] %s", i+1, key.Type, h.resourceName(ctx, key)))
		if sub.Filter.OnlyStreams {
			text.WriteString(" (streams only)")
		}
		if key.Type == resourceDomain.SourceTypeBlog {
			text.WriteString(fmt.Sprintf(" (%s)", strings.Join(sub.Filter.Categories.Names(), ", ")))
		}
		text.WriteString("\n")
	}
	return text.String()
}

func (h *Handler) handleKeyword(ctx context.Context, subscriberID string, args []string) string {
	if len(args) < 2 {
		return "Usage: /keyword add|remove <keyword>"
	}
	keyword := strings.ToLower(strings.Join(args[1:], " "))

	switch strings.ToLower(args[0]) {
	case "add":
		if err := h.registry.AddKeyword(ctx, subscriberID, keyword); err != nil {
			return fmt.Sprintf("❌ Failed to add keyword: %v", err)
		}
		return fmt.Sprintf("✅ Keyword '%s' added", keyword)
	case "remove":
		if err := h.registry.RemoveKeyword(ctx, subscriberID, keyword); err != nil {
			return fmt.Sprintf("❌ Failed to remove keyword: %v", err)
		}
		return fmt.Sprintf("✅ Keyword '%s' removed", keyword)
	}
	return "Usage: /keyword add|remove <keyword>"
}

func (h *Handler) handleKeywords(ctx context.Context, subscriberID string) string {
	sub, err := h.registry.Subscriber(ctx, subscriberID)
	if err != nil && !stderrors.Is(err, errors.ErrSubscriberUnknown) {
		return fmt.Sprintf("❌ Failed to list keywords: %v", err)
	}
	if sub == nil || len(sub.Keywords) == 0 {
		return "📭 No keywords yet.\nUse /keyword add <keyword> to add one."
	}
	return "🔎 Keywords:\n" + strings.Join(sub.Keywords, "\n")
}

func (h *Handler) handleStatus(ctx context.Context, subscriberID string) string {
	subs, err := h.registry.SubscriptionsOf(ctx, subscriberID)
	if err != nil {
		return fmt.Sprintf("❌ Failed to get status: %v", err)
	}
	counts := lo.CountValuesBy(subs, func(s *subscriptionDomain.Subscription) resourceDomain.SourceType {
		return s.Source
	})

	var channels strings.Builder
	sub, err := h.registry.Subscriber(ctx, subscriberID)
	for _, t := range allSourceTypes() {
		ch := "not set"
		if err == nil {
			if bound, ok := sub.ChannelFor(t); ok {
				ch = bound
				if notificationService.IsDiscordWebhook(bound) {
					ch = "Discord webhook"
				}
			}
		}
		channels.WriteString(fmt.Sprintf("  %s: %d subscriptions, channel %s\n", t, counts[t], ch))
	}

	enabled := lo.Keys(h.resolvers)
	slices.Sort(enabled)

	return fmt.Sprintf(`📊 Bot Status:

%s
Sources enabled: %s
Poll Interval: %s
Live Cooldown: %s`,
		channels.String(), joinTypes(enabled), h.cfg.PollInterval, h.cfg.LiveCooldown)
}

func (h *Handler) resourceName(ctx context.Context, key resourceDomain.Key) string {
	r, err := h.resources.GetResource(ctx, key)
	if err != nil || r.Name == "" {
		return key.ID
	}
	return r.Name
}

func parseSourceType(s string) (resourceDomain.SourceType, bool) {
	t, ok := sourceAliases[strings.ToLower(s)]
	return t, ok
}

// parseFilter reads the optional flags after the resource name.
func parseFilter(sourceType resourceDomain.SourceType, flags []string) (subscriptionDomain.Filter, error) {
	var filter subscriptionDomain.Filter
	switch sourceType {
	case resourceDomain.SourceTypeVideo:
		for _, f := range flags {
			if !strings.EqualFold(f, "onlystreams") {
				return filter, fmt.Errorf("unknown option %q, only onlystreams is supported", f)
			}
			filter.OnlyStreams = true
		}
	case resourceDomain.SourceTypeBlog:
		filter.Categories = subscriptionDomain.AllCategories
		if len(flags) > 0 {
			filter.Categories = subscriptionDomain.MaskOf(flags)
			if filter.Categories == 0 {
				names := lo.Map(subscriptionDomain.Categories, func(c subscriptionDomain.Category, _ int) string { return c.Name })
				return filter, fmt.Errorf("no known category given, choose from: %s", strings.Join(names, ", "))
			}
		}
	default:
		if len(flags) > 0 {
			return filter, fmt.Errorf("%s subscriptions take no options", sourceType)
		}
	}
	return filter, nil
}

func allSourceTypes() []resourceDomain.SourceType {
	return lo.Map(resourceDomain.SourceTypeNames(), func(name string, _ int) resourceDomain.SourceType {
		return resourceDomain.SourceType(name)
	})
}

func joinTypes(types []resourceDomain.SourceType) string {
	names := lo.Map(types, func(t resourceDomain.SourceType, _ int) string { return string(t) })
	return strings.Join(names, ", ")
}
