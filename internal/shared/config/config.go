package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/database"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

type Config struct {
	TelegramBotToken string        `koanf:"telegram_bot_token"`
	TelegramAPIURL   string        `koanf:"telegram_api_url"`
	AllowedUsers     []int64       `koanf:"-"`
	AppEnv           domain.AppEnv `koanf:"-"`
	LogLevel         string        `koanf:"log_level"`
	HTTPPort         string        `koanf:"http_port"`
	PublicURL        string        `koanf:"public_url"`

	DatabaseDriver database.Driver `koanf:"-"`
	DatabasePath   string          `koanf:"database_path"`
	DatabaseURL    string          `koanf:"database_url"`

	PollInterval      time.Duration `koanf:"poll_interval"`
	PollResourceDelay time.Duration `koanf:"poll_resource_delay"`
	LiveCooldown      time.Duration `koanf:"live_cooldown"`

	LeaseSeconds       int           `koanf:"lease_seconds"`
	LeaseRenewInterval time.Duration `koanf:"lease_renew_interval"`
	LeaseRequestDelay  time.Duration `koanf:"lease_request_delay"`
	FeedPingInterval   time.Duration `koanf:"feed_ping_interval"`
	FeedPingURLs       []string      `koanf:"-"`
	WebSubSecret       string        `koanf:"websub_secret"`

	// BlogPushSecret signs blog pushes, whose hub is configured outside the
	// bot. Empty accepts unsigned deliveries.
	BlogPushSecret string `koanf:"blog_push_secret"`

	YouTubeAPIKey   string `koanf:"youtube_api_key"`
	YouTubeHubURL   string `koanf:"youtube_hub_url"`
	TwitchClientID  string `koanf:"twitch_client_id"`
	TwitchAppToken  string `koanf:"twitch_app_token"`
	TwitchHubURL    string `koanf:"twitch_hub_url"`
	BloggerAPIKey   string `koanf:"blogger_api_key"`
	RedditUserAgent string `koanf:"reddit_user_agent"`

	ExcerptBudget           int           `koanf:"excerpt_budget"`
	DeliveryConcurrency     int           `koanf:"delivery_concurrency"`
	CursorMaxAttempts       int           `koanf:"cursor_max_attempts"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
}

var defaults = map[string]any{
	"telegram_api_url":          "https://api.telegram.org",
	"http_port":                 "8080",
	"app_env":                   "production",
	"log_level":                 "info",
	"database_driver":           "sqlite",
	"database_path":             "./data/voice-of-light.db",
	"poll_interval":             "5s",
	"poll_resource_delay":       "1s",
	"live_cooldown":             "1h",
	"lease_seconds":             864000,
	"lease_renew_interval":      "72h",
	"lease_request_delay":       "2s",
	"feed_ping_interval":        "3m",
	"reddit_user_agent":         "voice-of-light/1.0",
	"excerpt_budget":            950,
	"delivery_concurrency":      4,
	"cursor_max_attempts":       5,
	"breaker_failure_threshold": 5,
	"breaker_timeout":           "30s",
}

// Load reads the configuration and checks that everything needed to run the
// bot is present.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads the configuration from the first config file found and the
// environment, without validating it.
func Read() (*Config, error) {
	k := koanf.New(".")

	// Try to load config file from various formats
	configFiles := []string{
		"config.yaml",
		"config.yml",
		"config.json",
		"config.toml",
	}

	configFile, found := lo.Find(configFiles, func(file string) bool {
		_, err := os.Stat(file)
		return err == nil
	})

	if found {
		var parser koanf.Parser
		ext := filepath.Ext(configFile)

		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		case ".toml":
			parser = toml.Parser()
		default:
			return nil, oops.Errorf("unsupported config file extension: %s", ext)
		}

		if err := k.Load(file.Provider(configFile), parser); err != nil {
			return nil, oops.With("config_file", configFile).Wrap(err)
		}
	}

	// Environment variables override config file values
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, oops.With("context", "loading environment variables").Wrap(err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.With("context", "unmarshaling config").Wrap(err)
	}

	// Lists may come from a file as arrays or from the environment as
	// comma-separated strings.
	if allowedUsers := k.Get("allowed_users"); allowedUsers != nil {
		switch v := allowedUsers.(type) {
		case string:
			cfg.AllowedUsers = ParseAllowedUsers(v)
		case []interface{}:
			cfg.AllowedUsers = lo.FilterMap(v, func(item interface{}, _ int) (int64, bool) {
				switch val := item.(type) {
				case int64:
					return val, true
				case int:
					return int64(val), true
				case float64:
					return int64(val), true
				default:
					return 0, false
				}
			})
		}
	}
	switch v := k.Get("feed_ping_urls").(type) {
	case string:
		cfg.FeedPingURLs = ParseList(v)
	case []interface{}:
		cfg.FeedPingURLs = lo.FlatMap(v, func(item interface{}, _ int) []string {
			return ParseList(fmt.Sprint(item))
		})
	case []string:
		cfg.FeedPingURLs = lo.FlatMap(v, func(item string, _ int) []string {
			return ParseList(item)
		})
	}

	if appEnv, err := domain.ParseAppEnv(k.String("app_env")); err == nil {
		cfg.AppEnv = appEnv
	} else {
		cfg.AppEnv = domain.AppEnvProduction
	}

	driver, err := database.ParseDriver(k.String("database_driver"))
	if err != nil {
		return nil, oops.With("database_driver", k.String("database_driver")).Wrap(err)
	}
	cfg.DatabaseDriver = driver

	return &cfg, nil
}

// Validate checks the settings the bot cannot run without.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return errors.ErrMissingBotToken
	}
	if c.PushEnabled() && c.PublicURL == "" {
		return errors.ErrMissingPublicURL
	}
	if c.DatabaseDriver == database.DriverPostgres && c.DatabaseURL == "" {
		return oops.Errorf("database_url is required for the postgres driver")
	}
	return nil
}

// PushEnabled reports whether any push-based source is configured.
func (c *Config) PushEnabled() bool {
	return c.YouTubeAPIKey != "" || c.TwitchClientID != "" || c.BloggerAPIKey != ""
}

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if c.DatabaseDriver == database.DriverPostgres {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

// CallbackURL returns the public URL a hub should push to for path.
func (c *Config) CallbackURL(path string) string {
	return strings.TrimRight(c.PublicURL, "/") + path
}

// ParseList splits a comma-separated string, dropping blank entries
func ParseList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(part string, _ int) string {
		return strings.TrimSpace(part)
	}))
}

// ParseAllowedUsers parses comma-separated user IDs string into []int64
func ParseAllowedUsers(s string) []int64 {
	if s == "" {
		return []int64{}
	}
	parts := strings.Split(s, ",")
	return lo.FilterMap(parts, func(part string, _ int) (int64, bool) {
		part = strings.TrimSpace(part)
		if part == "" {
			return 0, false
		}
		var id int64
		if _, err := fmt.Sscanf(part, "%d", &id); err == nil {
			return id, true
		}
		return 0, false
	})
}
