// Package config loads the application configuration from a JSON or YAML
// file with environment variable overrides.
//
// Environment variables may also come from .env files: ENV_FILE if set,
// otherwise .env.local and .env in the working directory. Variables already
// present in the environment win over .env values.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"news_digest/internal/model"
)

// Defaults.
const (
	DefaultPath           = "./config.json"
	DefaultDatabasePath   = "./db.sqlite3"
	DefaultTopStoriesURL  = "https://hacker-news.firebaseio.com/v0"
	DefaultFetchTimeout   = 30 * time.Second
	DefaultConcurrency    = 8
	DefaultSMTPPort       = 587
	DefaultDigestSubject  = "News digest"
	defaultLogLevel       = "info"
	defaultPurgeAfterDays = 30
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string `yaml:"db_file"`
	LogLevel     string `yaml:"log_level"`

	PurgeAfterDays int  `yaml:"purge_after_days"`
	PurgeAfterRun  bool `yaml:"purge_after_run"`

	BlacklistedDomains   []string            `yaml:"blacklisted_domains"`
	Filters              []model.TopicFilter `yaml:"filters"`
	IncludeUncategorized bool                `yaml:"include_uncategorized"`

	TopStories   TopStoriesConfig `yaml:"top_stories"`
	RSSSources   []RSSSource      `yaml:"rss_sources"`
	FetchTimeout time.Duration    `yaml:"fetch_timeout"`

	SMTP     *SMTPConfig     `yaml:"smtp"`
	Telegram *TelegramConfig `yaml:"telegram"`
}

// TopStoriesConfig configures the primary news source.
type TopStoriesConfig struct {
	BaseURL     string `yaml:"base_url"`
	Limit       int    `yaml:"limit"`
	Concurrency int    `yaml:"concurrency"`
}

// RSSSource is a named RSS or Atom feed.
type RSSSource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SMTPConfig configures email delivery.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Subject  string `yaml:"subject"`
}

// TelegramConfig configures Telegram delivery. ChatID is a numeric chat ID
// or an @channel username.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// Delivery identifies the single output channel of a run.
type Delivery string

// Supported delivery channels.
const (
	DeliveryEmail    Delivery = "email"
	DeliveryTelegram Delivery = "telegram"
	DeliveryConsole  Delivery = "console"
)

// Load reads the config file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes configuration from JSON or YAML bytes, applies defaults and
// environment overrides, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &model.ConfigError{Entry: "file", Err: err}
	}

	// An explicit purge_after_days: 0 must be rejected, not defaulted.
	var present struct {
		PurgeAfterDays *int `yaml:"purge_after_days"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return nil, &model.ConfigError{Entry: "file", Err: err}
	}
	if present.PurgeAfterDays == nil {
		cfg.PurgeAfterDays = defaultPurgeAfterDays
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.TopStories.BaseURL == "" {
		c.TopStories.BaseURL = DefaultTopStoriesURL
	}
	if c.TopStories.Concurrency == 0 {
		c.TopStories.Concurrency = DefaultConcurrency
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.SMTP != nil {
		if c.SMTP.Port == 0 {
			c.SMTP.Port = DefaultSMTPPort
		}
		if c.SMTP.Subject == "" {
			c.SMTP.Subject = DefaultDigestSubject
		}
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	token, chatID := os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID")
	if c.Telegram == nil && token != "" && chatID != "" {
		c.Telegram = &TelegramConfig{}
	}
	if c.Telegram != nil {
		if token != "" {
			c.Telegram.Token = token
		}
		if chatID != "" {
			c.Telegram.ChatID = chatID
		}
	}

	if v := os.Getenv("SMTP_PASSWORD"); v != "" && c.SMTP != nil {
		c.SMTP.Password = v
	}
}

// Validate checks the configuration and reports every invalid entry.
func (c *Config) Validate() error {
	var errs error
	add := func(entry, msg string) {
		errs = multierr.Append(errs, &model.ConfigError{Entry: entry, Err: errors.New(msg)})
	}

	if c.PurgeAfterDays < 1 {
		add("purge_after_days", "must be a positive number of days")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add("log_level", "must be one of: debug, info, warn, error")
	}
	if c.TopStories.Limit < 0 {
		add("top_stories.limit", "must not be negative")
	}
	if c.TopStories.Concurrency < 0 {
		add("top_stories.concurrency", "must not be negative")
	}
	if !isHTTPURL(c.TopStories.BaseURL) {
		add("top_stories.base_url", "must be an http(s) URL")
	}

	names := make(map[string]struct{}, len(c.RSSSources))
	for i, src := range c.RSSSources {
		entry := fmt.Sprintf("rss_sources[%d]", i)
		if strings.TrimSpace(src.Name) == "" {
			add(entry+".name", "is required")
		} else if _, dup := names[src.Name]; dup {
			add(entry+".name", fmt.Sprintf("duplicate feed name %q", src.Name))
		}
		names[src.Name] = struct{}{}
		if !isHTTPURL(src.URL) {
			add(entry+".url", "must be an http(s) URL")
		}
	}

	if c.SMTP != nil {
		for _, f := range []struct{ entry, value string }{
			{"smtp.host", c.SMTP.Host},
			{"smtp.from", c.SMTP.From},
			{"smtp.to", c.SMTP.To},
		} {
			if strings.TrimSpace(f.value) == "" {
				add(f.entry, "is required")
			}
		}
		if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
			add("smtp.port", "must be between 1 and 65535")
		}
	}
	if c.Telegram != nil {
		if c.Telegram.Token == "" {
			add("telegram.token", "is required")
		}
		if c.Telegram.ChatID == "" {
			add("telegram.chat_id", "is required")
		}
	}

	return errs
}

// Delivery returns the output channel: email if SMTP is configured, else
// Telegram if configured, else the console.
func (c *Config) Delivery() Delivery {
	switch {
	case c.SMTP != nil:
		return DeliveryEmail
	case c.Telegram != nil:
		return DeliveryTelegram
	default:
		return DeliveryConsole
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
