// Package config loads and validates watcher configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported state backends.
const (
	StateBackendGCS    = "gcs"
	StateBackendLocal  = "local"
	StateBackendMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Target     TargetConfig     `mapstructure:"target"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	State      StateConfig      `mapstructure:"state"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// TargetConfig names the page being watched.
type TargetConfig struct {
	URL string `mapstructure:"url"`
}

// FetchConfig governs how the target page is retrieved and reduced to text.
type FetchConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	ContentSelector string        `mapstructure:"content_selector"`
	RespectRobots   bool          `mapstructure:"respect_robots"`
	Headless        bool          `mapstructure:"headless"`
	// AutoHeadless re-fetches through Chrome only when the static HTML looks
	// like a client-side shell. Ignored when Headless is set.
	AutoHeadless bool `mapstructure:"auto_headless"`
	// MaxBodyBytes caps the accepted page size; larger pages fail the fetch.
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
}

// StateConfig selects where the last known hash lives.
type StateConfig struct {
	Backend  string `mapstructure:"backend"`
	Bucket   string `mapstructure:"bucket"`
	Object   string `mapstructure:"object"`
	LocalDir string `mapstructure:"local_dir"`
}

// SummarizerConfig configures the Gemini summarizer.
type SummarizerConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	MaxChars int    `mapstructure:"max_chars"`
	Subject  string `mapstructure:"subject"`
}

// NotifyConfig configures the chat webhook.
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Title      string        `mapstructure:"title"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PubSubConfig holds metadata for change-event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScheduleConfig enables the in-process trigger.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key; Unmarshal only consults AutomaticEnv for
// keys viper already knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("target.url", "https://cloud.google.com/release-notes")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.user_agent", "release-notes-watcher/0.1")
	v.SetDefault("fetch.content_selector", "main")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.headless", false)
	v.SetDefault("fetch.auto_headless", false)
	v.SetDefault("fetch.max_body_bytes", 32<<20)
	v.SetDefault("state.backend", StateBackendGCS)
	v.SetDefault("state.bucket", "ai-release-notes")
	v.SetDefault("state.object", "release_notes_hash.txt")
	v.SetDefault("state.local_dir", "data/state")
	v.SetDefault("summarizer.model", "gemini-1.5-flash")
	v.SetDefault("summarizer.max_chars", 10000)
	v.SetDefault("summarizer.subject", "Google Cloud release notes")
	v.SetDefault("notify.title", "*New Google Cloud Release Notes Summary for {date}*")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("schedule.cron", "")
	v.SetDefault("logging.development", false)
}

// bindLegacyEnv maps the deployment's plain environment variable names onto
// config keys. The WATCHER_* form keeps working for every key.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"state.bucket":        {"GCS_BUCKET_NAME", "WATCHER_STATE_BUCKET"},
		"notify.webhook_url":  {"CHAT_WEBHOOK_URL", "WATCHER_NOTIFY_WEBHOOK_URL"},
		"summarizer.api_key":  {"GEMINI_API_KEY", "WATCHER_SUMMARIZER_API_KEY"},
		"server.port":         {"PORT", "WATCHER_SERVER_PORT"},
		"pubsub.project_id":   {"GOOGLE_CLOUD_PROJECT", "WATCHER_PUBSUB_PROJECT_ID"},
		"logging.development": {"WATCHER_LOGGING_DEVELOPMENT"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := validateURL("target.url", c.Target.URL); err != nil {
		return err
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	switch c.State.Backend {
	case StateBackendGCS:
		if strings.TrimSpace(c.State.Bucket) == "" {
			return fmt.Errorf("state.bucket must be set for the gcs backend")
		}
	case StateBackendLocal:
		if strings.TrimSpace(c.State.LocalDir) == "" {
			return fmt.Errorf("state.local_dir must be set for the local backend")
		}
	case StateBackendMemory:
	default:
		return fmt.Errorf("state.backend %q is not supported", c.State.Backend)
	}
	if strings.TrimSpace(c.State.Object) == "" {
		return fmt.Errorf("state.object must be set")
	}
	if c.Summarizer.MaxChars <= 0 {
		return fmt.Errorf("summarizer.max_chars must be > 0")
	}
	if c.Notify.WebhookURL != "" {
		if err := validateURL("notify.webhook_url", c.Notify.WebhookURL); err != nil {
			return err
		}
	}
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("notify.timeout must be > 0")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// SummarizerEnabled reports whether a model credential is configured.
func (c Config) SummarizerEnabled() bool {
	return strings.TrimSpace(c.Summarizer.APIKey) != ""
}

// PubSubEnabled reports whether change events should be published.
func (c Config) PubSubEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.Topic != ""
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL", key)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}
