// Package config loads the canvas server configuration from a YAML file
// and the environment. Environment variables win over the file so a
// container can override a baked-in config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/canvas/auth"
	"github.com/hazyhaar/canvas/observability"
	"github.com/hazyhaar/canvas/session"
	"github.com/hazyhaar/canvas/shield"
)

// Config holds the full server configuration.
type Config struct {
	Addr      string `yaml:"addr"`
	DBPath    string `yaml:"db_path"`
	PublicURL string `yaml:"public_url"`
	LogLevel  string `yaml:"log_level"`

	// SessionSecret signs owner tokens. At least auth.MinSecretLen bytes.
	SessionSecret string `yaml:"session_secret"`
	// AllowSignup lets POST /api/owners create accounts once at least one
	// owner exists. The first owner can always be created.
	AllowSignup bool `yaml:"allow_signup"`
	// SecureCookies marks the auth cookie Secure. Defaults to true when
	// PublicURL is https.
	SecureCookies bool `yaml:"secure_cookies"`

	Google auth.OAuthConfig `yaml:"google"`

	Channel   ChannelConfig                 `yaml:"channel"`
	Autosave  session.AutosaveConfig        `yaml:"autosave"`
	RateLimit shield.RateLimitConfig        `yaml:"rate_limit"`
	Retention observability.RetentionConfig `yaml:"retention"`

	// MutationRetention bounds how long mutation log entries are kept.
	// Snapshots carry the state; the log only feeds live delivery.
	MutationRetention time.Duration `yaml:"mutation_retention"`
}

// ChannelConfig tunes the mutation hub.
type ChannelConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	QueueSize    int           `yaml:"queue_size"`
	SlowTimeout  time.Duration `yaml:"slow_timeout"`
	// PublishRate and PublishBurst cap mutations per actor per second.
	// A negative rate disables the limit.
	PublishRate  float64 `yaml:"publish_rate"`
	PublishBurst int     `yaml:"publish_burst"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "data/canvas.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Channel.PollInterval <= 0 {
		c.Channel.PollInterval = 250 * time.Millisecond
	}
	if c.Channel.QueueSize <= 0 {
		c.Channel.QueueSize = 256
	}
	if c.Channel.SlowTimeout <= 0 {
		c.Channel.SlowTimeout = 5 * time.Second
	}
	if c.Channel.PublishRate == 0 {
		c.Channel.PublishRate = 50
	}
	if c.Channel.PublishBurst <= 0 {
		c.Channel.PublishBurst = 100
	}
	if c.Autosave.Window <= 0 {
		c.Autosave.Window = time.Second
	}
	if c.Autosave.Timeout <= 0 {
		c.Autosave.Timeout = 10 * time.Second
	}
	if c.RateLimit.Rate == 0 {
		c.RateLimit = shield.RateLimitConfig{Rate: 20, Burst: 60}
	}
	if c.Retention.HTTPLogsDays == 0 {
		c.Retention.HTTPLogsDays = 30
	}
	if c.Retention.EventLogsDays == 0 {
		c.Retention.EventLogsDays = 365
	}
	if c.MutationRetention <= 0 {
		c.MutationRetention = 7 * 24 * time.Hour
	}
	if c.PublicURL == "" {
		host := c.Addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		c.PublicURL = "http://" + host
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	if strings.HasPrefix(c.PublicURL, "https://") {
		c.SecureCookies = true
	}
	if c.Google.RedirectURL == "" && c.Google.ClientID != "" {
		c.Google.RedirectURL = c.PublicURL + "/api/auth/google/callback"
	}
}

// Load reads path (when non-empty), applies environment overrides and
// defaults, then validates.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.applyEnv()
	c.applyDefaults()
	return c, c.Validate()
}

func (c *Config) applyEnv() {
	for _, o := range []struct {
		name string
		dst  *string
	}{
		{"CANVAS_ADDR", &c.Addr},
		{"CANVAS_DB", &c.DBPath},
		{"SESSION_SECRET", &c.SessionSecret},
		{"LOG_LEVEL", &c.LogLevel},
		{"PUBLIC_URL", &c.PublicURL},
		{"GOOGLE_CLIENT_ID", &c.Google.ClientID},
		{"GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret},
	} {
		if v := os.Getenv(o.name); v != "" {
			*o.dst = v
		}
	}
}

// ErrNoSecret is returned by Validate when no signing secret is set.
var ErrNoSecret = errors.New("config: session_secret (or SESSION_SECRET) is required")

// Validate checks values that have no sane default.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return ErrNoSecret
	}
	if err := auth.ValidateSecret([]byte(c.SessionSecret)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Google.ClientID != "" && c.Google.ClientSecret == "" {
		return fmt.Errorf("config: google.client_secret is required when google.client_id is set")
	}
	return nil
}
