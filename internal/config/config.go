// ABOUTME: Configuration loading and parsing for hearthd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hearthd configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Auth     AuthConfig     `yaml:"auth"`
	Push     PushConfig     `yaml:"push"`
	Feed     FeedConfig     `yaml:"feed"`
	Unread   UnreadConfig   `yaml:"unread"`
	Tour     TourConfig     `yaml:"tour"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig holds the local snapshot cache configuration
type CacheConfig struct {
	Path string        `yaml:"path"`
	TTL  time.Duration `yaml:"-"`

	TTLRaw string `yaml:"ttl"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
	AdminToken string `yaml:"admin_token"`
}

// PushConfig holds Web Push configuration. Push is disabled when the key
// pair is empty.
type PushConfig struct {
	Enabled         bool   `yaml:"enabled"`
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
}

// FeedConfig holds feed reconciler timing configuration
type FeedConfig struct {
	FetchTimeout time.Duration `yaml:"-"`

	FetchTimeoutRaw string `yaml:"fetch_timeout"`
}

// UnreadConfig holds unread counter timing configuration
type UnreadConfig struct {
	RecomputeDelay time.Duration `yaml:"-"`

	RecomputeDelayRaw string `yaml:"recompute_delay"`
}

// TourConfig holds onboarding tour configuration
type TourConfig struct {
	StepsPath string `yaml:"steps_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults for optional timing fields.
const (
	DefaultCacheTTL       = 24 * time.Hour
	DefaultFetchTimeout   = 5 * time.Second
	DefaultRecomputeDelay = 2 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Push.Enabled {
		if c.Push.VAPIDPublicKey == "" || c.Push.VAPIDPrivateKey == "" {
			return fmt.Errorf("push.vapid_public_key and push.vapid_private_key are required when push is enabled")
		}
		if c.Push.Subscriber == "" {
			return fmt.Errorf("push.subscriber is required when push is enabled")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Cache.TTLRaw != "" {
		cfg.Cache.TTL, err = time.ParseDuration(cfg.Cache.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache.ttl %q: %w", cfg.Cache.TTLRaw, err)
		}
	}

	if cfg.Feed.FetchTimeoutRaw != "" {
		cfg.Feed.FetchTimeout, err = time.ParseDuration(cfg.Feed.FetchTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing feed.fetch_timeout %q: %w", cfg.Feed.FetchTimeoutRaw, err)
		}
	}

	if cfg.Unread.RecomputeDelayRaw != "" {
		cfg.Unread.RecomputeDelay, err = time.ParseDuration(cfg.Unread.RecomputeDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing unread.recompute_delay %q: %w", cfg.Unread.RecomputeDelayRaw, err)
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Feed.FetchTimeout == 0 {
		cfg.Feed.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Unread.RecomputeDelay == 0 {
		cfg.Unread.RecomputeDelay = DefaultRecomputeDelay
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
