// ABOUTME: Configuration loading and parsing for begaia-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MinSecretLength is the minimum accepted length of auth.jwt_secret
const MinSecretLength = 32

// Guard backends
const (
	GuardBackendStore  = "store"
	GuardBackendRedis  = "redis"
	GuardBackendMemory = "memory"
)

// Config represents the complete begaia-gateway configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Database      DatabaseConfig      `yaml:"database" toml:"database"`
	Redis         RedisConfig         `yaml:"redis" toml:"redis"`
	Guard         GuardConfig         `yaml:"guard" toml:"guard"`
	Hotel         HotelConfig         `yaml:"hotel" toml:"hotel"`
	Collaborators CollaboratorsConfig `yaml:"collaborators" toml:"collaborators"`
	Channels      ChannelsConfig      `yaml:"channels" toml:"channels"`
	Events        EventsConfig        `yaml:"events" toml:"events"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// RedisConfig holds the Redis connection used by the redis guard backend
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
}

// GuardConfig holds idempotency guard configuration
type GuardConfig struct {
	Backend       string        `yaml:"backend" toml:"backend"`
	TTL           time.Duration `yaml:"-" toml:"-"`
	PurgeInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TTLRaw           string `yaml:"ttl" toml:"ttl"`
	PurgeIntervalRaw string `yaml:"purge_interval" toml:"purge_interval"`
}

// HotelConfig holds per-deployment hotel defaults
type HotelConfig struct {
	// ID is the hotel served by the WhatsApp bridge connection
	ID            string `yaml:"id" toml:"id"`
	DefaultLocale string `yaml:"default_locale" toml:"default_locale"`
	DefaultMode   string `yaml:"default_mode" toml:"default_mode"`
}

// CollaboratorsConfig holds the availability, booking and extraction services.
// An empty URL selects the built-in implementation (static rates, local booking, rule extractor).
type CollaboratorsConfig struct {
	AvailabilityURL string            `yaml:"availability_url" toml:"availability_url"`
	BookingURL      string            `yaml:"booking_url" toml:"booking_url"`
	ExtractorURL    string            `yaml:"extractor_url" toml:"extractor_url"`
	StaticRates     map[string]string `yaml:"static_rates" toml:"static_rates"`
	Timeout         time.Duration     `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// ChannelsConfig holds configuration for every delivery channel
type ChannelsConfig struct {
	Web      WebConfig      `yaml:"web" toml:"web"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp" toml:"whatsapp"`
	Email    EmailConfig    `yaml:"email" toml:"email"`
}

// WebConfig holds web widget push configuration
type WebConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// WhatsAppConfig holds the messaging bridge configuration
type WhatsAppConfig struct {
	Enabled      bool            `yaml:"enabled" toml:"enabled"`
	BridgeURL    string          `yaml:"bridge_url" toml:"bridge_url"`
	BridgeToken  string          `yaml:"bridge_token" toml:"bridge_token"`
	ReadyTimeout time.Duration   `yaml:"-" toml:"-"`
	Backoff      []time.Duration `yaml:"-" toml:"-"`

	ReadyTimeoutRaw string   `yaml:"ready_timeout" toml:"ready_timeout"`
	BackoffRaw      []string `yaml:"backoff" toml:"backoff"`
}

// EmailConfig holds SMTP configuration
type EmailConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	SMTPHost string `yaml:"smtp_host" toml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port" toml:"smtp_port"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
	From     string `yaml:"from" toml:"from"`
}

// EventsConfig holds the AMQP broker used for domain events and channel-manager relay
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url" toml:"amqp_url"`
	Exchange string `yaml:"exchange" toml:"exchange"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the config path used when no --config flag is given.
// Priority: BEGAIA_CONFIG env var > XDG_CONFIG_HOME/begaia/gateway.yaml > ~/.config/begaia/gateway.yaml
func DefaultPath() string {
	if envPath := os.Getenv("BEGAIA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "begaia", "gateway.yaml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset optional fields
func (c *Config) applyDefaults() {
	if c.Guard.Backend == "" {
		c.Guard.Backend = GuardBackendStore
	}
	if c.Guard.TTL == 0 {
		c.Guard.TTL = 7 * 24 * time.Hour
	}
	if c.Guard.PurgeInterval == 0 {
		c.Guard.PurgeInterval = time.Hour
	}
	if c.Hotel.DefaultLocale == "" {
		c.Hotel.DefaultLocale = "es"
	}
	if c.Hotel.DefaultMode == "" {
		c.Hotel.DefaultMode = "automatic"
	}
	if c.Collaborators.Timeout == 0 {
		c.Collaborators.Timeout = 15 * time.Second
	}
	if c.Channels.WhatsApp.ReadyTimeout == 0 {
		c.Channels.WhatsApp.ReadyTimeout = 10 * time.Second
	}
	if len(c.Channels.WhatsApp.Backoff) == 0 {
		c.Channels.WhatsApp.Backoff = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	}
	if c.Channels.Email.SMTPPort == 0 {
		c.Channels.Email.SMTPPort = 587
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "begaia.events"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
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

	switch c.Guard.Backend {
	case GuardBackendStore, GuardBackendMemory:
	case GuardBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when guard.backend is redis")
		}
	default:
		return fmt.Errorf("guard.backend must be one of store, redis, memory (got %q)", c.Guard.Backend)
	}

	switch c.Hotel.DefaultLocale {
	case "es", "en", "pt":
	default:
		return fmt.Errorf("hotel.default_locale must be es, en or pt (got %q)", c.Hotel.DefaultLocale)
	}

	switch c.Hotel.DefaultMode {
	case "automatic", "supervised":
	default:
		return fmt.Errorf("hotel.default_mode must be automatic or supervised (got %q)", c.Hotel.DefaultMode)
	}

	for name, raw := range map[string]string{
		"collaborators.availability_url": c.Collaborators.AvailabilityURL,
		"collaborators.booking_url":      c.Collaborators.BookingURL,
		"collaborators.extractor_url":    c.Collaborators.ExtractorURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s is not a valid URL: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s must use http or https scheme", name)
		}
	}

	if c.Channels.WhatsApp.Enabled && c.Channels.WhatsApp.BridgeURL == "" {
		return fmt.Errorf("channels.whatsapp.bridge_url is required when whatsapp is enabled")
	}
	if c.Channels.WhatsApp.Enabled && c.Hotel.ID == "" {
		return fmt.Errorf("hotel.id is required when whatsapp is enabled")
	}

	if c.Channels.Email.Enabled {
		if c.Channels.Email.SMTPHost == "" {
			return fmt.Errorf("channels.email.smtp_host is required when email is enabled")
		}
		if c.Channels.Email.From == "" {
			return fmt.Errorf("channels.email.from is required when email is enabled")
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinSecretLength)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Guard.TTLRaw != "" {
		cfg.Guard.TTL, err = time.ParseDuration(cfg.Guard.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing guard.ttl %q: %w", cfg.Guard.TTLRaw, err)
		}
	}

	if cfg.Guard.PurgeIntervalRaw != "" {
		cfg.Guard.PurgeInterval, err = time.ParseDuration(cfg.Guard.PurgeIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing guard.purge_interval %q: %w", cfg.Guard.PurgeIntervalRaw, err)
		}
	}

	if cfg.Collaborators.TimeoutRaw != "" {
		cfg.Collaborators.Timeout, err = time.ParseDuration(cfg.Collaborators.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing collaborators.timeout %q: %w", cfg.Collaborators.TimeoutRaw, err)
		}
	}

	if cfg.Channels.WhatsApp.ReadyTimeoutRaw != "" {
		cfg.Channels.WhatsApp.ReadyTimeout, err = time.ParseDuration(cfg.Channels.WhatsApp.ReadyTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing channels.whatsapp.ready_timeout %q: %w", cfg.Channels.WhatsApp.ReadyTimeoutRaw, err)
		}
	}

	for _, raw := range cfg.Channels.WhatsApp.BackoffRaw {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing channels.whatsapp.backoff %q: %w", raw, err)
		}
		cfg.Channels.WhatsApp.Backoff = append(cfg.Channels.WhatsApp.Backoff, d)
	}

	return nil
}
