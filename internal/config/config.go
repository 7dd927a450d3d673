// Package config loads cardlink.yml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/cardlink/internal/secretstore"
	"github.com/dyluth/cardlink/internal/trello"
	"github.com/dyluth/cardlink/pkg/link"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "cardlink.yml"

// Secret store backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config represents the top-level cardlink.yml configuration
type Config struct {
	Version string        `yaml:"version"`
	Pairing string        `yaml:"pairing"`
	Redis   RedisConfig   `yaml:"redis"`
	Link    LinkConfig    `yaml:"link"`
	Secrets SecretsConfig `yaml:"secrets"`
	Trello  TrelloConfig  `yaml:"trello"`
	Watch   WatchConfig   `yaml:"watch"`
	Debug   bool          `yaml:"debug"`
}

// RedisConfig locates the Redis server carrying the pairing link
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LinkConfig tunes the pairing session
type LinkConfig struct {
	DeliveryTimeout   time.Duration `yaml:"delivery_timeout,omitempty"`
	PresenceTTL       time.Duration `yaml:"presence_ttl,omitempty"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval,omitempty"`
	MaxPingFailures   int           `yaml:"max_ping_failures,omitempty"`
}

// SecretsConfig selects where each device keeps its credential pair
type SecretsConfig struct {
	Backend    string `yaml:"backend"` // "file" or "redis"
	Path       string `yaml:"path,omitempty"`
	Passphrase string `yaml:"passphrase,omitempty"`
	Service    string `yaml:"service,omitempty"`
	Account    string `yaml:"account,omitempty"`
}

// TrelloConfig configures the remote API client
type TrelloConfig struct {
	BaseURL           string        `yaml:"base_url,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	RequestsPerSecond float64       `yaml:"requests_per_second,omitempty"`
	Position          string        `yaml:"position,omitempty"` // "top" or "bottom"
}

// WatchConfig configures the watch daemon
type WatchConfig struct {
	HealthAddr string `yaml:"health_addr,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{Version: "1.0", Pairing: "default"}
	c.applyDefaults()
	return c
}

// Load reads cardlink.yml from path, applies environment overrides and validates.
// A missing file at DefaultPath yields the defaults; any other missing file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	config := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
		config = &Config{Version: "1.0", Pairing: "default"}
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides fields from the environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("CARDLINK_PAIRING"); ok && v != "" {
		c.Pairing = v
	}
	if v, ok := lookup("REDIS_URL"); ok && v != "" {
		c.Redis.URL = v
	}
	if v, ok := lookup("CARDLINK_SECRET_PASSPHRASE"); ok {
		c.Secrets.Passphrase = v
	}
	if v, ok := lookup("CARDLINK_SECRET_BACKEND"); ok && v != "" {
		c.Secrets.Backend = v
	}
	if v, ok := lookup("TRELLO_BASE_URL"); ok && v != "" {
		c.Trello.BaseURL = v
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEBUG must be a boolean, got %q", v)
		}
		c.Debug = debug
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Link.DeliveryTimeout == 0 {
		c.Link.DeliveryTimeout = link.DefaultDeliveryTimeout
	}
	if c.Link.PresenceTTL == 0 {
		c.Link.PresenceTTL = link.DefaultPresenceTTL
	}
	if c.Link.HeartbeatInterval == 0 {
		c.Link.HeartbeatInterval = link.DefaultHeartbeatInterval
	}
	if c.Link.MaxPingFailures == 0 {
		c.Link.MaxPingFailures = link.DefaultMaxPingFailures
	}
	if c.Secrets.Backend == "" {
		c.Secrets.Backend = BackendFile
	}
	if c.Trello.BaseURL == "" {
		c.Trello.BaseURL = trello.DefaultBaseURL
	}
	if c.Trello.Timeout == 0 {
		c.Trello.Timeout = trello.DefaultTimeout
	}
	if c.Trello.Position == "" {
		c.Trello.Position = trello.PositionBottom
	}
	if c.Watch.HealthAddr == "" {
		c.Watch.HealthAddr = ":8081"
	}
}

// Validate applies defaults and performs strict validation on the configuration
func (c *Config) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := link.ValidatePairingName(c.Pairing); err != nil {
		return err
	}

	c.applyDefaults()

	if _, err := redis.ParseURL(c.Redis.URL); err != nil {
		return fmt.Errorf("invalid redis.url: %w", err)
	}

	if c.Link.DeliveryTimeout < 0 || c.Link.PresenceTTL < 0 || c.Link.HeartbeatInterval < 0 {
		return fmt.Errorf("link durations must be positive")
	}
	if c.Link.MaxPingFailures < 1 {
		return fmt.Errorf("link.max_ping_failures must be >= 1, got %d", c.Link.MaxPingFailures)
	}
	if c.Link.HeartbeatInterval >= c.Link.PresenceTTL {
		return fmt.Errorf("link.heartbeat_interval (%v) must be shorter than link.presence_ttl (%v)", c.Link.HeartbeatInterval, c.Link.PresenceTTL)
	}

	if c.Secrets.Backend != BackendFile && c.Secrets.Backend != BackendRedis {
		return fmt.Errorf("invalid secrets.backend: %s (must be 'file' or 'redis')", c.Secrets.Backend)
	}

	if c.Trello.Position != trello.PositionTop && c.Trello.Position != trello.PositionBottom {
		return fmt.Errorf("invalid trello.position: %s (must be 'top' or 'bottom')", c.Trello.Position)
	}
	if c.Trello.Timeout < 0 || c.Trello.RequestsPerSecond < 0 {
		return fmt.Errorf("trello.timeout and trello.requests_per_second must be positive")
	}

	return nil
}

// RedisOptions parses the Redis URL.
func (c *Config) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis.url: %w", err)
	}
	return opts, nil
}

// LinkOptions returns session options for role.
func (c *Config) LinkOptions(role link.Role, logger log.FieldLogger) link.Options {
	return link.Options{
		Pairing:           c.Pairing,
		Role:              role,
		DeliveryTimeout:   c.Link.DeliveryTimeout,
		PresenceTTL:       c.Link.PresenceTTL,
		HeartbeatInterval: c.Link.HeartbeatInterval,
		MaxPingFailures:   c.Link.MaxPingFailures,
		Logger:            logger,
	}
}

// TrelloOptions returns client options.
func (c *Config) TrelloOptions(logger log.FieldLogger) trello.Options {
	return trello.Options{
		BaseURL:           c.Trello.BaseURL,
		Timeout:           c.Trello.Timeout,
		RequestsPerSecond: c.Trello.RequestsPerSecond,
		Logger:            logger,
	}
}

// SecretStore opens the configured store for role. Each role gets its own
// record so both devices can share one Redis server or one home directory.
func (c *Config) SecretStore(role link.Role, rdb *redis.Client) (secretstore.Store, error) {
	account := c.Secrets.Account
	if account == "" {
		account = fmt.Sprintf("%s-%s", secretstore.DefaultAccount, role)
	}

	switch c.Secrets.Backend {
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis secret store requires a redis client")
		}
		return secretstore.NewRedisStore(rdb, c.Secrets.Service, account), nil
	default:
		path := c.Secrets.Path
		if path == "" {
			def, err := secretstore.DefaultPath()
			if err != nil {
				return nil, err
			}
			path = def
		}
		return secretstore.NewFileStore(withRole(path, role), c.Secrets.Passphrase)
	}
}

// withRole inserts the role before the extension: creds.json -> creds-phone.json.
func withRole(path string, role link.Role) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + string(role) + ext
}
