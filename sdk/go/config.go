package lumen

import (
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Default configuration values.
const (
	DefaultCollectorURL      = "https://collect.lumenlog.dev"
	DefaultBufferMaxSize     = 1000
	DefaultPayloadMaxSize    = 10000
	DefaultBaseInterval      = 500 * time.Millisecond
	DefaultMaxInterval       = 60 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultDrainMaxWait      = 10 * time.Second
	DefaultDrainPollInterval = 1 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
)

// Config holds the connector configuration.
type Config struct {
	// CollectorURL is the base URL of the collector (default: DefaultCollectorURL).
	// A trailing slash is stripped.
	CollectorURL string `env:"LUMEN_COLLECTOR_URL"`

	// APIKey is the shared secret sent as the X-API-Key header.
	// When empty the connector is disabled: every operation is a silent no-op.
	APIKey string `env:"LUMEN_API_KEY"`

	// AppName is the human-readable application name. The application
	// identity is derived from it plus a random suffix. Defaults to the
	// process executable name.
	AppName string `env:"LUMEN_APP_NAME"`

	// AppID overrides the derived application identity when set.
	AppID string `env:"LUMEN_APP_ID"`

	// BufferMaxSize is the accumulation buffer length that triggers an
	// automatic flush (default: 1000).
	BufferMaxSize int `env:"LUMEN_BUFFER_MAX_SIZE"`

	// PayloadMaxSize is the maximum number of events per bulk request
	// (default: 10000).
	PayloadMaxSize int `env:"LUMEN_PAYLOAD_MAX_SIZE"`

	// BaseInterval is the delivery loop's polling interval after a success
	// (default: 500ms).
	BaseInterval time.Duration `env:"LUMEN_BASE_INTERVAL"`

	// MaxInterval caps the polling interval during backoff (default: 60s).
	MaxInterval time.Duration `env:"LUMEN_MAX_INTERVAL"`

	// HeartbeatInterval is the fixed cadence of the heartbeat loop (default: 10s).
	HeartbeatInterval time.Duration `env:"LUMEN_HEARTBEAT_INTERVAL"`

	// DrainMaxWait bounds how long a blocking enqueue waits for the pending
	// queue to empty before giving up (default: 10s).
	DrainMaxWait time.Duration `env:"LUMEN_DRAIN_MAX_WAIT"`

	// DrainPollInterval is how often the pending queue size is polled while
	// draining (default: 1s).
	DrainPollInterval time.Duration `env:"LUMEN_DRAIN_POLL_INTERVAL"`

	// RequestTimeout is the per-request HTTP timeout. Without it a hung
	// request would stall the delivery loop indefinitely (default: 10s).
	RequestTimeout time.Duration `env:"LUMEN_REQUEST_TIMEOUT"`

	// Logger receives warning logs for delivery failures and drain timeouts.
	// Defaults to slog.Default().
	Logger *slog.Logger `env:"-"`
}

// ConfigFromEnv builds a Config from LUMEN_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks that values are valid. A missing APIKey is not an error:
// it puts the connector in the disabled state instead.
func (c *Config) validate() error {
	if c.CollectorURL != "" {
		parsed, err := url.Parse(c.CollectorURL)
		if err != nil {
			return errors.New("lumen: CollectorURL must be a valid URL")
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return errors.New("lumen: CollectorURL must include scheme and host")
		}
	}
	if c.BufferMaxSize < 0 {
		return errors.New("lumen: BufferMaxSize must be non-negative")
	}
	if c.PayloadMaxSize < 0 {
		return errors.New("lumen: PayloadMaxSize must be non-negative")
	}
	if c.BaseInterval < 0 || c.MaxInterval < 0 {
		return errors.New("lumen: polling intervals must be non-negative")
	}
	if c.MaxInterval != 0 && c.BaseInterval != 0 && c.MaxInterval < c.BaseInterval {
		return errors.New("lumen: MaxInterval must be >= BaseInterval")
	}
	if c.HeartbeatInterval < 0 {
		return errors.New("lumen: HeartbeatInterval must be non-negative")
	}
	if c.DrainMaxWait < 0 || c.DrainPollInterval < 0 {
		return errors.New("lumen: drain durations must be non-negative")
	}
	if c.RequestTimeout < 0 {
		return errors.New("lumen: RequestTimeout must be non-negative")
	}
	return nil
}

// withDefaults returns a copy of the config with default values applied.
func (c Config) withDefaults() Config {
	cfg := c

	if cfg.CollectorURL == "" {
		cfg.CollectorURL = DefaultCollectorURL
	}
	cfg.CollectorURL = strings.TrimSuffix(cfg.CollectorURL, "/")

	if cfg.AppName == "" {
		cfg.AppName = filepath.Base(os.Args[0])
	}
	if cfg.BufferMaxSize == 0 {
		cfg.BufferMaxSize = DefaultBufferMaxSize
	}
	if cfg.PayloadMaxSize == 0 {
		cfg.PayloadMaxSize = DefaultPayloadMaxSize
	}
	if cfg.BaseInterval == 0 {
		cfg.BaseInterval = DefaultBaseInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.DrainMaxWait == 0 {
		cfg.DrainMaxWait = DefaultDrainMaxWait
	}
	if cfg.DrainPollInterval == 0 {
		cfg.DrainPollInterval = DefaultDrainPollInterval
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return cfg
}
