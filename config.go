package go_bridgeclient

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Client configuration, loaded from a TOML document.
//
// Example:
//
//	[Bridge]
//	URL = "https://bridge.example.i2p.net"
//	MaxRetries = 2
//	RequestTimeout = 30
//
//	[Logging]
//	Level = "warn"

// BridgeSection configures the relay endpoint and the request budget.
type BridgeSection struct {
	// URL is the base URL of the bridge relay. Required.
	URL string

	// UserAgent overrides the default client User-Agent header.
	UserAgent string

	// RequestTimeout bounds each attempt, in seconds. Defaults to 30.
	RequestTimeout int

	// MaxRetries is the number of retries after the first attempt.
	// Defaults to 2 (three attempts total).
	MaxRetries int
}

// requestTimeout returns the per-attempt timeout as a duration.
func (b *BridgeSection) requestTimeout() time.Duration {
	return time.Duration(b.RequestTimeout) * time.Second
}

// LoggingSection configures client logging.
type LoggingSection struct {
	// Level is one of "debug", "warn", "error", "fatal".
	Level string
}

// Config is the top-level client configuration.
type Config struct {
	Bridge  BridgeSection
	Logging LoggingSection
}

// applyDefaults fills in unset optional fields.
func (c *Config) applyDefaults() {
	if c.Bridge.UserAgent == "" {
		c.Bridge.UserAgent = defaultUserAgent
	}
	if c.Bridge.RequestTimeout <= 0 {
		c.Bridge.RequestTimeout = int(BRIDGE_DEFAULT_REQUEST_TIMEOUT / time.Second)
	}
	if c.Bridge.MaxRetries < 0 {
		c.Bridge.MaxRetries = BRIDGE_MAX_RETRIES
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "warn"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Bridge.URL == "" {
		return errors.New("config: no Bridge.URL was present")
	}
	u, err := url.Parse(c.Bridge.URL)
	if err != nil {
		return fmt.Errorf("config: invalid Bridge.URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: Bridge.URL scheme must be http or https, got %q", u.Scheme)
	}
	switch c.Logging.Level {
	case "debug", "warn", "error", "fatal":
	default:
		return fmt.Errorf("config: invalid Logging.Level %q", c.Logging.Level)
	}
	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: no nil buffer as config file")
	}

	cfg := new(Config)
	cfg.Bridge.MaxRetries = BRIDGE_MAX_RETRIES
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// DefaultConfig returns a Config for the given bridge URL with every other
// field at its default.
func DefaultConfig(bridgeURL string) (*Config, error) {
	cfg := &Config{
		Bridge: BridgeSection{
			URL:        bridgeURL,
			MaxRetries: BRIDGE_MAX_RETRIES,
		},
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
