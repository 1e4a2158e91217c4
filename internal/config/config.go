package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/despairhw/tourneycast/internal/dispatch"
)

// Config is the server's configuration, loaded from a YAML file with
// environment overrides for the values that differ per venue.
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Bracket struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"bracket"`

	Display struct {
		Stations       []string `yaml:"stations"`
		QueueLength    int      `yaml:"queue_length"`
		PollIntervalMS int      `yaml:"poll_interval_ms"`
	} `yaml:"display"`

	Dispatch struct {
		MaxAttempts      int `yaml:"max_attempts"`
		RetryDelayMS     int `yaml:"retry_delay_ms"`
		MessageTimeoutMS int `yaml:"message_timeout_ms"`
		StaleMultiplier  int `yaml:"stale_multiplier"`
		ReapIntervalMS   int `yaml:"reap_interval_ms"`
		FallbackDelayMS  int `yaml:"fallback_delay_ms"`
	} `yaml:"dispatch"`
}

// Default returns the configuration used when no file is present: two TVs,
// a three-deep queue, five second polls, production delivery defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":2052"
	cfg.Bracket.BaseURL = "https://api.challonge.com/v1"
	cfg.Display.Stations = []string{"TV 1", "TV 2"}
	cfg.Display.QueueLength = 3
	cfg.Display.PollIntervalMS = 5000
	cfg.Dispatch.MaxAttempts = 3
	cfg.Dispatch.RetryDelayMS = 5000
	cfg.Dispatch.MessageTimeoutMS = 30000
	cfg.Dispatch.StaleMultiplier = 2
	cfg.Dispatch.ReapIntervalMS = 60000
	cfg.Dispatch.FallbackDelayMS = 10000
	return cfg
}

// Load reads the YAML file at path over the defaults, then applies env
// overrides. A missing file is not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.Server.Addr = getEnv("TOURNEYCAST_ADDR", cfg.Server.Addr)
	cfg.Bracket.BaseURL = getEnv("BRACKET_API_URL", cfg.Bracket.BaseURL)
	cfg.Bracket.APIKey = getEnv("BRACKET_API_KEY", cfg.Bracket.APIKey)
	cfg.Display.QueueLength = getEnvAsInt("TOURNEYCAST_QUEUE_LENGTH", cfg.Display.QueueLength)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Display.Stations) == 0 {
		return fmt.Errorf("display.stations must name at least one station")
	}
	if c.Display.QueueLength < 2 || c.Display.QueueLength > 5 {
		return fmt.Errorf("display.queue_length must be between 2 and 5, got %d", c.Display.QueueLength)
	}
	if c.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("dispatch.max_attempts must be at least 1")
	}
	return nil
}

// DispatchConfig converts the millisecond fields into the dispatcher's
// configuration.
func (c *Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		MaxAttempts:     c.Dispatch.MaxAttempts,
		RetryDelay:      time.Duration(c.Dispatch.RetryDelayMS) * time.Millisecond,
		MessageTimeout:  time.Duration(c.Dispatch.MessageTimeoutMS) * time.Millisecond,
		StaleMultiplier: c.Dispatch.StaleMultiplier,
		ReapInterval:    time.Duration(c.Dispatch.ReapIntervalMS) * time.Millisecond,
	}
}

// PollInterval returns the bracket poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Display.PollIntervalMS) * time.Millisecond
}

// FallbackDelay returns the grace period for the HTTP fallback predicate.
func (c *Config) FallbackDelay() time.Duration {
	return time.Duration(c.Dispatch.FallbackDelayMS) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
