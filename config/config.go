package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

const envPrefix = "PARLEY"

type Config struct {
	ServerURL      string        `envconfig:"SERVER_URL" default:"http://localhost:5000"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	// websocket keepalive
	PingInterval time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	PongWait     time.Duration `envconfig:"PONG_WAIT" default:"60s"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
	// LOG_FILE "-" writes to stderr
	LogFile string `envconfig:"LOG_FILE" default:"parley.log"`
}

// Load reads .env (if present) and then PARLEY_* variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads PARLEY_* variables without touching .env. Values are not
// validated so that command line flags can still replace them; call
// Validate once every source has been applied.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server url %q", c.ServerURL)
	}
	if c.PingInterval <= 0 || c.PongWait <= c.PingInterval {
		return fmt.Errorf("pong wait (%s) must exceed ping interval (%s)", c.PongWait, c.PingInterval)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level is the parsed LogLevel. Call Validate first.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
