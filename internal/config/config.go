// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config is the backend configuration. Values come from environment variables,
// optionally seeded from a .env file in the working directory.
type Config struct {
	// Provider credential: either the key itself or an SSM prefix holding it.
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	ParamPrefix   string `env:"PARAM_PREFIX"`
	OpenAIModel   string `env:"OPENAI_MODEL,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	Port int `env:"PORT" envDefault:"8080"`

	MaxMessageLength  int           `env:"MAX_MESSAGE_LENGTH" envDefault:"1000"`
	StreamDelay       time.Duration `env:"STREAM_DELAY" envDefault:"25ms"`
	MaxStreamDuration time.Duration `env:"MAX_STREAM_DURATION" envDefault:"2m"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
}

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	Endpoint string        `env:"GEOCHAT_ENDPOINT" envDefault:"http://localhost:8080/api/stream"`
	Timeout  time.Duration `env:"GEOCHAT_TIMEOUT" envDefault:"5m"`
	// MaxMessageLength mirrors the backend bound on history content.
	MaxMessageLength int `env:"MAX_MESSAGE_LENGTH" envDefault:"1000"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	return parse(env.Options{})
}

// LoadClient reads .env (when present) and the client settings.
func LoadClient() (*ClientConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse client env: %w", err)
	}
	return cfg, nil
}

func loadDotEnv() error {
	// Variables already set in the environment win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules that struct tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenAIModel) == "" {
		return errors.New("config: OPENAI_MODEL must not be empty")
	}
	if strings.TrimSpace(c.OpenAIAPIKey) == "" && strings.TrimSpace(c.ParamPrefix) == "" {
		return errors.New("config: one of OPENAI_API_KEY or PARAM_PREFIX must be set")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.MaxMessageLength <= 0 {
		return errors.New("config: MAX_MESSAGE_LENGTH must be positive")
	}
	if c.StreamDelay < 0 {
		return errors.New("config: STREAM_DELAY must not be negative")
	}
	if c.MaxStreamDuration <= 0 {
		return errors.New("config: MAX_STREAM_DURATION must be positive")
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("config: PROVIDER_TIMEOUT must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
