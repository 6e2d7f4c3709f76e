package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "ARCHITECT"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Persistence
	Store         string `envconfig:"STORE" default:"sqlite"` // "sqlite" or "redis"
	DBPath        string `envconfig:"DB_PATH" default:"architect.db"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"architect"`

	// Generation
	Provider          string        `envconfig:"PROVIDER" default:"gemini"` // "gemini" or "litellm"
	Model             string        `envconfig:"MODEL" default:"gemini-2.5-pro"`
	BaseURL           string        `envconfig:"BASE_URL"`
	APIKey            string        `envconfig:"API_KEY"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"3m"`

	// HTTP API
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	CORSOrigins string `envconfig:"CORS_ORIGINS"` // comma separated
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside of development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("%s_DB_PATH is required for the sqlite store", Prefix)
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("%s_REDIS_ADDR is required for the redis store", Prefix)
		}
	default:
		return fmt.Errorf("unsupported store %q, expected sqlite or redis", c.Store)
	}

	switch c.Provider {
	case "gemini", "litellm":
	default:
		return fmt.Errorf("unsupported provider %q, expected gemini or litellm", c.Provider)
	}

	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("%s_GENERATION_TIMEOUT must be positive", Prefix)
	}
	return nil
}

// IsDevelopment reports whether console logging should be used.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Origins splits CORSOrigins.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
