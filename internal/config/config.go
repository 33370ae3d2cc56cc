// Package config loads the YAML configuration shared by the server and the
// terminal viewers.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Assistant   AssistantConfig   `yaml:"assistant"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Viewer      ViewerConfig      `yaml:"viewer"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TerminalWindow is how long terminal orders stay in a customer's snapshot.
	TerminalWindow time.Duration `yaml:"terminal_window"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or postgres
	DSN    string `yaml:"dsn"`
	Seed   bool   `yaml:"seed"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type AssistantConfig struct {
	NLUURL  string        `yaml:"nlu_url"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type IdempotencyConfig struct {
	Backend   string        `yaml:"backend"` // memory or redis
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// ViewerConfig configures the kitchen and customer terminal clients.
type ViewerConfig struct {
	ServerURL      string        `yaml:"server_url"`
	EvictAfter     time.Duration `yaml:"evict_after"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LogFile        string        `yaml:"log_file"`
}

// Default returns a configuration that runs everything locally on SQLite.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			ShutdownTimeout: 10 * time.Second,
			TerminalWindow:  10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "coffeenet.db",
			Seed:   true,
		},
		Auth: AuthConfig{
			JWTSecret: "change-me",
			TokenTTL:  12 * time.Hour,
		},
		Assistant: AssistantConfig{
			Model:   "gpt-4o-mini",
			Timeout: 5 * time.Second,
		},
		Idempotency: IdempotencyConfig{
			Backend: "memory",
			TTL:     24 * time.Hour,
		},
		Viewer: ViewerConfig{
			ServerURL:      "http://localhost:8080",
			EvictAfter:     10 * time.Second,
			MaxBackoff:     10 * time.Second,
			RequestTimeout: 10 * time.Second,
			LogFile:        "coffeenet-viewer.log",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("COFFEENET_LOG_LEVEL", &c.LogLevel)
	str("COFFEENET_ADDR", &c.Server.Addr)
	str("COFFEENET_METRICS_ADDR", &c.Server.MetricsAddr)
	str("COFFEENET_DB_DRIVER", &c.Database.Driver)
	str("COFFEENET_DB_DSN", &c.Database.DSN)
	str("COFFEENET_JWT_SECRET", &c.Auth.JWTSecret)
	str("COFFEENET_NLU_URL", &c.Assistant.NLUURL)
	str("COFFEENET_LLM_MODEL", &c.Assistant.Model)
	str("COFFEENET_LLM_BASE_URL", &c.Assistant.BaseURL)
	str("OPENAI_API_KEY", &c.Assistant.APIKey)
	str("COFFEENET_IDEMPOTENCY_BACKEND", &c.Idempotency.Backend)
	str("COFFEENET_REDIS_ADDR", &c.Idempotency.RedisAddr)
	str("COFFEENET_SERVER_URL", &c.Viewer.ServerURL)
	if v, ok := lookup("COFFEENET_DB_SEED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Database.Seed = b
		}
	}
}

// Validate checks the values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Idempotency.Backend {
	case "memory":
	case "redis":
		if c.Idempotency.RedisAddr == "" {
			return errors.New("idempotency backend redis requires redis_addr")
		}
	default:
		return fmt.Errorf("unsupported idempotency backend %q", c.Idempotency.Backend)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must not be empty")
	}
	if c.Server.TerminalWindow < 0 || c.Viewer.EvictAfter < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}
