// Package config loads daemon settings from HEADY_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/governance"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name.
const Prefix = "HEADY"

// Config holds all daemon configuration.
type Config struct {
	HTTP       HTTPConfig        `envconfig:"HTTP"`
	Paths      PathConfig        `envconfig:"PATH"`
	Backend    BackendConfig     `envconfig:"BACKEND"`
	Log        LogConfig         `envconfig:"LOG"`
	RateLimit  RateLimitConfig   `envconfig:"RATE_LIMIT"`
	Auth       AuthConfig        `envconfig:"AUTH"`
	Governance governance.Config `envconfig:"GOVERNANCE"`
	Supervisor SupervisorConfig  `envconfig:"SUPERVISOR"`
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Addr         string        `envconfig:"ADDR" default:"127.0.0.1:3300"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	CORSOrigins  []string      `envconfig:"CORS_ORIGINS" default:"*"`
}

// PathConfig locates files. Empty values resolve under ~/.heady.
type PathConfig struct {
	DB    string `envconfig:"DB"`
	MCP   string `envconfig:"MCP"`
	Rules string `envconfig:"RULES"`
}

// BackendConfig tunes backend connections.
type BackendConfig struct {
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT" default:"5s"`
	CallTimeout      time.Duration `envconfig:"CALL_TIMEOUT" default:"30s"`
	DrainTimeout     time.Duration `envconfig:"DRAIN_TIMEOUT" default:"5s"`
	ConnectLimit     int           `envconfig:"CONNECT_LIMIT" default:"4"`
	// Autoconnect lists backends connected at startup. Empty means all configured.
	Autoconnect []string `envconfig:"AUTOCONNECT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RPS" default:"100"`
	Burst             int  `envconfig:"BURST" default:"200"`
	Enabled           bool `envconfig:"ENABLED" default:"true"`
}

// AuthConfig lists accepted API keys. No keys means identity is optional.
type AuthConfig struct {
	APIKeys []string `envconfig:"API_KEYS"`
}

// SupervisorConfig tunes backend liveness probing.
type SupervisorConfig struct {
	Enabled     bool          `envconfig:"ENABLED" default:"true"`
	Interval    time.Duration `envconfig:"INTERVAL" default:"30s"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"5s"`
	MaxFailures int           `envconfig:"MAX_FAILURES" default:"3"`
}

// Load reads configuration from the environment and resolves default paths.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when the environment sets nothing.
func Default() *Config {
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:3300",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Backend: BackendConfig{
			HandshakeTimeout: 5 * time.Second,
			CallTimeout:      30 * time.Second,
			DrainTimeout:     5 * time.Second,
			ConnectLimit:     4,
		},
		Log: LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Governance: governance.DefaultConfig(),
		Supervisor: SupervisorConfig{
			Enabled:     true,
			Interval:    30 * time.Second,
			Timeout:     5 * time.Second,
			MaxFailures: 3,
		},
	}
	_ = cfg.resolvePaths()
	return cfg
}

// Dir returns ~/.heady.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".heady"), nil
}

func (c *Config) resolvePaths() error {
	if c.Paths.DB != "" && c.Paths.MCP != "" && c.Paths.Rules != "" {
		return nil
	}
	dir, err := Dir()
	if err != nil {
		return err
	}
	if c.Paths.DB == "" {
		c.Paths.DB = filepath.Join(dir, "audit.db")
	}
	if c.Paths.MCP == "" {
		c.Paths.MCP = filepath.Join(dir, "mcp_config.json")
	}
	if c.Paths.Rules == "" {
		c.Paths.Rules = filepath.Join(dir, "router.yaml")
	}
	return nil
}
