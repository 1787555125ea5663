// Package config provides configuration loading for outreachd.
//
// Configuration is loaded from an optional YAML file and overridden by
// OUTREACHD_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "OUTREACHD_"

// Config holds the complete outreachd configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	GenAI   GenAIConfig   `koanf:"genai"`
	Gmail   GmailConfig   `koanf:"gmail"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// StoreConfig holds the lifecycle store configuration.
type StoreConfig struct {
	Path     string `koanf:"path"`
	PoolSize int    `koanf:"pool_size"`
}

// GenAIConfig holds the text-generation provider configuration.
type GenAIConfig struct {
	Provider  string `koanf:"provider"`
	APIKey    string `koanf:"api_key"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	MaxTokens int    `koanf:"max_tokens"`
}

// GmailConfig holds the draft-creation credential configuration.
type GmailConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RefreshToken string `koanf:"refresh_token"`
	TokenURL     string `koanf:"token_url"`
}

// IngestConfig holds the ingestion loader configuration.
type IngestConfig struct {
	BaseURL   string `koanf:"base_url"`
	Token     string `koanf:"token"`
	BatchPath string `koanf:"batch_path"`
	PageSize  int    `koanf:"page_size"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load loads configuration from the YAML file at configPath (skipped
// when empty or missing), then overrides with OUTREACHD_ environment
// variables.
//
// Environment variables map section and field through the first
// underscore after the prefix:
//
//	OUTREACHD_SERVER_PORT     -> server.port
//	OUTREACHD_STORE_PATH      -> store.path
//	OUTREACHD_GENAI_API_KEY   -> genai.api_key
//	OUTREACHD_GMAIL_CLIENT_ID -> gmail.client_id
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// OUTREACHD_GENAI_API_KEY -> genai.api_key: section is the
		// first token after the prefix, underscores survive in the
		// field name.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "outreachd.db"
	}
	if cfg.Store.PoolSize == 0 {
		cfg.Store.PoolSize = 4
	}
	if cfg.GenAI.Provider == "" {
		cfg.GenAI.Provider = "static"
	}
	if cfg.GenAI.Model == "" {
		cfg.GenAI.Model = "gpt-4o-mini"
	}
	if cfg.Ingest.PageSize == 0 {
		cfg.Ingest.PageSize = 20
	}
	if cfg.Ingest.BatchPath == "" {
		cfg.Ingest.BatchPath = "ingest_batch.json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the constraints defaults cannot fix.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Store.PoolSize < 1 {
		return fmt.Errorf("store pool size must be positive, got %d", c.Store.PoolSize)
	}
	switch c.GenAI.Provider {
	case "static", "openai":
	default:
		return fmt.Errorf("unknown genai provider %q", c.GenAI.Provider)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}
