// Package config loads app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSecret signs session tokens (HS256).
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// MigrationsDir is the path to the golang-migrate SQL files.
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`
	// ExtractionSchemaPath is the JSON Schema the extraction parser validates against.
	ExtractionSchemaPath string `mapstructure:"EXTRACTION_SCHEMA_PATH"`

	// StorageBaseURL / StorageAPIKey point at the file storage service.
	StorageBaseURL string `mapstructure:"STORAGE_BASE_URL"`
	StorageAPIKey  string `mapstructure:"STORAGE_API_KEY"`
	// STTBaseURL / STTAPIKey point at the speech-to-text provider.
	STTBaseURL string `mapstructure:"STT_BASE_URL"`
	STTAPIKey  string `mapstructure:"STT_API_KEY"`
	// STTLanguage is the transcription language hint (e.g. "ko").
	STTLanguage string `mapstructure:"STT_LANGUAGE"`
	// LLMBaseURL / LLMAPIKey / LLMModel point at the extraction model provider.
	LLMBaseURL string `mapstructure:"LLM_BASE_URL"`
	LLMAPIKey  string `mapstructure:"LLM_API_KEY"`
	LLMModel   string `mapstructure:"LLM_MODEL"`
	// ProviderTimeout is the per-call timeout for storage/STT/LLM requests (e.g. "60s").
	ProviderTimeout string `mapstructure:"PROVIDER_TIMEOUT"`

	// DefaultMonthlyTokens is the per-tenant monthly allowance when the
	// tenant row has no explicit limit.
	DefaultMonthlyTokens int64 `mapstructure:"DEFAULT_MONTHLY_TOKENS"`
	// SignupGrantTokens is credited to a tenant's prepaid balance at registration.
	SignupGrantTokens int64 `mapstructure:"SIGNUP_GRANT_TOKENS"`
	// SweepInterval is how often the stuck-job sweep runs (e.g. "5m").
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("EXTRACTION_SCHEMA_PATH", "schemas/extraction.v1.json")
	v.SetDefault("STORAGE_BASE_URL", "")
	v.SetDefault("STORAGE_API_KEY", "")
	v.SetDefault("STT_BASE_URL", "")
	v.SetDefault("STT_API_KEY", "")
	v.SetDefault("STT_LANGUAGE", "ko")
	v.SetDefault("LLM_BASE_URL", "")
	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("PROVIDER_TIMEOUT", "60s")
	v.SetDefault("DEFAULT_MONTHLY_TOKENS", 1_000_000)
	v.SetDefault("SIGNUP_GRANT_TOKENS", 100_000)
	v.SetDefault("SWEEP_INTERVAL", "5m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}

	return &cfg, nil
}

// ProviderCallTimeout parses ProviderTimeout. Returns 60s if unset or invalid.
func (c *Config) ProviderCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.ProviderTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// SweepEvery parses SweepInterval. Returns 5m if unset or invalid.
func (c *Config) SweepEvery() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
