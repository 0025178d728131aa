package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/cinetrait/internal/validation"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Log      LogConfig
	Analysis AnalysisConfig
	Refresh  RefreshConfig
}

type ServerConfig struct {
	Port        int      `json:"port" validate:"gte=1,lte=65535"`
	APIToken    string   `json:"api_token"`
	CORSOrigins []string `json:"cors_origins" validate:"dive,required"`
	RateLimit   int      `json:"rate_limit" validate:"gte=0"`
}

type StorageConfig struct {
	DataDir string `json:"data_dir" validate:"required"`
}

type LogConfig struct {
	Level string `json:"level" validate:"oneof=debug info warn error"`
}

type AnalysisConfig struct {
	// WeightsFile replaces the embedded weight tables when set.
	WeightsFile string `json:"weights_file"`
}

type RefreshConfig struct {
	PollInterval time.Duration `json:"poll_interval" validate:"gte=10ms"`
	// Schedule is a five-field cron expression for the full re-analysis
	// sweep. Empty disables the sweep.
	Schedule    string `json:"schedule"`
	MaxAttempts int    `json:"max_attempts" validate:"gte=1,lte=20"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:      4100,
			RateLimit: 120,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Refresh: RefreshConfig{
			PollInterval: 500 * time.Millisecond,
			MaxAttempts:  3,
		},
	}
}

// Load reads configuration from the JSON file at ConfigFilePath and applies
// CINETRAIT_* environment overrides. Secrets are read from the environment
// only.
func Load() (Config, error) {
	return loadWith(newFileBackend(ConfigFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. It does not require the API token; use
// RequireAPIToken where the HTTP API is served.
func (c Config) Validate() error {
	for _, section := range []any{c.Server, c.Storage, c.Log, c.Refresh} {
		if err := validation.Struct(section); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

func (c Config) RequireAPIToken() error {
	if c.Server.APIToken == "" {
		return fmt.Errorf("missing required config: API token. Set it via environment variable %s", envFor("server.api_token"))
	}
	return nil
}

// SlogLevel maps log.level to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
