package config

import (
	"log/slog"
	"strings"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
)

type Config struct {
	Lectern LecternConfig
	Server  ServerConfig
}

type LecternConfig struct {
	BackgroundJobsEnabled bool   `env:"BACKGROUND_JOBS_ENABLED"`
	DbPath                string `env:"DB_PATH"`
	LogLevel              string `env:"LOG_LEVEL"`
	Port                  string `env:"PORT"`
	PrefsDir              string `env:"PREFS_DIR"`
	StorageDir            string `env:"STORAGE_DIR"`
	FallbackStorageDir    string `env:"FALLBACK_STORAGE_DIR"`
}

// ServerConfig points at the remote media server this instance mirrors.
type ServerConfig struct {
	URL      string `env:"SERVER_URL"`
	Token    string `env:"SERVER_TOKEN"`
	Username string `env:"SERVER_USERNAME"`
}

func Load() (Config, error) {
	cfg := Config{}
	loader := config.New().AddFeeder(feeder.Env{}).AddStruct(&cfg)
	if err := loader.Feed(); err != nil {
		return cfg, err
	}
	if cfg.Lectern.Port == "" {
		cfg.Lectern.Port = "8080"
	}
	if cfg.Lectern.DbPath == "" {
		cfg.Lectern.DbPath = "lectern.sqlite"
	}
	return cfg, nil
}

func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.Lectern.LogLevel)
	if logLevel == "error" {
		return slog.LevelError
	}
	if logLevel == "warning" {
		return slog.LevelWarn
	}
	if logLevel == "info" {
		return slog.LevelInfo
	}
	if logLevel == "debug" {
		return slog.LevelDebug
	}
	// default to info if unknown
	slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	return slog.LevelInfo
}
