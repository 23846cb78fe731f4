/*
Package config loads server configuration.

PURPOSE:
  Reads settings from an optional .env file and the process environment,
  with sane defaults for local development. Environment variables win
  over the file.

SEE ALSO:
  - cmd/server/main.go: the only consumer
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the server needs at startup.
type Config struct {
	Port        string
	DBPath      string
	LogLevel    string
	LogFormat   string
	JWTSecret   string
	TokenTTL    time.Duration
	CORSOrigins []string
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PATH", "./data/hospital.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	// .env is optional
	if _, err := os.Stat(".env"); err == nil {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	}
	v.AutomaticEnv()

	ttl, err := time.ParseDuration(v.GetString("TOKEN_TTL"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}

	cfg := &Config{
		Port:        v.GetString("PORT"),
		DBPath:      v.GetString("DB_PATH"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogFormat:   v.GetString("LOG_FORMAT"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		TokenTTL:    ttl,
		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}
	return cfg, nil
}
