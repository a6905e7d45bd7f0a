package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const minJWTSecretLength = 32

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" default:"30m"`

	ClassifierBaseURL string        `env:"CLASSIFIER_BASE_URL" default:"https://api.openai.com/v1"`
	ClassifierAPIKey  string        `env:"CLASSIFIER_API_KEY"`
	ClassifierModel   string        `env:"CLASSIFIER_MODEL" default:"gpt-4o-mini"`
	ClassifierTimeout time.Duration `env:"CLASSIFIER_TIMEOUT" default:"10s"`
	SweepStaleAfter   time.Duration `env:"SWEEP_STALE_AFTER" default:"2m"`

	// Seeds an admin at startup when the in-memory store is used.
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminEmail    string `env:"ADMIN_EMAIL" default:"admin@example.com"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	CORSAllowOrigins        string  `env:"CORS_ALLOW_ORIGINS" default:"*"`
	AuthRateLimit           float64 `env:"AUTH_RATE_LIMIT" default:"5"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsProduction reports whether the service runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ClassifierEnabled reports whether an external classifier is configured.
func (c *Config) ClassifierEnabled() bool {
	return c.ClassifierAPIKey != ""
}

// AdminBootstrapEnabled reports whether admin credentials are configured.
func (c *Config) AdminBootstrapEnabled() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}

// AllowedOrigins splits CORS_ALLOW_ORIGINS into its entries.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func validate(cfg *Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if cfg.IsProduction() {
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required in production")
		}
		if err := validateSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}
	if cfg.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if cfg.ClassifierTimeout <= 0 {
		return errors.New("CLASSIFIER_TIMEOUT must be positive")
	}
	if cfg.SweepStaleAfter <= cfg.ClassifierTimeout {
		return errors.New("SWEEP_STALE_AFTER must exceed CLASSIFIER_TIMEOUT")
	}
	if cfg.AdminPassword != "" && cfg.AdminUsername == "" {
		return errors.New("ADMIN_USERNAME is required when ADMIN_PASSWORD is set")
	}
	if cfg.MaxWebSocketConnections < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be at least 1")
	}
	if cfg.AuthRateLimit <= 0 {
		return errors.New("AUTH_RATE_LIMIT must be positive")
	}
	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	switch mode := strings.ToLower(u.Query().Get("sslmode")); mode {
	case "disable", "allow":
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	default:
		return nil
	}
}
