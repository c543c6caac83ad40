package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the Authgate API.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// AuthConfig groups token-issuance and credential settings.
type AuthConfig struct {
	SecretKey        string
	Issuer           string
	Audience         string
	AccessTokenDays  int
	RefreshTokenDays int
	BcryptCost       int
	DefaultRole      string
}

// AccessTokenTTL converts the configured lifetime in days to a duration.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenDays) * 24 * time.Hour
}

// RefreshTokenTTL converts the configured refresh lifetime in days to a duration.
func (a AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(a.RefreshTokenDays) * 24 * time.Hour
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("AUTHGATE_API_HOST", "0.0.0.0"),
			Port:         getInt("AUTHGATE_API_PORT", 8080),
			ReadTimeout:  getDuration("AUTHGATE_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("AUTHGATE_API_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDuration("AUTHGATE_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "authgate_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "authgate"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		Auth: loadAuthConfig(),
		Metrics: MetricsConfig{
			PrometheusPath: getString("AUTHGATE_METRICS_PATH", "/metrics"),
		},
	}

	if strings.TrimSpace(cfg.Auth.SecretKey) == "" {
		return Config{}, fmt.Errorf("AUTHGATE_JWT_SECRET must not be empty")
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("AUTHGATE_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	days := getInt("AUTHGATE_JWT_DURATION_DAYS", 1)
	if days < 1 {
		days = 1
	}

	refreshDays := getInt("AUTHGATE_REFRESH_DURATION_DAYS", 5)
	if refreshDays < 1 {
		refreshDays = 5
	}

	return AuthConfig{
		SecretKey:        getString("AUTHGATE_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		Issuer:           getString("AUTHGATE_JWT_ISSUER", "authgate"),
		Audience:         getString("AUTHGATE_JWT_AUDIENCE", "authgate-api"),
		AccessTokenDays:  days,
		RefreshTokenDays: refreshDays,
		BcryptCost:       cost,
		DefaultRole:      getString("AUTHGATE_DEFAULT_ROLE", "User"),
	}
}
