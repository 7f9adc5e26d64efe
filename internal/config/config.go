package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hongminglow/svcmon/internal/auth"
	"github.com/hongminglow/svcmon/internal/models"
)

// DefaultJWTSecret is the development signing secret. It is public and must be
// overridden with JWT_SECRET in any real deployment.
const DefaultJWTSecret = "your-jwt-secret-here"

// DefaultTokenTTL is the access token lifetime when JWT_TTL_MINUTES is unset.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port                  string
	DatabaseURL           string
	UsersDBFile           string
	JWTSecret             string
	TokenTTL              time.Duration
	PasswordIterations    int
	AdminPassword         string
	UserPassword          string
	MonitoredServicesFile string
	UnitDirs              []string
	UseSudo               bool
	CORSOrigins           []string
	LogLevel              string
	LogFormat             string
}

// Load reads configuration from the environment and performs minimal validation.
// Every value has a development default; JWT_SECRET, ADMIN_PASSWORD and
// USER_PASSWORD defaults are insecure and documented as such.
func Load() (Config, error) {
	cfg := Config{
		Port:                  fallback(os.Getenv("PORT"), "6996"),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		UsersDBFile:           fallback(os.Getenv("USERS_DB_FILE"), "users.db"),
		JWTSecret:             fallback(os.Getenv("JWT_SECRET"), DefaultJWTSecret),
		AdminPassword:         fallback(os.Getenv("ADMIN_PASSWORD"), "admin123"),
		UserPassword:          fallback(os.Getenv("USER_PASSWORD"), "user123"),
		MonitoredServicesFile: fallback(os.Getenv("MONITORED_SERVICES_FILE"), "monitored_services.json"),
		UnitDirs:              parseCSV(fallback(os.Getenv("SYSTEMD_UNIT_DIRS"), "/etc/systemd/system/,/lib/systemd/system/,/usr/lib/systemd/system/")),
		CORSOrigins:           parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
		LogLevel:              fallback(os.Getenv("LOG_LEVEL"), "info"),
		LogFormat:             fallback(os.Getenv("LOG_FORMAT"), "json"),
	}

	if len(cfg.CORSOrigins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must list at least one origin or *")
	}

	minutes, err := strconv.Atoi(fallback(os.Getenv("JWT_TTL_MINUTES"), strconv.Itoa(int(DefaultTokenTTL/time.Minute))))
	if err != nil || minutes <= 0 {
		return Config{}, errors.New("JWT_TTL_MINUTES must be a positive integer")
	}
	cfg.TokenTTL = time.Duration(minutes) * time.Minute

	cfg.PasswordIterations, err = strconv.Atoi(fallback(os.Getenv("PASSWORD_HASH_ITERATIONS"), strconv.Itoa(auth.MinIterations)))
	if err != nil {
		return Config{}, fmt.Errorf("PASSWORD_HASH_ITERATIONS: %w", err)
	}
	if cfg.PasswordIterations < auth.MinIterations {
		return Config{}, fmt.Errorf("PASSWORD_HASH_ITERATIONS must be at least %d", auth.MinIterations)
	}

	cfg.UseSudo, err = strconv.ParseBool(fallback(os.Getenv("SYSTEMCTL_SUDO"), "true"))
	if err != nil {
		return Config{}, fmt.Errorf("SYSTEMCTL_SUDO: %w", err)
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// UsesDefaultSecret reports whether the token signing secret is the public
// development default.
func (c Config) UsesDefaultSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// AuthSettings returns the immutable settings handed to the auth subsystem.
func (c Config) AuthSettings() auth.Settings {
	return auth.Settings{
		Secret:     []byte(c.JWTSecret),
		TokenTTL:   c.TokenTTL,
		Iterations: c.PasswordIterations,
	}
}

// DefaultUsers lists the accounts seeded on first start.
func (c Config) DefaultUsers() []auth.DefaultUser {
	return []auth.DefaultUser{
		{Username: "admin", Password: c.AdminPassword, Role: models.RoleAdmin},
		{Username: "user", Password: c.UserPassword, Role: models.RoleUser},
	}
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
