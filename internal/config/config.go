// Package config loads the service settings from AUTHCORE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"authcore.org/internal/auth"
)

// Prefix is prepended to every variable name.
const Prefix = "AUTHCORE"

// Config holds the process settings.
type Config struct {
	HTTPAddr     string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr     string `envconfig:"GRPC_ADDR" default:":9090"`
	PGDSN        string `envconfig:"PG_DSN"`
	RedisAddr    string `envconfig:"REDIS_ADDR"`
	CatalogFile  string `envconfig:"CATALOG_FILE"`
	MaxBodyBytes int64  `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	MigrateOnStart bool     `envconfig:"MIGRATE_ON_START"`
	CORSOrigins    []string `envconfig:"CORS_ORIGINS"`

	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`

	Issuer            string        `envconfig:"SESSION_ISSUER" default:"authcore"`
	TokenSecret       string        `envconfig:"SESSION_TOKEN_SECRET" required:"true"`
	TokenMaxAge       time.Duration `envconfig:"SESSION_TOKEN_MAXAGE" default:"15m"`
	RenewTokenSecret  string        `envconfig:"SESSION_RENEW_TOKEN_SECRET" required:"true"`
	RenewTokenMaxAge  time.Duration `envconfig:"SESSION_RENEW_TOKEN_MAXAGE" default:"168h"`
	ClockTolerance    time.Duration `envconfig:"SESSION_CLOCK_TOLERANCE" default:"5s"`
	PasswordDistance  int           `envconfig:"PASSWORD_LEVENSHTEIN_DISTANCE" default:"3"`
	SweepAt           string        `envconfig:"SWEEP_AT" default:"03:00"`
	SweepRetention    time.Duration `envconfig:"SWEEP_RETENTION" default:"168h"`
	RequestRate       float64       `envconfig:"REQUEST_RATE" default:"20"`
	RequestBurst      int           `envconfig:"REQUEST_BURST" default:"40"`
	RegisterWindow    time.Duration `envconfig:"REGISTER_LIMIT_WINDOW" default:"1h"`
	RegisterMax       int           `envconfig:"REGISTER_LIMIT_MAX" default:"10"`
	LoginWindow       time.Duration `envconfig:"LOGIN_LIMIT_WINDOW" default:"15m"`
	LoginMax          int           `envconfig:"LOGIN_LIMIT_MAX" default:"30"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"15s"`
}

// Load reads and validates the environment.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.TokenSecret) == "" || strings.TrimSpace(c.RenewTokenSecret) == "" {
		errs = append(errs, errors.New("session secrets must be set"))
	} else if c.TokenSecret == c.RenewTokenSecret {
		errs = append(errs, errors.New("access and renew secrets must differ"))
	}
	if c.TokenMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TOKEN_MAXAGE must be positive, got %s", c.TokenMaxAge))
	}
	if c.RenewTokenMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_RENEW_TOKEN_MAXAGE must be positive, got %s", c.RenewTokenMaxAge))
	}
	if c.ClockTolerance < 0 {
		errs = append(errs, errors.New("SESSION_CLOCK_TOLERANCE must not be negative"))
	}
	if c.PasswordDistance < 0 {
		errs = append(errs, errors.New("PASSWORD_LEVENSHTEIN_DISTANCE must not be negative"))
	}
	if _, _, err := auth.ParseClock(c.SweepAt); err != nil {
		errs = append(errs, fmt.Errorf("SWEEP_AT: %w", err))
	}
	if c.SweepRetention < 0 {
		errs = append(errs, errors.New("SWEEP_RETENTION must not be negative"))
	}
	if c.RequestRate < 0 || c.RequestBurst < 0 {
		errs = append(errs, errors.New("request rate and burst must not be negative"))
	}
	if c.RegisterMax < 0 || c.LoginMax < 0 {
		errs = append(errs, errors.New("limit maximums must not be negative"))
	}
	if c.RegisterMax > 0 && c.RegisterWindow <= 0 {
		errs = append(errs, errors.New("REGISTER_LIMIT_WINDOW must be positive"))
	}
	if c.LoginMax > 0 && c.LoginWindow <= 0 {
		errs = append(errs, errors.New("LOGIN_LIMIT_WINDOW must be positive"))
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: unknown level %q", c.LogLevel))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// SweepClock returns the daily sweep time.
func (c Config) SweepClock() (hour, minute int) {
	hour, minute, _ = auth.ParseClock(c.SweepAt)
	return hour, minute
}

// ServiceOptions maps the session settings onto auth.Service options.
func (c Config) ServiceOptions() []auth.ServiceOption {
	return []auth.ServiceOption{
		auth.WithSecrets(c.TokenSecret, c.RenewTokenSecret),
		auth.WithIssuer(c.Issuer),
		auth.WithAccessTTL(c.TokenMaxAge),
		auth.WithRenewTTL(c.RenewTokenMaxAge),
		auth.WithClockTolerance(c.ClockTolerance),
		auth.WithPasswordDistance(c.PasswordDistance),
	}
}
