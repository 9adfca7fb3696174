/*
Package config loads server settings.

PRECEDENCE (later wins):
  1. Defaults()
  2. YAML file given with -config
  3. .env in the working directory (never overrides the real environment)
  4. Environment variables
  5. Command-line flags, applied by cmd/server

ENVIRONMENT:
  PORT, DATABASE_DRIVER, DATABASE_URL, JWT_SECRET, JWT_PUBLIC_KEY, JWT_ISSUER,
  DEV_AUTH, CACHE_TTL, PAGE_SIZE, FEED_DEBOUNCE, WEEK_CHECK_INTERVAL,
  CORS_ORIGINS (comma separated), UPLOAD_RATE_PER_MINUTE, UPLOAD_BURST,
  EMAIL_DOMAIN, LOG_FORMAT, LOG_LEVEL
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     int            `yaml:"port"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`

	CacheTTL          time.Duration `yaml:"cache_ttl"`
	PageSize          int           `yaml:"page_size"`
	FeedDebounce      time.Duration `yaml:"feed_debounce"`
	WeekCheckInterval time.Duration `yaml:"week_check_interval"`

	CORSOrigins         []string `yaml:"cors_origins"`
	UploadRatePerMinute float64  `yaml:"upload_rate_per_minute"`
	UploadBurst         int      `yaml:"upload_burst"`
	EmailDomain         string   `yaml:"email_domain"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string `yaml:"dsn"`
}

type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	// PublicKeyPEM verifies RS256 tokens from an external identity
	// provider. Takes precedence over JWTSecret.
	PublicKeyPEM string `yaml:"public_key_pem"`
	Issuer       string `yaml:"issuer"`

	// DevHeader trusts an X-User-ID header when no bearer token is sent.
	// Never enable in production.
	DevHeader bool `yaml:"dev_header"`
}

func Defaults() Config {
	return Config{
		Port:                8080,
		Database:            DatabaseConfig{Driver: "sqlite", DSN: "./data/backoffice.db"},
		CacheTTL:            30 * time.Minute,
		PageSize:            1000,
		FeedDebounce:        250 * time.Millisecond,
		WeekCheckInterval:   time.Hour,
		CORSOrigins:         []string{"*"},
		UploadRatePerMinute: 10,
		UploadBurst:         3,
		EmailDomain:         "thebedshop.co.za",
		LogFormat:           "json",
		LogLevel:            "info",
	}
}

// Load builds a Config. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	num("PORT", &c.Port)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_URL", &c.Database.DSN)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("JWT_PUBLIC_KEY", &c.Auth.PublicKeyPEM)
	str("JWT_ISSUER", &c.Auth.Issuer)
	if v, ok := lookup("DEV_AUTH"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DEV_AUTH: %w", err))
		}
		c.Auth.DevHeader = b
	}
	dur("CACHE_TTL", &c.CacheTTL)
	num("PAGE_SIZE", &c.PageSize)
	dur("FEED_DEBOUNCE", &c.FeedDebounce)
	dur("WEEK_CHECK_INTERVAL", &c.WeekCheckInterval)
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		c.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}
	if v, ok := lookup("UPLOAD_RATE_PER_MINUTE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("UPLOAD_RATE_PER_MINUTE: %w", err))
		}
		c.UploadRatePerMinute = f
	}
	num("UPLOAD_BURST", &c.UploadBurst)
	str("EMAIL_DOMAIN", &c.EmailDomain)
	str("LOG_FORMAT", &c.LogFormat)
	str("LOG_LEVEL", &c.LogLevel)

	return errors.Join(errs...)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.Database.Driver != "sqlite" && c.Database.Driver != "postgres":
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	case c.Database.DSN == "":
		return errors.New("database dsn is required")
	case c.PageSize <= 0:
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	case c.Auth.JWTSecret == "" && c.Auth.PublicKeyPEM == "" && !c.Auth.DevHeader:
		return errors.New("one of auth.jwt_secret, auth.public_key_pem or auth.dev_header must be set")
	}
	return nil
}
