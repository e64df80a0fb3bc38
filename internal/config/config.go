package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/bytes"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"

	BlobMemory = "memory"
	BlobS3     = "s3"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	AuthMode            string        `mapstructure:"AUTH_MODE"`
	StoreDriver         string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir       string        `mapstructure:"MIGRATIONS_DIR"`
	MongoURI            string        `mapstructure:"MONGO_URI"`
	MongoDatabase       string        `mapstructure:"MONGO_DATABASE"`
	MongoTransactions   bool          `mapstructure:"MONGO_TRANSACTIONS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	IdempotencyTTL      time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL         string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	BookingRatePerMin   int           `mapstructure:"BOOKING_RATE_PER_MINUTE"`
	BodyLimit           string        `mapstructure:"BODY_LIMIT"`
	BookingBodyLimit    string        `mapstructure:"BOOKING_BODY_LIMIT"`
	BookingTimezone     string        `mapstructure:"BOOKING_TIMEZONE"`
	PaymentMethod       string        `mapstructure:"PAYMENT_METHOD"`
	DefaultPatientImage string        `mapstructure:"DEFAULT_PATIENT_IMAGE"`
	BlobBackend         string        `mapstructure:"BLOB_BACKEND"`
	S3Bucket            string        `mapstructure:"S3_BUCKET"`
	AWSRegion           string        `mapstructure:"AWS_REGION"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "AUTH_MODE",
	"STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"MONGO_URI", "MONGO_DATABASE", "MONGO_TRANSACTIONS",
	"REDIS_URL", "IDEMPOTENCY_TTL",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BOOKING_RATE_PER_MINUTE",
	"BODY_LIMIT", "BOOKING_BODY_LIMIT",
	"BOOKING_TIMEZONE", "PAYMENT_METHOD", "DEFAULT_PATIENT_IMAGE",
	"BLOB_BACKEND", "S3_BUCKET", "AWS_REGION",
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; variables already set win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("MONGO_DATABASE", "clinic")
	v.SetDefault("MONGO_TRANSACTIONS", true)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BOOKING_RATE_PER_MINUTE", 30)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("BOOKING_BODY_LIMIT", "50M")
	v.SetDefault("BOOKING_TIMEZONE", "UTC")
	v.SetDefault("PAYMENT_METHOD", "Online")
	v.SetDefault("DEFAULT_PATIENT_IMAGE", "https://cdn-icons-png.flaticon.com/512/149/149071.png")
	v.SetDefault("BLOB_BACKEND", BlobMemory)
	v.SetDefault("AWS_REGION", "us-east-1")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.ResolvedAuthMode() == "development" {
		log.Warn().Msg("development auth is active: every request runs as a dev admin. Set ENV=production and AUTH_SIGNING_KEY or AUTH_JWKS_URL before deploying")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" for
// ENV=development and "jwt" for everything else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Location returns the zone used to derive appointment weekdays.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.BookingTimezone)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER is %q", DriverMongo)
		}
		if c.MongoDatabase == "" {
			return fmt.Errorf("MONGO_DATABASE must not be empty")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMongo, c.StoreDriver)
	}

	switch c.BlobBackend {
	case BlobMemory:
	case BlobS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND is %q", BlobS3)
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be %q or %q, got %q", BlobMemory, BlobS3, c.BlobBackend)
	}

	mode := c.ResolvedAuthMode()
	switch mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE \"development\" is not allowed in production")
		}
	case "jwt":
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when AUTH_MODE is \"jwt\"")
		}
		if c.IsProduction() && c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER is required in production")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("BOOKING_TIMEZONE %q: %w", c.BookingTimezone, err)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive, got %s", c.IdempotencyTTL)
	}
	for name, limit := range map[string]string{"BODY_LIMIT": c.BodyLimit, "BOOKING_BODY_LIMIT": c.BookingBodyLimit} {
		if n, err := bytes.Parse(limit); err != nil || n <= 0 {
			return fmt.Errorf("%s %q is not a size like 1M or 512K", name, limit)
		}
	}
	if c.BookingRatePerMin < 0 {
		return fmt.Errorf("BOOKING_RATE_PER_MINUTE must not be negative, got %d", c.BookingRatePerMin)
	}
	if strings.TrimSpace(c.PaymentMethod) == "" {
		return fmt.Errorf("PAYMENT_METHOD must not be empty")
	}
	return nil
}
