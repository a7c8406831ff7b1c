// Package config loads process configuration from the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable with STORAGE
const (
	StorageMemory    = "memory"
	StorageRedis     = "redis"
	StoragePostgres  = "postgres"
	StorageFirestore = "firestore"
	StorageTiered    = "tiered"
)

// Config holds application configuration.
type Config struct {
	// Server
	Addr            string
	Origin          string
	ShutdownTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Storage
	Storage          string
	TieredHot        string
	TieredCold       string
	RedisURL         string
	PostgresDSN      string
	FirestoreProject string
	CacheTTL         time.Duration

	// Billing
	StripeAPIKey        string
	StripeWebhookSecret string
	StripeProductFilter string
	StripeProductMap    map[string]string
	AppleSharedSecret   string

	// Client
	APIURL    string
	SessionID string
	Platform  string
}

// Load loads configuration from environment variables. The given .env files
// (default ".env") are read first; missing files are skipped and variables
// already set in the environment win.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	mapping, err := parseMap(os.Getenv("STRIPE_PRODUCT_MAP"))
	if err != nil {
		return nil, fmt.Errorf("invalid STRIPE_PRODUCT_MAP: %w", err)
	}

	cfg := &Config{
		Addr:            getEnv("ADDR", ":"+getEnv("PORT", "8080")),
		Origin:          getEnv("APP_ORIGIN", ""),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),

		Storage:          strings.ToLower(getEnv("STORAGE", StorageMemory)),
		TieredHot:        strings.ToLower(getEnv("TIERED_HOT", StorageMemory)),
		TieredCold:       strings.ToLower(getEnv("TIERED_COLD", StoragePostgres)),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PostgresDSN:      getEnv("DATABASE_URL", "postgres://localhost:5432/entitle?sslmode=disable"),
		FirestoreProject: getEnv("FIRESTORE_PROJECT_ID", ""),
		CacheTTL:         getDurationEnv("PREMIUM_CACHE_TTL", 30*time.Second),

		StripeAPIKey:        getEnv("STRIPE_API_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeProductFilter: getEnv("STRIPE_PRODUCT_FILTER", "Premium"),
		StripeProductMap:    mapping,
		AppleSharedSecret:   getEnv("APPLE_SHARED_SECRET", ""),

		APIURL:    getEnv("ENTITLE_API_URL", "http://localhost:8080/api"),
		SessionID: getEnv("ENTITLE_SESSION_ID", ""),
		Platform:  strings.ToLower(getEnv("ENTITLE_PLATFORM", "web")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and the settings each storage backend needs
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: want console or json", c.LogFormat)
	}

	if err := c.validateBackend(c.Storage); err != nil {
		return err
	}
	if c.Storage == StorageTiered {
		if c.TieredHot != StorageMemory && c.TieredHot != StorageRedis {
			return fmt.Errorf("invalid TIERED_HOT %q: want memory or redis", c.TieredHot)
		}
		if err := c.validateBackend(c.TieredHot); err != nil {
			return err
		}
		if c.TieredCold == StorageTiered || c.TieredCold == StorageMemory || c.TieredCold == StorageRedis {
			return fmt.Errorf("invalid TIERED_COLD %q: want postgres or firestore", c.TieredCold)
		}
		if err := c.validateBackend(c.TieredCold); err != nil {
			return err
		}
	}

	switch c.Platform {
	case "ios", "android", "web":
	default:
		return fmt.Errorf("invalid ENTITLE_PLATFORM %q: want ios, android or web", c.Platform)
	}
	return nil
}

func (c *Config) validateBackend(name string) error {
	switch name {
	case StorageMemory, StorageTiered:
	case StorageRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for redis storage")
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("DATABASE_URL is required for postgres storage")
		}
	case StorageFirestore:
		if c.FirestoreProject == "" {
			return errors.New("FIRESTORE_PROJECT_ID is required for firestore storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q", name)
	}
	return nil
}

// StripeEnabled reports whether card payments are configured
func (c *Config) StripeEnabled() bool {
	return c.StripeAPIKey != ""
}

// AppStoreEnabled reports whether App Store receipt verification is configured
func (c *Config) AppStoreEnabled() bool {
	return c.AppleSharedSecret != ""
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseMap reads "a=b,c=d"
func parseMap(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("malformed pair %q", pair)
		}
		out[k] = v
	}
	return out, nil
}
