package config

import (
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	TablePrefix string
	Store       string // "postgres", "sqlite" or "memory"
	SQLitePath  string
	CORSOrigins string
	// Auth (both empty = auth disabled)
	JWKSURL   string
	JWTSecret string
	// Client-side tree session
	ServerURL       string
	AutoExpandDelay time.Duration
	ConfirmTimeout  time.Duration // 0 = wait forever
	// Round-trip simulation for the demo server
	SimulatedLatency     time.Duration
	SimulatedFailureRate float64
	// Fixture or seed file loaded into DefaultTree when the store is empty
	// ("" disables)
	SeedFixture string
	DefaultTree string
	// Logging
	LogDir string
	// Debug flags
	Debug bool
}

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Load reads the configuration from the environment. Call godotenv first to
// pick up a .env file.
func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		Environment:          env,
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		TablePrefix:          getTablePrefix(env),
		Store:                getEnv("STORE", getDefaultStore()),
		SQLitePath:           getEnv("SQLITE_PATH", "cleantree.db"),
		CORSOrigins:          getEnv("CORS_ORIGINS", "http://localhost:3001"),
		JWKSURL:              getEnv("JWKS_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		ServerURL:            getEnv("TREE_SERVER_URL", "http://localhost:8080"),
		AutoExpandDelay:      getDuration("AUTO_EXPAND_DELAY", DefaultAutoExpandDelay),
		ConfirmTimeout:       getDuration("CONFIRM_TIMEOUT", DefaultConfirmTimeout),
		SimulatedLatency:     getDuration("SIMULATED_LATENCY", 0),
		SimulatedFailureRate: getFloat("SIMULATED_FAILURE_RATE", 0),
		SeedFixture:          getEnv("SEED_FIXTURE", "demo"),
		DefaultTree:          getEnv("DEFAULT_TREE", "demo"),
		LogDir:               getEnv("LOG_DIR", ""),
		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// Validate checks the loaded configuration is usable
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.DefaultTree, validation.When(c.SeedFixture != "", validation.Required)),
		validation.Field(&c.Store, validation.Required, validation.In(StorePostgres, StoreSQLite, StoreMemory)),
		validation.Field(&c.DatabaseURL, validation.When(c.Store == StorePostgres, validation.Required)),
		validation.Field(&c.SQLitePath, validation.When(c.Store == StoreSQLite, validation.Required)),
		validation.Field(&c.AutoExpandDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.ConfirmTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.SimulatedLatency, validation.Min(time.Duration(0))),
		validation.Field(&c.SimulatedFailureRate, validation.Min(0.0), validation.Max(1.0)),
	)
}

// getDefaultStore picks postgres only when a database is configured
func getDefaultStore() string {
	if os.Getenv("DATABASE_URL") != "" {
		return StorePostgres
	}
	return StoreMemory
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true" // Enable DEBUG in dev/test by default
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
