package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Server
	Port        string
	FrontendURL string

	// Stores
	PersistentStoreURL string
	StateStoreURL      string

	// Auth
	AuthTokenSecret string
	AuthTokenTTL    time.Duration

	// Matchmaking
	MatchmakingWaitBudget time.Duration
	MatchmakingRetry      time.Duration
	InitialBand           int
	MaxBand               int

	// Match lifecycle
	DisconnectGrace time.Duration
	MatchTTL        time.Duration

	// Word lists
	WordDataDir string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Server
		Port:        getEnv("SERVER_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Stores
		PersistentStoreURL: getEnv("PERSISTENT_STORE_URL", "postgres://localhost:5432/wordrush?sslmode=disable"),
		StateStoreURL:      getEnv("STATE_STORE_URL", "redis://localhost:6379/0"),

		// Auth
		AuthTokenSecret: getEnv("AUTH_TOKEN_SECRET", "change-me-in-production"),
		AuthTokenTTL:    time.Duration(getEnvInt("AUTH_TOKEN_TTL_HOURS", 24)) * time.Hour,

		// Matchmaking
		MatchmakingWaitBudget: time.Duration(getEnvInt("MATCHMAKING_WAIT_BUDGET_MS", 15000)) * time.Millisecond,
		MatchmakingRetry:      time.Duration(getEnvInt("MATCHMAKING_RETRY_MS", 2000)) * time.Millisecond,
		InitialBand:           getEnvInt("INITIAL_BAND", 100),
		MaxBand:               getEnvInt("MAX_BAND", 400),

		// Match lifecycle
		DisconnectGrace: time.Duration(getEnvInt("DISCONNECT_GRACE_MS", 10000)) * time.Millisecond,
		MatchTTL:        time.Duration(getEnvInt("MATCH_TTL_MINUTES", 60)) * time.Minute,

		// Word lists
		WordDataDir: getEnv("WORD_DATA_DIR", "data"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
