package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment configuration values for the application.
// These values are loaded from a .env file at startup.
type Config struct {
	// ServerPort is the port the HTTP server listens on
	ServerPort string

	// CORSOrigins are the allowed browser origins, comma-separated in the
	// CORS_ORIGINS environment variable
	CORSOrigins []string

	// TypingTimeout is the quiet period before a typing indicator
	// auto-expires
	TypingTimeout time.Duration

	// PresenceSweepInterval is how often the sweeper checks for stale
	// participants
	PresenceSweepInterval time.Duration

	// PresenceTTL is how long a participant may be silent before the
	// sweeper expires their session
	PresenceTTL time.Duration
}

// Load reads environment variables and returns a populated Config struct.
// It will load from a .env file if present, then read from environment
// variables. Falls back to sensible defaults if values are not set.
func Load() *Config {
	// Attempt to load .env file - not an error if it doesn't exist
	// as we may be running in production with real environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		ServerPort:            getEnv("PORT", "8080"),
		CORSOrigins:           getOrigins(),
		TypingTimeout:         getDuration("TYPING_TIMEOUT", 3*time.Second),
		PresenceSweepInterval: getDuration("PRESENCE_SWEEP_INTERVAL", 30*time.Second),
		PresenceTTL:           getDuration("PRESENCE_TTL", 90*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "3s") or returns a default value
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("WARNING: invalid %s %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return d
}

// getOrigins returns allowed CORS origins from environment or defaults.
// Format: comma-separated list, e.g. "http://localhost:5173,https://chat.example.com"
func getOrigins() []string {
	originsEnv := os.Getenv("CORS_ORIGINS")
	if originsEnv == "" {
		// Default to localhost for development
		return []string{"http://localhost:5173", "http://localhost:3000"}
	}

	origins := strings.Split(originsEnv, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	return origins
}
