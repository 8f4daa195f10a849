package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	ServerPort string

	// CacheTTL is the staleness window: cache entries younger than this
	// are served without a refetch.
	CacheTTL time.Duration

	// DebounceInterval bounds how often rapid search/invalidate signals
	// may turn into actual list queries.
	DebounceInterval time.Duration

	// DeadlineLookahead is how far ahead of a task's end date the
	// DEADLINE_APPROACHING notification fires.
	DeadlineLookahead time.Duration

	// DeadlineScanInterval is how often the deadline sweep runs.
	DeadlineScanInterval time.Duration
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	return &Config{
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "taskflow_user"),
		DBPassword:           getEnv("DB_PASSWORD", "taskflow_pass"),
		DBName:               getEnv("DB_NAME", "taskflow_db"),
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		CacheTTL:             getDuration("CACHE_TTL", 30*time.Second),
		DebounceInterval:     getDuration("DEBOUNCE_INTERVAL", 2*time.Second),
		DeadlineLookahead:    getDuration("DEADLINE_LOOKAHEAD", 24*time.Hour),
		DeadlineScanInterval: getDuration("DEADLINE_SCAN_INTERVAL", time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("⚠️  Invalid duration for %s: %q, using default %s", key, value, defaultVal)
		return defaultVal
	}
	return d
}
