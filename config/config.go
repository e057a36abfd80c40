package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	FFmpegPath string
	ScratchDir string // Working directory for transcoding scratch files
	InboxDir   string // Directory watched by the ingest worker in watch mode

	// Object storage (S3-compatible). Endpoint, credentials and bucket are
	// mandatory; commands that touch storage refuse to start without them.
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageRegion    string
	StorageUseSSL    bool
	CDNBaseURL       string // Optional; when set, PublicURL returns CDN-prefixed URLs

	// Catalog database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// HTTP server
	ServerAddr string

	// Playback
	APIBaseURL          string        // Catalog API base URL consumed by the player
	StreamURLTTL        time.Duration // Signed stream URL lifetime, capped at 1h
	StillListeningAfter time.Duration // Continuous-listening guard threshold
	RelatedTracksLimit  int           // Queue auto-extension batch size

	// Ingestion
	IngestWorkers int // Parallel ingest jobs (distinct tracks only)

	// Logging
	LogPath  string
	LogLevel string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as duration or returns a default value.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
		ScratchDir: getEnv("SCRATCH_DIR", filepath.Join(os.TempDir(), "driftfm")),
		InboxDir:   getEnv("INBOX_DIR", filepath.Join("uploads", "inbox")),

		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", ""),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: os.Getenv("STORAGE_SECRET_KEY"),
		StorageBucket:    getEnv("STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("STORAGE_REGION", "auto"),
		StorageUseSSL:    getEnvBool("STORAGE_USE_SSL", true),
		CDNBaseURL:       getEnv("CDN_BASE_URL", ""),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "driftfm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		APIBaseURL:          getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		StreamURLTTL:        getEnvDuration("STREAM_URL_TTL", time.Hour),
		StillListeningAfter: getEnvDuration("STILL_LISTENING_AFTER", 3*time.Hour),
		RelatedTracksLimit:  getEnvInt("RELATED_TRACKS_LIMIT", 10),

		IngestWorkers: getEnvInt("INGEST_WORKERS", 4),

		LogPath:  getEnv("LOG_PATH", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ValidateStorage checks the mandatory object storage settings.
// This is a configuration-integrity check, not a runtime error path.
func (c *Config) ValidateStorage() error {
	if c.StorageEndpoint == "" {
		return fmt.Errorf("STORAGE_ENDPOINT is required")
	}
	if c.StorageAccessKey == "" {
		return fmt.Errorf("STORAGE_ACCESS_KEY is required")
	}
	if c.StorageSecretKey == "" {
		return fmt.Errorf("STORAGE_SECRET_KEY is required")
	}
	if c.StorageBucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required")
	}
	return nil
}
