package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load env vars from .env file directly
func init() {
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist (e.g. in production),
		// but we should log it just in case.
		// However, mostly we want to rely on environment variables being set.
		// If we are in local dev, this helps.
		log.Println("No .env file found or error loading it, using system environment variables")
	}
}

// GetAllowedOrigins returns a slice of allowed origins from the environment variable.
// It defaults to localhost:3000 if not set.
func GetAllowedOrigins() []string {
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr == "" {
		return []string{"http://localhost:3000"}
	}

	// Split by comma and trim spaces
	parts := strings.Split(originsStr, ",")
	var origins []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// Store holds everything the Store façade needs to reach MongoDB.
type Store struct {
	URI      string
	Database string
}

// ObjectStore holds the S3-compatible bucket configuration (§6).
type ObjectStore struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	Region          string
	MaxConcurrency  int
}

// Scheduler holds the optional day/night window overrides (§6: "Optional:
// ... scheduling windows").
type Scheduler struct {
	DayStart time.Duration // offset since midnight
	DayEnd   time.Duration
}

// Config aggregates everything read from the environment at startup.
type Config struct {
	Store            Store
	ObjectStore      ObjectStore
	Scheduler        Scheduler
	BlacklistedIDs   []string
	ProcessorWorkers int
}

// Load reads the required and optional environment variables described in
// §6. Missing required variables abort process startup (exit code 1, per
// §6's "Exit codes").
func Load() (*Config, error) {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI environment variable is required")
	}
	dbName := os.Getenv("MONGO_DATABASE")
	if dbName == "" {
		dbName = "leboncoin"
	}

	bucket := os.Getenv("OBJSTORE_BUCKET")
	endpoint := os.Getenv("OBJSTORE_ENDPOINT")
	accessKey := os.Getenv("OBJSTORE_ACCESS_KEY")
	secretKey := os.Getenv("OBJSTORE_SECRET_KEY")
	if bucket == "" || endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("OBJSTORE_BUCKET, OBJSTORE_ENDPOINT, OBJSTORE_ACCESS_KEY and OBJSTORE_SECRET_KEY are required")
	}

	maxConcurrency := getEnvInt("OBJSTORE_MAX_CONCURRENCY", 4)
	if maxConcurrency < 3 {
		maxConcurrency = 3
	}
	if maxConcurrency > 5 {
		maxConcurrency = 5
	}

	dayStart := getEnvDuration("SCHED_DAY_START", 10*time.Hour)
	dayEnd := getEnvDuration("SCHED_DAY_END", 22*time.Hour)

	var blacklist []string
	if raw := os.Getenv("BLACKLISTED_STORE_IDS"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				blacklist = append(blacklist, trimmed)
			}
		}
	}

	workers := getEnvInt("PROCESSOR_INSTANCES", 5)
	if workers < 1 {
		workers = 1
	}
	if workers > 10 {
		workers = 10
	}

	return &Config{
		Store: Store{URI: mongoURI, Database: dbName},
		ObjectStore: ObjectStore{
			Endpoint:        endpoint,
			Bucket:          bucket,
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			PublicBaseURL:   os.Getenv("OBJSTORE_PUBLIC_URL"),
			Region:          getEnvOr("OBJSTORE_REGION", "auto"),
			MaxConcurrency:  maxConcurrency,
		},
		Scheduler:        Scheduler{DayStart: dayStart, DayEnd: dayEnd},
		BlacklistedIDs:   blacklist,
		ProcessorWorkers: workers,
	}, nil
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	hours, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(hours) * time.Hour
}
