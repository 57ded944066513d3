// Command bootstrap ensures the Store's unique indexes exist. It replaces
// the teacher's goose-based SQL migration runner: a document store has no
// schema to migrate, only indexes to guarantee, so this is the entire job.
package main

import (
	"context"
	"os"
	"time"

	"xtracto/internal/config"
	"xtracto/internal/logger"
	"xtracto/internal/store"
)

func main() {
	log := logger.Init("xtracto-bootstrap", getEnv("NODE_ENV", "development"), logger.ParseLevelFromEnv())

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := store.New(ctx, cfg.Store)
	if err != nil {
		log.Error("failed to connect to store", "err", err)
		os.Exit(1)
	}
	defer s.Close(context.Background())

	if err := s.EnsureIndexes(ctx); err != nil {
		log.Error("failed to ensure indexes", "err", err)
		os.Exit(1)
	}

	log.Info("indexes ensured", "database", cfg.Store.Database)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
