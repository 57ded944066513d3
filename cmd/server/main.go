package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"xtracto/internal/agency"
	"xtracto/internal/config"
	"xtracto/internal/fetcher"
	"xtracto/internal/imageproc"
	"xtracto/internal/ingest"
	"xtracto/internal/logger"
	"xtracto/internal/models"
	"xtracto/internal/objectstore"
	"xtracto/internal/observability"
	"xtracto/internal/router"
	"xtracto/internal/scheduler"
	"xtracto/internal/store"
)

func main() {
	env := getEnv("NODE_ENV", "development")
	port := getEnv("PORT", "3001")

	log := logger.Init("xtracto", env, logger.ParseLevelFromEnv())

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	shutdownOTel, err := observability.InitOTel(context.Background(), "xtracto")
	if err != nil {
		log.Warn("failed to initialize OpenTelemetry", "err", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				log.Error("error shutting down OpenTelemetry", "err", err)
			}
		}()
	}

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	s, err := store.New(ctx, cfg.Store)
	if err != nil {
		cancelBoot()
		log.Error("failed to connect to store", "err", err)
		os.Exit(1)
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		cancelBoot()
		log.Error("failed to ensure store indexes", "err", err)
		os.Exit(1)
	}
	cancelBoot()
	defer s.Close(context.Background())
	log.Info("connected to store", "database", cfg.Store.Database)

	objStore, err := objectstore.New(cfg.ObjectStore)
	if err != nil {
		log.Error("failed to configure object store", "err", err)
		os.Exit(1)
	}

	blacklist := models.NewBlacklist(cfg.BlacklistedIDs...)

	// The browser-automation backend is an external collaborator (§1, §4.D);
	// fetcher.Null lets the pipeline stages run against a store seeded out
	// of band until a concrete Fetcher is wired in.
	fetch := fetcher.Fetcher(fetcher.Null{})

	sup := scheduler.New(log)
	registerStages(sup, cfg, s, objStore, fetch, blacklist, log)

	runCtx, stopRun := context.WithCancel(context.Background())
	go sup.Run(runCtx)

	r := router.Setup(sup, s)
	server := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.Info("server starting", "port", port, "env", env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	stopRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "err", err)
		os.Exit(1)
	}
	log.Info("exited cleanly")
}

// registerStages wires the stage registry per §4.H's window table.
func registerStages(sup *scheduler.Supervisor, cfg *config.Config, s *store.Store, objStore *objectstore.Client, fetch fetcher.Fetcher, blacklist models.Blacklist, log *slog.Logger) {
	day := scheduler.Day(cfg.Scheduler.DayStart, cfg.Scheduler.DayEnd)
	night := scheduler.Night(cfg.Scheduler.DayStart, cfg.Scheduler.DayEnd)

	ing := ingest.New(fetch, s, blacklist, log)
	sup.Register("first_scraper", func(ctx context.Context) error {
		return ing.BulkCrawl(ctx, nil, 100)
	}, day)
	sup.Register("loop_scraper", func(ctx context.Context) error {
		return ing.Loop(ctx, nil, 100)
	}, day)

	resolver := agency.New(fetch, s, blacklist, log)
	sup.Register("agence_brute", func(ctx context.Context) error {
		return resolver.EnrichBrute(ctx)
	}, night)
	sup.Register("agence_notexisting", func(ctx context.Context) error {
		return resolver.RunOnce(ctx)
	}, night)

	processor := imageproc.New(s, objStore, blacklist, cfg.ProcessorWorkers, log)
	sup.Register("process_and_transfer", func(ctx context.Context) error {
		return processor.Run(ctx)
	}, scheduler.Always)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
