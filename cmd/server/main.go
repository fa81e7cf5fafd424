// Package main is the entry point for the Custodian position consolidation
// and security classification engine. It ingests raw position dumps from
// brokerage providers, merges them into a canonical portfolio and annotates
// every position with its security type and crash scenario.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/modules/classify"
	"github.com/aristath/custodian/internal/modules/normalize"
	"github.com/aristath/custodian/internal/modules/scenario"
	"github.com/aristath/custodian/internal/pipeline"
	"github.com/aristath/custodian/internal/reliability"
	"github.com/aristath/custodian/internal/scheduler"
	"github.com/aristath/custodian/internal/server"
	"github.com/aristath/custodian/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Custodian")

	// The tables file is the one fatal configuration surface: without a
	// scenario table the engine cannot assign risk and refuses to start.
	tables, err := config.LoadTables(cfg.TablesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.TablesPath).Msg("Failed to load tables file")
	}

	priorities := config.NewPriorityTable(cfg.TablesPath, tables.Providers)

	scenarios, err := scenario.NewMapper(tables.Scenarios)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build scenario mapper")
	}

	// Classification database
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "classification.db"),
		Profile: database.ProfileCache,
		Name:    "classification",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open classification database")
	}
	defer db.Close()

	store, err := classify.NewStore(db.Conn())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize classification store")
	}

	// Authoritative lookup client is optional: without a base URL the
	// resolver degrades to the heuristic tier on every cache miss.
	var client classify.AuthoritativeClient
	if cfg.ClassifierBaseURL != "" {
		client = classify.NewClient(cfg.ClassifierBaseURL, cfg.ClassifierAPIKey, cfg.LookupTimeout, classify.DefaultRetryPolicy(), log)
	} else {
		log.Warn().Msg("CLASSIFIER_BASE_URL not set, authoritative tier disabled")
	}

	resolver := classify.NewResolver(classify.ResolverConfig{
		MemorySize:        cfg.MemoryCacheSize,
		EntryTTL:          cfg.EntryTTL,
		HeuristicTTL:      cfg.HeuristicTTL,
		LookupConcurrency: cfg.LookupConcurrency,
		BatchTimeout:      cfg.BatchResolveTimeout,
	}, store, client, log)

	normalizers := normalize.NewRegistry(
		normalize.NewTradernetNormalizer(log),
		normalize.NewIBFlexNormalizer(log),
	)

	pipe := pipeline.New(normalizers, priorities, resolver, scenarios, log)

	// Backups are optional: enabled only when a bucket is configured.
	var backupService *reliability.BackupService
	if cfg.BackupBucket != "" {
		objectStore, err := reliability.NewObjectStoreClient(cfg.BackupEndpoint, cfg.BackupAccessKey, cfg.BackupSecretKey, cfg.BackupBucket, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create object store client")
		}
		backupService = reliability.NewBackupService(objectStore, db, cfg.DataDir, log)
	}

	// Background jobs
	sched := scheduler.New(log)
	if err := sched.AddJob("0 0 2 * * *", reliability.NewMaintenanceJob(db, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	if err := sched.AddJob("0 30 2 * * *", classify.NewCleanupJob(store, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup job")
	}
	if client != nil {
		// Refresh entries in their last quarter of life, well before expiry.
		refreshAge := cfg.EntryTTL * 3 / 4
		refreshJob := classify.NewRefreshJob(resolver, refreshAge, 30*time.Minute, log)
		if err := sched.AddJob("0 0 4 * * *", refreshJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register refresh job")
		}
	}
	if backupService != nil {
		if err := sched.AddJob("0 0 3 * * *", reliability.NewBackupJob(backupService, cfg.BackupRetention)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:           log,
		Port:          cfg.Port,
		Pipeline:      pipe,
		Resolver:      resolver,
		Normalizers:   normalizers,
		Priorities:    priorities,
		DB:            db,
		BackupService: backupService,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
