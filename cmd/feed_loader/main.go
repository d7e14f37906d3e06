package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/config"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/database"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/ingestion"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/lock"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/logger"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
	"github.com/joho/godotenv"
)

func setup(ctx context.Context, configPath string, args []string) (*ingestion.IngestionService, func(), error) {
	cfg, err := config.New(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	// a positional argument overrides the configured source directory
	if len(args) > 0 {
		cfg.SourceDir = args[0]
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	appLogger := logger.New(cfg.Logging)

	store, err := database.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to %s store: %w", cfg.Store.Driver, err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close(context.Background())
		return nil, nil, err
	}

	locker, closeLocker, err := lock.New(ctx, cfg.Lock)
	if err != nil {
		_ = store.Close(context.Background())
		return nil, nil, err
	}

	fileProcessor := ingestion.NewFileProcessor(appLogger, cfg.Store.WriteTimeout)
	handler := ingestion.NewIngestionService(store, fileProcessor, locker, *cfg, appLogger)

	cleanupFunc := func() {
		if err := closeLocker(); err != nil {
			appLogger.Warn("Could not close lock client", "error", err)
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			appLogger.Warn("Could not close store", "error", err)
		}
	}

	return handler, cleanupFunc, nil
}

func execute(ctx context.Context, handler *ingestion.IngestionService) (*models.RunSummary, error) {
	slog.Info("Starting feed load...")
	return handler.Execute(ctx)
}

func cleanup(cleanupFunc func()) {
	slog.Info("Cleaning up resources...")
	cleanupFunc()
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML config file (overrides LOADER_CONFIG_FILE)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: could not load .env file: %v", err)
	}
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, cleanupFunc, err := setup(ctx, *configPath, flag.Args())
	if err != nil {
		log.Printf("Setup failed: %v", err)
		return 1
	}
	defer cleanup(cleanupFunc)

	summary, err := execute(ctx, handler)
	if err != nil {
		slog.Error("Feed load could not run", "error", err)
		return 1
	}

	for _, result := range summary.Results {
		if !result.Archived {
			slog.Warn("File left in source directory", "file", result.File, "status", result.Status())
		}
	}
	slog.Info("Feed load finished", "run_id", summary.RunID, "execution_time", time.Since(startTime).String())
	return 0
}

func main() {
	os.Exit(run())
}
