// Package main provides the entry point for the pull request metrics extractor.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prmetrics/extractor/internal/config"
	"github.com/prmetrics/extractor/internal/database"
	"github.com/prmetrics/extractor/internal/database/migrate"
	"github.com/prmetrics/extractor/internal/devops"
	"github.com/prmetrics/extractor/internal/export"
	extractionRepo "github.com/prmetrics/extractor/internal/extraction/repository"
	extractionService "github.com/prmetrics/extractor/internal/extraction/service"
	"github.com/prmetrics/extractor/internal/health"
	"github.com/prmetrics/extractor/internal/middleware"
	statisticsRouter "github.com/prmetrics/extractor/internal/statistics/router"
	"github.com/prmetrics/extractor/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "path to YAML config file (environment-only when empty)")
		mode       = flag.String("mode", "sync", "run mode: sync, backfill, export, serve")
		days       = flag.Int("days", 0, "backfill window override in days")
		outDir     = flag.String("out", "export", "output directory for export mode")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *days > 0 {
		cfg.Extract.BackfillDays = *days
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Logger, cfg.Token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	redactor := logger.NewRedactor(cfg.Token)

	db, err := database.Open(cfg.Store)
	if err != nil {
		log.Errorw("failed to open store", "error", redactor.Sanitize(err))
		return 1
	}
	defer func() { _ = database.Close(db) }()

	if err := migrate.Up(db); err != nil {
		log.Errorw("failed to migrate store", "error", redactor.Sanitize(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "sync":
		return runExtraction(ctx, cfg, db, log, redactor, extractionRepo.ModeIncremental)
	case "backfill":
		return runExtraction(ctx, cfg, db, log, redactor, extractionRepo.ModeBackfill)
	case "export":
		if err := export.New(db, log).WriteAll(ctx, *outDir); err != nil {
			log.Errorw("export failed", "error", redactor.Sanitize(err))
			return 1
		}
		return 0
	case "serve":
		return serve(cfg, db, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode: %s\n", *mode)
		return 1
	}
}

// runExtraction executes one extraction pass and prints the run summary as
// JSON. The exit code reflects the overall outcome.
func runExtraction(
	ctx context.Context,
	cfg *config.Config,
	db *gorm.DB,
	log *zap.SugaredLogger,
	redactor *logger.Redactor,
	mode extractionRepo.Mode,
) int {
	client := devops.NewClient(devops.ClientConfigFrom(cfg), log, redactor)
	collector := devops.NewCollector(client, log)
	repo := extractionRepo.New(db, log)
	svc := extractionService.New(collector, repo, cfg, log, redactor)

	summary := svc.Run(ctx, mode)

	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Errorw("failed to encode run summary", "error", err)
		return 1
	}
	fmt.Println(redactor.Redact(string(encoded)))

	if !summary.Succeeded() {
		return 1
	}
	return 0
}

// serve exposes the persisted rollups over HTTP for the dashboard.
func serve(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger) int {
	gin.SetMode(cfg.Server.GinMode)

	r := gin.New()
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	healthHandler := health.New(db, log)
	r.GET("/health", healthHandler.Check)

	statisticsRouter.RegisterRoutes(r, db, log)

	log.Infow("starting server", "address", cfg.Server.Address)
	if err := r.Run(cfg.Server.Address); err != nil {
		log.Errorw("server failed", "error", err)
		return 1
	}
	return 0
}
