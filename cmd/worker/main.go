package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"smartqr/internal/engine/qrcodes"
	"smartqr/internal/engine/scans"
	"smartqr/internal/pkg/logger"
	"smartqr/internal/platform/config"
	"smartqr/internal/platform/database"
	"smartqr/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	once := flag.Bool("once", false, "Run every job once and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	scanRepo := scans.NewRepository(db)
	qrService := qrcodes.NewService(qrcodes.NewRepository(db))

	prune := func(ctx context.Context) error {
		_, err := workers.PruneScans(ctx, scanRepo, cfg.Scans.RetentionDays, time.Now())
		return err
	}
	// The server evicts its own cache entries; here only the status flips.
	expire := func(ctx context.Context) error {
		_, err := workers.ExpireQRCodes(ctx, qrService, nil, time.Now())
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		failed := false
		for name, job := range map[string]func(context.Context) error{"scan_prune": prune, "qr_expiry": expire} {
			if err := job(ctx); err != nil {
				log.Error().Err(err).Str("worker", name).Msg("Worker run failed")
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	log.Info().Msg("Starting SmartQR background workers")

	// Scan-log retention runs at 01:00 UTC daily.
	go workers.Daily(ctx, "scan_prune", 1, prune)
	go workers.Every(ctx, "qr_expiry", time.Hour, expire)

	<-ctx.Done()
	log.Info().Msg("Workers stopped")
}
