package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"smartqr/internal/pkg/logger"
	"smartqr/internal/platform/config"
	"smartqr/internal/platform/database"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	dir := flag.String("dir", "migrations", "Directory holding *.sql migrations")
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

	applied, err := database.Migrate(context.Background(), db, *dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	fmt.Printf("Migration completed successfully (%d files)\n", len(applied))
}
