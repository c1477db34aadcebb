package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/chambridge/capacity-stats/internal/config"
	"github.com/chambridge/capacity-stats/internal/db"
	"github.com/chambridge/capacity-stats/internal/logger"
)

func main() {
	var reset, down bool
	flag.BoolVar(&reset, "reset", false, "Drop all tables before applying the schema")
	flag.BoolVar(&down, "down", false, "Drop all tables and exit")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if reset || down {
		if err := db.DropAll(ctx, pool); err != nil {
			log.Fatal("failed to drop tables", zap.Error(err))
		}
		log.Info("dropped tables", zap.Strings("tables", db.Tables))
		if down {
			return
		}
	}

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("failed to migrate", zap.Error(err))
	}
	log.Info("schema is up to date")
}
