package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/chambridge/capacity-stats/internal/collector"
	"github.com/chambridge/capacity-stats/internal/config"
	"github.com/chambridge/capacity-stats/internal/db"
	"github.com/chambridge/capacity-stats/internal/logger"
	"github.com/chambridge/capacity-stats/internal/processor"
	"github.com/chambridge/capacity-stats/internal/stats"
)

// exitThreshold is the exit status of check when any profile is over threshold.
const exitThreshold = 2

var configFile string

var rootCmd = &cobra.Command{
	Use:   "capacity-stats",
	Short: "Capacity and utilization statistics for nodes, districts and profiles",
	Long: `capacity-stats polls every node for its capacity facts, joins them to the
district definitions in the database, and summarizes usage per district and
per profile. Nodes that fail to answer are listed as missing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			os.Setenv("CONFIG_PATH", configFile)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (yaml)")
	rootCmd.PersistentFlags().Float64("wait", 2, "seconds to wait for nodes to answer")
	rootCmd.PersistentFlags().String("facts-archive", "", "read node facts from a tar.gz snapshot instead of polling")
	viper.BindPFlag("wait_seconds", rootCmd.PersistentFlags().Lookup("wait"))
	viper.BindPFlag("facts_archive", rootCmd.PersistentFlags().Lookup("facts-archive"))

	rootCmd.AddCommand(reportCmd, checkCmd, serveCmd, importDistrictsCmd)
}

// app holds the wired collaborators for one invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
	repo   *db.Repository
	engine *stats.Engine
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := db.NewRepository(pool)
	hosts := []stats.HostLister{repo}

	var facts collector.FactsClient = collector.NewHTTPFactsClient(cfg.NodePort, cfg.FactsPath)
	if cfg.FactsArchive != "" {
		archive, err := processor.LoadFactsArchive(cfg.FactsArchive, log.Named("archive"))
		if err != nil {
			pool.Close()
			return nil, err
		}
		facts = archive
		hosts = append(hosts, archive)
	}

	nodes := collector.New(facts, cfg.CollectParallelism, log.Named("collector"))
	engine := stats.NewEngine(nodes, repo, repo, log.Named("engine")).WithHostListers(hosts...)

	return &app{
		cfg:    cfg,
		logger: log,
		pool:   pool,
		repo:   repo,
		engine: engine,
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
	_ = a.logger.Sync()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errThresholdReached) {
			os.Exit(exitThreshold)
		}
		os.Exit(1)
	}
}
