package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/chambridge/capacity-stats/api"
	"github.com/chambridge/capacity-stats/internal/processor"
	"github.com/chambridge/capacity-stats/internal/report"
	"github.com/chambridge/capacity-stats/internal/stats"
)

var errThresholdReached = errors.New("capacity threshold reached")

var reportFormat string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run one pass and print the summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(reportFormat)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.Run(cmd.Context(), a.cfg.Options())
		if err != nil {
			return err
		}
		return report.Render(cmd.OutOrStdout(), res, format)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one pass and exit non-zero when a profile reaches the usage threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.Run(cmd.Context(), a.cfg.Options())
		if err != nil {
			return err
		}
		return checkCapacity(cmd.OutOrStdout(), res, a.cfg.Threshold, a.cfg.Profile)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve capacity stats over HTTP, computing a fresh pass per request",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		return serve(cmd.Context(), a)
	},
}

var importDistrictsCmd = &cobra.Command{
	Use:   "import-districts FILE",
	Short: "Create or update district definitions from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open districts file: %w", err)
		}
		defer file.Close()

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := processor.ProcessDistrictsCSV(cmd.Context(), a.repo, csv.NewReader(file), a.logger.Named("import"))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d districts from %s\n", n, args[0])
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", string(report.FormatText), "output format: text, tsv, json, yaml or xml")
	reportCmd.Flags().Bool("db", false, "also count persisted applications, gears and cartridges")
	viper.BindPFlag("db_stats", reportCmd.Flags().Lookup("db"))

	checkCmd.Flags().String("profile", "", "profile to check (default all)")
	checkCmd.Flags().Float64("threshold", 90, "usage percentage that raises an alert")
	viper.BindPFlag("profile", checkCmd.Flags().Lookup("profile"))
	viper.BindPFlag("threshold", checkCmd.Flags().Lookup("threshold"))

	serveCmd.Flags().String("addr", ":8080", "listen address")
	viper.BindPFlag("server_address", serveCmd.Flags().Lookup("addr"))
}

// checkCapacity prints one line per alert and returns errThresholdReached
// when any fired.
func checkCapacity(w io.Writer, res *stats.Results, threshold float64, profile string) error {
	if _, ok := res.ProfileSummaries[profile]; profile != "" && !ok {
		return fmt.Errorf("unknown profile %q", profile)
	}

	alerts := stats.ThresholdRule{Threshold: threshold}.EvaluateProfiles(res.ProfileSummaries, profile)
	if len(alerts) == 0 {
		fmt.Fprintf(w, "OK: no profile at or above %.2f%% active gear usage\n", threshold)
		return nil
	}
	for _, alert := range alerts {
		fmt.Fprintf(w, "ALERT: %s\n", alert)
	}
	return fmt.Errorf("%d profile(s) over threshold: %w", len(alerts), errThresholdReached)
}

func serve(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    a.cfg.ServerAddress,
		Handler: api.SetupRouter(a.engine, a.repo, a.cfg, a.logger.Named("api")),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
