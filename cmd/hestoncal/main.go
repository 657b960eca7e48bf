package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hestonlab/internal/app"
)

var (
	configPath  string
	baseDir     string
	forceSample bool
)

var rootCmd = &cobra.Command{
	Use:   "hestoncal",
	Short: "Heston calibration and next-day backtests on SPX option surfaces",
	Long: `hestoncal calibrates the Heston model to an SPX implied-volatility surface,
scores the fit on the next trading day and runs a delta-hedge backtest.

Quotes come from local files, the file and redis caches, WRDS OptionMetrics
or the bundled sample, in that order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       app.BuildVersion(),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/hestonlab.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Directory relative paths resolve against (default: working directory)")
	rootCmd.PersistentFlags().BoolVar(&forceSample, "force-sample", false, "Use the bundled sample data for every date")

	rootCmd.AddCommand(runCmd, batchCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApplication wires the application for a subcommand.
func newApplication(ctx context.Context, serve bool) (*app.Application, error) {
	return app.New(ctx, app.Options{
		ConfigPath:  configPath,
		BaseDir:     baseDir,
		ForceSample: forceSample,
		Serve:       serve,
	})
}
