package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hestonlab/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Calibrate one trade date and backtest it on the next",
	Example: `  hestoncal run --date 2024-06-14
  hestoncal run --date 2024-06-14 --next-date 2024-06-17 --fast
  hestoncal run --date 2024-06-14 --label "opex friday" --regime calm`,
	RunE: runSingleDate,
}

var (
	runDate    string
	runNext    string
	runSymbol  string
	runLabel   string
	runRegime  string
	runComment string
	runOutDir  string
	runFast    bool
)

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "Trade date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runNext, "next-date", "", "Next trade date (default: next weekday)")
	runCmd.Flags().StringVar(&runSymbol, "symbol", "", "Underlying symbol (default from config)")
	runCmd.Flags().StringVar(&runLabel, "label", "", "Label recorded with the run")
	runCmd.Flags().StringVar(&runRegime, "regime", "", "Market regime tag")
	runCmd.Flags().StringVar(&runComment, "comment", "", "Free-form comment")
	runCmd.Flags().StringVar(&runOutDir, "out", "", "Output directory (default from config)")
	runCmd.Flags().BoolVar(&runFast, "fast", false, "Use the reduced evaluation and bootstrap budget")
	_ = runCmd.MarkFlagRequired("date")
}

func runSingleDate(cmd *cobra.Command, args []string) error {
	trade, next, err := pipeline.Entry{TradeDate: runDate, NextTradeDate: runNext}.Dates()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApplication(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Pipeline.Run(ctx, pipeline.RunRequest{
		Symbol:        runSymbol,
		TradeDate:     trade,
		NextTradeDate: next,
		Label:         runLabel,
		Regime:        runRegime,
		Comment:       runComment,
		Fast:          runFast || a.Config.Calibration.Fast,
		OutputDir:     runOutDir,
	})
	if err != nil {
		return fmt.Errorf("run %s failed: %w", runDate, err)
	}
	return printRun(cmd.OutOrStdout(), res)
}

func printRun(w io.Writer, res *pipeline.DateResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	s := res.Summary
	if s != nil {
		fmt.Fprintf(tw, "trade date\t%s\n", s.TradeDate)
		fmt.Fprintf(tw, "next trade date\t%s\n", s.NextTradeDate)
		fmt.Fprintf(tw, "sources\t%s / %s\n", s.SourceToday, s.SourceNext)
		fmt.Fprintf(tw, "params\tkappa=%.4f theta=%.4f sigma=%.4f rho=%.4f v0=%.4f\n",
			s.Params.Kappa, s.Params.Theta, s.Params.Sigma, s.Params.Rho, s.Params.V0)
		fmt.Fprintf(tw, "iv rmse (vol pts)\t%.4f\n", float64(s.IVRMSEVolPts))
		fmt.Fprintf(tw, "price rmse (ticks)\t%.4f\n", float64(s.PriceRMSETicks))
		fmt.Fprintf(tw, "converged\t%t (%d evals)\n", s.Converged, s.Evaluations)
	}
	fmt.Fprintf(tw, "oos price mae (ticks)\t%.4f\n", res.PriceMAETicks())

	keys := make([]string, 0, len(res.Artifacts))
	for k := range res.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, res.Artifacts[k])
	}
	return tw.Flush()
}
