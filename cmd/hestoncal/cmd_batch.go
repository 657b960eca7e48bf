package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hestonlab/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every date of a dateset and build the comparison tables",
	Long: `Run every entry of a dateset file (YAML or JSON) and write the aggregate
pricing, OOS and hedge tables, the BS/Heston comparison CSV and workbook, and
a wrds_dateset manifest entry. A failing date is recorded and skipped.`,
	Example: `  hestoncal batch
  hestoncal batch --dateset config/dateset.yaml --workers 2 --fast`,
	RunE: runBatch,
}

var (
	batchDateset string
	batchSymbol  string
	batchWorkers int
	batchFast    bool
	batchStrict  bool
)

func init() {
	batchCmd.Flags().StringVar(&batchDateset, "dateset", "", "Dateset file (default from config)")
	batchCmd.Flags().StringVar(&batchSymbol, "symbol", "", "Underlying symbol (default from config)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Dates run in parallel (default from config)")
	batchCmd.Flags().BoolVar(&batchFast, "fast", false, "Use the reduced evaluation and bootstrap budget")
	batchCmd.Flags().BoolVar(&batchStrict, "strict", false, "Exit non-zero when any date fails")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApplication(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	path := batchDateset
	if path == "" {
		path = a.Paths.DatesetFile
	}
	if path == "" {
		return fmt.Errorf("no dateset given and paths.dateset_file is empty")
	}

	res, err := a.Pipeline.RunDateset(ctx, path, pipeline.BatchOptions{
		Symbol:  batchSymbol,
		Fast:    batchFast || a.Config.Calibration.Fast,
		Workers: batchWorkers,
	})
	if err != nil {
		return fmt.Errorf("batch %s failed: %w", path, err)
	}
	if err := printBatch(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if batchStrict && res.Failed() > 0 {
		return fmt.Errorf("%d of %d dates failed", res.Failed(), len(res.Outcomes))
	}
	return nil
}

func printBatch(w io.Writer, res *pipeline.BatchResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "batch\t%s\n", res.BatchID)
	fmt.Fprintln(tw, "TRADE DATE\tSTATUS\tOOS PRICE MAE (TICKS)\tDETAIL")
	for _, o := range res.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(tw, "%s\terror\t-\t%s\n", o.Entry.TradeDate, o.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\tok\t%.4f\t%s\n", o.Entry.TradeDate, o.Result.PriceMAETicks(), o.Entry.Label)
	}
	fmt.Fprintf(tw, "failed\t%d/%d\n", res.Failed(), len(res.Outcomes))
	if p, ok := res.Artifacts["comparison_xlsx"]; ok {
		fmt.Fprintf(tw, "workbook\t%s\n", p)
	}
	return tw.Flush()
}
