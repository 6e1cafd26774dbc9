package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dividendlab/screener-cli/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one full screening pass",
	Long:  "Loads the feed, applies the selection rules, refreshes price history for survivors, computes oscillator signals, and persists the day's run (replacing any earlier run from the same day).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, results, err := env.Pipeline.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Run %d (%s): %d selected, rules %s, columns %s\n",
			run.ID, run.RunDate.Format("2006-01-02"),
			run.SelectedCount, run.RuleVersion, run.ColumnVersion)
		if len(results) > 0 {
			formatResults(results)
		}
		return nil
	},
}

func formatResults(results []model.SelectionResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tYIELD\tNET\tPRICE\tBREAKEVEN\tOSC 1M\tOSC 1W\tSIGNAL")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Ticker,
			fmtPct(r.YieldGross), fmtPct(r.YieldNet),
			fmtNum(r.CurrentPrice), fmtNum(r.BreakevenPrice),
			fmtNum(r.Oscillator1M), fmtNum(r.Oscillator1W),
			signal(r))
	}
	w.Flush()
}

func fmtNum(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func fmtPct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

func signal(r model.SelectionResult) string {
	if r.PriceError != "" {
		return "error: " + r.PriceError
	}
	if r.SecondarySignalPassed {
		return "oversold"
	}
	return "-"
}

func init() {
	rootCmd.AddCommand(runCmd)
}
