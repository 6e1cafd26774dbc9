package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dividendlab/screener-cli/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect screening run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tSELECTED\tRULES\tCOLUMNS")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
				r.ID, r.RunDate.Format("2006-01-02"), r.SelectedCount, r.RuleVersion, r.ColumnVersion)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "runs show: bad run id %q", args[0])
		}

		run, err := st.GetRun(ctx, id)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		if run == nil {
			return eris.Errorf("run %d not found", id)
		}
		results, err := st.Results(ctx, id)
		if err != nil {
			return eris.Wrap(err, "runs show results")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Run     *model.Run              `json:"run"`
			Results []model.SelectionResult `json:"results"`
		}{run, results})
	},
}

var runsHistoryCmd = &cobra.Command{
	Use:   "history <ticker>",
	Short: "Show a ticker's appearances across past runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		history, err := st.TickerHistory(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "runs history")
		}
		if len(history) == 0 {
			fmt.Fprintf(os.Stderr, "No history for %s.\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tRUN\tYIELD\tPRICE\tOSC 1M\tOSC 1W\tSIGNAL")
		for _, e := range history {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
				e.RunDate.Format("2006-01-02"), e.RunID,
				fmtPct(e.Result.YieldGross), fmtNum(e.Result.CurrentPrice),
				fmtNum(e.Result.Oscillator1M), fmtNum(e.Result.Oscillator1W),
				signal(e.Result))
		}
		return w.Flush()
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsHistoryCmd.Flags().Int("limit", 10, "max number of appearances to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsHistoryCmd)
	rootCmd.AddCommand(runsCmd)
}
