package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dividendlab/screener-cli/internal/model"
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Manage stored price history",
}

var pricesUpdateCmd = &cobra.Command{
	Use:   "update <ticker>...",
	Short: "Refresh daily history for the given tickers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		updated, err := env.Prices.UpdateAll(ctx, args)
		if err != nil {
			return eris.Wrap(err, "prices update")
		}
		fmt.Printf("Updated %d/%d tickers.\n", updated, len(args))
		return nil
	},
}

var pricesCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge bars past the retention horizon",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Prices.Cleanup(ctx)
		if err != nil {
			return eris.Wrap(err, "prices cleanup")
		}
		fmt.Printf("Purged %d bars.\n", n)
		return nil
	},
}

var pricesShowCmd = &cobra.Command{
	Use:   "show <ticker>",
	Short: "Print stored or derived bars for a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tf, _ := cmd.Flags().GetString("timeframe")
		limit, _ := cmd.Flags().GetInt("limit")

		var bars []model.PriceBar
		switch model.Timeframe(tf) {
		case model.TimeframeDaily:
			bars, err = env.Prices.Daily(ctx, args[0], limit)
		case model.TimeframeWeekly:
			bars, err = env.Prices.Weekly(ctx, args[0], limit)
		case model.TimeframeMonthly:
			bars, err = env.Prices.Monthly(ctx, args[0], limit)
		default:
			return eris.Errorf("unknown timeframe %q (want 1D, 1W, or 1M)", tf)
		}
		if err != nil {
			return eris.Wrap(err, "prices show")
		}
		if len(bars) == 0 {
			fmt.Fprintf(os.Stderr, "No bars for %s.\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME")
		for _, b := range bars {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%d\n",
				b.Date.Format("2006-01-02"), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		return w.Flush()
	},
}

var pricesStochasticCmd = &cobra.Command{
	Use:   "stochastic <ticker>",
	Short: "Print the ticker's oscillator values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		values, err := env.Prices.Stochastic(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "prices stochastic")
		}
		for _, tf := range []model.Timeframe{model.TimeframeMonthly, model.TimeframeWeekly} {
			if v, ok := values[tf]; ok {
				fmt.Printf("%s: %.2f\n", tf, v)
			} else {
				fmt.Printf("%s: insufficient history\n", tf)
			}
		}
		return nil
	},
}

func init() {
	pricesShowCmd.Flags().String("timeframe", "1D", "bar timeframe: 1D, 1W, or 1M")
	pricesShowCmd.Flags().Int("limit", 20, "max bars to display")

	pricesCmd.AddCommand(pricesUpdateCmd)
	pricesCmd.AddCommand(pricesCleanupCmd)
	pricesCmd.AddCommand(pricesShowCmd)
	pricesCmd.AddCommand(pricesStochasticCmd)
	rootCmd.AddCommand(pricesCmd)
}
