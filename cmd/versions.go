package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dividendlab/screener-cli/internal/model"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Inspect rule and column configuration versions",
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

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tVERSION\tCREATED\tDESCRIPTION")
		for _, kind := range []model.VersionKind{model.VersionKindRules, model.VersionKindColumns} {
			v, err := st.LatestVersion(ctx, kind)
			if err != nil {
				return eris.Wrapf(err, "versions: latest %s", kind)
			}
			if v == nil {
				fmt.Fprintf(w, "%s\t-\t-\t(none stored)\n", kind)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				kind, v.Version, v.CreatedAt.Format("2006-01-02 15:04"), v.Description)
		}
		return w.Flush()
	},
}

var versionsShowCmd = &cobra.Command{
	Use:   "show <kind>",
	Short: "Print the current payload for a kind (rules or columns)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind := model.VersionKind(args[0])
		if kind != model.VersionKindRules && kind != model.VersionKindColumns {
			return eris.Errorf("unknown version kind %q (want rules or columns)", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		v, err := st.LatestVersion(ctx, kind)
		if err != nil {
			return eris.Wrapf(err, "versions show %s", kind)
		}
		if v == nil {
			return eris.Errorf("no %s versions stored yet", kind)
		}
		fmt.Printf("%s %s (%s)\n%s\n", kind, v.Version, v.CreatedAt.Format("2006-01-02"), v.Payload)
		return nil
	},
}

func init() {
	versionsCmd.AddCommand(versionsShowCmd)
	rootCmd.AddCommand(versionsCmd)
}
