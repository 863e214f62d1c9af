package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect refresh history",
	Long:  "Commands for listing and viewing recorded snapshot refreshes.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List refreshes, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		trigger, _ := cmd.Flags().GetString("trigger")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRefreshes(ctx, store.RefreshFilter{
			Status:  model.RefreshStatus(status),
			Trigger: trigger,
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No refreshes found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <refresh-id>",
	Short: "Show full details of a refresh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetRefresh(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return writeIndented(os.Stdout, rec)
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (running, complete, failed)")
	runsListCmd.Flags().String("trigger", "", "filter by trigger (startup, api, cli)")
	runsListCmd.Flags().Int("limit", 50, "max number of refreshes to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func formatRunsList(w io.Writer, runs []model.Refresh) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTRIGGER\tPIPELINE\tEXECUTION\tLINKS\tCREATED")
	for _, r := range runs {
		pipe, exec, links := "-", "-", "-"
		if r.Stats != nil {
			pipe = fmt.Sprintf("%d/%d", r.Stats.PipelineRetained, r.Stats.PipelineRaw)
			exec = fmt.Sprintf("%d/%d", r.Stats.ExecutionRetained, r.Stats.ExecutionRaw)
			links = fmt.Sprintf("%d+%d", r.Stats.Links.Exact, r.Stats.Links.Fallback)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Trigger, pipe, exec, links,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = tw.Flush()
}
