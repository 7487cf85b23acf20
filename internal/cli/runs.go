package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tradejournal/internal/core"
)

func newRunsCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and purge import run history",
	}
	cmd.AddCommand(newRunsListCmd(ro), newRunsShowCmd(ro), newRunsPurgeCmd(ro))
	return cmd
}

func newRunsListCmd(ro *rootOptions) *cobra.Command {
	var (
		owner string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's import runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, db, err := ro.openService(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := svc.ListRuns(ctx, owner, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tIMPORTED\tSKIPPED\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
					r.ID, r.StartedAt.Format(time.RFC3339), r.Status, r.Imported, r.Skipped, r.Failed)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id (required)")
	cmd.Flags().IntVar(&limit, "limit", core.DefaultRunListLimit, "Maximum runs to list")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newRunsShowCmd(ro *rootOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one import run with its full result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, db, err := ro.openService(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			run, err := svc.GetRun(ctx, owner, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), run)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newRunsPurgeCmd(ro *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete import runs older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, db, err := ro.openService(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if olderThan <= 0 {
				olderThan = time.Duration(ro.cfg.History.RetentionDays) * 24 * time.Hour
			}
			n, err := svc.PurgeRuns(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d import runs older than %s\n", n, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age cutoff (default HISTORY_RETENTION_DAYS)")
	return cmd
}
