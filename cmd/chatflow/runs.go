package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/pkg/schema"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and clean up recorded runs",
	}
	cmd.AddCommand(
		newRunsListCmd(a),
		newRunsDeleteCmd(a),
		newRunsPruneCmd(a),
	)
	return cmd
}

func newRunsListCmd(a *app) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), store.RunFilter{Status: schema.RunStatus(status), Limit: limit})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tMODE\tSTARTED\tSCRIPT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Mode, r.StartedAt.Format(time.RFC3339), r.Script)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs to list (0 lists all)")
	return cmd
}

func newRunsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>...",
		Short: "Delete runs and their transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			for _, id := range args {
				if err := st.DeleteRun(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newRunsPruneCmd(a *app) *cobra.Command {
	var (
		olderThan time.Duration
		status    string
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished runs older than a cutoff and compact the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(ctx, store.RunFilter{Status: schema.RunStatus(status)})
			if err != nil {
				return err
			}
			cutoff := time.Now().Add(-olderThan)
			pruned := 0
			for _, r := range runs {
				if r.Status == schema.RunStatusRunning || !r.StartedAt.Before(cutoff) {
					continue
				}
				if err := st.DeleteRun(ctx, r.ID); err != nil {
					return err
				}
				pruned++
			}
			if pruned > 0 {
				if err := st.Vacuum(ctx); err != nil {
					return schema.NewError(schema.ErrCodeStore, "vacuum failed").WithCause(err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d runs\n", pruned)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only runs started before now minus this duration")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status")
	return cmd
}
