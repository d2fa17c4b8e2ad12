package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/chatflow/internal/scheduler"
	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/internal/workers"
	chatflowmcp "github.com/rendis/chatflow/pkg/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var (
		noStore    bool
		simTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the chatflow MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			deps := chatflowmcp.ServerDeps{
				Tributaries: reg,
				Mode:        a.cfg.Mode,
				MaxDepth:    a.cfg.MaxDepth,
				Logger:      a.logger,

				SimulateTimeout: a.cfg.simulateTimeout(),
				MaxSpoken:       a.cfg.MaxSpoken,
			}
			if simTimeout > 0 {
				deps.SimulateTimeout = simTimeout
			}
			if !noStore {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()
				deps.Store = st
			}
			a.logger.Info("mcp server starting", slog.Int("tributaries", reg.Count()))
			return chatflowmcp.NewServer(deps).Serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&noStore, "no-store", false, "disable recording and chatflow.transcript")
	cmd.Flags().DurationVar(&simTimeout, "simulate-timeout", 0, "deadline for one chatflow.simulate run (default from settings, 30s)")
	return cmd
}

func newScheduleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage cron-triggered conversations",
	}
	cmd.AddCommand(
		newScheduleAddCmd(a),
		newScheduleListCmd(a),
		newScheduleRemoveCmd(a),
		newScheduleServeCmd(a),
	)
	return cmd
}

func newScheduleAddCmd(a *app) *cobra.Command {
	var (
		cronExpr   string
		name       string
		inputsJSON string
		disabled   bool
	)
	cmd := &cobra.Command{
		Use:   "add <script>",
		Short: "Schedule a script to run with scripted replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := loadScript(path); err != nil {
				return err
			}
			inputs, err := parseInputs(inputsJSON)
			if err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			job := &store.ScheduledJob{
				Name:           name,
				ScriptPath:     path,
				CronExpression: cronExpr,
				Inputs:         inputs,
				Enabled:        !disabled,
			}
			sch := scheduler.NewScheduler(st, nil, nil, a.logger)
			if err := sch.AddJob(cmd.Context(), job); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s next run %s\n", job.ID, job.NextRunAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression, e.g. '0 9 * * 1-5' or '@hourly'")
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&inputsJSON, "inputs", "", "JSON array of replies; null is silence")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the job disabled")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func newScheduleListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := st.ListScheduledJobs(cmd.Context(), store.ScheduledJobFilter{})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCRON\tENABLED\tNEXT RUN\tLAST STATUS\tSCRIPT")
			for _, j := range jobs {
				next := "-"
				if j.NextRunAt != nil {
					next = j.NextRunAt.Format(time.RFC3339)
				}
				last := j.LastRunStatus
				if last == "" {
					last = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n", j.ID, j.Name, j.CronExpression, j.Enabled, next, last, j.ScriptPath)
			}
			return tw.Flush()
		},
	}
}

func newScheduleRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Delete a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			return st.DeleteScheduledJob(cmd.Context(), args[0])
		},
	}
}

func newScheduleServeCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run due jobs until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			reg, err := a.registry()
			if err != nil {
				return err
			}
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			pool := workers.NewPool(a.cfg.PoolSize, a.logger)
			defer pool.Shutdown()

			runner := &scheduler.ScriptRunner{
				Tributaries: reg,
				Store:       st,
				Mode:        a.cfg.Mode,
				MaxDepth:    a.cfg.MaxDepth,
				Logger:      a.logger,

				SimulateTimeout: a.cfg.simulateTimeout(),
				MaxSpoken:       a.cfg.MaxSpoken,
			}
			if simTimeout > 0 {
				deps.SimulateTimeout = simTimeout
			}
			sch := scheduler.NewScheduler(st, runner, pool, a.logger, scheduler.WithInterval(interval))
			if err := sch.RecoverMissed(ctx); err != nil {
				return err
			}
			if err := sch.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			if err := sch.Stop(); err != nil {
				return err
			}
			m := pool.Metrics()
			a.logger.Info("scheduler drained",
				slog.Int64("completed", m.Completed),
				slog.Int64("failed", m.Failed),
			)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", scheduler.DefaultInterval, "how often to look for due jobs")
	return cmd
}
