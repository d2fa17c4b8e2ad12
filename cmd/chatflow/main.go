// Command chatflow runs, checks and schedules ChatFlow conversation scripts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(loadConfig()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(cfg Config) *cobra.Command {
	a := newApp(cfg)

	rootCmd := &cobra.Command{
		Use:           "chatflow",
		Short:         "Run and inspect ChatFlow conversation scripts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.setup(cmd.ErrOrStderr())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfg.Mode, "mode", a.cfg.Mode, "I/O strategy: blocking or cooperative")
	flags.IntVar(&a.cfg.MaxDepth, "max-depth", a.cfg.MaxDepth, "maximum nested engage depth")
	flags.StringVar(&a.cfg.Tributaries, "tributaries", a.cfg.Tributaries, "tributary manifest (JSON or YAML)")
	flags.StringVar(&a.cfg.DBPath, "db", a.cfg.DBPath, "transcript database path")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level: debug, info, warn, error")
	flags.Uint64Var(&a.seed, "seed", 0, "seed for random_number (0 picks a random seed)")

	rootCmd.AddCommand(
		newRunCmd(a),
		newCheckCmd(a),
		newSimulateCmd(a),
		newMCPCmd(a),
		newScheduleCmd(a),
		newRunsCmd(a),
		newGraphCmd(a),
	)
	return rootCmd
}
