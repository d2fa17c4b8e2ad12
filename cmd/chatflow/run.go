package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/chatflow/internal/console"
	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/internal/validation"
	"github.com/rendis/chatflow/internal/watch"
	"github.com/rendis/chatflow/pkg/flowtest"
	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
)

func newRunCmd(a *app) *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Hold a conversation on the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			flows, err := loadScript(path)
			if err != nil {
				return err
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}

			var extra []runtime.Option
			if record {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()
				extra = append(extra, runtime.WithObserver(store.NewRecorder(st, path, a.cfg.Mode, a.logger)))
			}

			con := console.New(cmd.InOrStdin(), cmd.OutOrStdout(), console.WithLogger(a.logger))
			rt := runtime.New(flows, reg, runtime.ParseMode(a.cfg.Mode, con.Speak, con.Listen), a.runtimeOptions(extra...)...)
			runErr := rt.Run(cmd.Context())
			if record {
				fmt.Fprintf(cmd.ErrOrStderr(), "run %s recorded\n", rt.LastRunID())
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "persist the transcript")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	var watchFile bool
	cmd := &cobra.Command{
		Use:   "check <script>",
		Short: "Parse and validate a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			reg, err := a.registry()
			if err != nil {
				return err
			}
			checker := validation.NewScriptValidator(reg)
			out := cmd.OutOrStdout()

			if !watchFile {
				if !checkFile(out, checker, path) {
					return schema.NewErrorf(schema.ErrCodeValidation, "%s has errors", path)
				}
				return nil
			}

			checkFile(out, checker, path)
			w := watch.New(path, watch.WithLogger(a.logger))
			return w.Run(cmd.Context(), func(p string) {
				fmt.Fprintf(out, "--- %s changed\n", p)
				checkFile(out, checker, p)
			})
		},
	}
	cmd.Flags().BoolVarP(&watchFile, "watch", "w", false, "re-check the script on every save")
	return cmd
}

func newSimulateCmd(a *app) *cobra.Command {
	var (
		inputsJSON string
		record     bool
	)
	cmd := &cobra.Command{
		Use:   "simulate <script>",
		Short: "Run a script against scripted replies and print what it says",
		Example: `  chatflow simulate examples/guess.flow --inputs '["50", "25", null]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			inputs, err := parseInputs(inputsJSON)
			if err != nil {
				return err
			}
			flows, err := loadScript(path)
			if err != nil {
				return err
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}

			var extra []runtime.Option
			if record {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()
				extra = append(extra, runtime.WithObserver(store.NewRecorder(st, path, a.cfg.Mode, a.logger)))
			}

			res, runErr := flowtest.RunFlows(cmd.Context(), flows, inputs, reg,
				flowtest.WithMode(a.cfg.Mode),
				flowtest.WithRuntimeOptions(a.runtimeOptions(extra...)...),
			)
			out := cmd.OutOrStdout()
			for _, line := range res.Spoken {
				fmt.Fprintln(out, line)
			}
			a.logger.Info("simulation finished",
				slog.String("run_id", res.RunID),
				slog.Int("consumed", res.Consumed),
				slog.Bool("terminated", res.Terminated),
			)
			if record {
				fmt.Fprintf(cmd.ErrOrStderr(), "run %s recorded\n", res.RunID)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&inputsJSON, "inputs", "", `JSON array of replies; null is silence, e.g. '["hi", null]'`)
	cmd.Flags().BoolVar(&record, "record", false, "persist the transcript")
	return cmd
}

// --- helpers ---

func loadScript(path string) (*runtime.Flows, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "read script %s", path).WithCause(err)
	}
	return runtime.Load(string(src))
}

// checkFile prints the issues of one script and reports whether it is valid.
func checkFile(out io.Writer, checker *validation.ScriptValidator, path string) bool {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", path, err)
		return false
	}
	script, vr := checker.Validate(string(src))
	for _, issue := range vr.Errors {
		printIssue(out, path, issue)
	}
	for _, issue := range vr.Warnings {
		printIssue(out, path, issue)
	}
	if vr.Valid() {
		fmt.Fprintf(out, "%s: ok (%d flows, %d warnings)\n", path, len(script.Flows), len(vr.Warnings))
	}
	return vr.Valid()
}

func printIssue(out io.Writer, path string, i schema.ValidationIssue) {
	if i.Line > 0 {
		fmt.Fprintf(out, "%s:%d:%d: %s: %s [%s]\n", path, i.Line, i.Column, i.Severity, i.Message, i.Code)
		return
	}
	fmt.Fprintf(out, "%s: %s: %s: %s [%s]\n", path, i.Severity, i.Path, i.Message, i.Code)
}

// parseInputs decodes a JSON array of strings and nulls.
func parseInputs(raw string) ([]*string, error) {
	if raw == "" {
		return nil, nil
	}
	var inputs []*string
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "inputs must be a JSON array of strings and nulls").WithCause(err)
	}
	return inputs, nil
}
