package scheduler

import (
	"context"
	"log/slog"
	"os"

	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/pkg/flowtest"
	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/rendis/chatflow/pkg/tributary"
)

// ScriptRunner runs a job's script against the job's scripted inputs and
// records the run in Store.
type ScriptRunner struct {
	Tributaries *tributary.Registry
	Store       store.Store
	Mode        string
	MaxDepth    int
	Logger      *slog.Logger
}

// RunJob implements Runner.
func (r *ScriptRunner) RunJob(ctx context.Context, job *store.ScheduledJob) (string, error) {
	src, err := os.ReadFile(job.ScriptPath)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeNotFound, "read script %s", job.ScriptPath).WithCause(err)
	}
	flows, err := runtime.Load(string(src))
	if err != nil {
		return "", err
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := r.Mode
	if mode == "" {
		mode = runtime.ModeBlocking
	}
	reg := r.Tributaries
	if reg == nil {
		reg = tributary.NewRegistry()
	}

	rec := store.NewRecorder(r.Store, job.ScriptPath, mode, logger)
	res, err := flowtest.RunFlows(ctx, flows, job.Inputs, reg,
		flowtest.WithMode(mode),
		flowtest.WithRuntimeOptions(
			runtime.WithObserver(rec),
			runtime.WithLogger(logger),
			runtime.WithMaxDepth(r.MaxDepth),
		),
	)
	if res == nil {
		return "", err
	}
	logger.Debug("scheduled run finished",
		slog.String("job_id", job.ID),
		slog.String("run_id", res.RunID),
		slog.Int("spoken", len(res.Spoken)),
	)
	return res.RunID, err
}
