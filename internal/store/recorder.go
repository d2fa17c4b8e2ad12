package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
)

// Recorder is a runtime.Observer that persists every run event. A run row
// is created on run_started and closed on the final run event.
type Recorder struct {
	store  Store
	script string
	mode   string
	logger *slog.Logger
}

// NewRecorder creates a Recorder that labels runs with script and mode.
func NewRecorder(s Store, script, mode string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, script: script, mode: mode, logger: logger}
}

// OnEvent implements runtime.Observer.
func (r *Recorder) OnEvent(ctx context.Context, ev runtime.Event) error {
	if ev.Type == schema.EventRunStarted {
		if err := r.store.CreateRun(ctx, &Run{
			ID:        ev.RunID,
			Script:    r.script,
			EntryFlow: ev.Flow,
			Mode:      r.mode,
			Status:    schema.RunStatusRunning,
			StartedAt: ev.Time,
		}); err != nil {
			return err
		}
	}

	status, final := finalStatus(ev.Type)
	if final {
		// Cancellation ends the run but its last event is still recorded.
		ctx = context.WithoutCancel(ctx)
	}

	if err := r.store.AppendEvent(ctx, &Event{
		RunID:     ev.RunID,
		Type:      ev.Type,
		Flow:      ev.Flow,
		Depth:     ev.Depth,
		Status:    ev.Status,
		Message:   ev.Message,
		Tributary: ev.Tributary,
		Error:     ev.Error,
		Timestamp: ev.Time,
	}); err != nil {
		return err
	}

	if !final {
		return nil
	}
	done := ev.Time
	if done.IsZero() {
		done = time.Now().UTC()
	}
	update := RunUpdate{Status: &status, CompletedAt: &done}
	if ev.Error != "" {
		update.Error = &ev.Error
	}
	// Failing to close the record does not fail the run.
	if err := r.store.UpdateRun(ctx, ev.RunID, update); err != nil {
		r.logger.Error("failed to close run record", slog.String("run_id", ev.RunID), slog.String("error", err.Error()))
	}
	return nil
}

func finalStatus(eventType string) (schema.RunStatus, bool) {
	switch eventType {
	case schema.EventRunCompleted:
		return schema.RunStatusCompleted, true
	case schema.EventRunTerminated:
		return schema.RunStatusTerminated, true
	case schema.EventRunFailed:
		return schema.RunStatusFailed, true
	}
	return "", false
}

var _ runtime.Observer = (*Recorder)(nil)
