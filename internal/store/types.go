package store

import (
	"time"

	"github.com/rendis/chatflow/pkg/schema"
)

// Run is the persisted summary of one conversation run.
type Run struct {
	ID          string           `json:"id"`
	Script      string           `json:"script,omitempty"`
	EntryFlow   string           `json:"entry_flow"`
	Mode        string           `json:"mode"`
	Status      schema.RunStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Event is an immutable transcript entry of a run.
type Event struct {
	ID        int64                   `json:"id"`
	RunID     string                  `json:"run_id"`
	Sequence  int64                   `json:"sequence"`
	Type      string                  `json:"event_type"`
	Flow      string                  `json:"flow,omitempty"`
	Depth     int                     `json:"depth"`
	Status    schema.InvocationStatus `json:"status,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Tributary string                  `json:"tributary,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// ScheduledJob is a cron-triggered run of a script. Inputs are fed to the
// script's listen statements in order; a nil entry simulates silence.
type ScheduledJob struct {
	ID             string     `json:"id"`
	Name           string     `json:"name,omitempty"`
	ScriptPath     string     `json:"script_path"`
	CronExpression string     `json:"cron_expression"`
	Inputs         []*string  `json:"inputs,omitempty"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	LastRunID      string     `json:"last_run_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// --- Update and filter types ---

// RunUpdate specifies mutable fields of a run.
type RunUpdate struct {
	Status      *schema.RunStatus
	Error       *string
	CompletedAt *time.Time
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status schema.RunStatus
	Script string
	Since  *time.Time
	Limit  int
	Offset int
}

// EventFilter specifies criteria for querying events by type.
type EventFilter struct {
	RunID string
	Flow  string
	Since *time.Time
	Limit int
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool
	LastRunAt     *time.Time
	NextRunAt     *time.Time
	LastRunStatus string
	LastRunID     string
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled *bool
	Limit   int
}
