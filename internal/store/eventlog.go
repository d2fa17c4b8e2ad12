package store

import (
	"context"
	"fmt"

	"github.com/rendis/chatflow/pkg/schema"
)

// EventLog provides transcript operations on top of a Store.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store to provide transcript operations.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// Speakers of transcript lines.
const (
	SpeakerBot  = "bot"
	SpeakerUser = "user"
)

// Line is one utterance in a transcript.
type Line struct {
	Sequence int64  `json:"sequence"`
	Speaker  string `json:"speaker"`
	Text     string `json:"text,omitempty"`
	Flow     string `json:"flow,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Transcript is a run reconstructed from its events.
type Transcript struct {
	RunID     string           `json:"run_id"`
	Status    schema.RunStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
	Lines     []Line           `json:"lines"`
	Flows     []string         `json:"flows"`
	Handovers []string         `json:"handovers,omitempty"`
}

// Spoken returns the bot's messages in order.
func (t *Transcript) Spoken() []string {
	var out []string
	for _, l := range t.Lines {
		if l.Speaker == SpeakerBot {
			out = append(out, l.Text)
		}
	}
	return out
}

// Replay reconstructs the transcript of a run from its events.
// Returns an error if sequence gaps are detected.
func (el *EventLog) Replay(ctx context.Context, runID string) (*Transcript, error) {
	events, err := el.store.GetEvents(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	// Validate sequence contiguity.
	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in run %s: expected %d, got %d", runID, expected, e.Sequence)
		}
	}

	t := &Transcript{RunID: runID, Lines: []Line{}, Flows: []string{}}
	for _, e := range events {
		switch e.Type {
		case schema.EventRunStarted:
			t.Status = schema.RunStatusRunning
		case schema.EventRunCompleted:
			t.Status = schema.RunStatusCompleted
		case schema.EventRunTerminated:
			t.Status = schema.RunStatusTerminated
		case schema.EventRunFailed:
			t.Status = schema.RunStatusFailed
			t.Error = e.Error
		case schema.EventFlowEntered:
			t.Flows = append(t.Flows, e.Flow)
		case schema.EventSpoke:
			t.Lines = append(t.Lines, Line{Sequence: e.Sequence, Speaker: SpeakerBot, Text: e.Message, Flow: e.Flow})
		case schema.EventHeard:
			t.Lines = append(t.Lines, Line{Sequence: e.Sequence, Speaker: SpeakerUser, Text: e.Message, Flow: e.Flow})
		case schema.EventListenTimedOut:
			t.Lines = append(t.Lines, Line{Sequence: e.Sequence, Speaker: SpeakerUser, Flow: e.Flow, TimedOut: true})
		case schema.EventHandover:
			t.Handovers = append(t.Handovers, e.Tributary)
		}
	}

	if t.Status == "" {
		if _, err := el.store.GetRun(ctx, runID); err != nil {
			return nil, err
		}
	}
	return t, nil
}
