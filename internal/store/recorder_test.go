package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/chatflow/pkg/flow"
	"github.com/rendis/chatflow/pkg/flowtest"
	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/rendis/chatflow/pkg/tributary"
)

const greetScript = `
flow origin {
	speak "What is your name?"
	listen for name for 5 s
	if timeout {
		speak "Too slow"
		end
	}
	engage greet
}
flow greet {
	speak "Hello " + name
	handover noop
}`

func recordRun(t *testing.T, s Store, inputs []*string) (*flowtest.Result, error) {
	t.Helper()
	reg := tributary.NewRegistry()
	reg.MustRegister("noop", func(context.Context, *flow.Context, flow.SpeakFunc, flow.ListenFunc) error { return nil })

	rec := NewRecorder(s, "greet.flow", runtime.ModeBlocking, nil)
	return flowtest.Run(context.Background(), greetScript, inputs, reg,
		flowtest.WithRuntimeOptions(runtime.WithObserver(rec)))
}

func TestRecorder_CompletedRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := recordRun(t, s, flowtest.Inputs("Ada"))
	require.NoError(t, err)

	run, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, "greet.flow", run.Script)
	assert.Equal(t, runtime.Origin, run.EntryFlow)
	assert.NotNil(t, run.CompletedAt)

	tr, err := NewEventLog(s).Replay(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, tr.Status)
	assert.Equal(t, res.Spoken, tr.Spoken())
	assert.Equal(t, []string{"origin", "greet"}, tr.Flows)
	assert.Equal(t, []string{"noop"}, tr.Handovers)

	var heard []string
	for _, l := range tr.Lines {
		if l.Speaker == SpeakerUser {
			heard = append(heard, l.Text)
		}
	}
	assert.Equal(t, []string{"Ada"}, heard)
}

func TestRecorder_TerminatedRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := recordRun(t, s, []*string{nil})
	require.NoError(t, err)
	assert.True(t, res.Terminated)

	run, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusTerminated, run.Status)

	tr, err := NewEventLog(s).Replay(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, []string{"What is your name?", "Too slow"}, tr.Spoken())
	timedOut := false
	for _, l := range tr.Lines {
		timedOut = timedOut || l.TimedOut
	}
	assert.True(t, timedOut)
}

func TestRecorder_FailedRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := flowtest.Run(ctx, `flow origin { speak "x" handover missing }`, nil, tributary.NewRegistry(),
		flowtest.WithRuntimeOptions(runtime.WithObserver(NewRecorder(s, "", runtime.ModeBlocking, nil))))
	require.Error(t, err)

	run, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, schema.ErrCodeUnknownTributary)
}

func TestReplay_UnknownRun(t *testing.T) {
	_, err := NewEventLog(newTestStore(t)).Replay(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
