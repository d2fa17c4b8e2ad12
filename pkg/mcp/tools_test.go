package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/pkg/flow"
	"github.com/rendis/chatflow/pkg/flowtest"
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
}`

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRegistry() *tributary.Registry {
	reg := tributary.NewRegistry()
	reg.MustRegister("double", func(_ context.Context, fc *flow.Context, _ flow.SpeakFunc, _ flow.ListenFunc) error {
		n, _ := fc.Parameter().(int64)
		fc.SetParameter(n * 2)
		return nil
	})
	return reg
}

// --- Helper ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// --- chatflow.check ---

func TestCheckTool(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleCheck(context.Background(), buildRequest(ToolCheck, map[string]any{"source": greetScript}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var res CheckResult
	unmarshalResult(t, result, &res)
	assert.True(t, res.Valid)
	assert.Equal(t, []string{"origin", "greet"}, res.Flows)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestCheckToolWarnings(t *testing.T) {
	s := NewServer(ServerDeps{Tributaries: newRegistry()})

	src := `flow origin {
	engage gret
	handover triple
}
flow greet { speak "hi" }`
	result, err := s.handleCheck(context.Background(), buildRequest(ToolCheck, map[string]any{"source": src}))
	require.NoError(t, err)

	var res CheckResult
	unmarshalResult(t, result, &res)
	assert.True(t, res.Valid, "warnings do not invalidate a script")

	codes := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, schema.ErrCodeUnknownFlow)
	assert.Contains(t, codes, schema.ErrCodeUnknownTributary)
}

func TestCheckToolParseError(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleCheck(context.Background(), buildRequest(ToolCheck, map[string]any{"source": `flow origin { speak }`}))
	require.NoError(t, err)

	var res CheckResult
	unmarshalResult(t, result, &res)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, schema.ErrCodeParse, res.Errors[0].Code)
	assert.Positive(t, res.Errors[0].Line)
	assert.Empty(t, res.Flows)
}

func TestCheckToolMissingSource(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleCheck(context.Background(), buildRequest(ToolCheck, map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- chatflow.simulate ---

func TestSimulateTool(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleSimulate(context.Background(), buildRequest(ToolSimulate, map[string]any{
		"source": greetScript,
		"inputs": []any{"Ada"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var res SimulateResult
	unmarshalResult(t, result, &res)
	assert.Equal(t, []string{"What is your name?", "Hello Ada"}, res.Spoken)
	assert.Equal(t, 1, res.Consumed)
	assert.False(t, res.Terminated)
	assert.False(t, res.Recorded)
	assert.NotEmpty(t, res.RunID)
	assert.Nil(t, res.Error)
}

func TestSimulateToolSilence(t *testing.T) {
	s := NewServer(ServerDeps{})

	for _, mode := range []string{"blocking", "cooperative"} {
		t.Run(mode, func(t *testing.T) {
			result, err := s.handleSimulate(context.Background(), buildRequest(ToolSimulate, map[string]any{
				"source": greetScript,
				"inputs": []any{nil},
				"mode":   mode,
			}))
			require.NoError(t, err)

			var res SimulateResult
			unmarshalResult(t, result, &res)
			assert.Equal(t, []string{"What is your name?", "Too slow"}, res.Spoken)
			assert.True(t, res.Terminated)
		})
	}
}

func TestSimulateToolHandover(t *testing.T) {
	s := NewServer(ServerDeps{Tributaries: newRegistry()})

	src := `flow origin {
	store 5
	handover double
	fetch y
	speak y
}`
	result, err := s.handleSimulate(context.Background(), buildRequest(ToolSimulate, map[string]any{"source": src}))
	require.NoError(t, err)

	var res SimulateResult
	unmarshalResult(t, result, &res)
	assert.Equal(t, []string{"10"}, res.Spoken)
}

func TestSimulateToolRunFailure(t *testing.T) {
	s := NewServer(ServerDeps{})

	src := `flow origin {
	speak "before"
	handover missing
	speak "after"
}`
	result, err := s.handleSimulate(context.Background(), buildRequest(ToolSimulate, map[string]any{"source": src}))
	require.NoError(t, err)
	require.False(t, result.IsError, "run failures are reported in the result")

	var res SimulateResult
	unmarshalResult(t, result, &res)
	assert.Equal(t, []string{"before"}, res.Spoken)
	require.NotNil(t, res.Error)
	assert.Equal(t, schema.ErrCodeUnknownTributary, res.Error.Code)
}

func TestSimulateToolDeadline(t *testing.T) {
	s := NewServer(ServerDeps{SimulateTimeout: 50 * time.Millisecond})

	start := time.Now()
	result, err := s.handleSimulate(context.Background(), buildRequest(ToolSimulate, map[string]any{
		"source": `flow origin { speak "spinning" while true { 1 to x } }`,
	}))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var res SimulateResult
	unmarshalResult(t, result, &res)
	assert.Equal(t, []string{"spinning"}, res.Spoken)
	require.NotNil(t, res.Error)
	assert.Equal(t, schema.ErrCodeCancelled, res.Error.Code)
}

func TestSimulateToolSpokenCap(t *testing.T) {
	s := NewServer(ServerDeps{MaxSpoken: 4})

	result, err := s.handleSimulate(context.Background(), buildRequest(ToolSimulate, map[string]any{
		"source": `flow origin { while true { speak "x" } }`,
	}))
	require.NoError(t, err)

	var res SimulateResult
	unmarshalResult(t, result, &res)
	assert.Len(t, res.Spoken, 4)
	require.NotNil(t, res.Error)
	assert.Equal(t, schema.ErrCodeIO, res.Error.Code)
}

func TestNewServerSimulateDefaults(t *testing.T) {
	s := NewServer(ServerDeps{})
	assert.Equal(t, DefaultSimulateTimeout, s.simTimeout)
	assert.Equal(t, DefaultMaxSpoken, s.maxSpoken)
}

func TestSimulateToolLoadFailure(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleSimulate(context.Background(), buildRequest(ToolSimulate, map[string]any{
		"source": `flow greet { speak "hi" }`,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "UNKNOWN_FLOW")
}

func TestSimulateToolBadInputs(t *testing.T) {
	s := NewServer(ServerDeps{})

	for name, inputs := range map[string]any{
		"not an array": "Ada",
		"number entry": []any{"Ada", 3.0},
	} {
		t.Run(name, func(t *testing.T) {
			result, err := s.handleSimulate(context.Background(), buildRequest(ToolSimulate, map[string]any{
				"source": greetScript,
				"inputs": inputs,
			}))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

func TestSimulateToolRecordWithoutStore(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleSimulate(context.Background(), buildRequest(ToolSimulate, map[string]any{
		"source": greetScript,
		"record": true,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- chatflow.transcript ---

func TestSimulateRecordAndTranscript(t *testing.T) {
	st := newTestStore(t)
	s := NewServer(ServerDeps{Store: st})
	ctx := context.Background()

	result, err := s.handleSimulate(ctx, buildRequest(ToolSimulate, map[string]any{
		"source": greetScript,
		"inputs": []any{"Ada"},
		"record": true,
	}))
	require.NoError(t, err)
	var sim SimulateResult
	unmarshalResult(t, result, &sim)
	require.True(t, sim.Recorded)

	result, err = s.handleTranscript(ctx, buildRequest(ToolTranscript, map[string]any{"run_id": sim.RunID}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var tr store.Transcript
	unmarshalResult(t, result, &tr)
	assert.Equal(t, schema.RunStatusCompleted, tr.Status)
	assert.Equal(t, []string{"origin", "greet"}, tr.Flows)
	assert.Equal(t, []string{"What is your name?", "Hello Ada"}, tr.Spoken())

	result, err = s.handleTranscript(ctx, buildRequest(ToolTranscript, map[string]any{"status": "completed"}))
	require.NoError(t, err)
	var listed struct {
		Runs []*store.Run `json:"runs"`
	}
	unmarshalResult(t, result, &listed)
	require.Len(t, listed.Runs, 1)
	assert.Equal(t, sim.RunID, listed.Runs[0].ID)
	assert.Equal(t, ToolSimulate, listed.Runs[0].Script)

	result, err = s.handleTranscript(ctx, buildRequest(ToolTranscript, map[string]any{"status": "failed"}))
	require.NoError(t, err)
	unmarshalResult(t, result, &listed)
	assert.Empty(t, listed.Runs)
}

func TestTranscriptToolEventType(t *testing.T) {
	st := newTestStore(t)
	s := NewServer(ServerDeps{Store: st})
	ctx := context.Background()

	var runIDs []string
	for _, name := range []string{"Ada", "Grace"} {
		result, err := s.handleSimulate(ctx, buildRequest(ToolSimulate, map[string]any{
			"source": greetScript,
			"inputs": []any{name},
			"record": true,
		}))
		require.NoError(t, err)
		var sim SimulateResult
		unmarshalResult(t, result, &sim)
		runIDs = append(runIDs, sim.RunID)
	}

	var got struct {
		Events []*store.Event `json:"events"`
	}
	result, err := s.handleTranscript(ctx, buildRequest(ToolTranscript, map[string]any{"event_type": schema.EventHeard}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	unmarshalResult(t, result, &got)
	require.Len(t, got.Events, 2)
	assert.Equal(t, "Grace", got.Events[0].Message, "newest first")

	result, err = s.handleTranscript(ctx, buildRequest(ToolTranscript, map[string]any{
		"event_type": schema.EventSpoke,
		"run_id":     runIDs[0],
		"flow":       "greet",
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &got)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "Hello Ada", got.Events[0].Message)

	result, err = s.handleTranscript(ctx, buildRequest(ToolTranscript, map[string]any{"event_type": schema.EventHandover}))
	require.NoError(t, err)
	unmarshalResult(t, result, &got)
	assert.Empty(t, got.Events)
}

func TestTranscriptToolUnknownRun(t *testing.T) {
	s := NewServer(ServerDeps{Store: newTestStore(t)})

	result, err := s.handleTranscript(context.Background(), buildRequest(ToolTranscript, map[string]any{"run_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestTranscriptToolNoStore(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleTranscript(context.Background(), buildRequest(ToolTranscript, map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestParseInputs(t *testing.T) {
	inputs, err := parseInputs(nil)
	require.NoError(t, err)
	assert.Nil(t, inputs)

	inputs, err = parseInputs([]any{"a", nil, "b"})
	require.NoError(t, err)
	assert.Equal(t, []*string{flowtest.Say("a"), nil, flowtest.Say("b")}, inputs)
}

// --- chatflow.diagram ---

func TestDiagramTool(t *testing.T) {
	s := NewServer(ServerDeps{})
	ctx := context.Background()

	result, err := s.handleDiagram(ctx, buildRequest(ToolDiagram, map[string]any{
		"source": greetScript,
		"format": "mermaid",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "flow_origin -->|engage| flow_greet")

	result, err = s.handleDiagram(ctx, buildRequest(ToolDiagram, map[string]any{
		"source": greetScript,
		"format": "ascii",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(t, result), "origin ─end→ End")
}

func TestDiagramToolRunOverlay(t *testing.T) {
	s := NewServer(ServerDeps{Store: newTestStore(t)})
	ctx := context.Background()

	result, err := s.handleSimulate(ctx, buildRequest(ToolSimulate, map[string]any{
		"source": greetScript,
		"inputs": []any{"Ada"},
		"record": true,
	}))
	require.NoError(t, err)
	var sim SimulateResult
	unmarshalResult(t, result, &sim)

	result, err = s.handleDiagram(ctx, buildRequest(ToolDiagram, map[string]any{
		"source": greetScript,
		"format": "ascii",
		"run_id": sim.RunID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "[OK]")
}

func TestDiagramToolErrors(t *testing.T) {
	s := NewServer(ServerDeps{})
	ctx := context.Background()

	for name, args := range map[string]map[string]any{
		"missing source": {"format": "ascii"},
		"bad format":     {"source": greetScript, "format": "gif"},
		"parse error":    {"source": "flow origin {", "format": "ascii"},
		"run no store":   {"source": greetScript, "format": "ascii", "run_id": "r"},
	} {
		t.Run(name, func(t *testing.T) {
			result, err := s.handleDiagram(ctx, buildRequest(ToolDiagram, args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
