package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/chatflow/internal/diagram"
	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/pkg/flowtest"
	"github.com/rendis/chatflow/pkg/parser"
	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
)

// CheckResult is the response of chatflow.check.
type CheckResult struct {
	Valid    bool                     `json:"valid"`
	Flows    []string                 `json:"flows"`
	Errors   []schema.ValidationIssue `json:"errors,omitempty"`
	Warnings []schema.ValidationIssue `json:"warnings,omitempty"`
}

// SimulateResult is the response of chatflow.simulate.
type SimulateResult struct {
	RunID      string                `json:"run_id"`
	Spoken     []string              `json:"spoken"`
	Consumed   int                   `json:"consumed"`
	Terminated bool                  `json:"terminated"`
	Recorded   bool                  `json:"recorded"`
	Error      *schema.ChatflowError `json:"error,omitempty"`
}

// handleCheck parses and validates a script.
func (s *ChatflowServer) handleCheck(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}

	script, vr := s.checker.Validate(source)
	res := CheckResult{
		Valid:    vr.Valid(),
		Flows:    []string{},
		Errors:   vr.Errors,
		Warnings: vr.Warnings,
	}
	if script != nil {
		for _, fl := range script.Flows {
			res.Flows = append(res.Flows, fl.Name)
		}
	}
	return marshalResult(res)
}

// handleSimulate runs a script against scripted inputs. Run failures are
// reported inside the result next to what was spoken before the failure.
// A run is bounded by the server's simulate timeout and spoken-message cap.
func (s *ChatflowServer) handleSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}
	inputs, err := parseInputs(req.GetArguments()["inputs"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode := req.GetString("mode", s.mode)
	record := req.GetBool("record", false)
	if record && s.store == nil {
		return mcp.NewToolResultError("recording requires a transcript store"), nil
	}

	flows, err := runtime.Load(source)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}

	var observers []runtime.Observer
	if record {
		observers = append(observers, store.NewRecorder(s.store, ToolSimulate, mode, s.logger))
	}
	if n := NewSessionNotifier(ctx, s.mcpServer); n != nil {
		observers = append(observers, n)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.simTimeout)
	defer cancel()

	res, runErr := flowtest.RunFlows(runCtx, flows, inputs, s.tributaries,
		flowtest.WithMode(mode),
		flowtest.WithMaxSpoken(s.maxSpoken),
		flowtest.WithRuntimeOptions(
			runtime.WithLogger(s.logger),
			runtime.WithMaxDepth(s.maxDepth),
			runtime.WithObserver(runtime.Observers(observers...)),
		),
	)

	out := SimulateResult{
		RunID:      res.RunID,
		Spoken:     res.Spoken,
		Consumed:   res.Consumed,
		Terminated: res.Terminated,
		Recorded:   record,
	}
	if out.Spoken == nil {
		out.Spoken = []string{}
	}
	if runErr != nil {
		out.Error = asChatflowError(runErr)
	}
	return marshalResult(out)
}

// handleTranscript replays one recorded run, lists recorded runs, or
// queries events of one type.
func (s *ChatflowServer) handleTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no transcript store configured"), nil
	}

	if eventType := req.GetString("event_type", ""); eventType != "" {
		events, err := s.store.GetEventsByType(ctx, eventType, store.EventFilter{
			RunID: req.GetString("run_id", ""),
			Flow:  req.GetString("flow", ""),
			Limit: req.GetInt("limit", 50),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		if events == nil {
			events = []*store.Event{}
		}
		return marshalResult(map[string]any{"events": events})
	}

	if runID := req.GetString("run_id", ""); runID != "" {
		t, err := store.NewEventLog(s.store).Replay(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("transcript lookup failed: %v", err)), nil
		}
		return marshalResult(t)
	}

	filter := store.RunFilter{
		Status: schema.RunStatus(req.GetString("status", "")),
		Limit:  req.GetInt("limit", 50),
	}
	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return marshalResult(map[string]any{"runs": runs})
}

// handleDiagram draws the engage graph of a script in the requested format.
func (s *ChatflowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	script, err := parser.Parse(source)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("parse failed: %v", err)), nil
	}

	var tr *store.Transcript
	if runID := req.GetString("run_id", ""); runID != "" {
		if s.store == nil {
			return mcp.NewToolResultError("no transcript store configured"), nil
		}
		if tr, err = store.NewEventLog(s.store).Replay(ctx, runID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("transcript lookup failed: %v", err)), nil
		}
	}

	model, err := diagram.Build(script, tr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model, diagram.FormatPNG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// --- Internal helpers ---

// parseInputs converts a JSON array of strings and nulls into stub inputs.
func parseInputs(raw any) ([]*string, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("inputs must be an array")
	}
	inputs := make([]*string, len(list))
	for i, v := range list {
		switch val := v.(type) {
		case nil:
		case string:
			inputs[i] = flowtest.Say(val)
		default:
			return nil, fmt.Errorf("inputs[%d] must be a string or null, got %T", i, v)
		}
	}
	return inputs, nil
}

func asChatflowError(err error) *schema.ChatflowError {
	var ce *schema.ChatflowError
	if errors.As(err, &ce) {
		return ce
	}
	return schema.NewError(schema.ErrCodeIO, err.Error()).WithCause(err)
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
