// Package mcp exposes ChatFlow over the Model Context Protocol so an agent
// can check scripts, simulate conversations and read stored transcripts.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/internal/validation"
	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/rendis/chatflow/pkg/tributary"
)

// Tool names.
const (
	ToolCheck      = "chatflow.check"
	ToolSimulate   = "chatflow.simulate"
	ToolTranscript = "chatflow.transcript"
	ToolDiagram    = "chatflow.diagram"
)

// Limits applied to chatflow.simulate when ServerDeps leaves them unset.
const (
	DefaultSimulateTimeout = 30 * time.Second
	DefaultMaxSpoken       = 1000
)

// ServerDeps holds the dependencies for creating a ChatflowServer.
// Store may be nil, in which case nothing is recorded and
// chatflow.transcript reports an error.
type ServerDeps struct {
	Tributaries     *tributary.Registry
	Store           store.Store
	Mode            string
	MaxDepth        int
	SimulateTimeout time.Duration
	MaxSpoken       int
	Logger          *slog.Logger
}

// ChatflowServer wraps an MCP server with ChatFlow tool handlers.
type ChatflowServer struct {
	tributaries *tributary.Registry
	store       store.Store
	checker     *validation.ScriptValidator
	mode        string
	maxDepth    int
	simTimeout  time.Duration
	maxSpoken   int
	logger      *slog.Logger
	mcpServer   *server.MCPServer
}

// NewServer creates a ChatflowServer with every tool registered.
func NewServer(deps ServerDeps) *ChatflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	reg := deps.Tributaries
	if reg == nil {
		reg = tributary.NewRegistry()
	}
	mode := deps.Mode
	if mode == "" {
		mode = runtime.ModeBlocking
	}
	simTimeout := deps.SimulateTimeout
	if simTimeout <= 0 {
		simTimeout = DefaultSimulateTimeout
	}
	maxSpoken := deps.MaxSpoken
	if maxSpoken <= 0 {
		maxSpoken = DefaultMaxSpoken
	}

	s := &ChatflowServer{
		tributaries: reg,
		store:       deps.Store,
		checker:     validation.NewScriptValidator(reg),
		mode:        mode,
		maxDepth:    deps.MaxDepth,
		simTimeout:  simTimeout,
		maxSpoken:   maxSpoken,
		logger:      logger,
	}

	mcpSrv := server.NewMCPServer(
		"chatflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("ChatFlow runs scripted conversations. Use chatflow.check to validate a script, chatflow.simulate to run it against scripted user replies, chatflow.transcript to read recorded runs, and chatflow.diagram to see which flows engage which."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *ChatflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ChatflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *ChatflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: checkTool(), Handler: s.handleCheck},
		{Tool: simulateTool(), Handler: s.handleSimulate},
		{Tool: transcriptTool(), Handler: s.handleTranscript},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func checkTool() mcp.Tool {
	return mcp.NewTool(ToolCheck,
		mcp.WithDescription("Parse and validate a ChatFlow script"),
		mcp.WithString("source", mcp.Required(), mcp.Description("ChatFlow script source")),
	)
}

func simulateTool() mcp.Tool {
	return mcp.NewTool(ToolSimulate,
		mcp.WithDescription("Run a ChatFlow script against scripted user replies and return what it said"),
		mcp.WithString("source", mcp.Required(), mcp.Description("ChatFlow script source")),
		mcp.WithArray("inputs",
			mcp.Description("User replies consumed by listen statements in order; null means the user stayed silent"),
			mcp.Items(map[string]any{"type": []string{"string", "null"}}),
		),
		mcp.WithString("mode",
			mcp.Enum(runtime.ModeBlocking, runtime.ModeCooperative),
			mcp.Description("I/O strategy (default: server setting)"),
		),
		mcp.WithBoolean("record", mcp.Description("Persist the run so chatflow.transcript can read it")),
	)
}

func transcriptTool() mcp.Tool {
	return mcp.NewTool(ToolTranscript,
		mcp.WithDescription("Read the transcript of a recorded run, or list recorded runs"),
		mcp.WithString("run_id", mcp.Description("Run to replay; omit to list runs")),
		mcp.WithString("status",
			mcp.Enum("running", "completed", "terminated", "failed"),
			mcp.Description("Filter listed runs by status"),
		),
		mcp.WithString("event_type",
			mcp.Enum(
				schema.EventSpoke, schema.EventHeard, schema.EventListenTimedOut, schema.EventHandover,
				schema.EventFlowEntered, schema.EventFlowFailed, schema.EventRunFailed, schema.EventRunTerminated,
			),
			mcp.Description("Return matching events, newest first, instead of runs; combines with run_id and flow"),
		),
		mcp.WithString("flow", mcp.Description("Restrict event_type results to one flow")),
		mcp.WithNumber("limit", mcp.Description("Maximum runs or events to return (default: 50)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool(ToolDiagram,
		mcp.WithDescription("Draw which flows a script engages and which tributaries it hands over to. Returns ASCII art, Mermaid flowchart syntax, or base64-encoded PNG image"),
		mcp.WithString("source", mcp.Required(), mcp.Description("ChatFlow script source")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (base64 PNG)"),
		),
		mcp.WithString("run_id", mcp.Description("Overlay what this recorded run visited")),
	)
}
