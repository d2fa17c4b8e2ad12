// Package runtime executes parsed ChatFlow scripts.
//
// A Runtime walks the AST of one flow at a time on the caller's goroutine.
// Nested `engage` calls use an explicit, depth-checked call stack, `end`
// unwinds every active block, loop and flow, and all exchanges with the
// conversation partner go through an IO strategy.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/chatflow/internal/logging"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/rendis/chatflow/pkg/tributary"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxDepth bounds the engage call stack. Values below 1 keep the default.
func WithMaxDepth(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithObserver receives every run event.
func WithObserver(o Observer) Option {
	return func(r *Runtime) { r.observer = o }
}

// WithRunID fixes the id of the next runs instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runtime) { r.runID = id }
}

// Runtime executes flows of one script. Runs on the same Runtime are
// serialized; create one Runtime per concurrent conversation and share the
// Flows and tributary Registry between them.
type Runtime struct {
	flows       *Flows
	tributaries *tributary.Registry
	io          IO
	logger      *slog.Logger
	maxDepth    int
	observer    Observer
	runID       string
	eval        *evaluator
	fsm         *InvocationFSM

	mu         sync.Mutex
	terminated bool
	lastRunID  string
}

// New creates a Runtime. A nil registry behaves as an empty one and a nil
// io is Blocking with no-op functions.
func New(flows *Flows, tributaries *tributary.Registry, io IO, opts ...Option) *Runtime {
	r := &Runtime{
		flows:       flows,
		tributaries: tributaries,
		io:          io,
		logger:      slog.Default(),
		maxDepth:    DefaultMaxDepth,
		eval:        newEvaluator(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tributaries == nil {
		r.tributaries = tributary.NewRegistry()
	}
	if r.io == nil {
		r.io = Blocking(nil, nil)
	}
	r.fsm = NewInvocationFSM(r.observer)
	return r
}

// FSM exposes the invocation state machine so callers can attach hooks.
func (r *Runtime) FSM() *InvocationFSM { return r.fsm }

// Flows returns the flows this runtime executes.
func (r *Runtime) Flows() *Flows { return r.flows }

// Run executes the origin flow with a nil parameter.
func (r *Runtime) Run(ctx context.Context) error {
	return r.RunFlow(ctx, Origin, nil)
}

// RunFlow executes the named flow with param as its initial parameter.
// It returns nil when the flow completes or an `end` statement terminates
// the run, and the first fatal error otherwise.
func (r *Runtime) RunFlow(ctx context.Context, name string, param any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.runID
	if id == "" {
		id = uuid.NewString()
	}
	r.lastRunID = id
	r.terminated = false

	ctx = logging.WithRunID(ctx, id)
	log := logging.LogWith(ctx, r.logger)

	ex := &execution{
		rt:    r,
		id:    id,
		stack: newCallStack(r.maxDepth),
	}

	start := time.Now()
	log.Info("run started", slog.String("flow", name), slog.String("mode", r.io.Mode()))
	if err := ex.emit(ctx, Event{Type: schema.EventRunStarted, Flow: name}); err != nil {
		return err
	}

	out, err := ex.engage(ctx, name, param)
	if err != nil {
		log.Error("run failed", slog.String("error", err.Error()), slog.Duration("elapsed", time.Since(start)))
		// The run error wins over an observer failure.
		_ = ex.emit(ctx, Event{Type: schema.EventRunFailed, Flow: name, Error: err.Error()})
		return err
	}

	r.terminated = out == outcomeTerminate
	evType := schema.EventRunCompleted
	if r.terminated {
		evType = schema.EventRunTerminated
	}
	log.Info("run finished", slog.Bool("terminated", r.terminated), slog.Duration("elapsed", time.Since(start)))
	return ex.emit(ctx, Event{Type: evType, Flow: name})
}

// Terminated reports whether the last run ended through an `end` statement.
func (r *Runtime) Terminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminated
}

// LastRunID returns the id of the most recent run.
func (r *Runtime) LastRunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRunID
}

// cancelled converts a context error into CANCELLED.
func cancelled(err error) *schema.ChatflowError {
	msg := "run cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "run deadline exceeded"
	}
	return schema.NewError(schema.ErrCodeCancelled, msg).WithCause(err)
}
