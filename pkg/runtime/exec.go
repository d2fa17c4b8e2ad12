package runtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rendis/chatflow/internal/logging"
	"github.com/rendis/chatflow/pkg/ast"
	"github.com/rendis/chatflow/pkg/flow"
	"github.com/rendis/chatflow/pkg/schema"
)

// outcome tells the enclosing construct how to proceed after a statement.
type outcome int

const (
	outcomeContinue  outcome = iota // run the next statement
	outcomeReturn                   // an engaged flow completed; the caller continues
	outcomeTerminate                // `end` was reached; unwind to the run
)

// execution is the state of a single run.
type execution struct {
	rt    *Runtime
	id    string
	stack *callStack
}

func (ex *execution) emit(ctx context.Context, ev Event) error {
	if ex.rt.observer == nil {
		return nil
	}
	ev.RunID = ex.id
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if err := ex.rt.observer.OnEvent(ctx, ev); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "emit %s event: %s", ev.Type, err.Error()).WithCause(err)
	}
	return nil
}

func (ex *execution) transition(ctx context.Context, inv *invocation, to schema.InvocationStatus) error {
	if err := ex.rt.fsm.Transition(ctx, ex.id, inv.flow, inv.depth, inv.status, to); err != nil {
		return err
	}
	inv.status = to
	return nil
}

// engage runs a flow invocation on a fresh Context seeded with param.
func (ex *execution) engage(ctx context.Context, name string, param any) (outcome, error) {
	fl, err := ex.rt.flows.Lookup(name)
	if err != nil {
		return outcomeContinue, err
	}

	inv := &invocation{flow: name, fc: flow.NewContext(name, param), status: schema.InvocationPending}
	if err := ex.stack.push(inv); err != nil {
		return outcomeContinue, err
	}
	defer ex.stack.pop()

	ctx = logging.WithFlow(ctx, name)
	log := logging.LogWith(ctx, ex.rt.logger)
	log.Debug("flow entered", slog.Int("depth", inv.depth))

	if err := ex.transition(ctx, inv, schema.InvocationRunning); err != nil {
		return outcomeContinue, err
	}

	out, err := ex.execBlock(ctx, inv, fl.Body)
	if err != nil {
		var cfErr *schema.ChatflowError
		if errors.As(err, &cfErr) {
			cfErr.WithFlow(name)
			if cfErr.Details == nil {
				cfErr.Details = map[string]any{}
			}
			if _, ok := cfErr.Details["stack"]; !ok {
				cfErr.Details["stack"] = ex.stack.trace()
			}
		}
		if terr := ex.transition(ctx, inv, schema.InvocationFailed); terr != nil {
			log.Warn("record flow failure", slog.String("error", terr.Error()))
		}
		return outcomeContinue, err
	}

	if out == outcomeTerminate {
		log.Debug("flow exited")
		return outcomeTerminate, ex.transition(ctx, inv, schema.InvocationExited)
	}
	log.Debug("flow returned")
	return outcomeReturn, ex.transition(ctx, inv, schema.InvocationReturned)
}

// execBlock runs statements inside a new scope frame. The frame is popped
// however the block is left.
func (ex *execution) execBlock(ctx context.Context, inv *invocation, block *ast.Block) (outcome, error) {
	inv.fc.PushScope()
	defer inv.fc.PopScope()

	for _, stmt := range block.Statements {
		if err := ctx.Err(); err != nil {
			return outcomeContinue, cancelled(err).WithPos(stmt.Position().Line, stmt.Position().Column)
		}
		out, err := ex.execStmt(ctx, inv, stmt)
		if err != nil {
			return outcomeContinue, atPos(err, stmt.Position())
		}
		if out == outcomeTerminate {
			return outcomeTerminate, nil
		}
	}
	return outcomeContinue, nil
}

func (ex *execution) execStmt(ctx context.Context, inv *invocation, stmt ast.Statement) (outcome, error) {
	fc := inv.fc
	ev := ex.rt.eval

	switch s := stmt.(type) {
	case *ast.Block:
		return ex.execBlock(ctx, inv, s)

	case *ast.If:
		for branch := s; branch != nil; branch = branch.ElseIf {
			ok, err := ev.cond(fc, branch.Cond)
			if err != nil {
				return outcomeContinue, atPos(err, branch.Pos)
			}
			if ok {
				return ex.execBlock(ctx, inv, branch.Then)
			}
			if branch.ElseBlock != nil {
				return ex.execBlock(ctx, inv, branch.ElseBlock)
			}
		}
		return outcomeContinue, nil

	case *ast.While:
		for {
			if err := ctx.Err(); err != nil {
				return outcomeContinue, cancelled(err)
			}
			ok, err := ev.cond(fc, s.Cond)
			if err != nil || !ok {
				return outcomeContinue, err
			}
			out, err := ex.execBlock(ctx, inv, s.Body)
			if err != nil || out == outcomeTerminate {
				return out, err
			}
		}

	case *ast.Speak:
		var b strings.Builder
		for _, part := range s.Parts {
			v, err := ev.eval(fc, part)
			if err != nil {
				return outcomeContinue, err
			}
			b.WriteString(flow.Stringify(v))
		}
		return outcomeContinue, ex.speak(ctx, inv, b.String())

	case *ast.Listen:
		return outcomeContinue, ex.listenStmt(ctx, inv, s)

	case *ast.Assign:
		v, err := ev.eval(fc, s.Expr)
		if err != nil {
			return outcomeContinue, err
		}
		fc.SetVariable(s.Var, v)
		return outcomeContinue, nil

	case *ast.Store:
		v, err := ev.eval(fc, s.Value)
		if err != nil {
			return outcomeContinue, err
		}
		fc.SetParameter(v)
		return outcomeContinue, nil

	case *ast.Fetch:
		fc.SetVariable(s.Var, fc.Parameter())
		return outcomeContinue, nil

	case *ast.Engage:
		out, err := ex.engage(ctx, s.Flow, fc.Parameter())
		if err != nil {
			return outcomeContinue, err
		}
		if out == outcomeTerminate {
			return outcomeTerminate, nil
		}
		return outcomeContinue, nil

	case *ast.Handover:
		return outcomeContinue, ex.handover(ctx, inv, s.Tributary)

	case *ast.End:
		return outcomeTerminate, nil
	}

	return outcomeContinue, schema.NewErrorf(schema.ErrCodeValidation, "unsupported statement %T", stmt)
}

func (ex *execution) speak(ctx context.Context, inv *invocation, message string) error {
	if err := ex.rt.io.Speak(ctx, message); err != nil {
		return ioError(ctx, "speak", err)
	}
	return ex.emit(ctx, Event{Type: schema.EventSpoke, Flow: inv.flow, Depth: inv.depth, Message: message})
}

// hear reads one input and reports it. timedOut is true only for a bounded
// listen that produced no value.
func (ex *execution) hear(ctx context.Context, inv *invocation, timeout time.Duration) (value any, timedOut bool, err error) {
	v, ok, err := ex.rt.io.Listen(ctx, timeout)
	if err != nil {
		return nil, false, ioError(ctx, "listen", err)
	}
	if !ok {
		if timeout > 0 {
			logging.LogWith(ctx, ex.rt.logger).Debug("listen timed out", slog.Duration("timeout", timeout))
			return nil, true, ex.emit(ctx, Event{Type: schema.EventListenTimedOut, Flow: inv.flow, Depth: inv.depth})
		}
		return nil, false, ex.emit(ctx, Event{Type: schema.EventHeard, Flow: inv.flow, Depth: inv.depth})
	}
	return v, false, ex.emit(ctx, Event{Type: schema.EventHeard, Flow: inv.flow, Depth: inv.depth, Message: v})
}

func (ex *execution) listenStmt(ctx context.Context, inv *invocation, s *ast.Listen) error {
	fc := inv.fc

	var timeout time.Duration
	if s.Timeout != nil {
		d, err := ex.rt.eval.duration(fc, s.Timeout)
		if err != nil {
			return err
		}
		if d <= 0 {
			fc.SetTimeout(true)
			return ex.emit(ctx, Event{Type: schema.EventListenTimedOut, Flow: inv.flow, Depth: inv.depth})
		}
		timeout = d
	}

	if err := ex.transition(ctx, inv, schema.InvocationSuspended); err != nil {
		return err
	}
	if err := ex.emit(ctx, Event{Type: schema.EventListenStarted, Flow: inv.flow, Depth: inv.depth}); err != nil {
		return err
	}

	value, timedOut, err := ex.hear(ctx, inv, timeout)
	if err != nil {
		return err
	}
	if err := ex.transition(ctx, inv, schema.InvocationRunning); err != nil {
		return err
	}

	if timedOut {
		fc.SetTimeout(true)
		return nil
	}
	fc.SetVariable(s.Var, value)
	return nil
}

func (ex *execution) handover(ctx context.Context, inv *invocation, name string) error {
	fn, err := ex.rt.tributaries.Resolve(name)
	if err != nil {
		return err
	}

	ctx = logging.WithTributary(ctx, name)
	logging.LogWith(ctx, ex.rt.logger).Debug("handover")
	if err := ex.emit(ctx, Event{Type: schema.EventHandover, Flow: inv.flow, Depth: inv.depth, Tributary: name}); err != nil {
		return err
	}

	speak := func(ctx context.Context, message string) error {
		return ex.speak(ctx, inv, message)
	}
	listen := func(ctx context.Context, timeout time.Duration) (string, bool, error) {
		v, timedOut, err := ex.hear(ctx, inv, timeout)
		if err != nil || timedOut || v == nil {
			return "", false, err
		}
		return v.(string), true, nil
	}

	if err := fn(ctx, inv.fc, speak, listen); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cancelled(ctxErr)
		}
		return schema.NewErrorf(schema.ErrCodeTributaryFailed, "tributary %q failed: %s", name, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"tributary": name})
	}
	return nil
}

func ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelled(ctxErr)
	}
	return schema.NewErrorf(schema.ErrCodeIO, "%s: %s", op, err.Error()).WithCause(err)
}
