package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/rendis/chatflow/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to schema.InvocationStatus) error

type hookKey struct {
	from, to schema.InvocationStatus
}

// InvocationFSM validates flow invocation state changes and reports them to
// an Observer.
type InvocationFSM struct {
	mu       sync.Mutex
	observer Observer
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewInvocationFSM creates an FSM that emits events to observer, which may be nil.
func NewInvocationFSM(observer Observer) *InvocationFSM {
	return &InvocationFSM{
		observer: observer,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition. A hook error
// prevents the transition.
func (f *InvocationFSM) OnBefore(from, to schema.InvocationStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *InvocationFSM) OnAfter(from, to schema.InvocationStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and performs a state change of one invocation and
// emits the matching event. The caller records the new state.
func (f *InvocationFSM) Transition(ctx context.Context, runID, flowName string, depth int, from, to schema.InvocationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid invocation transition: %s -> %s", from, to).
			WithFlow(flowName).
			WithDetails(map[string]any{"run_id": runID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	if eventType := transitionEventType(from, to); eventType != "" && f.observer != nil {
		ev := Event{
			RunID:  runID,
			Type:   eventType,
			Flow:   flowName,
			Depth:  depth,
			Status: to,
			Time:   time.Now().UTC(),
		}
		if err := f.observer.OnEvent(ctx, ev); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit invocation event: %s", err.Error()).
				WithFlow(flowName).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	return nil
}

func isValidTransition(from, to schema.InvocationStatus) bool {
	for _, a := range ValidInvocationTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// Suspension is reported by the listen events themselves.
func transitionEventType(from, to schema.InvocationStatus) string {
	switch to {
	case schema.InvocationRunning:
		if from == schema.InvocationPending {
			return schema.EventFlowEntered
		}
	case schema.InvocationReturned:
		return schema.EventFlowReturned
	case schema.InvocationExited:
		return schema.EventFlowExited
	case schema.InvocationFailed:
		return schema.EventFlowFailed
	}
	return ""
}

// IsTerminal reports whether an invocation in state s has finished.
func IsTerminal(s schema.InvocationStatus) bool {
	return len(ValidInvocationTransitions[s]) == 0
}

// ValidInvocationTransitions defines the allowed state transitions of a flow invocation.
var ValidInvocationTransitions = map[schema.InvocationStatus][]schema.InvocationStatus{
	schema.InvocationPending:   {schema.InvocationRunning, schema.InvocationFailed},
	schema.InvocationRunning:   {schema.InvocationSuspended, schema.InvocationReturned, schema.InvocationExited, schema.InvocationFailed},
	schema.InvocationSuspended: {schema.InvocationRunning, schema.InvocationFailed},
	schema.InvocationReturned:  {},
	schema.InvocationExited:    {},
	schema.InvocationFailed:    {},
}
