package runtime

import (
	"github.com/rendis/chatflow/pkg/flow"
	"github.com/rendis/chatflow/pkg/schema"
)

// DefaultMaxDepth bounds nested engage calls.
const DefaultMaxDepth = 256

// invocation is one active flow call.
type invocation struct {
	flow   string
	fc     *flow.Context
	status schema.InvocationStatus
	depth  int
}

// callStack tracks active invocations, innermost last.
type callStack struct {
	frames []*invocation
	max    int
}

func newCallStack(max int) *callStack {
	return &callStack{max: max}
}

func (s *callStack) push(inv *invocation) error {
	if len(s.frames) >= s.max {
		return schema.NewErrorf(schema.ErrCodeStackDepth,
			"engaging %q exceeds the maximum call depth of %d", inv.flow, s.max).
			WithDetails(map[string]any{"flow": inv.flow, "max_depth": s.max})
	}
	s.frames = append(s.frames, inv)
	inv.depth = len(s.frames)
	return nil
}

func (s *callStack) pop() {
	if len(s.frames) == 0 {
		return
	}
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *callStack) depth() int { return len(s.frames) }

// trace lists the active flow names, outermost first.
func (s *callStack) trace() []string {
	names := make([]string, len(s.frames))
	for i, f := range s.frames {
		names[i] = f.flow
	}
	return names
}
