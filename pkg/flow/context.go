// Package flow holds the per-invocation state of a running ChatFlow flow
// and the host-facing function types used to talk to the outside world.
package flow

import (
	"github.com/rendis/chatflow/pkg/schema"
)

// Context is the state of one flow invocation: an opaque parameter, a stack
// of scope frames (innermost last) and the timeout flag of the last bounded
// listen. A Context belongs to a single run and is not safe for concurrent use.
type Context struct {
	flow      string
	parameter any
	scopes    []map[string]any
	timeout   bool
}

// NewContext creates the context of an invocation of the named flow, seeded
// with param. It starts with no scope frames.
func NewContext(flowName string, param any) *Context {
	return &Context{flow: flowName, parameter: param}
}

// Flow returns the name of the invoked flow.
func (c *Context) Flow() string { return c.flow }

// Parameter returns the value exchanged with tributaries and engaged flows.
func (c *Context) Parameter() any { return c.parameter }

// SetParameter replaces the parameter.
func (c *Context) SetParameter(v any) { c.parameter = v }

// Timeout reports whether the most recent bounded listen expired.
func (c *Context) Timeout() bool { return c.timeout }

// SetTimeout sets the timeout flag. It is the only way the flag changes.
func (c *Context) SetTimeout(v bool) { c.timeout = v }

// Depth returns the number of open scope frames.
func (c *Context) Depth() int { return len(c.scopes) }

// PushScope opens a new innermost frame.
func (c *Context) PushScope() {
	c.scopes = append(c.scopes, make(map[string]any))
}

// PopScope discards the innermost frame and every binding created in it.
func (c *Context) PopScope() {
	if len(c.scopes) == 0 {
		return
	}
	c.scopes[len(c.scopes)-1] = nil
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// GetVariable looks name up from the innermost frame outwards.
func (c *Context) GetVariable(name string) (any, error) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNameNotFound, "variable %q is not defined", name).
		WithDetails(map[string]any{"name": name})
}

// SetVariable overwrites the nearest existing binding of name, searching
// innermost to outermost. When no frame binds it, it is created in the
// innermost frame. Assignment never shadows. Reports whether a new binding
// was created.
func (c *Context) SetVariable(name string, v any) bool {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if _, ok := c.scopes[i][name]; ok {
			c.scopes[i][name] = v
			return false
		}
	}
	if len(c.scopes) == 0 {
		c.PushScope()
	}
	c.scopes[len(c.scopes)-1][name] = v
	return true
}

// Variables returns a flattened copy of every visible binding, inner frames
// winning over outer ones.
func (c *Context) Variables() map[string]any {
	out := make(map[string]any)
	for _, frame := range c.scopes {
		for k, v := range frame {
			out[k] = v
		}
	}
	return out
}
