// Package expressions evaluates CEL, expr and jq expressions over the state
// of a flow invocation. The engines back expression-defined tributaries.
package expressions

import (
	"context"
	"sort"

	"github.com/rendis/chatflow/pkg/schema"
)

// Engine evaluates one expression language.
// Three implementations: CEL, Expr and GoJQ.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Engines is the set of available engines keyed by name.
type Engines struct {
	byName map[string]Engine
}

// NewEngines creates the CEL, expr and jq engines.
func NewEngines() (*Engines, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Engines{byName: map[string]Engine{
		celEngine.Name(): celEngine,
		"expr":           NewExprEngine(),
		"jq":             NewGoJQEngine(),
	}}, nil
}

// Get returns the engine called name.
func (e *Engines) Get(name string) (Engine, error) {
	eng, ok := e.byName[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression engine %q", name).
			WithDetails(map[string]any{"engine": name, "available": e.Names()})
	}
	return eng, nil
}

// Names returns the engine names, sorted.
func (e *Engines) Names() []string {
	names := make([]string, 0, len(e.byName))
	for n := range e.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
