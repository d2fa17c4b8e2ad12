package runtime

import (
	"github.com/rendis/chatflow/pkg/ast"
	"github.com/rendis/chatflow/pkg/parser"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/rendis/chatflow/pkg/tributary"
)

// Origin is the flow a run starts from.
const Origin = "origin"

// Flows maps flow names to their parsed definitions. It is built once per
// script and never modified, so it can be shared between runtimes.
type Flows struct {
	byName map[string]*ast.Flow
	order  []string
}

// NewFlows indexes a parsed script. Duplicate flow names are a
// VALIDATION_ERROR and a script without an origin flow is UNKNOWN_FLOW.
func NewFlows(script *ast.Script) (*Flows, error) {
	f := &Flows{byName: make(map[string]*ast.Flow, len(script.Flows))}
	for _, fl := range script.Flows {
		if prev, dup := f.byName[fl.Name]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"flow %q already defined at %d:%d", fl.Name, prev.Pos.Line, prev.Pos.Column).
				WithPos(fl.Pos.Line, fl.Pos.Column).
				WithDetails(map[string]any{"flow": fl.Name})
		}
		f.byName[fl.Name] = fl
		f.order = append(f.order, fl.Name)
	}
	if _, ok := f.byName[Origin]; !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownFlow, "script has no %q flow", Origin).
			WithDetails(map[string]any{"name": Origin, "flows": f.Names()})
	}
	return f, nil
}

// Load parses src and indexes its flows.
func Load(src string) (*Flows, error) {
	script, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	return NewFlows(script)
}

// Lookup returns the named flow. Unknown names yield UNKNOWN_FLOW with a
// suggestion when a defined flow is close.
func (f *Flows) Lookup(name string) (*ast.Flow, error) {
	if fl, ok := f.byName[name]; ok {
		return fl, nil
	}
	err := schema.NewErrorf(schema.ErrCodeUnknownFlow, "flow %q is not defined", name)
	details := map[string]any{"name": name}
	if suggestion := tributary.Suggest(name, f.order); suggestion != "" {
		err.Message += `, did you mean "` + suggestion + `"?`
		details["suggestion"] = suggestion
	}
	return nil, err.WithDetails(details)
}

// Has reports whether name is defined.
func (f *Flows) Has(name string) bool {
	_, ok := f.byName[name]
	return ok
}

// Names returns flow names in definition order.
func (f *Flows) Names() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Len returns the number of flows.
func (f *Flows) Len() int { return len(f.order) }
