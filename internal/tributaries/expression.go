package tributaries

import (
	"context"

	"github.com/rendis/chatflow/internal/expressions"
	"github.com/rendis/chatflow/internal/validation"
	"github.com/rendis/chatflow/pkg/flow"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/rendis/chatflow/pkg/tributary"
)

// compiler is implemented by engines that can check an expression up front.
type compiler interface {
	Compile(expression string) error
}

// FromDefinition builds a tributary that evaluates def.Expression over the
// invocation scope and stores the result as the new parameter. The expression
// is compiled eagerly so a bad manifest fails at load time. validator may be
// nil when def has no parameter schema.
func FromDefinition(def schema.TributaryDefinition, engines *expressions.Engines, validator validation.Validator) (tributary.Func, error) {
	eng, err := engines.Get(def.Engine)
	if err != nil {
		return nil, err
	}
	if c, ok := eng.(compiler); ok {
		if err := c.Compile(def.Expression); err != nil {
			return nil, err
		}
	}
	if len(def.ParameterSchema) > 0 && validator == nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "tributary %q has a parameter schema but no validator", def.Name)
	}

	return func(ctx context.Context, fc *flow.Context, _ flow.SpeakFunc, _ flow.ListenFunc) error {
		if len(def.ParameterSchema) > 0 {
			if err := validator.ValidateValue(fc.Parameter(), def.ParameterSchema); err != nil {
				return err
			}
		}
		out, err := eng.Evaluate(ctx, def.Expression, expressions.Scope(fc))
		if err != nil {
			return err
		}
		fc.SetParameter(out)
		return nil
	}, nil
}
