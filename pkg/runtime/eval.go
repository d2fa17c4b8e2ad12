package runtime

import (
	"regexp"
	"sync"
	"time"

	"github.com/rendis/chatflow/pkg/ast"
	"github.com/rendis/chatflow/pkg/flow"
	"github.com/rendis/chatflow/pkg/schema"
)

// evaluator computes expressions and conditions against a flow.Context.
// Compiled patterns are cached across runs.
type evaluator struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

func newEvaluator() *evaluator {
	return &evaluator{patterns: make(map[string]*regexp.Regexp)}
}

func (e *evaluator) eval(fc *flow.Context, expr ast.Expr) (any, error) {
	switch x := expr.(type) {
	case *ast.Literal:
		return x.Value, nil
	case *ast.Variable:
		v, err := fc.GetVariable(x.Name)
		if err != nil {
			return nil, atExpr(err, x)
		}
		return v, nil
	case *ast.TimeoutValue:
		return fc.Timeout(), nil
	case *ast.Binary:
		l, err := e.eval(fc, x.Left)
		if err != nil {
			return nil, err
		}
		r, err := e.eval(fc, x.Right)
		if err != nil {
			return nil, err
		}
		v, err := arith(x.Op, l, r)
		if err != nil {
			return nil, atExpr(err, x)
		}
		return v, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeOperandType, "unsupported expression %T", expr)
}

func (e *evaluator) cond(fc *flow.Context, c ast.Condition) (bool, error) {
	switch x := c.(type) {
	case *ast.Bool:
		return x.Value, nil
	case *ast.Timeout:
		return fc.Timeout(), nil
	case *ast.Not:
		v, err := e.cond(fc, x.Cond)
		return !v, err
	case *ast.Compare:
		l, err := e.eval(fc, x.Left)
		if err != nil {
			return false, err
		}
		r, err := e.eval(fc, x.Right)
		if err != nil {
			return false, err
		}
		if x.Op == ast.Equals {
			return valuesEqual(l, r), nil
		}
		ok, err := compareNumbers(x.Op, l, r)
		if err != nil {
			return false, atPos(err, x.Pos)
		}
		return ok, nil
	case *ast.Match:
		return e.match(fc, x)
	}
	return false, schema.NewErrorf(schema.ErrCodeOperandType, "unsupported condition %T", c)
}

// match without a binding tests for a match anchored at the start of the
// subject. With a binding it searches anywhere and binds the first match
// text, or nil when there is none.
func (e *evaluator) match(fc *flow.Context, m *ast.Match) (bool, error) {
	subject, err := e.eval(fc, m.Subject)
	if err != nil {
		return false, err
	}
	pattern, err := e.eval(fc, m.Pattern)
	if err != nil {
		return false, err
	}
	s, sok := subject.(string)
	p, pok := pattern.(string)
	if !sok || !pok {
		return false, schema.NewErrorf(schema.ErrCodeOperandType,
			"matches needs string operands, got %s and %s", typeName(subject), typeName(pattern)).
			WithPos(m.Pos.Line, m.Pos.Column)
	}

	re, err := e.compile(p)
	if err != nil {
		return false, atPos(err, m.Pos)
	}

	loc := re.FindStringIndex(s)
	if m.Bind == "" {
		return loc != nil && loc[0] == 0, nil
	}
	if loc == nil {
		fc.SetVariable(m.Bind, nil)
		return false, nil
	}
	fc.SetVariable(m.Bind, s[loc[0]:loc[1]])
	return true, nil
}

func (e *evaluator) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.RLock()
	re, ok := e.patterns[pattern]
	e.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeOperandType, "invalid pattern %q: %s", pattern, err.Error()).
			WithCause(err)
	}

	e.mu.Lock()
	e.patterns[pattern] = re
	e.mu.Unlock()
	return re, nil
}

// duration converts a listen timeout to a time.Duration.
func (e *evaluator) duration(fc *flow.Context, d *ast.Duration) (time.Duration, error) {
	v, err := e.eval(fc, d.Amount)
	if err != nil {
		return 0, err
	}
	n, ok := toNumber(v)
	if !ok {
		return 0, schema.NewErrorf(schema.ErrCodeOperandType, "timeout needs a numeric amount, got %s", typeName(v)).
			WithPos(d.Amount.Position().Line, d.Amount.Position().Column)
	}
	unit := time.Duration(d.Unit.Seconds()) * time.Second
	if n.isFloat {
		return time.Duration(n.f * float64(unit)), nil
	}
	return time.Duration(n.i) * unit, nil
}

func atExpr(err error, expr ast.Expr) error {
	return atPos(err, expr.Position())
}

func atPos(err error, pos ast.Pos) error {
	if cfErr, ok := err.(*schema.ChatflowError); ok {
		return cfErr.WithPos(pos.Line, pos.Column)
	}
	return err
}
