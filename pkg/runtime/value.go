package runtime

import (
	"fmt"
	"math"
	"reflect"

	"github.com/rendis/chatflow/pkg/ast"
	"github.com/rendis/chatflow/pkg/schema"
)

// number is a numeric operand normalised to int64 or float64.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) value() any {
	if n.isFloat {
		return n.f
	}
	return n.i
}

// toNumber accepts every Go integer and float kind.
func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int:
		return number{i: int64(x)}, true
	case int8:
		return number{i: int64(x)}, true
	case int16:
		return number{i: int64(x)}, true
	case int32:
		return number{i: int64(x)}, true
	case int64:
		return number{i: x}, true
	case uint:
		return number{i: int64(x)}, true
	case uint8:
		return number{i: int64(x)}, true
	case uint16:
		return number{i: int64(x)}, true
	case uint32:
		return number{i: int64(x)}, true
	case uint64:
		return number{i: int64(x)}, true
	case float32:
		return number{f: float64(x), isFloat: true}, true
	case float64:
		return number{f: x, isFloat: true}, true
	}
	return number{}, false
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

func overflowError(op ast.Operator, a, b int64) *schema.ChatflowError {
	return schema.NewErrorf(schema.ErrCodeOperandType, "integer overflow in %d %s %d", a, op, b).
		WithDetails(map[string]any{"operator": op.String()})
}

func operandError(op string, l, r any) *schema.ChatflowError {
	return schema.NewErrorf(schema.ErrCodeOperandType,
		"%s needs numeric operands, got %s and %s", op, typeName(l), typeName(r)).
		WithDetails(map[string]any{"operator": op, "left": typeName(l), "right": typeName(r)})
}

// arith applies op. Integer results stay int64 and overflow is an error.
// Division is exact: an uneven integer quotient becomes float64, as does
// any result with a float operand.
func arith(op ast.Operator, l, r any) (any, error) {
	ln, lok := toNumber(l)
	rn, rok := toNumber(r)
	if !lok || !rok {
		return nil, operandError(op.String(), l, r)
	}

	if ln.isFloat || rn.isFloat {
		a, b := ln.float(), rn.float()
		switch op {
		case ast.Add:
			return a + b, nil
		case ast.Sub:
			return a - b, nil
		case ast.Mul:
			return a * b, nil
		case ast.Div:
			if b == 0 {
				return nil, schema.NewError(schema.ErrCodeOperandType, "division by zero")
			}
			return a / b, nil
		}
	} else {
		a, b := ln.i, rn.i
		switch op {
		case ast.Add:
			sum := a + b
			if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
				return nil, overflowError(op, a, b)
			}
			return sum, nil
		case ast.Sub:
			diff := a - b
			if (a >= 0 && b < 0 && diff < 0) || (a < 0 && b > 0 && diff >= 0) {
				return nil, overflowError(op, a, b)
			}
			return diff, nil
		case ast.Mul:
			if a == 0 || b == 0 {
				return int64(0), nil
			}
			prod := a * b
			if prod/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
				return nil, overflowError(op, a, b)
			}
			return prod, nil
		case ast.Div:
			if b == 0 {
				return nil, schema.NewError(schema.ErrCodeOperandType, "division by zero")
			}
			if a%b == 0 && !(a == math.MinInt64 && b == -1) {
				return a / b, nil
			}
			return float64(a) / float64(b), nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeOperandType, "unknown operator %s", op)
}

// valuesEqual compares numbers by value across kinds and everything else
// with Go equality, falling back to deep equality for uncomparable values.
func valuesEqual(l, r any) bool {
	ln, lok := toNumber(l)
	rn, rok := toNumber(r)
	if lok && rok {
		if !ln.isFloat && !rn.isFloat {
			return ln.i == rn.i
		}
		return ln.float() == rn.float()
	}
	if lok != rok {
		return false
	}
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	lt, rt := reflect.TypeOf(l), reflect.TypeOf(r)
	if lt != rt {
		return false
	}
	if lt.Comparable() {
		return l == r
	}
	return reflect.DeepEqual(l, r)
}

// compareNumbers implements `larger than` and `less than`.
func compareNumbers(op ast.CompareOp, l, r any) (bool, error) {
	ln, lok := toNumber(l)
	rn, rok := toNumber(r)
	if !lok || !rok {
		return false, operandError(op.String(), l, r)
	}

	var cmp int
	if !ln.isFloat && !rn.isFloat {
		switch {
		case ln.i > rn.i:
			cmp = 1
		case ln.i < rn.i:
			cmp = -1
		}
	} else {
		a, b := ln.float(), rn.float()
		switch {
		case a > b:
			cmp = 1
		case a < b:
			cmp = -1
		}
	}

	if op == ast.Larger {
		return cmp > 0, nil
	}
	return cmp < 0, nil
}
