package runtime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/chatflow/pkg/ast"
	"github.com/rendis/chatflow/pkg/schema"
)

func TestArith(t *testing.T) {
	tests := []struct {
		name string
		op   ast.Operator
		l, r any
		want any
	}{
		{"int add", ast.Add, int64(2), int64(3), int64(5)},
		{"int sub", ast.Sub, int64(2), int64(3), int64(-1)},
		{"int mul", ast.Mul, int64(4), int64(3), int64(12)},
		{"int div exact", ast.Div, int64(8), int64(2), int64(4)},
		{"int div uneven is float", ast.Div, int64(7), int64(2), 3.5},
		{"negative div uneven", ast.Div, int64(-7), int64(2), -3.5},
		{"min int div minus one", ast.Div, int64(math.MinInt64), int64(-1), 9.223372036854775808e18},
		{"mixed kinds", ast.Add, 1, uint8(2), int64(3)},
		{"float promotes", ast.Mul, int64(3), 0.5, 1.5},
		{"float div", ast.Div, 1.0, int64(4), 0.25},
		{"float32", ast.Add, float32(0.5), int64(1), 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := arith(tt.op, tt.l, tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArith_Errors(t *testing.T) {
	_, err := arith(ast.Add, "a", int64(1))
	assert.True(t, schema.IsCode(err, schema.ErrCodeOperandType))

	_, err = arith(ast.Mul, nil, int64(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null")

	_, err = arith(ast.Div, int64(1), int64(0))
	assert.True(t, schema.IsCode(err, schema.ErrCodeOperandType))

	_, err = arith(ast.Div, 1.0, 0.0)
	assert.True(t, schema.IsCode(err, schema.ErrCodeOperandType))
}

func TestArith_Overflow(t *testing.T) {
	tests := []struct {
		name string
		op   ast.Operator
		l, r int64
	}{
		{"add", ast.Add, math.MaxInt64, 1},
		{"add negative", ast.Add, math.MinInt64, -1},
		{"sub", ast.Sub, math.MinInt64, 1},
		{"sub negative", ast.Sub, math.MaxInt64, -1},
		{"mul", ast.Mul, math.MaxInt64, 2},
		{"mul min by minus one", ast.Mul, math.MinInt64, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := arith(tt.op, tt.l, tt.r)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeOperandType))
			assert.Contains(t, err.Error(), "overflow")
		})
	}

	got, err := arith(ast.Add, int64(math.MaxInt64-1), int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	got, err = arith(ast.Mul, int64(-3), int64(4))
	require.NoError(t, err)
	assert.Equal(t, int64(-12), got)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(int64(2), 2))
	assert.True(t, valuesEqual(int64(2), 2.0))
	assert.False(t, valuesEqual(int64(2), 2.5))
	assert.True(t, valuesEqual("a", "a"))
	assert.False(t, valuesEqual("2", int64(2)))
	assert.True(t, valuesEqual(nil, nil))
	assert.False(t, valuesEqual(nil, "null"))
	assert.True(t, valuesEqual(true, true))
	assert.False(t, valuesEqual(true, "true"))
	assert.True(t, valuesEqual([]any{1, "x"}, []any{1, "x"}))
	assert.True(t, valuesEqual(map[string]any{"k": 1}, map[string]any{"k": 1}))
}

func TestCompareNumbers(t *testing.T) {
	ok, err := compareNumbers(ast.Larger, int64(3), int64(2))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = compareNumbers(ast.Less, int64(3), 3.5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = compareNumbers(ast.Larger, int64(3), int64(3))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = compareNumbers(ast.Less, "a", int64(1))
	assert.True(t, schema.IsCode(err, schema.ErrCodeOperandType))
}
