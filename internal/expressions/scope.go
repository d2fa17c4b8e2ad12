package expressions

import (
	"math"

	"github.com/rendis/chatflow/pkg/flow"
)

// Scope keys visible to every expression.
const (
	KeyParameter = "parameter"
	KeyVars      = "vars"
	KeyFlow      = "flow"
)

// Scope snapshots an invocation for evaluation: its parameter, its visible
// variables and the flow name. Values are copied, so an expression cannot
// mutate the invocation.
func Scope(fc *flow.Context) map[string]any {
	return map[string]any{
		KeyParameter: Normalize(fc.Parameter()),
		KeyVars:      Normalize(fc.Variables()),
		KeyFlow:      fc.Flow(),
	}
}

// Normalize deep-copies v into the plain shapes all engines accept:
// integers become int64, floats float64, and string-keyed maps and slices
// become map[string]any and []any.
func Normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = Normalize(v)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = v
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = Normalize(v)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = v
		}
		return out
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

// wholeToInt converts whole float64 results back to int64, recursively.
func wholeToInt(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case int:
		return int64(val)
	case map[string]any:
		for k, e := range val {
			val[k] = wholeToInt(e)
		}
		return val
	case []any:
		for i, e := range val {
			val[i] = wholeToInt(e)
		}
		return val
	default:
		return v
	}
}
