// Package tributaries provides ready-made host tributaries: a small built-in
// set and expression tributaries loaded from a JSON or YAML manifest.
package tributaries

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rendis/chatflow/internal/expressions"
	"github.com/rendis/chatflow/pkg/flow"
	"github.com/rendis/chatflow/pkg/tributary"
)

// DefaultRandomMax bounds random_number when the parameter is not a positive integer.
const DefaultRandomMax = 100

// Builtins returns the built-in tributaries keyed by name. rng may be nil to
// use the global source.
func Builtins(rng *rand.Rand) map[string]tributary.Func {
	return map[string]tributary.Func{
		"to_number":     paramFunc(toNumber),
		"to_string":     paramFunc(func(v any) any { return flow.Stringify(v) }),
		"upper":         paramFunc(func(v any) any { return strings.ToUpper(flow.Stringify(v)) }),
		"lower":         paramFunc(func(v any) any { return strings.ToLower(flow.Stringify(v)) }),
		"trim":          paramFunc(func(v any) any { return strings.TrimSpace(flow.Stringify(v)) }),
		"length":        paramFunc(length),
		"random_number": RandomNumber(rng),
	}
}

// RegisterBuiltins registers all built-in tributaries in the given registry.
func RegisterBuiltins(reg *tributary.Registry, rng *rand.Rand) error {
	for name, fn := range Builtins(rng) {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// paramFunc lifts a parameter transformation into a tributary.
func paramFunc(fn func(any) any) tributary.Func {
	return func(_ context.Context, fc *flow.Context, _ flow.SpeakFunc, _ flow.ListenFunc) error {
		fc.SetParameter(fn(fc.Parameter()))
		return nil
	}
}

// RandomNumber replaces the parameter with a uniform integer in [1, n], where
// n is the parameter when it is a positive integer and DefaultRandomMax otherwise.
func RandomNumber(rng *rand.Rand) tributary.Func {
	var mu sync.Mutex
	return func(_ context.Context, fc *flow.Context, _ flow.SpeakFunc, _ flow.ListenFunc) error {
		upper := int64(DefaultRandomMax)
		if n, ok := expressions.Normalize(fc.Parameter()).(int64); ok && n > 0 {
			upper = n
		}
		var r int64
		if rng != nil {
			mu.Lock()
			r = rng.Int64N(upper)
			mu.Unlock()
		} else {
			r = rand.Int64N(upper)
		}
		fc.SetParameter(r + 1)
		return nil
	}
}

// toNumber parses strings as int64, falling back to float64. Numbers pass
// through; anything unparsable becomes nil.
func toNumber(v any) any {
	switch n := expressions.Normalize(v).(type) {
	case int64, float64:
		return n
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return nil
}

// length counts runes of strings and elements of lists and maps. nil has
// length zero; other values are measured by their string form.
func length(v any) any {
	switch val := expressions.Normalize(v).(type) {
	case nil:
		return int64(0)
	case string:
		return int64(utf8.RuneCountInString(val))
	case []any:
		return int64(len(val))
	case map[string]any:
		return int64(len(val))
	default:
		return int64(utf8.RuneCountInString(flow.Stringify(val)))
	}
}
