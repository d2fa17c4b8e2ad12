// Package tributary holds the table of host callbacks reachable from a
// script through `handover NAME`.
package tributary

import (
	"context"
	"sort"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/rendis/chatflow/pkg/flow"
	"github.com/rendis/chatflow/pkg/schema"
)

// Func is a host callback. It may read and replace the invocation parameter
// and talk to the user through speak and listen. Its only result channel is
// fc.SetParameter; a returned error aborts the run.
type Func func(ctx context.Context, fc *flow.Context, speak flow.SpeakFunc, listen flow.ListenFunc) error

// Registry is a thread-safe name to Func table. It is filled before runs
// start and only read while they execute, so one Registry can back many
// concurrent runtimes.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]Func),
	}
}

// Register binds fn to name. Registering an existing name replaces it.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "tributary name is empty")
	}
	if fn == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "tributary %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, fn Func) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Resolve returns the tributary bound to name. Unknown names yield an
// UNKNOWN_TRIBUTARY error that suggests the closest registered name.
func (r *Registry) Resolve(name string) (Func, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if ok {
		return fn, nil
	}

	err := schema.NewErrorf(schema.ErrCodeUnknownTributary, "tributary %q is not registered", name)
	details := map[string]any{"name": name}
	if suggestion := Suggest(name, r.Names()); suggestion != "" {
		err.Message += ", did you mean " + quote(suggestion) + "?"
		details["suggestion"] = suggestion
	}
	return nil, err.WithDetails(details)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tributaries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}

// Suggest returns the candidate closest to target, or "" when nothing is
// close. Candidates containing target's characters in order rank first;
// otherwise the name within a small edit distance is used.
func Suggest(target string, candidates []string) string {
	if target == "" || len(candidates) == 0 {
		return ""
	}

	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDist := "", -1
	for _, c := range candidates {
		d := fuzzy.LevenshteinDistance(target, c)
		if bestDist == -1 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist <= maxSuggestDistance(target) {
		return best
	}
	return ""
}

func maxSuggestDistance(target string) int {
	if n := len(target) / 3; n > 2 {
		return n
	}
	return 2
}

func quote(s string) string {
	return `"` + s + `"`
}
