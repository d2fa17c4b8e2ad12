package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/chatflow/pkg/ast"
	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
)

// validateCallGraph analyses the engage graph: flows that origin can never
// reach, and recursive engage cycles whose depth only the runtime bounds.
// Both are warnings; neither stops a run.
func validateCallGraph(script *ast.Script) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	// edges[f] = distinct flows engaged by f, in source order.
	edges := make(map[string][]string, len(script.Flows))
	pos := make(map[string]ast.Pos, len(script.Flows))
	var names []string
	for _, f := range script.Flows {
		if _, dup := pos[f.Name]; dup {
			continue // duplicates already reported
		}
		pos[f.Name] = f.Pos
		names = append(names, f.Name)
	}
	for _, f := range script.Flows {
		seen := make(map[string]bool)
		for _, callee := range edges[f.Name] {
			seen[callee] = true
		}
		ast.Inspect(f.Body, func(stmt ast.Statement) bool {
			if e, ok := stmt.(*ast.Engage); ok {
				if _, defined := pos[e.Flow]; defined && !seen[e.Flow] {
					seen[e.Flow] = true
					edges[f.Name] = append(edges[f.Name], e.Flow)
				}
			}
			return true
		})
	}

	if _, ok := pos[runtime.Origin]; !ok {
		return result // reachability is meaningless without an entry point
	}

	// Reachability: BFS from origin.
	reachable := map[string]bool{runtime.Origin: true}
	queue := []string{runtime.Origin}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, callee := range edges[node] {
			if !reachable[callee] {
				reachable[callee] = true
				queue = append(queue, callee)
			}
		}
	}
	for _, name := range names {
		if !reachable[name] {
			p := pos[name]
			result.AddWarningAt(flowPath(name), schema.ErrCodeValidation,
				fmt.Sprintf("flow %q is never engaged from %s", name, runtime.Origin), p.Line, p.Column)
		}
	}

	// Cycle detection: DFS with colours, one warning per distinct cycle.
	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int, len(names))
	reported := make(map[string]bool)
	var stack []string

	var visit func(string)
	visit = func(node string) {
		colour[node] = grey
		stack = append(stack, node)
		for _, callee := range edges[node] {
			switch colour[callee] {
			case white:
				visit(callee)
			case grey:
				cycle := cycleFrom(stack, callee)
				key := cycleKey(cycle)
				if !reported[key] {
					reported[key] = true
					p := pos[callee]
					result.AddWarningAt(flowPath(callee), schema.ErrCodeValidation,
						fmt.Sprintf("recursive engage cycle %s", strings.Join(append(cycle, callee), " -> ")),
						p.Line, p.Column)
				}
			}
		}
		stack = stack[:len(stack)-1]
		colour[node] = black
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	// Start from origin so reported cycles read in call order.
	visit(runtime.Origin)
	for _, name := range sorted {
		if colour[name] == white {
			visit(name)
		}
	}

	return result
}

// cycleFrom returns the suffix of stack starting at start.
func cycleFrom(stack []string, start string) []string {
	for i, n := range stack {
		if n == start {
			return append([]string(nil), stack[i:]...)
		}
	}
	return nil
}

func cycleKey(cycle []string) string {
	members := append([]string(nil), cycle...)
	sort.Strings(members)
	return strings.Join(members, ",")
}
