package validation

import (
	"fmt"

	"github.com/rendis/chatflow/pkg/ast"
	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/rendis/chatflow/pkg/tributary"
)

// validateSemantic checks what the grammar cannot: unique flow names, an
// origin flow, resolvable engage and handover targets, dead statements after
// `end`, and listen timeouts that can never wait.
func validateSemantic(script *ast.Script, lookup TributaryLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	names := make([]string, 0, len(script.Flows))
	defined := make(map[string]ast.Pos, len(script.Flows))
	for _, f := range script.Flows {
		if first, dup := defined[f.Name]; dup {
			result.AddErrorAt(flowPath(f.Name), schema.ErrCodeValidation,
				fmt.Sprintf("flow %q already defined at %d:%d", f.Name, first.Line, first.Column),
				f.Pos.Line, f.Pos.Column)
			continue
		}
		defined[f.Name] = f.Pos
		names = append(names, f.Name)
	}
	if _, ok := defined[runtime.Origin]; !ok {
		result.AddError("flows", schema.ErrCodeUnknownFlow, fmt.Sprintf("script has no %q flow", runtime.Origin))
	}

	for _, f := range script.Flows {
		path := flowPath(f.Name)
		ast.Inspect(f.Body, func(stmt ast.Statement) bool {
			switch s := stmt.(type) {
			case *ast.Engage:
				if _, ok := defined[s.Flow]; !ok {
					result.AddWarningAt(path, schema.ErrCodeUnknownFlow,
						withSuggestion(fmt.Sprintf("engage of undefined flow %q", s.Flow), s.Flow, names),
						s.Pos.Line, s.Pos.Column)
				}
			case *ast.Handover:
				if lookup != nil && !lookup.Has(s.Tributary) {
					result.AddWarningAt(path, schema.ErrCodeUnknownTributary,
						fmt.Sprintf("handover to unregistered tributary %q", s.Tributary),
						s.Pos.Line, s.Pos.Column)
				}
			case *ast.Listen:
				if lit, ok := literalTimeout(s); ok && lit <= 0 {
					result.AddWarningAt(path, schema.ErrCodeValidation,
						fmt.Sprintf("listen for %s times out immediately", s.Var),
						s.Pos.Line, s.Pos.Column)
				}
			}
			return true
		})
		checkDeadCode(f.Body, path, result)
	}

	return result
}

// checkDeadCode warns about statements that follow `end` in the same block.
func checkDeadCode(body *ast.Block, path string, result *schema.ValidationResult) {
	check := func(b *ast.Block) {
		for i, stmt := range b.Statements {
			if _, ok := stmt.(*ast.End); ok && i+1 < len(b.Statements) {
				next := b.Statements[i+1].Position()
				result.AddWarningAt(path, schema.ErrCodeValidation, "unreachable statement after end",
					next.Line, next.Column)
				return
			}
		}
	}
	check(body)
	ast.Inspect(body, func(stmt ast.Statement) bool {
		switch s := stmt.(type) {
		case *ast.Block:
			check(s)
		case *ast.If:
			check(s.Then)
			if s.ElseBlock != nil {
				check(s.ElseBlock)
			}
		case *ast.While:
			check(s.Body)
		}
		return true
	})
}

func literalTimeout(s *ast.Listen) (int64, bool) {
	if s.Timeout == nil {
		return 0, false
	}
	lit, ok := s.Timeout.Amount.(*ast.Literal)
	if !ok {
		return 0, false
	}
	n, ok := lit.Value.(int64)
	return n, ok
}

func withSuggestion(msg, name string, candidates []string) string {
	if s := tributary.Suggest(name, candidates); s != "" {
		return fmt.Sprintf("%s, did you mean %q?", msg, s)
	}
	return msg
}

func flowPath(name string) string {
	return "flows." + name
}
