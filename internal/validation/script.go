package validation

import (
	"github.com/rendis/chatflow/pkg/ast"
	"github.com/rendis/chatflow/pkg/parser"
	"github.com/rendis/chatflow/pkg/schema"
)

// ScriptValidator runs the script checking pipeline:
// 1. Syntax (parser)
// 2. Semantic (flow names, engage/handover targets, dead code)
// 3. Call graph (reachability, recursion)
type ScriptValidator struct {
	tributaries TributaryLookup
}

// NewScriptValidator creates a ScriptValidator.
// lookup may be nil to skip handover target checks.
func NewScriptValidator(lookup TributaryLookup) *ScriptValidator {
	return &ScriptValidator{tributaries: lookup}
}

// Validate parses src and runs every stage. Syntax errors short-circuit.
func (sv *ScriptValidator) Validate(src string) (*ast.Script, *schema.ValidationResult) {
	script, err := parser.Parse(src)
	if err != nil {
		result := &schema.ValidationResult{}
		result.AddErr("script", err)
		return nil, result
	}
	return script, sv.ValidateScript(script)
}

// ValidateScript runs the semantic and call graph stages on a parsed script.
func (sv *ScriptValidator) ValidateScript(script *ast.Script) *schema.ValidationResult {
	if script == nil {
		r := &schema.ValidationResult{}
		r.AddError("script", schema.ErrCodeValidation, "script is nil")
		return r
	}

	result := validateSemantic(script, sv.tributaries)
	result.Merge(validateCallGraph(script))
	return result
}
