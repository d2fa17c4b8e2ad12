package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/chatflow/pkg/schema"
)

type mockTributaryLookup map[string]bool

func (m mockTributaryLookup) Has(name string) bool { return m[name] }

func messages(issues []schema.ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Message
	}
	return out
}

func TestScriptValidator_Clean(t *testing.T) {
	src := `
flow origin {
	speak "hi"
	engage greet
	handover upper
}
flow greet {
	listen for name
}`
	script, result := NewScriptValidator(mockTributaryLookup{"upper": true}).Validate(src)
	require.NotNil(t, script)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestScriptValidator_SyntaxError(t *testing.T) {
	script, result := NewScriptValidator(nil).Validate("flow origin {")
	assert.Nil(t, script)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeParse, result.Errors[0].Code)
	assert.Positive(t, result.Errors[0].Line)
	assert.Error(t, result.ToError())
}

func TestScriptValidator_DuplicateAndMissingOrigin(t *testing.T) {
	src := `flow a { } 
flow a { }`
	_, result := NewScriptValidator(nil).Validate(src)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, schema.ErrCodeValidation, result.Errors[0].Code)
	assert.Equal(t, "flows.a", result.Errors[0].Path)
	assert.Equal(t, 2, result.Errors[0].Line)
	assert.Contains(t, result.Errors[0].Message, "already defined at 1:1")
	assert.Equal(t, schema.ErrCodeUnknownFlow, result.Errors[1].Code)
}

func TestScriptValidator_UnknownTargets(t *testing.T) {
	src := `flow origin {
	engage gret
	handover nope
}
flow greet { }`
	_, result := NewScriptValidator(mockTributaryLookup{}).Validate(src)
	assert.True(t, result.Valid())

	require.GreaterOrEqual(t, len(result.Warnings), 2)
	assert.Equal(t, schema.ErrCodeUnknownFlow, result.Warnings[0].Code)
	assert.Contains(t, result.Warnings[0].Message, `did you mean "greet"?`)
	assert.Equal(t, 2, result.Warnings[0].Line)
	assert.Equal(t, schema.ErrCodeUnknownTributary, result.Warnings[1].Code)
	assert.Equal(t, 3, result.Warnings[1].Line)
}

func TestScriptValidator_NilLookupSkipsHandover(t *testing.T) {
	_, result := NewScriptValidator(nil).Validate(`flow origin { handover anything }`)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestScriptValidator_DeadCodeAndZeroTimeout(t *testing.T) {
	src := `flow origin {
	if true {
		end
		speak "never"
	}
	listen for x for 0 s
}`
	_, result := NewScriptValidator(nil).Validate(src)
	assert.True(t, result.Valid())
	assert.ElementsMatch(t, []string{
		"listen for x times out immediately",
		"unreachable statement after end",
	}, messages(result.Warnings))
}

func TestScriptValidator_CallGraph(t *testing.T) {
	src := `flow origin { engage a }
flow a { engage b }
flow b { engage a }
flow lonely { }`
	_, result := NewScriptValidator(nil).Validate(src)
	assert.True(t, result.Valid())
	assert.ElementsMatch(t, []string{
		`flow "lonely" is never engaged from origin`,
		"recursive engage cycle a -> b -> a",
	}, messages(result.Warnings))
}

func TestScriptValidator_SelfRecursionReportedOnce(t *testing.T) {
	src := `flow origin {
	engage origin
	engage origin
}`
	_, result := NewScriptValidator(nil).Validate(src)
	assert.Equal(t, []string{"recursive engage cycle origin -> origin"}, messages(result.Warnings))
}

func TestScriptValidator_NilScript(t *testing.T) {
	result := NewScriptValidator(nil).ValidateScript(nil)
	assert.False(t, result.Valid())
}
