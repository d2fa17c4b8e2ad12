package schema

import "encoding/json"

// Expression engines a manifest tributary may use.
const (
	EngineCEL  = "cel"
	EngineExpr = "expr"
	EngineJQ   = "jq"
)

// TributaryManifest lists host tributaries defined as expressions.
type TributaryManifest struct {
	Tributaries []TributaryDefinition `json:"tributaries"`
}

// TributaryDefinition is one expression-backed tributary. The expression
// reads `parameter` and its result becomes the new parameter. When
// ParameterSchema is set the parameter is validated against it first.
type TributaryDefinition struct {
	Name            string          `json:"name"`
	Engine          string          `json:"engine"`
	Expression      string          `json:"expression"`
	Description     string          `json:"description,omitempty"`
	ParameterSchema json.RawMessage `json:"parameter_schema,omitempty"`
}
