// Package validation checks ChatFlow scripts and tributary manifests before
// they are run or loaded.
package validation

import "github.com/rendis/chatflow/pkg/schema"

// TributaryLookup is used to check handover targets during script validation.
type TributaryLookup interface {
	Has(name string) bool
}

// Validator checks tributary manifests and the values flowing into them.
// Uses JSON Schema Draft 2020-12.
type Validator interface {
	ValidateManifest(raw []byte) (*schema.TributaryManifest, error)
	ValidateValue(value any, valueSchema []byte) error
}
