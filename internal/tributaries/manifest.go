package tributaries

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/chatflow/internal/expressions"
	"github.com/rendis/chatflow/internal/validation"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/rendis/chatflow/pkg/tributary"
)

// Loader turns tributary manifests into registered tributaries.
type Loader struct {
	engines   *expressions.Engines
	validator *validation.JSONSchemaValidator
	logger    *slog.Logger
}

// NewLoader creates a Loader with every expression engine available.
func NewLoader(logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	engines, err := expressions.NewEngines()
	if err != nil {
		return nil, err
	}
	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &Loader{engines: engines, validator: validator, logger: logger}, nil
}

// Load validates raw manifest JSON and registers each tributary it defines.
// Nothing is registered unless every definition compiles. It returns the
// registered names in manifest order.
func (l *Loader) Load(raw []byte, reg *tributary.Registry) ([]string, error) {
	manifest, err := l.validator.ValidateManifest(raw)
	if err != nil {
		return nil, err
	}

	funcs := make([]tributary.Func, len(manifest.Tributaries))
	for i, def := range manifest.Tributaries {
		fn, err := FromDefinition(def, l.engines, l.validator)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "tributary %q: %s", def.Name, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"name": def.Name, "engine": def.Engine})
		}
		funcs[i] = fn
	}

	names := make([]string, len(funcs))
	for i, def := range manifest.Tributaries {
		if reg.Has(def.Name) {
			l.logger.Warn("manifest tributary replaces existing one", slog.String("tributary", def.Name))
		}
		if err := reg.Register(def.Name, funcs[i]); err != nil {
			return nil, err
		}
		names[i] = def.Name
	}
	l.logger.Debug("tributary manifest loaded", slog.Int("count", len(names)))
	return names, nil
}

// LoadFile reads a manifest from path and loads it. Files ending in .yaml or
// .yml are read as YAML, anything else as JSON.
func (l *Loader) LoadFile(path string, reg *tributary.Registry) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "read tributary manifest %s", path).WithCause(err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if raw, err = yamlToJSON(raw); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse tributary manifest %s", path).WithCause(err)
		}
	}
	return l.Load(raw, reg)
}

// yamlToJSON re-encodes a YAML document as JSON so it goes through the same
// schema validation as a JSON manifest.
func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
