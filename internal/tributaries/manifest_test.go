package tributaries

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/chatflow/pkg/flow"
	"github.com/rendis/chatflow/pkg/flowtest"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/rendis/chatflow/pkg/tributary"
)

func newFC(param any) *flow.Context {
	return flow.NewContext("origin", param)
}

const manifest = `{"tributaries": [
	{"name": "double", "engine": "expr", "expression": "parameter * 2"},
	{"name": "half", "engine": "jq", "expression": ".parameter / 2"},
	{"name": "is_yes", "engine": "cel", "expression": "parameter == 'yes'"}
]}`

func TestLoader_Load(t *testing.T) {
	l, err := NewLoader(nil)
	require.NoError(t, err)
	reg := tributary.NewRegistry()

	names, err := l.Load([]byte(manifest), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"double", "half", "is_yes"}, names)
	assert.Equal(t, 3, reg.Count())

	src := `flow origin {
	store 5
	handover double
	handover half
	fetch n
	speak n
}`
	res, err := flowtest.Run(context.Background(), src, nil, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, res.Spoken)
}

func TestLoader_AllOrNothing(t *testing.T) {
	l, err := NewLoader(nil)
	require.NoError(t, err)
	reg := tributary.NewRegistry()

	_, err = l.Load([]byte(`{"tributaries": [
		{"name": "ok", "engine": "expr", "expression": "1"},
		{"name": "broken", "engine": "jq", "expression": ".["}
	]}`), reg)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Zero(t, reg.Count())

	var cfErr *schema.ChatflowError
	require.ErrorAs(t, err, &cfErr)
	assert.Equal(t, "broken", cfErr.Details["name"])
}

func TestLoader_SchemaViolation(t *testing.T) {
	l, err := NewLoader(nil)
	require.NoError(t, err)

	_, err = l.Load([]byte(`{"tributaries": [{"name": "x"}]}`), tributary.NewRegistry())
	require.Error(t, err)
}

func TestLoader_LoadFile(t *testing.T) {
	l, err := NewLoader(nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tributaries.json")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	reg := tributary.NewRegistry()
	names, err := l.LoadFile(path, reg)
	require.NoError(t, err)
	assert.Len(t, names, 3)

	_, err = l.LoadFile(filepath.Join(t.TempDir(), "missing.json"), reg)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestLoader_LoadFileYAML(t *testing.T) {
	l, err := NewLoader(nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tributaries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`tributaries:
  - name: double
    engine: expr
    expression: parameter * 2
    parameter_schema:
      type: integer
  - name: shout
    engine: cel
    expression: parameter + "!"
`), 0o644))

	reg := tributary.NewRegistry()
	names, err := l.LoadFile(path, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"double", "shout"}, names)

	src := `flow origin {
	store 4
	handover double
	fetch n
	speak n
}`
	res, err := flowtest.Run(context.Background(), src, nil, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"8"}, res.Spoken)

	bad := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("tributaries: [\n"), 0o644))
	_, err = l.LoadFile(bad, reg)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
