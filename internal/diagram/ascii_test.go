package diagram

import (
	"strings"
	"testing"

	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/pkg/parser"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderASCII(t *testing.T) {
	model, err := Build(parser.MustParse(guessSrc), nil)
	require.NoError(t, err)

	output := RenderASCII(model)

	assert.True(t, strings.HasPrefix(output, "=== Script ===\n"))
	assert.Contains(t, output, "│ origin │")
	assert.Contains(t, output, "│ random_number │")
	assert.Contains(t, output, "▼")
	assert.Contains(t, output, "origin ─engage→ play")
	assert.Contains(t, output, "play ─handover→ random_number")
	assert.Contains(t, output, "play ─end→ End")
	assert.NotContains(t, output, "[OK]")
}

func TestRenderASCIIOverlay(t *testing.T) {
	tr := &store.Transcript{
		RunID:  "r",
		Status: schema.RunStatusFailed,
		Error:  "boom",
		Flows:  []string{"origin", "play", "hint", "hint", "play"},
	}
	model, err := Build(parser.MustParse(guessSrc), tr)
	require.NoError(t, err)

	output := RenderASCII(model)
	assert.Contains(t, output, "=== Run r ===")
	assert.Contains(t, output, "[OK]")
	assert.Contains(t, output, "[OK x2]")
	assert.Contains(t, output, "[FAIL]")
	assert.Contains(t, output, "boom")
}

func TestMakeBoxPadsToWidestLine(t *testing.T) {
	box := makeBox(&Node{ID: "x", Label: "ab", Status: &StatusOverlay{Status: StatusVisited, Visits: 12}})
	require.Len(t, box.lines, 4)
	assert.Equal(t, "│ ab       │", box.lines[1])
	assert.Equal(t, "│ [OK x12] │", box.lines[2])
}

func TestStatusTag(t *testing.T) {
	assert.Equal(t, "", statusTag(nil))
	assert.Equal(t, "[OK]", statusTag(&StatusOverlay{Status: StatusVisited, Visits: 1}))
	assert.Equal(t, "[FAIL]", statusTag(&StatusOverlay{Status: StatusFailed}))
}
