package diagram

import (
	"context"
	"testing"

	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/pkg/parser"
	"github.com/rendis/chatflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderImagePNG(t *testing.T) {
	model, err := Build(parser.MustParse(guessSrc), nil)
	require.NoError(t, err)

	png, err := RenderImage(context.Background(), model, FormatPNG)
	require.NoError(t, err)
	require.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}

func TestRenderImageSVGWithOverlay(t *testing.T) {
	tr := &store.Transcript{RunID: "r", Status: schema.RunStatusCompleted, Flows: []string{"origin", "play"}}
	model, err := Build(parser.MustParse(guessSrc), tr)
	require.NoError(t, err)

	svg, err := RenderImage(context.Background(), model, FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "random_number")
}

func TestRenderImageDOT(t *testing.T) {
	model, err := Build(parser.MustParse(guessSrc), nil)
	require.NoError(t, err)

	dot, err := RenderImage(context.Background(), model, FormatDOT)
	require.NoError(t, err)
	assert.Contains(t, string(dot), "flow_origin")
}

func TestRenderImageUnknownFormat(t *testing.T) {
	model, err := Build(parser.MustParse(`flow origin { }`), nil)
	require.NoError(t, err)

	_, err = RenderImage(context.Background(), model, "bmp")
	assert.Error(t, err)
}
