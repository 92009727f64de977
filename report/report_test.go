package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmpim/kabe"
	"github.com/tmpim/kabe/report"
)

func grids(t *testing.T, colors [][]kabe.Color) (*kabe.PixelGrid, *kabe.BlockGrid) {
	t.Helper()

	pixels := kabe.NewPixelGrid(len(colors[0]), len(colors))
	for y, row := range colors {
		for x, c := range row {
			pixels.Set(x, y, c)
		}
	}

	blocks, err := kabe.Quantize(pixels, kabe.DefaultPalette())
	require.NoError(t, err)

	return pixels, blocks
}

func TestBuild_Histogram(t *testing.T) {
	white := kabe.Color{R: 255, G: 255, B: 255}
	red := kabe.Color{R: 255, G: 0, B: 0}
	stone := kabe.Color{R: 125, G: 125, B: 125}

	pixels, blocks := grids(t, [][]kabe.Color{
		{white, red, stone},
		{red, stone, red},
	})

	r, err := report.Build(pixels, blocks, kabe.DefaultPalette())
	require.NoError(t, err)

	assert.Equal(t, 3, r.Width)
	assert.Equal(t, 2, r.Height)
	require.Len(t, r.Histogram, 3)
	assert.Equal(t, report.BlockCount{ID: "red_wool", Count: 3, Share: 0.5}, r.Histogram[0])
	assert.Equal(t, "stone", r.Histogram[1].ID)
	assert.Equal(t, "white_wool", r.Histogram[2].ID)

	// Every pixel is exactly a palette color.
	assert.InDelta(t, 0, r.MeanDeltaE, 1e-9)
	assert.InDelta(t, 0, r.MaxDeltaE, 1e-9)

	assert.LessOrEqual(t, len(r.Dominant), report.MaxDominant)
	for _, d := range r.Dominant {
		_, found := kabe.DefaultPalette().Lookup(d.Block)
		assert.True(t, found, d.Block)
	}

	summary := r.Summary()
	assert.Contains(t, summary, "3x2 wall, 6 blocks, 3 distinct")
	assert.Contains(t, summary, "red_wool")
}

func TestBuild_ColorError(t *testing.T) {
	pixels, blocks := grids(t, [][]kabe.Color{
		{{R: 250, G: 10, B: 10}, {R: 255, G: 0, B: 0}},
	})

	r, err := report.Build(pixels, blocks, kabe.DefaultPalette())
	require.NoError(t, err)

	assert.Greater(t, r.MaxDeltaE, 0.0)
	assert.InDelta(t, r.MaxDeltaE/2, r.MeanDeltaE, 1e-9)
}

func TestBuild_Errors(t *testing.T) {
	pixels, blocks := grids(t, [][]kabe.Color{{{R: 0, G: 0, B: 0}, {R: 0, G: 0, B: 0}}})

	_, err := report.Build(kabe.NewPixelGrid(1, 1), blocks, kabe.DefaultPalette())
	assert.ErrorIs(t, err, kabe.ErrInvalidDimensions)

	unknown, err := kabe.NewBlockGrid([][]string{{"bedrock", "bedrock"}})
	require.NoError(t, err)
	_, err = report.Build(pixels, unknown, kabe.DefaultPalette())
	assert.ErrorIs(t, err, kabe.ErrUnknownBlock)

	// Grids built by hand whose slices disagree with their dimensions.
	long := &kabe.BlockGrid{Width: 2, Height: 2, Blocks: make([]string, 5)}
	for i := range long.Blocks {
		long.Blocks[i] = "black_wool"
	}
	_, err = report.Build(kabe.NewPixelGrid(2, 2), long, kabe.DefaultPalette())
	assert.ErrorIs(t, err, kabe.ErrInvalidDimensions)

	short := kabe.NewPixelGrid(2, 1)
	short.Pix = short.Pix[:1]
	_, err = report.Build(short, blocks, kabe.DefaultPalette())
	assert.ErrorIs(t, err, kabe.ErrInvalidDimensions)

	empty, err := kabe.NewBlockGrid(nil)
	require.NoError(t, err)
	_, err = report.Build(pixels, empty, kabe.DefaultPalette())
	assert.ErrorIs(t, err, kabe.ErrEmptyGrid)
}
