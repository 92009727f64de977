package kabe

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BlockGrid is a row-major grid of block identifiers.
type BlockGrid struct {
	Width  int
	Height int
	Blocks []string
}

// NewBlockGrid creates a block grid from rows of identifiers. All rows must
// have the same length.
func NewBlockGrid(rows [][]string) (*BlockGrid, error) {
	grid := &BlockGrid{Height: len(rows)}
	if len(rows) == 0 {
		return grid, nil
	}

	grid.Width = len(rows[0])
	grid.Blocks = make([]string, 0, grid.Width*grid.Height)
	for y, row := range rows {
		if len(row) != grid.Width {
			return nil, fmt.Errorf("kabe: NewBlockGrid: row %d has %d blocks, expected %d: %w",
				y, len(row), grid.Width, ErrInvalidDimensions)
		}
		grid.Blocks = append(grid.Blocks, row...)
	}

	if grid.Width == 0 {
		grid.Height = 0
	}

	return grid, nil
}

// At returns the block identifier at column x of row y.
func (g *BlockGrid) At(x, y int) string {
	return g.Blocks[y*g.Width+x]
}

// Rows returns the grid as a slice of rows.
func (g *BlockGrid) Rows() [][]string {
	rows := make([][]string, g.Height)
	for y := range rows {
		rows[y] = g.Blocks[y*g.Width : (y+1)*g.Width : (y+1)*g.Width]
	}
	return rows
}

// Empty reports whether the grid has no blocks.
func (g *BlockGrid) Empty() bool {
	return g == nil || g.Width <= 0 || g.Height <= 0
}

// QuantizeOptions controls how a pixel grid is quantized.
type QuantizeOptions struct {
	// Matcher defaults to a TreeMatcher for the palette.
	Matcher Matcher
	// Workers is the number of rows processed concurrently, defaults to
	// GOMAXPROCS.
	Workers int
}

// Quantize maps every pixel of the grid to the closest block in the palette.
func Quantize(grid *PixelGrid, p *Palette) (*BlockGrid, error) {
	return QuantizeWith(grid, p, QuantizeOptions{})
}

// QuantizeWith is like Quantize with control over the matcher and
// concurrency. The result does not depend on either.
func QuantizeWith(grid *PixelGrid, p *Palette, opts QuantizeOptions) (*BlockGrid, error) {
	if p == nil || p.Len() == 0 {
		return nil, ErrEmptyPalette
	}

	if grid == nil || grid.Width <= 0 || grid.Height <= 0 ||
		len(grid.Pix) != grid.Width*grid.Height {
		return nil, fmt.Errorf("kabe: Quantize: bad pixel grid: %w", ErrInvalidDimensions)
	}

	matcher := opts.Matcher
	if matcher == nil {
		matcher = NewTreeMatcher(p)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := &BlockGrid{
		Width:  grid.Width,
		Height: grid.Height,
		Blocks: make([]string, len(grid.Pix)),
	}

	rows := make(chan int, grid.Height)
	for y := 0; y < grid.Height; y++ {
		rows <- y
	}
	close(rows)

	var eg errgroup.Group
	for w := 0; w < min(workers, grid.Height); w++ {
		eg.Go(func() error {
			// Images tend to repeat colors a lot, remember what this worker
			// has already matched.
			seen := make(map[int]int)

			for y := range rows {
				start := y * grid.Width
				for i := start; i < start+grid.Width; i++ {
					col := grid.Pix[i]
					idx, found := seen[col.pack()]
					if !found {
						idx = matcher.MatchIndex(col)
						if idx < 0 || idx >= p.Len() {
							return fmt.Errorf("kabe: Quantize: matcher returned index %d for %s: %w",
								idx, col.Hex(), ErrUnknownBlock)
						}
						seen[col.pack()] = idx
					}
					out.Blocks[i] = p.blocks[idx].ID
				}
			}

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
