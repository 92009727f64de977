package kabe

import (
	"fmt"
	"image"
)

// Preview renders the block grid as an image with one pixel per block, drawn
// in the block's palette color.
func Preview(grid *BlockGrid, p *Palette) (*image.RGBA, error) {
	if grid.Empty() {
		return nil, ErrEmptyGrid
	}

	img := image.NewRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			def, found := p.Lookup(grid.At(x, y))
			if !found {
				return nil, fmt.Errorf("kabe: Preview: %q at %d,%d: %w",
					grid.At(x, y), x, y, ErrUnknownBlock)
			}

			off := img.PixOffset(x, y)
			img.Pix[off] = def.Color.R
			img.Pix[off+1] = def.Color.G
			img.Pix[off+2] = def.Color.B
			img.Pix[off+3] = 0xff
		}
	}

	return img, nil
}
