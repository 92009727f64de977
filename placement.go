package kabe

import (
	"fmt"
	"strconv"
)

// DefaultDepthOffset is how far in front of the origin the wall is placed.
const DefaultDepthOffset = 3

// Namespace prefixes every block identifier in a script.
const Namespace = "minecraft"

// PlacementCommand places a single block relative to the command's origin.
type PlacementCommand struct {
	X, Y, Z int
	Block   string
}

// String returns the command as a setblock directive.
func (c PlacementCommand) String() string {
	return string(c.appendTo(nil))
}

func (c PlacementCommand) appendTo(b []byte) []byte {
	b = append(b, "setblock ~"...)
	b = strconv.AppendInt(b, int64(c.X), 10)
	b = append(b, " ~"...)
	b = strconv.AppendInt(b, int64(c.Y), 10)
	b = append(b, " ~"...)
	b = strconv.AppendInt(b, int64(c.Z), 10)
	b = append(b, ' ')
	b = append(b, Namespace...)
	b = append(b, ':')
	b = append(b, c.Block...)
	return b
}

// Compile turns a block grid into placement commands describing a vertical
// wall depthOffset blocks in front of the origin. The top row of the grid
// becomes the highest layer of the wall, at height grid.Height, and columns
// run along Z. Commands are emitted row by row from the top, left to right.
func Compile(grid *BlockGrid, depthOffset int) ([]PlacementCommand, error) {
	if grid.Empty() {
		return nil, ErrEmptyGrid
	}

	if len(grid.Blocks) != grid.Width*grid.Height {
		return nil, fmt.Errorf("kabe: Compile: %dx%d grid has %d blocks: %w",
			grid.Width, grid.Height, len(grid.Blocks), ErrInvalidDimensions)
	}

	cmds := make([]PlacementCommand, 0, len(grid.Blocks))
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			cmds = append(cmds, PlacementCommand{
				X:     depthOffset,
				Y:     grid.Height - y,
				Z:     x,
				Block: grid.At(x, y),
			})
		}
	}

	return cmds, nil
}
