package kabe

import (
	"fmt"
)

// BlockDefinition is a named block type and the color it is drawn as.
type BlockDefinition struct {
	ID    string
	Color Color
}

// Palette is an immutable, ordered set of block definitions. The order is
// only used to break ties between equally close blocks.
type Palette struct {
	blocks []BlockDefinition
	index  map[string]int
}

// NewPalette creates a palette from the given definitions, in order.
func NewPalette(defs ...BlockDefinition) (*Palette, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyPalette
	}

	p := &Palette{
		blocks: make([]BlockDefinition, len(defs)),
		index:  make(map[string]int, len(defs)),
	}

	for i, def := range defs {
		if !ValidBlockID(def.ID) {
			return nil, fmt.Errorf("kabe: NewPalette: %q: %w", def.ID, ErrInvalidBlockID)
		}
		if _, found := p.index[def.ID]; found {
			return nil, fmt.Errorf("kabe: NewPalette: %q: %w", def.ID, ErrDuplicateBlock)
		}

		p.blocks[i] = def
		p.index[def.ID] = i
	}

	return p, nil
}

// MustPalette is like NewPalette but panics on error.
func MustPalette(defs ...BlockDefinition) *Palette {
	p, err := NewPalette(defs...)
	if err != nil {
		panic(err)
	}
	return p
}

// Len returns the number of blocks in the palette.
func (p *Palette) Len() int {
	return len(p.blocks)
}

// At returns the i-th block definition.
func (p *Palette) At(i int) BlockDefinition {
	return p.blocks[i]
}

// Blocks returns a copy of the block definitions in palette order.
func (p *Palette) Blocks() []BlockDefinition {
	out := make([]BlockDefinition, len(p.blocks))
	copy(out, p.blocks)
	return out
}

// Index returns the position of the block with the given identifier, or -1.
func (p *Palette) Index(id string) int {
	i, found := p.index[id]
	if !found {
		return -1
	}
	return i
}

// Lookup returns the definition of the block with the given identifier.
func (p *Palette) Lookup(id string) (BlockDefinition, bool) {
	i, found := p.index[id]
	if !found {
		return BlockDefinition{}, false
	}
	return p.blocks[i], true
}

// ValidBlockID reports whether id can be used as a block identifier. The
// namespace is not part of the identifier.
func ValidBlockID(id string) bool {
	if id == "" {
		return false
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '/' || r == '-':
		default:
			return false
		}
	}

	return true
}
