package kabe

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Match returns the identifier of the block in the palette whose color is
// closest to c. When several blocks are equally close, the one declared first
// wins.
func Match(c Color, p *Palette) string {
	return p.blocks[matchLinear(c, p)].ID
}

func matchLinear(c Color, p *Palette) int {
	best := 0
	bestDist := c.DistanceSq(p.blocks[0].Color)

	for i := 1; i < len(p.blocks); i++ {
		dist := c.DistanceSq(p.blocks[i].Color)
		if dist < bestDist {
			best = i
			bestDist = dist
		}
	}

	return best
}

// Matcher finds the palette index of the block closest to a color.
// Implementations must agree with Match, including how ties are broken, and
// must be safe for concurrent use.
type Matcher interface {
	MatchIndex(c Color) int
}

// MatcherKind names a Matcher implementation.
type MatcherKind string

// Available matchers.
const (
	MatcherLinear MatcherKind = "linear"
	MatcherTree   MatcherKind = "tree"
)

// NewMatcher returns a matcher of the given kind for the palette. The empty
// kind selects the tree matcher.
func NewMatcher(p *Palette, kind MatcherKind) (Matcher, error) {
	switch kind {
	case MatcherLinear:
		return LinearMatcher{Palette: p}, nil
	case MatcherTree, "":
		return NewTreeMatcher(p), nil
	default:
		return nil, fmt.Errorf("kabe: NewMatcher: unknown matcher %q: %w", kind, ErrInvalidOptions)
	}
}

// LinearMatcher scans the whole palette for every color.
type LinearMatcher struct {
	Palette *Palette
}

// MatchIndex implements Matcher.
func (m LinearMatcher) MatchIndex(c Color) int {
	return matchLinear(c, m.Palette)
}

// TreeMatcher searches a k-d tree built over the distinct colors of a
// palette.
type TreeMatcher struct {
	tree *kdtree.Tree
	// first maps each distinct color to the lowest palette index using it.
	first map[Color]int
}

// NewTreeMatcher builds a TreeMatcher for the palette.
func NewTreeMatcher(p *Palette) *TreeMatcher {
	first := make(map[Color]int, p.Len())
	points := make(kdtree.Points, 0, p.Len())

	for i, def := range p.blocks {
		if _, found := first[def.Color]; found {
			continue
		}

		first[def.Color] = i
		points = append(points, colorPoint(def.Color))
	}

	return &TreeMatcher{
		tree:  kdtree.New(points, false),
		first: first,
	}
}

// MatchIndex implements Matcher.
func (m *TreeMatcher) MatchIndex(c Color) int {
	q := colorPoint(c)
	_, dist := m.tree.Nearest(q)

	// Every color at exactly the nearest distance is a candidate, the
	// earliest declared one wins.
	keeper := kdtree.NewDistKeeper(dist)
	m.tree.NearestSet(keeper, q)

	best := -1
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}

		pt := cd.Comparable.(kdtree.Point)
		i := m.first[Color{R: uint8(pt[0]), G: uint8(pt[1]), B: uint8(pt[2])}]
		if best < 0 || i < best {
			best = i
		}
	}

	return best
}

func colorPoint(c Color) kdtree.Point {
	return kdtree.Point{float64(c.R), float64(c.G), float64(c.B)}
}
