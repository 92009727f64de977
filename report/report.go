// Package report summarizes how faithfully a block grid reproduces its source
// image.
package report

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/cenkalti/dominantcolor"

	"github.com/tmpim/kabe"
)

// MaxDominant is the number of dominant source colors reported.
const MaxDominant = 5

// BlockCount is the number of times a block is used.
type BlockCount struct {
	ID    string  `json:"id"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// DominantColor is a prominent color of the source image and the block it
// was matched to.
type DominantColor struct {
	Color  string  `json:"color"`
	Weight float64 `json:"weight"`
	Block  string  `json:"block"`
}

// Report describes a conversion.
type Report struct {
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Histogram []BlockCount `json:"histogram"`
	// MeanDeltaE and MaxDeltaE are the CIEDE2000 differences between each
	// source pixel and the color of the block chosen for it.
	MeanDeltaE float64         `json:"mean_delta_e"`
	MaxDeltaE  float64         `json:"max_delta_e"`
	Dominant   []DominantColor `json:"dominant"`
}

// Build compares pixels against the blocks chosen for them.
func Build(pixels *kabe.PixelGrid, blocks *kabe.BlockGrid,
	p *kabe.Palette) (Report, error) {
	if blocks.Empty() {
		return Report{}, kabe.ErrEmptyGrid
	}

	if pixels == nil || pixels.Width != blocks.Width ||
		pixels.Height != blocks.Height {
		return Report{}, fmt.Errorf("report: pixel and block grids differ: %w",
			kabe.ErrInvalidDimensions)
	}

	if len(blocks.Blocks) != blocks.Width*blocks.Height ||
		len(pixels.Pix) != pixels.Width*pixels.Height {
		return Report{}, fmt.Errorf("report: grid sizes do not match their dimensions: %w",
			kabe.ErrInvalidDimensions)
	}

	r := Report{
		Width:  blocks.Width,
		Height: blocks.Height,
	}

	counts := make(map[string]int)
	var total float64

	for i, id := range blocks.Blocks {
		def, found := p.Lookup(id)
		if !found {
			return Report{}, fmt.Errorf("report: %q: %w", id, kabe.ErrUnknownBlock)
		}

		counts[id]++

		d := pixels.Pix[i].Colorful().DistanceCIEDE2000(def.Color.Colorful())
		total += d
		if d > r.MaxDeltaE {
			r.MaxDeltaE = d
		}
	}

	n := len(blocks.Blocks)
	r.MeanDeltaE = total / float64(n)

	for id, count := range counts {
		r.Histogram = append(r.Histogram, BlockCount{
			ID:    id,
			Count: count,
			Share: float64(count) / float64(n),
		})
	}

	sort.Slice(r.Histogram, func(i, j int) bool {
		a, b := r.Histogram[i], r.Histogram[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ID < b.ID
	})

	for _, c := range dominantcolor.FindWeight(pixels.Image(), MaxDominant) {
		if !(c.Weight > 0) {
			continue
		}

		col := kabe.ColorOf(c.RGBA)
		r.Dominant = append(r.Dominant, DominantColor{
			Color:  col.Hex(),
			Weight: c.Weight,
			Block:  kabe.Match(col, p),
		})
	}

	return r, nil
}

// Summary returns the report as human readable text.
func (r *Report) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%dx%d wall, %d blocks, %d distinct\n", r.Width, r.Height,
		r.Width*r.Height, len(r.Histogram))
	fmt.Fprintf(&b, "color error (CIEDE2000): mean %.2f, max %.2f\n",
		r.MeanDeltaE, r.MaxDeltaE)

	b.WriteString("\nblocks:\n")
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, count := range r.Histogram {
		fmt.Fprintf(tw, "  %s\t%d\t%.1f%%\n", count.ID, count.Count,
			count.Share*100)
	}
	tw.Flush()

	if len(r.Dominant) > 0 {
		b.WriteString("\ndominant colors:\n")
		tw = tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		for _, d := range r.Dominant {
			fmt.Fprintf(tw, "  %s\t%.1f%%\t-> %s\n", d.Color, d.Weight*100,
				d.Block)
		}
		tw.Flush()
	}

	return b.String()
}
