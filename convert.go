package kabe

import (
	"fmt"
	"image"
)

// Stage is a step of a conversion.
type Stage int

// Conversion stages, in the order they complete.
const (
	StageNormalized Stage = iota + 1
	StageQuantized
	StageCompiled
)

func (s Stage) String() string {
	switch s {
	case StageNormalized:
		return "normalized"
	case StageQuantized:
		return "quantized"
	case StageCompiled:
		return "compiled"
	default:
		return "unknown"
	}
}

// Options configures a Converter.
type Options struct {
	// TargetSize is the width and height of the wall in blocks.
	TargetSize int
	// DepthOffset is how far in front of the origin the wall is placed.
	DepthOffset int
	// Palette defaults to DefaultPalette().
	Palette *Palette
	// Background fills the padding around non-square images.
	Background Color
	Matcher    MatcherKind
	// Workers bounds quantization concurrency, 0 means GOMAXPROCS.
	Workers int
	// Progress, if set, is called after each completed stage.
	Progress func(Stage)
}

// DefaultOptions returns the default conversion options.
func DefaultOptions() Options {
	return Options{
		TargetSize:  DefaultTargetSize,
		DepthOffset: DefaultDepthOffset,
		Palette:     DefaultPalette(),
		Matcher:     MatcherTree,
	}
}

// Validate checks the options.
func (o *Options) Validate() error {
	if o.TargetSize <= 0 {
		return fmt.Errorf("kabe: target size must be positive, got %d: %w",
			o.TargetSize, ErrInvalidOptions)
	}
	if o.Workers < 0 {
		return fmt.Errorf("kabe: workers must not be negative, got %d: %w",
			o.Workers, ErrInvalidOptions)
	}
	return nil
}

// Result is the outcome of a conversion.
type Result struct {
	Pixels   *PixelGrid
	Blocks   *BlockGrid
	Commands []PlacementCommand
}

// Script returns the serialized placement commands.
func (r *Result) Script() string {
	return Serialize(r.Commands)
}

// Converter converts images into placement commands. It is safe for
// concurrent use.
type Converter struct {
	opts    Options
	matcher Matcher
}

// NewConverter validates the options and prepares a converter.
func NewConverter(opts Options) (*Converter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if opts.Palette == nil {
		opts.Palette = DefaultPalette()
	}

	matcher, err := NewMatcher(opts.Palette, opts.Matcher)
	if err != nil {
		return nil, err
	}

	return &Converter{
		opts:    opts,
		matcher: matcher,
	}, nil
}

// Options returns the options the converter was created with.
func (c *Converter) Options() Options {
	return c.opts
}

// Palette returns the palette blocks are chosen from.
func (c *Converter) Palette() *Palette {
	return c.opts.Palette
}

// Convert normalizes, quantizes and compiles an image.
func (c *Converter) Convert(img image.Image) (*Result, error) {
	pixels, err := NormalizeWith(img, NormalizeOptions{
		Size:       c.opts.TargetSize,
		Background: c.opts.Background,
	})
	if err != nil {
		return nil, err
	}
	c.progress(StageNormalized)

	blocks, err := QuantizeWith(pixels, c.opts.Palette, QuantizeOptions{
		Matcher: c.matcher,
		Workers: c.opts.Workers,
	})
	if err != nil {
		return nil, err
	}
	c.progress(StageQuantized)

	cmds, err := Compile(blocks, c.opts.DepthOffset)
	if err != nil {
		return nil, err
	}
	c.progress(StageCompiled)

	return &Result{
		Pixels:   pixels,
		Blocks:   blocks,
		Commands: cmds,
	}, nil
}

// ConvertFile converts the image at input and writes the script to output.
// Nothing is written unless the conversion succeeds.
func (c *Converter) ConvertFile(input, output string) (*Result, error) {
	img, err := DecodeFile(input)
	if err != nil {
		return nil, err
	}

	res, err := c.Convert(img)
	if err != nil {
		return nil, err
	}

	if err := WriteScript(output, res.Commands); err != nil {
		return nil, err
	}

	return res, nil
}

func (c *Converter) progress(s Stage) {
	if c.opts.Progress != nil {
		c.opts.Progress(s)
	}
}
