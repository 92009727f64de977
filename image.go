package kabe

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	// Formats accepted by Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/gift"
)

// DefaultTargetSize is the default width and height of a normalized grid.
const DefaultTargetSize = 256

// PixelGrid is a row-major grid of colors.
type PixelGrid struct {
	Width  int
	Height int
	Pix    []Color
}

// NewPixelGrid returns a grid of the given size filled with black.
func NewPixelGrid(width, height int) *PixelGrid {
	return &PixelGrid{
		Width:  width,
		Height: height,
		Pix:    make([]Color, width*height),
	}
}

// At returns the color at column x of row y.
func (g *PixelGrid) At(x, y int) Color {
	return g.Pix[y*g.Width+x]
}

// Set sets the color at column x of row y.
func (g *PixelGrid) Set(x, y int, c Color) {
	g.Pix[y*g.Width+x] = c
}

// Image returns the grid as an opaque image.
func (g *PixelGrid) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for i, c := range g.Pix {
		img.Pix[i*4] = c.R
		img.Pix[i*4+1] = c.G
		img.Pix[i*4+2] = c.B
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// NormalizeOptions controls how an image is fitted to a square grid.
type NormalizeOptions struct {
	Size int
	// Background fills the area not covered by the scaled image.
	Background Color
	// Resampling defaults to gift.LanczosResampling.
	Resampling gift.Resampling
}

// Normalize scales the image so its larger side is size pixels, then pads
// the shorter side with black so the result is exactly size by size. The
// scaled image is centered.
func Normalize(img image.Image, size int) (*PixelGrid, error) {
	return NormalizeWith(img, NormalizeOptions{Size: size})
}

// NormalizeWith is like Normalize with control over the padding color and
// resampling filter.
func NormalizeWith(img image.Image, opts NormalizeOptions) (*PixelGrid, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("kabe: Normalize: size must be positive, got %d: %w",
			opts.Size, ErrInvalidOptions)
	}

	if img == nil {
		return nil, fmt.Errorf("kabe: Normalize: nil image: %w", ErrImageDecode)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("kabe: Normalize: image is %dx%d: %w",
			bounds.Dx(), bounds.Dy(), ErrInvalidDimensions)
	}

	resampling := opts.Resampling
	if resampling == nil {
		resampling = gift.LanczosResampling
	}

	w, h := fitSize(bounds.Dx(), bounds.Dy(), opts.Size)
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	gift.New(gift.Resize(w, h, resampling)).Draw(scaled, flatten(img))

	grid := NewPixelGrid(opts.Size, opts.Size)
	for i := range grid.Pix {
		grid.Pix[i] = opts.Background
	}

	offX := (opts.Size - w) / 2
	offY := (opts.Size - h) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := scaled.PixOffset(x, y)
			grid.Set(offX+x, offY+y, Color{
				R: scaled.Pix[off],
				G: scaled.Pix[off+1],
				B: scaled.Pix[off+2],
			})
		}
	}

	return grid, nil
}

// fitSize scales w by h so that the larger side equals size.
func fitSize(w, h, size int) (int, int) {
	if w >= h {
		return size, max(1, (h*size+w/2)/w)
	}
	return max(1, (w*size+h/2)/h), size
}

// flatten drops the alpha channel of the image, returning an opaque copy
// anchored at the origin.
func flatten(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			n := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			off := out.PixOffset(x-bounds.Min.X, y-bounds.Min.Y)
			out.Pix[off] = n.R
			out.Pix[off+1] = n.G
			out.Pix[off+2] = n.B
			out.Pix[off+3] = 0xff
		}
	}

	return out
}

// Decode decodes an image in any of the registered formats.
func Decode(rd io.Reader) (image.Image, error) {
	img, _, err := image.Decode(bufio.NewReader(rd))
	if err != nil {
		return nil, fmt.Errorf("kabe: Decode: %w: %w", ErrImageDecode, err)
	}

	return img, nil
}

// DecodeLimited decodes an encoded image, first checking from its header
// that it has at most maxPixels pixels. A maxPixels of zero or less disables
// the check.
func DecodeLimited(data []byte, maxPixels int64) (image.Image, error) {
	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("kabe: Decode: %w: %w", ErrImageDecode, err)
		}

		if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
			return nil, fmt.Errorf("kabe: Decode: image is %dx%d, more than %d pixels: %w",
				cfg.Width, cfg.Height, maxPixels, ErrInvalidDimensions)
		}
	}

	return Decode(bytes.NewReader(data))
}

// DecodeFile opens and decodes the image at path.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("kabe: DecodeFile: %v: %w", err, ErrImageDecode)
	}
	defer f.Close()

	return Decode(f)
}
