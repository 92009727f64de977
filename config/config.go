// Package config loads kabe settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tmpim/kabe"
	"github.com/tmpim/kabe/datapack"
	"github.com/tmpim/kabe/palettefile"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid configuration")

// Config holds settings shared by the CLI and the server.
type Config struct {
	TargetSize  int    `yaml:"target_size"`
	DepthOffset int    `yaml:"depth_offset"`
	Background  string `yaml:"background"`
	PaletteFile string `yaml:"palette_file"`
	Matcher     string `yaml:"matcher"`
	Workers     int    `yaml:"workers"`

	Server   Server   `yaml:"server"`
	Datapack Datapack `yaml:"datapack"`
}

type Server struct {
	Listen string `yaml:"listen"`
	// HistoryDB is the sqlite database recording conversions. Empty
	// disables history.
	HistoryDB      string `yaml:"history_db"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	// MaxSourcePixels bounds the width times height of uploaded images,
	// checked before they are decoded.
	MaxSourcePixels int64 `yaml:"max_source_pixels"`
}

type Datapack struct {
	Namespace   string `yaml:"namespace"`
	PackFormat  int    `yaml:"pack_format"`
	Description string `yaml:"description"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		TargetSize:  kabe.DefaultTargetSize,
		DepthOffset: kabe.DefaultDepthOffset,
		Background:  "#000000",
		Matcher:     string(kabe.MatcherTree),
		Server: Server{
			Listen:          ":9999",
			MaxUploadBytes:  16 << 20,
			MaxSourcePixels: 4096 * 4096,
		},
		Datapack: Datapack{
			Namespace:   datapack.DefaultNamespace,
			PackFormat:  datapack.DefaultPackFormat,
			Description: "Pixel art built by kabe",
		},
	}
}

// Load reads the configuration at path. Fields missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	c, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}

// Parse decodes a YAML configuration. Unknown fields are rejected.
func Parse(raw []byte) (Config, error) {
	c := Default()

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.TargetSize <= 0 {
		return fmt.Errorf("config: target_size must be positive: %w", ErrInvalid)
	}

	if _, err := kabe.ParseHex(c.Background); err != nil {
		return fmt.Errorf("config: background: %v: %w", err, ErrInvalid)
	}

	switch kabe.MatcherKind(c.Matcher) {
	case "", kabe.MatcherLinear, kabe.MatcherTree:
	default:
		return fmt.Errorf("config: unknown matcher %q: %w", c.Matcher, ErrInvalid)
	}

	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative: %w", ErrInvalid)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: server.max_upload_bytes must be positive: %w",
			ErrInvalid)
	}

	if c.Server.MaxSourcePixels <= 0 {
		return fmt.Errorf("config: server.max_source_pixels must be positive: %w",
			ErrInvalid)
	}

	if c.Datapack.PackFormat <= 0 {
		return fmt.Errorf("config: datapack.pack_format must be positive: %w",
			ErrInvalid)
	}

	return nil
}

// Palette returns the configured palette, loading PaletteFile if set.
func (c *Config) Palette() (*kabe.Palette, error) {
	if c.PaletteFile == "" {
		return kabe.DefaultPalette(), nil
	}

	return palettefile.Load(c.PaletteFile)
}

// ConverterOptions returns the conversion options described by c.
func (c *Config) ConverterOptions() (kabe.Options, error) {
	background, err := kabe.ParseHex(c.Background)
	if err != nil {
		return kabe.Options{}, fmt.Errorf("config: background: %w", err)
	}

	palette, err := c.Palette()
	if err != nil {
		return kabe.Options{}, err
	}

	return kabe.Options{
		TargetSize:  c.TargetSize,
		DepthOffset: c.DepthOffset,
		Palette:     palette,
		Background:  background,
		Matcher:     kabe.MatcherKind(c.Matcher),
		Workers:     c.Workers,
	}, nil
}

// NewPack returns an empty datapack using the configured settings.
func (c *Config) NewPack() *datapack.Pack {
	return &datapack.Pack{
		Namespace:   c.Datapack.Namespace,
		PackFormat:  c.Datapack.PackFormat,
		Description: c.Datapack.Description,
	}
}
