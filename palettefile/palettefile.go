// Package palettefile reads and writes block palettes as YAML or JSON
// documents.
//
// A palette document looks like:
//
//	name: wool
//	blocks:
//	  - id: white_wool
//	    color: "#ffffff"
//	  - id: black_wool
//	    color: "#000000"
//
// Colors must be quoted in YAML, otherwise the # starts a comment. Block order
// is preserved, and it decides which block wins a color tie.
package palettefile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/tmpim/kabe"
)

// ErrInvalidDocument is returned when a document does not match the palette
// schema.
var ErrInvalidDocument = errors.New("palettefile: invalid palette document")

//go:embed palette.schema.json
var schemaSource string

var schema = jsonschema.MustCompileString("palette.schema.json", schemaSource)

// Document is the serialized form of a palette.
type Document struct {
	Name   string  `yaml:"name,omitempty" json:"name,omitempty"`
	Blocks []Entry `yaml:"blocks" json:"blocks"`
}

// Entry is a single block of a Document.
type Entry struct {
	ID    string `yaml:"id" json:"id"`
	Color string `yaml:"color" json:"color"`
}

// Load reads a palette document from path.
func Load(path string) (*kabe.Palette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("palettefile: Load: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return p, nil
}

// Parse decodes a YAML or JSON palette document.
func Parse(data []byte) (*kabe.Palette, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	return doc.Palette()
}

// ParseDocument decodes and validates a palette document without building the
// palette.
func ParseDocument(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var raw any
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("palettefile: %v: %w", err, ErrInvalidDocument)
	}

	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("palettefile: more than one document: %w",
			ErrInvalidDocument)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("palettefile: %v: %w", err, ErrInvalidDocument)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("palettefile: %v: %w", err, ErrInvalidDocument)
	}

	return &doc, nil
}

// Palette builds the palette described by the document.
func (d *Document) Palette() (*kabe.Palette, error) {
	defs := make([]kabe.BlockDefinition, len(d.Blocks))
	for i, entry := range d.Blocks {
		c, err := kabe.ParseHex(entry.Color)
		if err != nil {
			return nil, fmt.Errorf("palettefile: block %q: %w", entry.ID, err)
		}

		defs[i] = kabe.BlockDefinition{ID: entry.ID, Color: c}
	}

	return kabe.NewPalette(defs...)
}

// FromPalette returns the document form of p.
func FromPalette(name string, p *kabe.Palette) *Document {
	doc := &Document{
		Name:   name,
		Blocks: make([]Entry, 0, p.Len()),
	}

	for _, def := range p.Blocks() {
		doc.Blocks = append(doc.Blocks, Entry{
			ID:    def.ID,
			Color: def.Color.Hex(),
		})
	}

	return doc
}

// Marshal encodes p as a YAML palette document.
func Marshal(name string, p *kabe.Palette) ([]byte, error) {
	return yaml.Marshal(FromPalette(name, p))
}
