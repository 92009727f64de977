// Package datapack packages placement scripts as a Minecraft datapack zip.
//
// Drop the archive into a world's datapacks directory, run /reload, then run
// the function printed by Pack.Command.
package datapack

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/tmpim/kabe"
)

const (
	// DefaultNamespace is the function namespace used when none is set.
	DefaultNamespace = "kabe"
	// DefaultPackFormat targets Minecraft 1.21.
	DefaultPackFormat = 48
	// DefaultFunctionName is used when no name can be derived from a path.
	DefaultFunctionName = "build_structure"

	// Pack formats below this store functions in "functions/".
	singularFunctionFormat = 45
)

// Possible errors.
var (
	ErrInvalidName       = errors.New("datapack: invalid name")
	ErrDuplicateFunction = errors.New("datapack: duplicate function")
	ErrEmptyPack         = errors.New("datapack: pack has no functions")
)

// Pack is a datapack being assembled.
type Pack struct {
	Namespace   string
	PackFormat  int
	Description string
	// Modified is the timestamp recorded for every file. The zero value
	// produces byte-identical archives for identical content.
	Modified time.Time

	functions []function
}

type function struct {
	name   string
	script string
}

// New returns an empty pack with the default format.
func New(namespace, description string) *Pack {
	return &Pack{
		Namespace:   namespace,
		PackFormat:  DefaultPackFormat,
		Description: description,
	}
}

// Add adds a function containing script. Names may contain / to nest
// functions in directories.
func (p *Pack) Add(name, script string) error {
	if !validName(name, true) {
		return fmt.Errorf("datapack: function %q: %w", name, ErrInvalidName)
	}

	if p.has(name) {
		return fmt.Errorf("datapack: function %q: %w", name,
			ErrDuplicateFunction)
	}

	p.functions = append(p.functions, function{name: name, script: script})
	return nil
}

// UniqueName returns name, or name followed by the smallest numeric suffix
// from _2 onwards that no function in the pack uses yet.
func (p *Pack) UniqueName(name string) string {
	candidate := name
	for i := 2; p.has(candidate); i++ {
		candidate = name + "_" + strconv.Itoa(i)
	}
	return candidate
}

func (p *Pack) has(name string) bool {
	for _, f := range p.functions {
		if f.name == name {
			return true
		}
	}
	return false
}

// Functions returns the names of the functions in the pack, in the order
// they were added.
func (p *Pack) Functions() []string {
	names := make([]string, len(p.functions))
	for i, f := range p.functions {
		names[i] = f.name
	}
	return names
}

// Command returns the command that runs the named function in game.
func (p *Pack) Command(name string) string {
	return "function " + p.NamespaceOrDefault() + ":" + name
}

// NamespaceOrDefault returns the namespace functions are written to,
// DefaultNamespace if none is set.
func (p *Pack) NamespaceOrDefault() string {
	if p.Namespace == "" {
		return DefaultNamespace
	}
	return p.Namespace
}

func (p *Pack) functionDir() string {
	if p.PackFormat < singularFunctionFormat {
		return "functions"
	}
	return "function"
}

// FunctionPath returns the path of the named function inside the archive.
func (p *Pack) FunctionPath(name string) string {
	return "data/" + p.NamespaceOrDefault() + "/" + p.functionDir() + "/" + name +
		".mcfunction"
}

type packMeta struct {
	Pack struct {
		PackFormat  int    `json:"pack_format"`
		Description string `json:"description"`
	} `json:"pack"`
}

// WriteTo writes the pack as a zip archive to w.
func (p *Pack) WriteTo(w io.Writer) (int64, error) {
	if !validName(p.NamespaceOrDefault(), false) {
		return 0, fmt.Errorf("datapack: namespace %q: %w", p.Namespace,
			ErrInvalidName)
	}

	if p.PackFormat <= 0 {
		return 0, fmt.Errorf("datapack: pack format must be positive, got %d",
			p.PackFormat)
	}

	if len(p.functions) == 0 {
		return 0, ErrEmptyPack
	}

	var meta packMeta
	meta.Pack.PackFormat = p.PackFormat
	meta.Pack.Description = p.Description

	metaData, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return 0, err
	}

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)

	if err := p.writeEntry(zw, "pack.mcmeta", metaData); err != nil {
		return cw.n, err
	}

	for _, f := range p.functions {
		err := p.writeEntry(zw, p.FunctionPath(f.name), []byte(f.script))
		if err != nil {
			return cw.n, err
		}
	}

	if err := zw.Close(); err != nil {
		return cw.n, err
	}

	return cw.n, nil
}

func (p *Pack) writeEntry(zw *zip.Writer, name string, data []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: p.Modified,
	})
	if err != nil {
		return err
	}

	_, err = fw.Write(data)
	return err
}

// WriteFile writes the pack to path. The file is replaced atomically.
func (p *Pack) WriteFile(path string) error {
	return kabe.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := p.WriteTo(w)
		return err
	})
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(data []byte) (int, error) {
	n, err := c.w.Write(data)
	c.n += int64(n)
	return n, err
}

func validName(name string, allowSlash bool) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.':
		case r == '/' && allowSlash:
		default:
			return false
		}
	}

	return !strings.HasPrefix(name, "/") && !strings.HasSuffix(name, "/") &&
		!strings.Contains(name, "//")
}

// FunctionName derives a function name from a file path, such as an input
// image, falling back to DefaultFunctionName.
func FunctionName(path string) string {
	base := filepath.Base(path)
	title := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))

	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name := strings.Trim(b.String(), "_.-")
	if name == "" {
		return DefaultFunctionName
	}

	return name
}
