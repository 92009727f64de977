package kabe

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Serialize returns the commands as a script, one command per line. There is
// no trailing newline.
func Serialize(cmds []PlacementCommand) string {
	var sb strings.Builder
	sb.Grow(len(cmds) * 40)
	WriteCommands(&sb, cmds)
	return sb.String()
}

// WriteCommands writes the commands as a script to a writer.
func WriteCommands(w io.Writer, cmds []PlacementCommand) (int64, error) {
	wr := bufio.NewWriter(w)

	var total int64
	line := make([]byte, 0, 64)
	for i, cmd := range cmds {
		line = line[:0]
		if i > 0 {
			line = append(line, '\n')
		}
		line = cmd.appendTo(line)

		n, err := wr.Write(line)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	return total, wr.Flush()
}

// WriteScript writes the commands as a script to path. The script is first
// written next to path and then renamed over it, so path either keeps its
// previous contents or holds the complete script. The directory must exist.
func WriteScript(path string, cmds []PlacementCommand) error {
	if len(cmds) == 0 {
		return ErrEmptyGrid
	}

	return WriteFileAtomic(path, func(w io.Writer) error {
		_, err := WriteCommands(w, cmds)
		return err
	})
}

// WriteFileAtomic writes the output of write to path through a temporary
// file in the same directory. Failures are returned as a *WriteError.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	tmp := f.Name()
	fail := func(err error) error {
		f.Close()
		os.Remove(tmp)
		return &WriteError{Path: path, Err: err}
	}

	if err := write(f); err != nil {
		return fail(err)
	}
	if err := f.Chmod(0644); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &WriteError{Path: path, Err: err}
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &WriteError{Path: path, Err: err}
	}

	return nil
}
