package kabe

import (
	"errors"
	"fmt"
)

// Possible conversion errors. Errors returned by this package wrap one of
// these, so test for them with errors.Is.
var (
	ErrImageDecode       = errors.New("kabe: image could not be decoded")
	ErrInvalidDimensions = errors.New("kabe: invalid image dimensions")
	ErrEmptyGrid         = errors.New("kabe: block grid is empty")
	ErrEmptyPalette      = errors.New("kabe: palette must have at least one block")
	ErrDuplicateBlock    = errors.New("kabe: duplicate block identifier")
	ErrInvalidBlockID    = errors.New("kabe: invalid block identifier")
	ErrUnknownBlock      = errors.New("kabe: block not in palette")
	ErrInvalidOptions    = errors.New("kabe: invalid options")
)

// WriteError is returned when a script artifact cannot be persisted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("kabe: failed to write %q: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
