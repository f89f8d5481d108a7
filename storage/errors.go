package storage

import (
	"errors"
	"fmt"
)

// Common storage errors.
var (
	// ErrNotFound is returned when a graph or backup is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTriad is returned when a triad name fails the path-safety check.
	ErrInvalidTriad = errors.New("invalid triad name")

	// ErrValidation is returned when a graph fails validation before a write.
	ErrValidation = errors.New("graph validation failed")

	// ErrCorrupt is returned when an on-disk graph cannot be parsed.
	ErrCorrupt = errors.New("graph file corrupt")
)

// StorageError wraps an I/O failure (disk full, permissions, lock contention)
// with the operation and path where it occurred. The original file is always
// left intact when one of these surfaces from a write.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}
