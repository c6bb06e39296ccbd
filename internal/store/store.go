// Package store implements the persistence capability §9 calls for:
// a small `{getDirectory, getFile, writeAtomic, remove, iterate}`
// abstraction so the batch store, row-offset index, annotation store,
// and fuzzy index all spill to the same private-filesystem backend
// and tests can substitute an in-memory one.
//
// No example in the reference pack demonstrates atomic rename
// (app/workspace/local.go's own workspace persistence uses a plain
// os.WriteFile); write-temp-then-rename is implemented directly
// against os/io since the spec requires it regardless, per §5's
// "write-to-temp-then-atomic-rename where rename is available, falling
// back to truncate+write" rule.
package store

import (
	"errors"
	"io"
)

// ErrNotExist is returned by Get when the key has no backing file.
var ErrNotExist = errors.New("store: key does not exist")

// Dataset scopes a store to one dataset's spill directory, keyed by
// fingerprint or dataset key (the facade decides which).
type Dataset interface {
	// Get opens an existing file for reading. Returns ErrNotExist if absent.
	Get(name string) (io.ReadCloser, error)

	// WriteAtomic writes the full contents of r to name such that readers
	// either see the old contents or the complete new contents, never a
	// partial write: write to a temp file in the same directory, fsync,
	// then rename over the target. Falls back to truncate+write when the
	// backend cannot rename (e.g. an in-memory fake needs no fallback).
	WriteAtomic(name string, r io.Reader) error

	// Remove deletes name. Removing an absent name is not an error.
	Remove(name string) error

	// Iterate lists names matching glob (doublestar syntax) under this
	// dataset's directory, for spill-file housekeeping.
	Iterate(glob string) ([]string, error)
}

// Capability opens per-dataset scopes rooted at a single private
// filesystem location (or an in-memory fallback when no writable
// directory is available to the process).
type Capability interface {
	// GetDirectory returns (creating if needed) the Dataset scoped to key.
	GetDirectory(key string) (Dataset, error)
}
