// Package store provides the storage backends behind an xfer server.
//
// Stores are flat: every file is addressed by a single name with no directory part.
package store

import (
	"io"
	"io/fs"
	"strings"

	"github.com/pkg/errors"

	"github.com/pkg/xfer/encoding/frame"
)

// ErrInvalidName is returned for names that are empty, contain a path separator,
// or refer to the current or parent directory.
var ErrInvalidName = errors.New("store: invalid file name")

// Store is the file namespace served to clients.
//
// Missing files are reported with errors matching fs.ErrNotExist.
type Store interface {
	// Open returns the content of name and its size in bytes.
	Open(name string) (io.ReadCloser, int64, error)

	// Create starts writing name. Nothing is visible until Commit.
	Create(name string) (Writer, error)

	// Remove deletes name.
	Remove(name string) error

	// List returns every file, sorted by name.
	// Files too large for the protocol's size field are left out.
	List() ([]frame.Entry, error)
}

// Writer receives the body of an upload.
// Exactly one of Commit or Abort must be called.
type Writer interface {
	io.Writer

	// Commit publishes the written content under the name given to Create,
	// replacing any existing file.
	Commit() error

	// Abort discards the written content.
	Abort() error
}

// CleanName validates a name received from a client and returns it unchanged if it is usable.
func CleanName(name string) (string, error) {
	switch {
	case name == "", name == ".", name == "..":
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return name, nil
}

// entry converts a name and size into a listing entry.
// It reports false if size does not fit the protocol's size field.
func entry(name string, size int64) (frame.Entry, bool) {
	if size < 0 || size > frame.MaxSize {
		return frame.Entry{}, false
	}
	return frame.Entry{Name: name, Size: uint32(size)}, true
}

func notExist(op, name string) error {
	return &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
}
