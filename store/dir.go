package store

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	krfs "github.com/kr/fs"
	"github.com/pkg/errors"

	"github.com/pkg/xfer/encoding/frame"
)

// tempPrefix marks in-progress uploads; such files are never listed or served.
const tempPrefix = ".xfer-upload-"

// Dir stores files as regular files directly under a root directory.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root, creating the directory if needed.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve root %q", root)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create root %q", abs)
	}

	return &Dir{root: abs}, nil
}

// Root returns the absolute root directory.
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) path(name string) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(name, tempPrefix) {
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return filepath.Join(d.root, name), nil
}

func (d *Dir) Open(name string) (io.ReadCloser, int64, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, 0, err
	}

	// Symlinks are not followed, matching Remove and List.
	lfi, err := os.Lstat(p)
	if err != nil {
		return nil, 0, err
	}
	if !lfi.Mode().IsRegular() {
		return nil, 0, notExist("open", name)
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}

	// The name was swapped between Lstat and Open.
	if !os.SameFile(lfi, fi) {
		f.Close()
		return nil, 0, notExist("open", name)
	}

	return f, fi.Size(), nil
}

func (d *Dir) Create(name string) (Writer, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(d.root, tempPrefix+"*")
	if err != nil {
		return nil, err
	}

	return &dirWriter{
		File:  f,
		final: p,
	}, nil
}

func (d *Dir) Remove(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}

	fi, err := os.Lstat(p)
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return notExist("remove", name)
	}

	return os.Remove(p)
}

// List walks the root without descending into subdirectories.
func (d *Dir) List() ([]frame.Entry, error) {
	var entries []frame.Entry

	walker := krfs.Walk(d.root)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			if walker.Path() == d.root {
				return nil, err
			}
			continue
		}

		if walker.Path() == d.root {
			continue
		}

		fi := walker.Stat()
		if fi.IsDir() {
			walker.SkipDir()
			continue
		}

		if !fi.Mode().IsRegular() || strings.HasPrefix(fi.Name(), tempPrefix) {
			continue
		}

		if e, ok := entry(fi.Name(), fi.Size()); ok {
			entries = append(entries, e)
		}
	}

	slices.SortFunc(entries, func(a, b frame.Entry) int {
		return strings.Compare(a.Name, b.Name)
	})

	return entries, nil
}

type dirWriter struct {
	*os.File
	final string
}

func (w *dirWriter) Commit() error {
	if err := w.File.Close(); err != nil {
		os.Remove(w.File.Name())
		return err
	}

	if err := os.Rename(w.File.Name(), w.final); err != nil {
		os.Remove(w.File.Name())
		return err
	}
	return nil
}

func (w *dirWriter) Abort() error {
	w.File.Close()
	return os.Remove(w.File.Name())
}
