package store

import (
	"bytes"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/pkg/xfer/encoding/frame"
)

// Memory keeps files in memory. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		files: make(map[string][]byte),
	}
}

// WriteFile stores data under name, replacing any existing file.
func (m *Memory) WriteFile(name string, data []byte) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[name] = bytes.Clone(data)
	return nil
}

// ReadFile returns a copy of the content of name.
func (m *Memory) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[name]
	if !ok {
		return nil, notExist("read", name)
	}
	return append([]byte{}, data...), nil
}

func (m *Memory) Open(name string) (io.ReadCloser, int64, error) {
	data, err := m.ReadFile(name)
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *Memory) Create(name string) (Writer, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	return &memWriter{m: m, name: name}, nil
}

func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; !ok {
		return notExist("remove", name)
	}
	delete(m.files, name)
	return nil
}

func (m *Memory) List() ([]frame.Entry, error) {
	m.mu.RLock()
	entries := lo.FilterMap(lo.Entries(m.files), func(f lo.Entry[string, []byte], _ int) (frame.Entry, bool) {
		return entry(f.Key, int64(len(f.Value)))
	})
	m.mu.RUnlock()

	slices.SortFunc(entries, func(a, b frame.Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries, nil
}

type memWriter struct {
	bytes.Buffer
	m    *Memory
	name string
}

func (w *memWriter) Commit() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()

	w.m.files[w.name] = bytes.Clone(w.Bytes())
	return nil
}

func (w *memWriter) Abort() error {
	w.Reset()
	return nil
}
