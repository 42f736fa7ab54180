package vfs

import (
	"bytes"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Mem is an in-memory file system. It is safe for concurrent use.
type Mem struct {
	mu    sync.RWMutex
	files map[string]memEntry
}

type memEntry struct {
	data    []byte
	modTime time.Time
}

// NewMem creates an empty in-memory file system.
func NewMem() *Mem {
	return &Mem{files: make(map[string]memEntry)}
}

// Set stores data under name, replacing any previous content.
func (m *Mem) Set(name string, data []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[Clean(name)] = memEntry{data: data, modTime: modTime}
}

// Touch changes the modification time of an existing file.
func (m *Mem) Touch(name string, modTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.files[Clean(name)]
	if !ok {
		return errors.Wrapf(ErrNotExist, "touch %s", name)
	}
	e.modTime = modTime
	m.files[Clean(name)] = e
	return nil
}

// Remove deletes name if it exists.
func (m *Mem) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, Clean(name))
}

// Open returns a reader over the stored bytes. Later Set calls do not
// affect files that are already open.
func (m *Mem) Open(name string) (File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.files[Clean(name)]
	if !ok {
		return nil, errors.Wrapf(ErrNotExist, "open %s", name)
	}
	return newMemFile(e.data, e.modTime), nil
}

// Stat reports size and modification time of the named file.
func (m *Mem) Stat(name string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.files[Clean(name)]
	if !ok {
		return Info{}, errors.Wrapf(ErrNotExist, "stat %s", name)
	}
	return Info{Name: Clean(name), Size: int64(len(e.data)), ModTime: e.modTime}, nil
}

type memFile struct {
	*bytes.Reader
	modTime time.Time
}

func newMemFile(data []byte, modTime time.Time) *memFile {
	return &memFile{Reader: bytes.NewReader(data), modTime: modTime}
}

func (f *memFile) ModTime() time.Time {
	return f.modTime
}

func (f *memFile) Close() error {
	return nil
}
