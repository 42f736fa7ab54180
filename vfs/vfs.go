// Package vfs is the file access seam of the texture pipeline. Textures,
// their DDS siblings and the embedded fallback assets are all read
// through a FileSystem, so tests and tools can swap the backing store.
package vfs

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// package errors
var (
	ErrNotExist = os.ErrNotExist
)

// File is an open, random access file.
type File interface {
	io.ReaderAt
	io.Closer

	// Size returns the length of the file in bytes
	Size() int64

	// ModTime returns the time the file was last written
	ModTime() time.Time
}

// Info describes a file without opening it.
type Info struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// FileSystem opens files by slash separated name.
type FileSystem interface {
	Open(name string) (File, error)
	Stat(name string) (Info, error)
}

// Timestamp returns the modification time of name in the 32 bit
// seconds form the content cache stores.
func Timestamp(fsys FileSystem, name string) (uint32, error) {
	info, err := fsys.Stat(name)
	if err != nil {
		return 0, err
	}
	return uint32(info.ModTime.Unix()), nil
}

// ReadAll reads the whole file.
func ReadAll(f File) ([]byte, error) {
	buf := make([]byte, f.Size())
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "read file")
	}
	return buf, nil
}

// Clean normalises a file name the way every FileSystem here keys files.
func Clean(name string) string {
	return path.Clean("/" + filepath.ToSlash(name))[1:]
}

// Chain tries each file system in turn. The first one that has the file
// wins.
func Chain(fss ...FileSystem) FileSystem {
	return chain(fss)
}

type chain []FileSystem

func (c chain) Open(name string) (File, error) {
	for _, fsys := range c {
		f, err := fsys.Open(name)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, ErrNotExist) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrNotExist, "open %s", name)
}

func (c chain) Stat(name string) (Info, error) {
	for _, fsys := range c {
		info, err := fsys.Stat(name)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, ErrNotExist) {
			return Info{}, err
		}
	}
	return Info{}, errors.Wrapf(ErrNotExist, "stat %s", name)
}
