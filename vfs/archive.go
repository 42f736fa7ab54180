package vfs

import (
	"io"
	"time"

	"github.com/devblok/texstream/utility/kar"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// Archive serves the files of a kar archive. A file is decompressed whole
// when it is opened. Every file reports the creation time of the archive.
type Archive struct {
	archive *kar.Archive
	closer  io.Closer
	modTime time.Time
}

// NewArchive serves the archive read from r.
func NewArchive(r io.ReaderAt) (*Archive, error) {
	ar, err := kar.Open(r)
	if err != nil {
		return nil, err
	}
	return &Archive{
		archive: ar,
		modTime: time.Unix(ar.Header().DateCreated, 0),
	}, nil
}

// OpenArchive maps the archive at path.
func OpenArchive(path string) (*Archive, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	a, err := NewArchive(r)
	if err != nil {
		r.Close()
		return nil, errors.Wrap(err, path)
	}
	a.closer = r
	return a, nil
}

// Open decompresses the named file.
func (a *Archive) Open(name string) (File, error) {
	data, err := a.archive.ReadAll(Clean(name))
	if errors.Is(err, kar.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotExist, "open %s", name)
	}
	if err != nil {
		return nil, err
	}
	return newMemFile(data, a.modTime), nil
}

// Stat reports the decompressed size of the named file.
func (a *Archive) Stat(name string) (Info, error) {
	e, ok := a.archive.Entry(Clean(name))
	if !ok {
		return Info{}, errors.Wrapf(ErrNotExist, "stat %s", name)
	}
	return Info{Name: e.Name, Size: e.Size, ModTime: a.modTime}, nil
}

// Names lists the archived files.
func (a *Archive) Names() []string {
	return a.archive.Names()
}

// Close unmaps an archive opened with OpenArchive.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
