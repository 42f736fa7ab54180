package vfs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// OS serves files below Root from disk. Files are memory mapped, so
// concurrent ReadAt calls on one File are cheap.
type OS struct {
	Root string
}

// NewOS creates a file system rooted at dir.
func NewOS(dir string) *OS {
	return &OS{Root: dir}
}

func (o *OS) path(name string) string {
	return filepath.Join(o.Root, filepath.FromSlash(Clean(name)))
}

// Open maps the named file.
func (o *OS) Open(name string) (File, error) {
	p := o.path(name)
	st, err := os.Stat(p)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	if st.IsDir() {
		return nil, errors.Wrapf(ErrNotExist, "open %s: is a directory", name)
	}
	r, err := mmap.Open(p)
	if err != nil {
		return nil, errors.Wrapf(err, "map %s", name)
	}
	return &osFile{ReaderAt: r, modTime: st.ModTime()}, nil
}

// Stat reports size and modification time of the named file.
func (o *OS) Stat(name string) (Info, error) {
	st, err := os.Stat(o.path(name))
	if err != nil {
		return Info{}, errors.Wrapf(err, "stat %s", name)
	}
	return Info{Name: Clean(name), Size: st.Size(), ModTime: st.ModTime()}, nil
}

type osFile struct {
	*mmap.ReaderAt
	modTime time.Time
}

func (f *osFile) Size() int64 {
	return int64(f.Len())
}

func (f *osFile) ModTime() time.Time {
	return f.modTime
}
