package vfs

import (
	"time"

	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
)

// Box serves files packed into the binary with packr. Boxed files have
// no modification time of their own, they all report the time the Box
// was created.
type Box struct {
	box     packr.Box
	modTime time.Time
}

// NewBox wraps a packr box.
func NewBox(box packr.Box) *Box {
	return &Box{box: box, modTime: time.Now()}
}

// Open returns the boxed file.
func (b *Box) Open(name string) (File, error) {
	name = Clean(name)
	if !b.box.Has(name) {
		return nil, errors.Wrapf(ErrNotExist, "open %s", name)
	}
	data, err := b.box.Find(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return newMemFile(data, b.modTime), nil
}

// Stat reports the size of the boxed file.
func (b *Box) Stat(name string) (Info, error) {
	f, err := b.Open(name)
	if err != nil {
		return Info{}, err
	}
	return Info{Name: Clean(name), Size: f.Size(), ModTime: b.modTime}, nil
}
