// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"io"
	"sort"
	"sync"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway.
func NewBuilder(header Header) *Builder {
	return &Builder{
		header: header,
		files:  make(map[string]builderFile),
	}
}

type builderFile struct {
	size       int64
	compressed []byte
}

// Builder collects compressed files and writes them out as an archive.
// Archives cannot be appended to once written.
type Builder struct {
	header Header

	mutex sync.Mutex
	files map[string]builderFile
}

// Add compresses data and stores it under name. It is safe to use
// concurrently in different goroutines.
func (b *Builder) Add(name string, data []byte) error {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return errors.Wrapf(err, "compress %s", name)
	}
	if err := writer.Close(); err != nil {
		return errors.Wrapf(err, "compress %s", name)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if _, ok := b.files[name]; ok {
		return errors.Wrap(ErrExists, name)
	}
	b.files[name] = builderFile{size: int64(len(data)), compressed: buf.Bytes()}
	return nil
}

// AddFrom reads r to the end and adds it under name.
func (b *Builder) AddFrom(name string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return errors.Wrapf(err, "read %s", name)
	}
	return b.Add(name, buf.Bytes())
}

// Len is the number of files added.
func (b *Builder) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.files)
}

// WriteTo bundles and writes all of the files added to the Builder
// into a kar archive that is ready to use. Files are ordered by name.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	names := make([]string, 0, len(b.files))
	for name := range b.files {
		names = append(names, name)
	}
	sort.Strings(names)

	header := b.header
	header.Index = header.Index[:0:0]
	var offset int64
	for _, name := range names {
		f := b.files[name]
		header.Index = append(header.Index, IndexEntry{
			Name:           name,
			Offset:         offset,
			Size:           f.size,
			CompressedSize: int64(len(f.compressed)),
		})
		offset += int64(len(f.compressed))
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, err
	}

	var written int64
	for _, chunk := range [][]byte{Magic[:], int64ToBinary(int64(len(rawHeader))), rawHeader} {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	for _, name := range names {
		n, err := w.Write(b.files[name].compressed)
		written += int64(n)
		if err != nil {
			return written, errors.Wrapf(err, "write %s", name)
		}
	}
	return written, nil
}
