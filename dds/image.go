// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package dds reads DXT compressed DirectDraw surface files. Opening a
// file only parses its header and lays out the mip level table, so the
// loader can negotiate sizes without reading pixel data. Load reads the
// compressed bytes of the retained levels in one go.
package dds

import (
	"io"
	"sync"
	"time"

	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/vfs"
	"github.com/pkg/errors"
)

// package errors
var (
	ErrUnavailable = errors.New("dds file unavailable")
	ErrCorrupt     = errors.New("dds file corrupt")
	ErrNotLoaded   = errors.New("dds level data not loaded")
	ErrMismatch    = errors.New("destination does not match dds level")
)

// maxLoadSize is the largest payload Load accepts; anything bigger is
// taken as a corrupt header.
const maxLoadSize = 0x80000000

// Policy decides which of the smallest mip levels are kept.
type Policy int

// Mip level policies.
const (
	// DropTwoSmallest drops the two smallest levels of chains longer than
	// two levels and keeps a single level otherwise. Some hardware could
	// not sample the tiniest DXT levels.
	DropTwoSmallest Policy = iota
	KeepAll
)

// Level locates one mip level inside a face of the file payload.
type Level struct {
	Offset int
	Size   int
}

// Image is an opened DDS file.
type Image struct {
	name    string
	fsys    vfs.FileSystem
	header  Header
	format  pixel.Format
	kind    pixel.Kind
	modTime time.Time

	width, height, depth int
	headerMips           int
	reduction            int
	mips                 int

	levels     []Level
	faceStride int
	fileSize   int64

	mutex sync.Mutex
	data  []byte
}

// Open parses the header of name and computes its level table. reduction
// top levels are skipped; it is clamped so at least one level remains.
func Open(fsys vfs.FileSystem, name string, reduction int, policy Policy) (*Image, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: %v", name, err)
	}
	defer f.Close()

	header, err := ReadHeader(io.NewSectionReader(f, 0, f.Size()))
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: %v", name, err)
	}
	if header.Size != HeaderSize {
		return nil, errors.Wrapf(ErrUnavailable, "%s: header size %d", name, header.Size)
	}
	format := header.Format()
	if format == pixel.Unknown {
		return nil, errors.Wrapf(ErrUnavailable, "%s: unsupported fourcc %08x", name, header.PixelFormat.FourCC)
	}
	if header.Width == 0 || header.Height == 0 {
		return nil, errors.Wrapf(ErrUnavailable, "%s: empty surface", name)
	}

	img := &Image{
		name:     name,
		fsys:     fsys,
		header:   header,
		format:   format,
		kind:     header.Kind(),
		modTime:  f.ModTime(),
		width:    int(header.Width),
		height:   int(header.Height),
		depth:    1,
		fileSize: f.Size(),
	}
	if img.kind == pixel.Volume && header.Depth > 1 {
		img.depth = int(header.Depth)
	}

	img.headerMips = int(header.MipMapCount)
	if img.headerMips < 1 {
		img.headerMips = 1
	}
	if reduction < 0 {
		reduction = 0
	}
	if reduction > img.headerMips-1 {
		reduction = img.headerMips - 1
	}
	img.reduction = reduction
	img.mips = img.headerMips - reduction
	if policy == DropTwoSmallest {
		if img.mips > 2 {
			img.mips -= 2
		} else {
			img.mips = 1
		}
	}

	img.levels = make([]Level, img.headerMips)
	offset := 0
	for i := range img.levels {
		size := levelSize(format, img.width>>uint(i), img.height>>uint(i), img.depth>>uint(i))
		img.levels[i] = Level{Offset: offset, Size: size}
		offset += size
	}
	img.faceStride = offset
	return img, nil
}

func levelSize(f pixel.Format, w, h, d int) int {
	if d < 1 {
		d = 1
	}
	return f.SurfaceSize(w, h) * d
}

// Name is the file name the image was opened with.
func (i *Image) Name() string { return i.name }

// Header returns a copy of the parsed header.
func (i *Image) Header() Header { return i.header }

// Format is the compressed pixel format.
func (i *Image) Format() pixel.Format { return i.format }

// Kind is plain, cube or volume.
func (i *Image) Kind() pixel.Kind { return i.kind }

// ModTime is the modification time of the file.
func (i *Image) ModTime() time.Time { return i.modTime }

// Reduction is the number of skipped top levels after clamping.
func (i *Image) Reduction() int { return i.reduction }

// MipLevels is the number of retained levels.
func (i *Image) MipLevels() int { return i.mips }

// HeaderMipLevels is the level count stored in the file.
func (i *Image) HeaderMipLevels() int { return i.headerMips }

// FullWidth and FullHeight are the header dimensions before reduction.
func (i *Image) FullWidth() int  { return i.width }
func (i *Image) FullHeight() int { return i.height }

// Width of a retained level, never less than one block.
func (i *Image) Width(level int) int {
	return floor(i.width>>uint(i.reduction)>>uint(level), 4)
}

// Height of a retained level, never less than one block.
func (i *Image) Height(level int) int {
	return floor(i.height>>uint(i.reduction)>>uint(level), 4)
}

// Depth of a retained level. Plain and cube textures have depth one.
func (i *Image) Depth(level int) int {
	return floor(i.depth>>uint(i.reduction)>>uint(level), 1)
}

// LevelSize is the byte size of a retained level of one face.
func (i *Image) LevelSize(level int) int {
	return i.levels[i.reduction+level].Size
}

// Levels returns the table of all levels stored in one face, including
// the ones skipped by the reduction.
func (i *Image) Levels() []Level {
	out := make([]Level, len(i.levels))
	copy(out, i.levels)
	return out
}

func floor(v, min int) int {
	if v < min {
		return min
	}
	return v
}

// skipped is the number of payload bytes in front of the first retained
// level. Cube maps are read whole, their faces interleave with the
// skipped levels.
func (i *Image) skipped() int {
	if i.kind == pixel.Cube {
		return 0
	}
	return i.levels[i.reduction].Offset
}

func (i *Image) required() int {
	if i.kind == pixel.Cube {
		return i.faceStride * pixel.CubeFaces
	}
	last := i.levels[i.reduction+i.mips-1]
	return last.Offset + last.Size - i.skipped()
}

// Load reads the retained levels into memory. Calling it again after a
// successful load does nothing.
func (i *Image) Load() error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if i.data != nil {
		return nil
	}

	start := int64(MagicLength+HeaderSize) + int64(i.skipped())
	size := i.fileSize - start
	if size <= 0 || size >= maxLoadSize {
		return errors.Wrapf(ErrCorrupt, "%s: payload of %d bytes", i.name, size)
	}
	if size < int64(i.required()) {
		return errors.Wrapf(ErrCorrupt, "%s: payload of %d bytes, levels need %d", i.name, size, i.required())
	}

	f, err := i.fsys.Open(i.name)
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "%s: %v", i.name, err)
	}
	defer f.Close()

	data := make([]byte, size)
	if n, err := f.ReadAt(data, start); err != nil && !(err == io.EOF && int64(n) == size) {
		return errors.Wrapf(err, "read %s", i.name)
	}
	i.data = data
	return nil
}

// IsLoaded reports whether Load succeeded.
func (i *Image) IsLoaded() bool {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.data != nil
}

func (i *Image) loaded() []byte {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.data
}

// Level returns the compressed bytes of a retained level. For volume
// textures the slices follow each other.
func (i *Image) Level(level int) ([]byte, error) {
	return i.FaceLevel(0, level)
}

// FaceLevel returns the compressed bytes of a retained level of a cube
// face. Plain and volume textures only have face 0.
func (i *Image) FaceLevel(face, level int) ([]byte, error) {
	data := i.loaded()
	if data == nil {
		return nil, errors.Wrap(ErrNotLoaded, i.name)
	}
	if level < 0 || level >= i.mips || face < 0 || face >= i.kind.Faces() {
		return nil, errors.Errorf("%s: no level %d of face %d", i.name, level, face)
	}
	l := i.levels[i.reduction+level]
	off := face*i.faceStride + l.Offset - i.skipped()
	return data[off : off+l.Size], nil
}
