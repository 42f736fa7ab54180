// Package targa reads Truevision TGA files, the uncompressed texture
// source. The header alone is enough to size a texture, decoding goes
// through the image package.
package targa

import (
	"bytes"
	"encoding/binary"
	"image"
	"io"

	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/vfs"
	"github.com/pkg/errors"

	_ "github.com/ftrvxmtrx/tga" // registers the tga format
)

// package errors
var (
	ErrFormat = errors.New("not a supported tga file")
)

// HeaderSize is the size of the fixed file header.
const HeaderSize = 18

// Image types
const (
	TypeNone          = 0
	TypeColorMapped   = 1
	TypeTrueColor     = 2
	TypeGrayscale     = 3
	TypeRLEColorMap   = 9
	TypeRLETrueColor  = 10
	TypeRLEGrayscale  = 11
	descriptorAlpha   = 0x0f
	descriptorTopDown = 0x20
)

// Header is the fixed TGA header, bit exact.
type Header struct {
	IDLength        uint8
	ColorMapType    uint8
	ImageType       uint8
	ColorMapOrigin  uint16
	ColorMapLength  uint16
	ColorMapDepth   uint8
	XOrigin         uint16
	YOrigin         uint16
	Width           uint16
	Height          uint16
	BitsPerPixel    uint8
	ImageDescriptor uint8
}

// AlphaBits is the number of attribute bits per pixel.
func (h Header) AlphaBits() int {
	return int(h.ImageDescriptor & descriptorAlpha)
}

// TopDown reports whether the first row stored is the top one.
func (h Header) TopDown() bool {
	return h.ImageDescriptor&descriptorTopDown != 0
}

// RLE reports whether the pixel data is run length encoded.
func (h Header) RLE() bool {
	return h.ImageType >= TypeRLEColorMap
}

// Format is the pixel format closest to what the file stores. Colour
// mapped images report the format of their palette entries.
func (h Header) Format() pixel.Format {
	bits := h.BitsPerPixel
	switch h.ImageType {
	case TypeGrayscale, TypeRLEGrayscale:
		if bits == 8 {
			return pixel.L8
		}
		return pixel.Unknown
	case TypeColorMapped, TypeRLEColorMap:
		bits = h.ColorMapDepth
	case TypeTrueColor, TypeRLETrueColor:
	default:
		return pixel.Unknown
	}
	switch bits {
	case 32:
		if h.AlphaBits() == 0 {
			return pixel.X8R8G8B8
		}
		return pixel.A8R8G8B8
	case 24:
		return pixel.R8G8B8
	case 16, 15:
		if h.AlphaBits() == 0 {
			return pixel.X1R5G5B5
		}
		return pixel.A1R5G5B5
	}
	return pixel.Unknown
}

// ReadHeader parses the header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Header{}, errors.Wrap(err, "read tga header")
	}
	if h.Width == 0 || h.Height == 0 || h.Format() == pixel.Unknown {
		return Header{}, errors.Wrapf(ErrFormat, "type %d, %d bits, %dx%d",
			h.ImageType, h.BitsPerPixel, h.Width, h.Height)
	}
	return h, nil
}

// Open reads the header of name.
func Open(fsys vfs.FileSystem, name string) (Header, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	h, err := ReadHeader(io.NewSectionReader(f, 0, HeaderSize))
	if err != nil {
		return Header{}, errors.Wrap(err, name)
	}
	return h, nil
}

// Decode reads and decodes the whole of name.
func Decode(fsys vfs.FileSystem, name string) (image.Image, Header, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, Header{}, err
	}
	defer f.Close()
	data, err := vfs.ReadAll(f)
	if err != nil {
		return nil, Header{}, errors.Wrap(err, name)
	}
	h, err := ReadHeader(bytes.NewReader(data))
	if err != nil {
		return nil, Header{}, errors.Wrap(err, name)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Header{}, errors.Wrapf(err, "decode %s", name)
	}
	return img, h, nil
}
