// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dds

import (
	"encoding/binary"
	"io"

	"github.com/devblok/texstream/pixel"
	"github.com/pkg/errors"
)

// Sizes and flags of the legacy DirectDraw surface header.
const (
	Magic           = 0x20534444 // "DDS "
	MagicLength     = 4
	HeaderSize      = 124
	PixelFormatSize = 32

	FlagCaps        = 0x1
	FlagHeight      = 0x2
	FlagWidth       = 0x4
	FlagPitch       = 0x8
	FlagPixelFormat = 0x1000
	FlagMipMapCount = 0x20000
	FlagLinearSize  = 0x80000
	FlagDepth       = 0x800000

	PixelFormatFourCC = 0x4

	CapsComplex = 0x8
	CapsTexture = 0x1000
	CapsMipMap  = 0x400000

	Caps2CubeMap         = 0x200
	Caps2CubeMapAllFaces = 0xfc00
	Caps2Volume          = 0x200000
)

// PixelFormat is the pixel format descriptor embedded in Header.
type PixelFormat struct {
	Size        uint32
	Flags       uint32
	FourCC      uint32
	RGBBitCount uint32
	RBitMask    uint32
	GBitMask    uint32
	BBitMask    uint32
	ABitMask    uint32
}

// Header is the surface descriptor following the magic, bit exact.
type Header struct {
	Size              uint32
	Flags             uint32
	Height            uint32
	Width             uint32
	PitchOrLinearSize uint32
	Depth             uint32
	MipMapCount       uint32
	Reserved1         [11]uint32
	PixelFormat       PixelFormat
	Caps              uint32
	Caps2             uint32
	Caps3             uint32
	Caps4             uint32
	Reserved2         uint32
}

// NewHeader describes a DXT texture of the given shape.
func NewHeader(f pixel.Format, kind pixel.Kind, width, height, depth, mips int) Header {
	if mips < 1 {
		mips = 1
	}
	h := Header{
		Size:              HeaderSize,
		Flags:             FlagCaps | FlagHeight | FlagWidth | FlagPixelFormat | FlagLinearSize,
		Height:            uint32(height),
		Width:             uint32(width),
		PitchOrLinearSize: uint32(f.SurfaceSize(width, height)),
		MipMapCount:       uint32(mips),
		Caps:              CapsTexture,
	}
	h.PixelFormat.Size = PixelFormatSize
	h.PixelFormat.Flags = PixelFormatFourCC
	h.PixelFormat.FourCC = f.FourCC()

	if mips > 1 {
		h.Flags |= FlagMipMapCount
		h.Caps |= CapsComplex | CapsMipMap
	}
	switch kind {
	case pixel.Cube:
		h.Caps |= CapsComplex
		h.Caps2 = Caps2CubeMap | Caps2CubeMapAllFaces
	case pixel.Volume:
		h.Flags |= FlagDepth
		h.Caps |= CapsComplex
		h.Caps2 = Caps2Volume
		h.Depth = uint32(depth)
	}
	return h
}

// Kind reads the surface shape from the caps.
func (h *Header) Kind() pixel.Kind {
	switch {
	case h.Caps2&Caps2CubeMap != 0:
		return pixel.Cube
	case h.Caps2&Caps2Volume != 0:
		return pixel.Volume
	}
	return pixel.Plain
}

// Format maps the FourCC to a pixel format, Unknown for anything that is
// not DXT1..DXT5.
func (h *Header) Format() pixel.Format {
	return pixel.FromFourCC(h.PixelFormat.FourCC)
}

// ReadHeader reads the magic and the header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return Header{}, errors.Wrap(err, "read magic")
	}
	if magic != Magic {
		return Header{}, errors.Wrapf(ErrUnavailable, "bad magic %08x", magic)
	}
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Header{}, errors.Wrap(err, "read header")
	}
	return h, nil
}

// WriteTo writes the magic and the header.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.LittleEndian, uint32(Magic)); err != nil {
		return 0, errors.Wrap(err, "write magic")
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return MagicLength, errors.Wrap(err, "write header")
	}
	return MagicLength + HeaderSize, nil
}
