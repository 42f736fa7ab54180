// Package pixel holds the pixel formats understood by the texture pipeline,
// per-pixel conversion routines and the Surface type that describes a
// locked or in-memory mip level.
package pixel

import (
	"strings"

	"github.com/pkg/errors"
)

// package errors
var (
	ErrUnknownFormat = errors.New("unknown pixel format")
	ErrCompressed    = errors.New("operation needs an uncompressed format")
)

// Format identifies the memory layout of a surface.
type Format int

// Formats known to the pipeline. Channel order in the names is most
// significant first, as it is laid out in a little-endian word.
const (
	Unknown Format = iota
	A8R8G8B8
	X8R8G8B8
	R8G8B8
	R5G6B5
	X1R5G5B5
	A1R5G5B5
	A4R4G4B4
	A8
	L8
	DXT1
	DXT2
	DXT3
	DXT4
	DXT5
)

var formatNames = [...]string{
	Unknown:  "unknown",
	A8R8G8B8: "a8r8g8b8",
	X8R8G8B8: "x8r8g8b8",
	R8G8B8:   "r8g8b8",
	R5G6B5:   "r5g6b5",
	X1R5G5B5: "x1r5g5b5",
	A1R5G5B5: "a1r5g5b5",
	A4R4G4B4: "a4r4g4b4",
	A8:       "a8",
	L8:       "l8",
	DXT1:     "dxt1",
	DXT2:     "dxt2",
	DXT3:     "dxt3",
	DXT4:     "dxt4",
	DXT5:     "dxt5",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return formatNames[Unknown]
	}
	return formatNames[f]
}

// ParseFormat returns the format with the given name, case insensitive.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range formatNames {
		if n == name {
			return Format(f), nil
		}
	}
	return Unknown, errors.Wrapf(ErrUnknownFormat, "%q", name)
}

// MarshalText lets formats show up by name in JSON output.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// IsCompressed reports whether f is one of the DXT block formats.
func (f Format) IsCompressed() bool {
	return f >= DXT1 && f <= DXT5
}

// HasAlpha reports whether f stores an alpha channel. DXT1 is treated as
// opaque, its punch-through alpha is not relied upon.
func (f Format) HasAlpha() bool {
	switch f {
	case A8R8G8B8, A1R5G5B5, A4R4G4B4, A8, DXT2, DXT3, DXT4, DXT5:
		return true
	}
	return false
}

// BytesPerPixel is zero for block compressed formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case A8R8G8B8, X8R8G8B8:
		return 4
	case R8G8B8:
		return 3
	case R5G6B5, X1R5G5B5, A1R5G5B5, A4R4G4B4:
		return 2
	case A8, L8:
		return 1
	}
	return 0
}

// BlockBytes is the size of one 4x4 block, zero for uncompressed formats.
func (f Format) BlockBytes() int {
	switch f {
	case DXT1:
		return 8
	case DXT2, DXT3, DXT4, DXT5:
		return 16
	}
	return 0
}

// Blocks returns how many 4 pixel blocks cover n pixels. Never less than one.
func Blocks(n int) int {
	if n <= 4 {
		return 1
	}
	return (n + 3) / 4
}

// RowBytes is the tight byte length of one row. For compressed formats a
// row is a row of blocks.
func (f Format) RowBytes(width int) int {
	if f.IsCompressed() {
		return Blocks(width) * f.BlockBytes()
	}
	return width * f.BytesPerPixel()
}

// Rows is the number of rows a surface of the given height has.
func (f Format) Rows(height int) int {
	if f.IsCompressed() {
		return Blocks(height)
	}
	return height
}

// SurfaceSize is the tight byte size of a width x height surface.
func (f Format) SurfaceSize(width, height int) int {
	return f.RowBytes(width) * f.Rows(height)
}

// FourCC codes of the DXT formats as stored in a DDS pixel format.
const (
	FourCCDXT1 = 0x31545844
	FourCCDXT2 = 0x32545844
	FourCCDXT3 = 0x33545844
	FourCCDXT4 = 0x34545844
	FourCCDXT5 = 0x35545844
)

// FromFourCC maps a DDS four character code to a format, Unknown if it
// is not a DXT code.
func FromFourCC(code uint32) Format {
	switch code {
	case FourCCDXT1:
		return DXT1
	case FourCCDXT2:
		return DXT2
	case FourCCDXT3:
		return DXT3
	case FourCCDXT4:
		return DXT4
	case FourCCDXT5:
		return DXT5
	}
	return Unknown
}

// FourCC is the inverse of FromFourCC, zero for uncompressed formats.
func (f Format) FourCC() uint32 {
	switch f {
	case DXT1:
		return FourCCDXT1
	case DXT2:
		return FourCCDXT2
	case DXT3:
		return FourCCDXT3
	case DXT4:
		return FourCCDXT4
	case DXT5:
		return FourCCDXT5
	}
	return 0
}
