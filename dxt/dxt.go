// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package dxt decodes the DXT1..DXT5 block formats. Every block covers
// 4x4 pixels: DXT1 is an 8 byte colour block, the other formats prefix it
// with an 8 byte alpha block (explicit 4 bit alpha for DXT2/3, two
// endpoints and 3 bit indices for DXT4/5).
package dxt

import (
	"encoding/binary"

	"github.com/devblok/texstream/pixel"
	"github.com/go-gl/mathgl/mgl32"
)

// ExpandRGB565 widens a 565 colour to opaque 0xFFRRGGBB. Low bits are
// filled by replication so 0xffff becomes pure white.
func ExpandRGB565(c uint16) uint32 {
	r := uint32(c>>11) & 0x1f
	g := uint32(c>>5) & 0x3f
	b := uint32(c) & 0x1f
	r = r<<3 | r>>2
	g = g<<2 | g>>4
	b = b<<3 | b>>2
	return 0xff000000 | r<<16 | g<<8 | b
}

// PackRGB565 truncates a 0xAARRGGBB colour to 565, dropping alpha.
func PackRGB565(argb uint32) uint16 {
	r := uint16(argb>>16) & 0xff
	g := uint16(argb>>8) & 0xff
	b := uint16(argb) & 0xff
	return r>>3<<11 | g>>2<<5 | b>>3
}

// Combine blends two colours channel by channel, rel/255 of c1 and the
// rest of c2. The result has no alpha.
func Combine(c1, c2, rel uint32) uint32 {
	var out uint32
	for shift := uint(0); shift < 24; shift += 8 {
		a := (c1 >> shift) & 0xff
		b := (c2 >> shift) & 0xff
		out |= ((a*rel + b*(255-rel) + 127) / 255) << shift
	}
	return out
}

// ColorPalette returns the four colours addressed by the 2 bit codes of a
// colour block. In three colour mode the last entry is transparent black.
// The shift is applied to the endpoints after the mode is decided.
func ColorPalette(c0, c1 uint16, fourColour bool, shift mgl32.Vec3) [4]uint32 {
	col0 := pixel.Recolor(ExpandRGB565(c0), shift) & 0xffffff
	col1 := pixel.Recolor(ExpandRGB565(c1), shift) & 0xffffff

	if fourColour {
		return [4]uint32{
			col0 | 0xff000000,
			col1 | 0xff000000,
			Combine(col1, col0, 85) | 0xff000000,
			Combine(col0, col1, 85) | 0xff000000,
		}
	}
	return [4]uint32{
		col0 | 0xff000000,
		col1 | 0xff000000,
		Combine(col1, col0, 128) | 0xff000000,
		0x00000000,
	}
}

// AlphaPalette returns the eight alpha values of a DXT4/5 alpha block.
func AlphaPalette(a0, a1 byte) [8]byte {
	x, y := uint32(a0), uint32(a1)
	p := [8]byte{a0, a1}
	if a0 > a1 {
		for i := uint32(1); i <= 6; i++ {
			p[i+1] = byte(((7-i)*x + i*y + 3) / 7)
		}
		return p
	}
	for i := uint32(1); i <= 4; i++ {
		p[i+1] = byte(((5-i)*x + i*y + 2) / 5)
	}
	p[6] = 0
	p[7] = 255
	return p
}

// DecodeColor decodes an 8 byte colour block. DXT2..5 colour blocks are
// always in four colour mode, pass fourColour true for them. The second
// result reports transparent texels, which only three colour mode has.
func DecodeColor(block []byte, fourColour bool, shift mgl32.Vec3) ([16]uint32, bool) {
	c0 := binary.LittleEndian.Uint16(block[0:])
	c1 := binary.LittleEndian.Uint16(block[2:])
	fourColour = fourColour || c0 > c1
	palette := ColorPalette(c0, c1, fourColour, shift)

	var px [16]uint32
	transparent := false
	for y := 0; y < 4; y++ {
		line := block[4+y]
		for x := 0; x < 4; x++ {
			code := line & 3
			line >>= 2
			px[y*4+x] = palette[code]
			if !fourColour && code == 3 {
				transparent = true
			}
		}
	}
	return px, transparent
}

// ExplicitAlpha decodes a DXT2/3 alpha block, 4 bits per texel.
func ExplicitAlpha(block []byte) [16]byte {
	var a [16]byte
	for i := 0; i < 16; i++ {
		v := block[i/2] >> (uint(i&1) * 4) & 0xf
		a[i] = v<<4 | v
	}
	return a
}

// InterpolatedAlpha decodes a DXT4/5 alpha block.
func InterpolatedAlpha(block []byte) [16]byte {
	palette := AlphaPalette(block[0], block[1])
	var bits uint64
	for i := 7; i >= 2; i-- {
		bits = bits<<8 | uint64(block[i])
	}
	var a [16]byte
	for i := 0; i < 16; i++ {
		a[i] = palette[(bits>>(3*uint(i)))&7]
	}
	return a
}

// DecodeBlock decodes one block of format f into 16 0xAARRGGBB texels in
// row order. The second result reports whether any texel is not opaque.
func DecodeBlock(f pixel.Format, block []byte, shift mgl32.Vec3) ([16]uint32, bool) {
	if f == pixel.DXT1 {
		return DecodeColor(block[:8], false, shift)
	}

	px, _ := DecodeColor(block[8:16], true, shift)
	var alpha [16]byte
	switch f {
	case pixel.DXT2, pixel.DXT3:
		alpha = ExplicitAlpha(block[:8])
	default:
		alpha = InterpolatedAlpha(block[:8])
	}

	opaque := byte(0xff)
	for i := range px {
		opaque &= alpha[i]
		px[i] = px[i]&0xffffff | uint32(alpha[i])<<24
	}
	return px, opaque != 0xff
}

// WriteBlock stores decoded texels into an uncompressed surface with the
// top left corner at x, y. Texels outside the surface are dropped.
func WriteBlock(dst pixel.Surface, x, y int, px *[16]uint32) {
	bpp := dst.Format.BytesPerPixel()
	for by := 0; by < 4 && y+by < dst.Height; by++ {
		row := dst.Data[(y+by)*dst.Pitch:]
		for bx := 0; bx < 4 && x+bx < dst.Width; bx++ {
			pixel.WriteB8G8R8A8(row[(x+bx)*bpp:], dst.Format, px[by*4+bx])
		}
	}
}
