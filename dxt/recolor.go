// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dxt

import (
	"encoding/binary"
	"image"

	"github.com/devblok/texstream/pixel"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// RecolorColorBlock shifts the two endpoints of an 8 byte colour block in
// place. Index data is kept, except where the new endpoints would switch
// a DXT1 block between three and four colour mode; then the endpoints
// are swapped and the indices remapped so the block decodes the same way.
func RecolorColorBlock(block []byte, dxt1 bool, shift mgl32.Vec3) {
	if !pixel.HasShift(shift) {
		return
	}
	c0 := binary.LittleEndian.Uint16(block[0:])
	c1 := binary.LittleEndian.Uint16(block[2:])
	n0 := PackRGB565(pixel.Recolor(ExpandRGB565(c0), shift))
	n1 := PackRGB565(pixel.Recolor(ExpandRGB565(c1), shift))

	if dxt1 {
		fourColour := c0 > c1
		switch {
		case fourColour && n0 < n1, !fourColour && n0 > n1:
			n0, n1 = n1, n0
			swapIndices(block, fourColour)
		case fourColour && n0 == n1:
			// Both endpoints collapsed; only code 3 would change meaning.
			for y := 4; y < 8; y++ {
				block[y] = 0
			}
		}
	}
	binary.LittleEndian.PutUint16(block[0:], n0)
	binary.LittleEndian.PutUint16(block[2:], n1)
}

// swapIndices remaps codes after the endpoints were swapped. Four colour
// mode exchanges 0<->1 and 2<->3, three colour mode only 0<->1.
func swapIndices(block []byte, fourColour bool) {
	for y := 4; y < 8; y++ {
		line := block[y]
		var out byte
		for x := uint(0); x < 4; x++ {
			code := (line >> (2 * x)) & 3
			switch {
			case code < 2:
				code ^= 1
			case fourColour:
				code ^= 1
			}
			out |= code << (2 * x)
		}
		block[y] = out
	}
}

// RecolorBlock shifts the colour endpoints of one block of format f.
func RecolorBlock(f pixel.Format, block []byte, shift mgl32.Vec3) {
	if f == pixel.DXT1 {
		RecolorColorBlock(block[:8], true, shift)
		return
	}
	RecolorColorBlock(block[8:16], false, shift)
}

// Decode expands the first slice of a compressed surface into an image.
func Decode(s pixel.Surface) (*image.NRGBA, error) {
	if !s.Format.IsCompressed() {
		return nil, errors.Errorf("decode: %s is not a block format", s.Format)
	}
	img := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	tmp := pixel.Surface{
		Format: pixel.A8R8G8B8,
		Width:  s.Width,
		Height: s.Height,
		Depth:  1,
		Pitch:  s.Width * 4,
		Data:   make([]byte, s.Width*s.Height*4),
	}
	bb := s.Format.BlockBytes()
	for by := 0; by < pixel.Blocks(s.Height); by++ {
		row := s.Row(by)
		for bx := 0; bx < pixel.Blocks(s.Width); bx++ {
			px, _ := DecodeBlock(s.Format, row[bx*bb:], mgl32.Vec3{})
			WriteBlock(tmp, bx*4, by*4, &px)
		}
	}
	for i := 0; i < len(tmp.Data); i += 4 {
		img.Pix[i+0] = tmp.Data[i+2]
		img.Pix[i+1] = tmp.Data[i+1]
		img.Pix[i+2] = tmp.Data[i+0]
		img.Pix[i+3] = tmp.Data[i+3]
	}
	return img, nil
}
