// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dds

import (
	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/dxt"
	"github.com/devblok/texstream/pixel"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CopyLevelToSurface copies a retained level into dst. A destination of
// the same format gets the compressed bytes, DXT2 takes DXT1 data with an
// opaque alpha block and uncompressed destinations are decoded. A non
// zero shift recolors the block endpoints on the way.
func (i *Image) CopyLevelToSurface(level int, dst pixel.Surface, shift mgl32.Vec3) error {
	src, err := i.Level(level)
	if err != nil {
		return err
	}
	return i.copyPlane(src, level, dst, shift)
}

// CopyCubeLevelToSurface is CopyLevelToSurface for one cube face.
func (i *Image) CopyCubeLevelToSurface(face, level int, dst pixel.Surface, shift mgl32.Vec3) error {
	src, err := i.FaceLevel(face, level)
	if err != nil {
		return err
	}
	return i.copyPlane(src, level, dst, shift)
}

// CopyVolumeLevelToSurface copies every slice of a volume level. dst must
// have as many slices, SlicePitch apart.
func (i *Image) CopyVolumeLevelToSurface(level int, dst pixel.Surface, shift mgl32.Vec3) error {
	src, err := i.Level(level)
	if err != nil {
		return err
	}
	depth := i.Depth(level)
	if dst.Depth != depth {
		return errors.Wrapf(ErrMismatch, "%s level %d: depth %d into %d", i.name, level, depth, dst.Depth)
	}
	sliceSize := i.format.SurfaceSize(i.Width(level), i.Height(level))
	for z := 0; z < depth; z++ {
		if err := i.copyPlane(src[z*sliceSize:(z+1)*sliceSize], level, dst.Slice(z), shift); err != nil {
			return err
		}
	}
	return nil
}

func (i *Image) copyPlane(src []byte, level int, dst pixel.Surface, shift mgl32.Vec3) error {
	w, h := i.Width(level), i.Height(level)
	if pixel.Blocks(dst.Width) != pixel.Blocks(w) || pixel.Blocks(dst.Height) != pixel.Blocks(h) {
		return errors.Wrapf(ErrMismatch, "%s level %d: %dx%d into %dx%d", i.name, level, w, h, dst.Width, dst.Height)
	}

	bb := i.format.BlockBytes()
	srcPitch := pixel.Blocks(w) * bb
	blocksX, blocksY := pixel.Blocks(w), pixel.Blocks(h)

	switch {
	case dst.Format == i.format:
		for y := 0; y < blocksY; y++ {
			row := dst.Data[y*dst.Pitch : y*dst.Pitch+srcPitch]
			copy(row, src[y*srcPitch:])
			if pixel.HasShift(shift) {
				for x := 0; x < blocksX; x++ {
					dxt.RecolorBlock(i.format, row[x*bb:], shift)
				}
			}
		}
		return nil

	case i.format == pixel.DXT1 && dst.Format == pixel.DXT2:
		for y := 0; y < blocksY; y++ {
			row := dst.Data[y*dst.Pitch:]
			for x := 0; x < blocksX; x++ {
				out := row[x*16 : x*16+16]
				for k := 0; k < 8; k++ {
					out[k] = 0xff
				}
				copy(out[8:], src[y*srcPitch+x*8:y*srcPitch+x*8+8])
				dxt.RecolorColorBlock(out[8:], false, shift)
			}
		}
		return nil

	case !dst.Format.IsCompressed() && dst.Format.BytesPerPixel() > 0:
		transparent := false
		for y := 0; y < blocksY; y++ {
			for x := 0; x < blocksX; x++ {
				px, alpha := dxt.DecodeBlock(i.format, src[y*srcPitch+x*bb:], shift)
				transparent = transparent || alpha
				dxt.WriteBlock(dst, x*4, y*4, &px)
			}
		}
		if i.format == pixel.DXT1 && transparent {
			log.WithFields(log.Fields{
				"file":  i.name,
				"level": level,
			}).Warn("dxt1 surface contains alpha")
		}
		return nil
	}

	return errors.Wrapf(ErrMismatch, "%s: cannot copy %s into %s", i.name, i.format, dst.Format)
}

// DecodeBlock decodes the 4x4 block of a retained level whose top left
// texel is x, y. Both coordinates must be multiples of four.
func (i *Image) DecodeBlock(level, x, y int, shift mgl32.Vec3) ([16]uint32, bool, error) {
	core.Assert(x&3 == 0 && y&3 == 0, "block %d,%d is not aligned", x, y)
	core.Assert(x < i.Width(level) && y < i.Height(level), "block %d,%d outside level %d", x, y, level)

	src, err := i.Level(level)
	if err != nil {
		return [16]uint32{}, false, err
	}
	bb := i.format.BlockBytes()
	off := (y/4)*pixel.Blocks(i.Width(level))*bb + (x/4)*bb
	px, alpha := dxt.DecodeBlock(i.format, src[off:off+bb], shift)
	return px, alpha, nil
}

// Pixel decodes a single texel of a retained level as 0xAARRGGBB.
func (i *Image) Pixel(level, x, y int) (uint32, error) {
	if level < 0 || level >= i.mips {
		return 0, errors.Errorf("%s: no level %d", i.name, level)
	}
	if x < 0 || y < 0 || x >= i.Width(level) || y >= i.Height(level) {
		return 0, errors.Errorf("%s: texel %d,%d outside level %d", i.name, x, y, level)
	}
	px, _, err := i.DecodeBlock(level, x&^3, y&^3, mgl32.Vec3{})
	if err != nil {
		return 0, err
	}
	return px[(y&3)*4+(x&3)], nil
}
