// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dds

import (
	"image"
	"io"

	"github.com/devblok/texstream/pixel"
	"github.com/pkg/errors"
	"github.com/woozymasta/bcn"
)

// Encode compresses img into a plain DDS file. mips limits the chain,
// zero keeps every level down to 1x1. Only DXT1, DXT3 and DXT5 can be
// encoded.
func Encode(w io.Writer, img image.Image, f pixel.Format, mips int) error {
	format, err := bcnFormat(f)
	if err != nil {
		return err
	}

	levels := bcn.GenerateMipmaps(img, false)
	if mips > 0 && len(levels) > mips {
		levels = levels[:mips]
	}

	payloads := make([][]byte, len(levels))
	for i, mip := range levels {
		data, _, _, err := bcn.EncodeImageWithOptions(mip, format, nil)
		if err != nil {
			return errors.Wrapf(err, "encode level %d", i)
		}
		payloads[i] = data
	}

	b := img.Bounds()
	header := makeHeader(uint32(b.Dx()), uint32(b.Dy()), uint32(len(payloads)), f)
	if err := bcn.WriteDDSMagic(w); err != nil {
		return errors.Wrap(err, "write magic")
	}
	if err := bcn.WriteDDSHeader(w, header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i, data := range payloads {
		if _, err := w.Write(data); err != nil {
			return errors.Wrapf(err, "write level %d", i)
		}
	}
	return nil
}

func bcnFormat(f pixel.Format) (bcn.Format, error) {
	switch f {
	case pixel.DXT1:
		return bcn.FormatDXT1, nil
	case pixel.DXT3:
		return bcn.FormatDXT3, nil
	case pixel.DXT5:
		return bcn.FormatDXT5, nil
	}
	return bcn.FormatDXT1, errors.Errorf("cannot encode %s", f)
}

func makeHeader(width, height, mipMapCount uint32, f pixel.Format) *bcn.DDSHeader {
	flags := uint32(bcn.DDSFlagCaps | bcn.DDSFlagHeight | bcn.DDSFlagWidth | bcn.DDSFlagPixelFormat)
	caps := uint32(bcn.DDSCapsTexture)
	if mipMapCount > 1 {
		flags |= bcn.DDSFlagMipmapCount
		caps |= bcn.DDSCapsComplex | bcn.DDSCapsMipmap
	}

	hdr := &bcn.DDSHeader{
		Size:        bcn.DDSHeaderSize,
		Flags:       flags,
		Height:      height,
		Width:       width,
		Depth:       1,
		MipMapCount: mipMapCount,
		Caps:        caps,
	}
	hdr.PixelFormat.Size = bcn.DDSPixelFormatSize
	hdr.Flags |= bcn.DDSFlagLinearSize
	hdr.PixelFormat.Flags = bcn.DDSPFFourCC
	hdr.PixelFormat.FourCC = f.FourCC()
	return hdr
}
