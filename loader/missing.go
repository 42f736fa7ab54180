package loader

import (
	"image"
	"image/color"

	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/device"
	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/targa"
	"github.com/devblok/texstream/vfs"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	missingAsset  = "missing.tga"
	checkerSize   = 64
	checkerSquare = 8
)

// checkerboard is the missing texture used when the embedded asset can
// not be read.
func checkerboard(size, square int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	magenta := color.NRGBA{R: 0xff, B: 0xff, A: 0xff}
	black := color.NRGBA{A: 0xff}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/square+y/square)%2 == 0 {
				img.SetNRGBA(x, y, magenta)
			} else {
				img.SetNRGBA(x, y, black)
			}
		}
	}
	return img
}

func missingImage() image.Image {
	assets := vfs.NewBox(packr.NewBox("../assets"))
	img, _, err := targa.Decode(assets, missingAsset)
	if err != nil {
		log.WithError(err).Warn("embedded missing texture unavailable, using a checkerboard")
		return checkerboard(checkerSize, checkerSquare)
	}
	return img
}

// newMissingTexture creates the texture shown in place of textures that
// fail to load. It is shared by all of them.
func (c *Context) newMissingTexture() (device.Texture, error) {
	img := missingImage()
	b := img.Bounds()
	w, h, _ := ValidateTextureSize(pixel.Plain, b.Dx(), b.Dy(), 1, c.device.Caps())
	format := c.validFormat(pixel.A8R8G8B8, false)
	res, err := c.device.CreateTexture(device.Desc{
		Kind:      pixel.Plain,
		Width:     w,
		Height:    h,
		Depth:     1,
		MipLevels: core.MipCount(w, h),
		Format:    format,
	})
	if err != nil {
		return nil, errors.Wrap(err, "missing texture")
	}
	if err := fillChain(res, img, mgl32.Vec3{}); err != nil {
		res.Release()
		return nil, errors.Wrap(err, "missing texture")
	}
	return res, nil
}

// applyMissing shows the missing texture in place of tex.
func (c *Context) applyMissing(tex *Texture) {
	log.WithField("texture", tex.name).Debug("using missing texture")
	tex.apply(c.missing, true, true)
}
