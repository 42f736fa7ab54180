package core

import (
	"image"

	"golang.org/x/image/draw"
)

// GetPixels transforms a given image into a non-premultiplied canvas
// anchored at the origin, the layout the pixel converters read from
func GetPixels(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	newImg := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(newImg, newImg.Bounds(), img, b.Min, draw.Src)
	return newImg
}

// ScaleImage resamples img to width x height. Same sized images are
// only copied onto a fresh canvas.
func ScaleImage(img image.Image, width, height int) *image.NRGBA {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return GetPixels(img)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// MipChain returns levels images, the first scaled to width x height,
// every next one half the size of the previous, floored at one pixel.
// Each level is resampled from the one before it.
func MipChain(img image.Image, width, height, levels int) []*image.NRGBA {
	chain := make([]*image.NRGBA, 0, levels)
	cur := ScaleImage(img, width, height)
	for i := 0; i < levels; i++ {
		chain = append(chain, cur)
		if i+1 < levels {
			width, height = halve(width), halve(height)
			cur = ScaleImage(cur, width, height)
		}
	}
	return chain
}

// MipCount is the number of levels of a chain that halves both sides
// until the smaller one is a single pixel
func MipCount(width, height int) int {
	count := 0
	for width > 0 && height > 0 {
		count++
		width >>= 1
		height >>= 1
	}
	if count == 0 {
		count = 1
	}
	return count
}

// NextPowerOfTwo rounds n up to a power of two, at least one
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func halve(n int) int {
	if n <= 1 {
		return 1
	}
	return n >> 1
}
