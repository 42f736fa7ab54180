package pixel

import (
	"image"
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Surface is a view on one mip level. Data may belong to a locked device
// texture, so rows are addressed through Pitch and never assumed tight.
// For compressed formats a row is a row of 4x4 blocks.
type Surface struct {
	Format Format
	Width  int
	Height int
	Depth  int

	Pitch      int
	SlicePitch int
	Data       []byte
}

// NewSurface allocates a tightly packed 2D surface.
func NewSurface(f Format, width, height int) Surface {
	return NewVolume(f, width, height, 1)
}

// NewVolume allocates a tightly packed surface of depth slices.
func NewVolume(f Format, width, height, depth int) Surface {
	if depth < 1 {
		depth = 1
	}
	pitch := f.RowBytes(width)
	slice := pitch * f.Rows(height)
	return Surface{
		Format:     f,
		Width:      width,
		Height:     height,
		Depth:      depth,
		Pitch:      pitch,
		SlicePitch: slice,
		Data:       make([]byte, slice*depth),
	}
}

func (s Surface) depth() int {
	if s.Depth < 1 {
		return 1
	}
	return s.Depth
}

// Size is the tight byte size of the surface, all slices included.
func (s Surface) Size() int {
	return s.Format.SurfaceSize(s.Width, s.Height) * s.depth()
}

// Row returns row y of the first slice without padding.
func (s Surface) Row(y int) []byte {
	off := y * s.Pitch
	return s.Data[off : off+s.Format.RowBytes(s.Width)]
}

// Slice returns a 2D view of slice z.
func (s Surface) Slice(z int) Surface {
	v := s
	v.Depth = 1
	v.Data = s.Data[z*s.SlicePitch:]
	return v
}

// Tight copies the surface into a new buffer without row padding.
func (s Surface) Tight() []byte {
	out := make([]byte, 0, s.Size())
	for z := 0; z < s.depth(); z++ {
		slice := s.Slice(z)
		for y := 0; y < s.Format.Rows(s.Height); y++ {
			out = append(out, slice.Row(y)...)
		}
	}
	return out
}

// Fill copies tightly packed bytes, as returned by Tight, into the surface.
func (s Surface) Fill(tight []byte) error {
	if len(tight) < s.Size() {
		return errors.Errorf("fill %dx%d %s: have %d bytes, need %d",
			s.Width, s.Height, s.Format, len(tight), s.Size())
	}
	rowBytes := s.Format.RowBytes(s.Width)
	for z := 0; z < s.depth(); z++ {
		slice := s.Slice(z)
		for y := 0; y < s.Format.Rows(s.Height); y++ {
			copy(slice.Row(y), tight[:rowBytes])
			tight = tight[rowBytes:]
		}
	}
	return nil
}

// At reads pixel x, y of an uncompressed surface as 0xAARRGGBB.
func (s Surface) At(x, y int) uint32 {
	bpp := s.Format.BytesPerPixel()
	return ReadB8G8R8A8(s.Data[y*s.Pitch+x*bpp:], s.Format)
}

// Set writes pixel x, y of an uncompressed surface.
func (s Surface) Set(x, y int, argb uint32) {
	bpp := s.Format.BytesPerPixel()
	WriteB8G8R8A8(s.Data[y*s.Pitch+x*bpp:], s.Format, argb)
}

// ToImage converts the first slice of an uncompressed surface to NRGBA.
func ToImage(s Surface) (*image.NRGBA, error) {
	if s.Format.IsCompressed() || s.Format.BytesPerPixel() == 0 {
		return nil, errors.Wrapf(ErrCompressed, "convert %s to image", s.Format)
	}
	img := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			c := s.At(x, y)
			off := img.PixOffset(x, y)
			img.Pix[off+0] = byte(c >> 16)
			img.Pix[off+1] = byte(c >> 8)
			img.Pix[off+2] = byte(c)
			img.Pix[off+3] = byte(c >> 24)
		}
	}
	return img, nil
}

// FromImage writes img into the first slice of an uncompressed surface,
// applying the HSV shift on the way. img is not scaled; pixels outside
// either bounds are left untouched.
func FromImage(dst Surface, img image.Image, shift mgl32.Vec3) error {
	if dst.Format.IsCompressed() || dst.Format.BytesPerPixel() == 0 {
		return errors.Wrapf(ErrCompressed, "write image into %s", dst.Format)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > dst.Width {
		w = dst.Width
	}
	if h > dst.Height {
		h = dst.Height
	}
	shifted := HasShift(shift)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			argb := pack(c.A, c.R, c.G, c.B)
			if shifted {
				argb = Recolor(argb, shift)
			}
			dst.Set(x, y, argb)
		}
	}
	return nil
}
