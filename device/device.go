// Package device is the seam between the texture pipeline and whatever
// owns texture memory. Textures are created with a fixed shape and their
// levels are written through locked surfaces, one level of one face at a
// time.
package device

import (
	"github.com/devblok/texstream/pixel"
	"github.com/pkg/errors"
)

// package errors
var (
	ErrFormat    = errors.New("pixel format not supported by device")
	ErrSize      = errors.New("texture size not supported by device")
	ErrLocked    = errors.New("texture level already locked")
	ErrNotLocked = errors.New("texture level not locked")
	ErrReleased  = errors.New("texture released")
)

// Desc describes the shape of a texture.
type Desc struct {
	Kind      pixel.Kind
	Width     int
	Height    int
	Depth     int
	MipLevels int
	Format    pixel.Format
}

// LevelSize returns the dimensions of a mip level, floored at one.
func (d Desc) LevelSize(level int) (width, height, depth int) {
	width = max1(d.Width >> uint(level))
	height = max1(d.Height >> uint(level))
	depth = 1
	if d.Kind == pixel.Volume {
		depth = max1(d.Depth >> uint(level))
	}
	return
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// Caps are the limits of a device.
type Caps struct {
	MaxTextureWidth  int
	MaxTextureHeight int
	MaxVolumeExtent  int
	Formats          []pixel.Format
}

// Limits returns the largest width, height and depth a texture of kind
// can have. Zero means unlimited. Every side of a volume is bounded by
// MaxVolumeExtent as well.
func (c Caps) Limits(kind pixel.Kind) (width, height, depth int) {
	width, height, depth = c.MaxTextureWidth, c.MaxTextureHeight, 1
	if kind == pixel.Volume {
		width = tighter(width, c.MaxVolumeExtent)
		height = tighter(height, c.MaxVolumeExtent)
		depth = c.MaxVolumeExtent
	}
	return width, height, depth
}

// Fits reports whether a texture of kind and size is within Limits.
func (c Caps) Fits(kind pixel.Kind, width, height, depth int) bool {
	mw, mh, md := c.Limits(kind)
	return within(width, mw) && within(height, mh) && (kind != pixel.Volume || within(depth, md))
}

func tighter(a, b int) int {
	if a == 0 || (b != 0 && b < a) {
		return b
	}
	return a
}

func within(v, limit int) bool {
	return limit == 0 || v <= limit
}

// ValidFormat reports whether textures of format f can be created.
func (c Caps) ValidFormat(f pixel.Format) bool {
	for _, v := range c.Formats {
		if v == f {
			return true
		}
	}
	return false
}

// Device describes a non-concrete texture device
type Device interface {
	Caps() Caps
	CreateTexture(desc Desc) (Texture, error)
}

// Texture is a device texture. Only the goroutine driving the device may
// lock and unlock levels.
type Texture interface {
	Desc() Desc

	// Lock maps one level of one face for writing. Plain and volume
	// textures only have face 0. Volume surfaces hold every slice.
	Lock(face, level int) (pixel.Surface, error)
	Unlock(face, level int) error

	// Release frees the texture, unlocking anything still locked.
	Release()
}
