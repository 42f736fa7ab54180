package loader

import (
	"github.com/devblok/texstream/pixel"
	"github.com/go-gl/mathgl/mgl32"
)

// MipPolicy is the number of mip levels a texture asks for. Values above
// one are a fixed count.
type MipPolicy int

// Mip policies
const (
	MipAll    MipPolicy = 0
	MipSingle MipPolicy = 1
)

// Mips asks for a fixed number of levels.
func Mips(n int) MipPolicy {
	if n < 1 {
		return MipSingle
	}
	return MipPolicy(n)
}

// Request describes how a texture wants to be loaded. It must not change
// once the texture has been requested.
type Request struct {
	Mips MipPolicy

	// Format is the wanted pixel format, pixel.Unknown picks the best
	// one the device supports
	Format pixel.Format

	AllowCompression bool

	// Reducible textures skip top levels by the configured reduction
	Reducible bool

	// Reduction is added to the configured one
	Reduction int

	// Shift is an HSV shift applied while loading: hue in degrees,
	// saturation and value
	Shift mgl32.Vec3

	Kind pixel.Kind
}

// DefaultRequest is a reducible, compressible plain texture with a full
// mip chain.
func DefaultRequest() Request {
	return Request{
		Mips:             MipAll,
		AllowCompression: true,
		Reducible:        true,
	}
}
