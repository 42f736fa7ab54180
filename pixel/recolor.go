package pixel

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// HasShift reports whether shift changes colours at all. The X component
// is a hue offset in degrees, Y and Z are saturation and value offsets.
func HasShift(shift mgl32.Vec3) bool {
	return shift != mgl32.Vec3{}
}

// Recolor applies an HSV shift to a 0xAARRGGBB colour, keeping alpha.
func Recolor(argb uint32, shift mgl32.Vec3) uint32 {
	if !HasShift(shift) {
		return argb
	}
	rgb := mgl32.Vec3{
		float32((argb>>16)&0xff) / 255,
		float32((argb>>8)&0xff) / 255,
		float32(argb&0xff) / 255,
	}

	hsv := RGBToHSV(rgb).Add(shift)
	hue := float32(math.Mod(float64(hsv.X()), 360))
	if hue < 0 {
		hue += 360
	}
	hsv = mgl32.Vec3{hue, mgl32.Clamp(hsv.Y(), 0, 1), mgl32.Clamp(hsv.Z(), 0, 1)}

	rgb = HSVToRGB(hsv).Mul(255)
	return argb&0xff000000 |
		uint32(round(rgb.X()))<<16 |
		uint32(round(rgb.Y()))<<8 |
		uint32(round(rgb.Z()))
}

// RGBToHSV converts a colour with components in [0,1] to hue in degrees,
// saturation and value.
func RGBToHSV(rgb mgl32.Vec3) mgl32.Vec3 {
	r, g, b := rgb.X(), rgb.Y(), rgb.Z()
	max := float32(math.Max(float64(r), math.Max(float64(g), float64(b))))
	min := float32(math.Min(float64(r), math.Min(float64(g), float64(b))))
	delta := max - min

	var h, s float32
	if max > 0 {
		s = delta / max
	}
	if delta > 0 {
		switch max {
		case r:
			h = 60 * (g - b) / delta
		case g:
			h = 60 * (2 + (b-r)/delta)
		default:
			h = 60 * (4 + (r-g)/delta)
		}
		if h < 0 {
			h += 360
		}
	}
	return mgl32.Vec3{h, s, max}
}

// HSVToRGB is the inverse of RGBToHSV.
func HSVToRGB(hsv mgl32.Vec3) mgl32.Vec3 {
	h, s, v := hsv.X(), hsv.Y(), hsv.Z()
	if s <= 0 {
		return mgl32.Vec3{v, v, v}
	}
	h = float32(math.Mod(float64(h), 360)) / 60
	sector := int(h)
	f := h - float32(sector)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	switch sector {
	case 0:
		return mgl32.Vec3{v, t, p}
	case 1:
		return mgl32.Vec3{q, v, p}
	case 2:
		return mgl32.Vec3{p, v, t}
	case 3:
		return mgl32.Vec3{p, q, v}
	case 4:
		return mgl32.Vec3{t, p, v}
	}
	return mgl32.Vec3{v, p, q}
}

func round(v float32) float32 {
	return mgl32.Clamp(float32(math.Floor(float64(v)+0.5)), 0, 255)
}
