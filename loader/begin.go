package loader

import (
	"github.com/devblok/texstream/cache"
	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/dds"
	"github.com/devblok/texstream/device"
	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/targa"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// maxAspect is the largest side ratio a texture is created with.
const maxAspect = 8

// ValidateTextureSize rounds a size up to powers of two, clamps it to
// the device limits for kind and grows the smaller side until the aspect
// ratio is at most 8:1, as far as the limits allow. Depth is only kept
// for volumes.
func ValidateTextureSize(kind pixel.Kind, width, height, depth int, caps device.Caps) (int, int, int) {
	mw, mh, md := caps.Limits(kind)
	w := clampLimit(core.NextPowerOfTwo(width), mw)
	h := clampLimit(core.NextPowerOfTwo(height), mh)
	d := 1
	if kind == pixel.Volume {
		d = clampLimit(core.NextPowerOfTwo(depth), md)
	}
	if w > h {
		for w/h > maxAspect && (mh == 0 || h*2 <= mh) {
			h *= 2
		}
	} else {
		for h/w > maxAspect && (mw == 0 || w*2 <= mw) {
			w *= 2
		}
	}
	return w, h, d
}

func clampLimit(v, limit int) int {
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

// sourceInfo is what begin knows about a source before reading pixels.
type sourceInfo struct {
	width, height, depth int
	mips                 int
	format               pixel.Format
	kind                 pixel.Kind
}

// plan is the texture a task is about to create.
type plan struct {
	desc   device.Desc
	image  *dds.Image
	source cache.SourceInfo

	// scaled plans decode image level into an uncompressed chain of
	// the validated size
	scaled bool
	level  int
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func shrink(v, n int) int {
	return v >> uint(n)
}

// reduction is the number of top levels a texture skips, before any
// reduction forced by the device limits.
func (c *Context) reduction(req Request, mips, width, height int) int {
	if !req.Reducible || req.Mips == MipSingle {
		return 0
	}
	r := c.cfg.Loader.Reduction + req.Reduction
	if req.Mips > MipSingle && r > int(req.Mips)-1 {
		r = int(req.Mips) - 1
	}
	if r > mips-1 {
		r = mips - 1
	}
	if r < 0 {
		r = 0
	}
	min := c.cfg.Loader.MinDimension
	for r > 0 && (shrink(width, r) < min || shrink(height, r) < min) {
		r--
	}
	return r
}

func uncompressedFor(f pixel.Format) pixel.Format {
	if f == pixel.DXT1 {
		return pixel.X8R8G8B8
	}
	return pixel.A8R8G8B8
}

// validFormat returns f when the device takes it, else the closest
// format it does take.
func (c *Context) validFormat(f pixel.Format, allowCompression bool) pixel.Format {
	caps := c.device.Caps()
	if f.IsCompressed() && !allowCompression {
		f = uncompressedFor(f)
	}
	if f != pixel.Unknown && caps.ValidFormat(f) {
		return f
	}
	if f.IsCompressed() {
		if u := uncompressedFor(f); caps.ValidFormat(u) {
			return u
		}
	}
	for _, fallback := range []pixel.Format{pixel.A8R8G8B8, pixel.X8R8G8B8, pixel.A4R4G4B4, pixel.R5G6B5, pixel.A1R5G5B5} {
		if caps.ValidFormat(fallback) {
			return fallback
		}
	}
	return pixel.Unknown
}

func (c *Context) compressedInfo(name string) (sourceInfo, error) {
	if thumb, ok := c.thumbnails.Peek(name); ok && thumb.Format.IsCompressed() {
		return sourceInfo{
			width:  thumb.Width,
			height: thumb.Height,
			depth:  atLeast(thumb.Depth, 1),
			mips:   thumb.Mips,
			format: thumb.Format,
			kind:   thumb.Kind,
		}, nil
	}
	img, err := dds.Open(c.sources, sourceName(name, ".dds"), 0, c.policy)
	if err != nil {
		return sourceInfo{}, err
	}
	return sourceInfo{
		width:  img.Width(0),
		height: img.Height(0),
		depth:  img.Depth(0),
		mips:   img.MipLevels(),
		format: img.Format(),
		kind:   img.Kind(),
	}, nil
}

// planCompressed sizes a texture from its DDS sibling. No pixel data is
// read.
func (c *Context) planCompressed(tex *Texture) (plan, error) {
	req := tex.req
	info, err := c.compressedInfo(tex.name)
	if err != nil {
		return plan{}, err
	}
	if info.kind != req.Kind {
		return plan{}, errors.Wrapf(ErrNoSource, "%s is a %s texture, want %s", tex.name, info.kind, req.Kind)
	}
	caps := c.device.Caps()

	// Sources over the device limits load from the first level that fits.
	forced := 0
	w, h, d := ValidateTextureSize(info.kind, info.width, info.height, info.depth, caps)
	if w != info.width || h != info.height || d != info.depth {
		forced = -1
		for i := 1; i < info.mips; i++ {
			rw := atLeast(shrink(info.width, i), 4)
			rh := atLeast(shrink(info.height, i), 4)
			rd := atLeast(shrink(info.depth, i), 1)
			if vw, vh, vd := ValidateTextureSize(info.kind, rw, rh, rd, caps); vw == rw && vh == rh && vd == rd {
				forced = i
				break
			}
		}
		if forced < 0 {
			// No stored level has a size the device takes.
			return c.planScaled(tex, info, w, h)
		}
	}

	allow := c.cfg.Loader.AllowCompression && req.AllowCompression
	want := req.Format
	if want == pixel.Unknown {
		want = info.format
	}
	format := c.validFormat(want, allow)
	if format.IsCompressed() && format != info.format && !(info.format == pixel.DXT1 && format == pixel.DXT2) {
		format = c.validFormat(uncompressedFor(info.format), false)
	}
	if format == pixel.Unknown {
		return plan{}, errors.Wrapf(device.ErrFormat, "%s: no format for %s", tex.name, info.format)
	}

	reduction := c.reduction(req, info.mips, info.width, info.height)
	if forced > reduction {
		reduction = forced
	}

	var mips int
	if req.Mips == MipAll {
		mips = info.mips - reduction
	} else {
		n := int(req.Mips)
		if n > info.mips {
			n = info.mips
		}
		mips = n - reduction
	}
	mips = atLeast(mips, 1)
	chain := 1
	for x, y := 4, 4; x < info.width && y < info.height; x, y = x+x, y+y {
		chain++
	}
	if mips > chain {
		mips = chain
	}

	img, err := dds.Open(c.sources, sourceName(tex.name, ".dds"), reduction, c.policy)
	if err != nil {
		return plan{}, err
	}
	if mips > img.MipLevels() {
		mips = img.MipLevels()
	}
	return plan{
		desc: device.Desc{
			Kind:      info.kind,
			Width:     img.Width(0),
			Height:    img.Height(0),
			Depth:     img.Depth(0),
			MipLevels: mips,
			Format:    format,
		},
		image: img,
		source: cache.SourceInfo{
			Width:  img.FullWidth(),
			Height: img.FullHeight(),
			Format: img.Format(),
		},
	}, nil
}

// planScaled sizes an uncompressed texture of width x height for a DDS
// source none of whose levels fit the device. The load decodes one
// stored level and scales the chain from it.
func (c *Context) planScaled(tex *Texture, info sourceInfo, width, height int) (plan, error) {
	req := tex.req
	if info.kind == pixel.Volume {
		return plan{}, errors.Wrapf(ErrSize, "%s: volume %dx%dx%d", tex.name, info.width, info.height, info.depth)
	}
	img, err := dds.Open(c.sources, sourceName(tex.name, ".dds"), 0, c.policy)
	if err != nil {
		return plan{}, err
	}

	want := req.Format
	if want == pixel.Unknown || want.IsCompressed() {
		want = uncompressedFor(info.format)
	}
	format := c.validFormat(want, false)
	if format == pixel.Unknown {
		return plan{}, errors.Wrapf(device.ErrFormat, "%s: no format for %s", tex.name, info.format)
	}
	desc := c.scaledDesc(req, info.kind, width, height, format)

	// The smallest level still covering the texture, else the largest.
	level := 0
	for level+1 < img.MipLevels() && img.Width(level+1) >= desc.Width && img.Height(level+1) >= desc.Height {
		level++
	}
	log.WithFields(log.Fields{
		"texture": tex.name,
		"source":  [2]int{img.Width(level), img.Height(level)},
		"size":    [2]int{desc.Width, desc.Height},
	}).Debug("rescaling dds source")
	return plan{
		desc:  desc,
		image: img,
		source: cache.SourceInfo{
			Width:  img.FullWidth(),
			Height: img.FullHeight(),
			Format: img.Format(),
		},
		scaled: true,
		level:  level,
	}, nil
}

// scaledDesc is the texture of an image scaled to width x height, after
// reduction and the requested mip count.
func (c *Context) scaledDesc(req Request, kind pixel.Kind, width, height int, format pixel.Format) device.Desc {
	reduction := c.reduction(req, core.MipCount(width, height), width, height)
	w, h := atLeast(shrink(width, reduction), 1), atLeast(shrink(height, reduction), 1)
	available := core.MipCount(w, h)

	mips := available
	switch req.Mips {
	case MipAll:
	case MipSingle:
		mips = 1
	default:
		mips = atLeast(int(req.Mips)-reduction, 1)
		if mips > available {
			mips = available
		}
	}
	return device.Desc{
		Kind:      kind,
		Width:     w,
		Height:    h,
		Depth:     1,
		MipLevels: mips,
		Format:    format,
	}
}

func (c *Context) uncompressedInfo(name string) (sourceInfo, error) {
	if thumb, ok := c.thumbnails.Peek(name); ok && !thumb.Format.IsCompressed() {
		return sourceInfo{
			width:  thumb.Width,
			height: thumb.Height,
			depth:  1,
			mips:   thumb.Mips,
			format: thumb.Format,
		}, nil
	}
	h, err := targa.Open(c.sources, sourceName(name, ".tga"))
	if err != nil {
		return sourceInfo{}, err
	}
	return sourceInfo{
		width:  int(h.Width),
		height: int(h.Height),
		depth:  1,
		mips:   core.MipCount(int(h.Width), int(h.Height)),
		format: h.Format(),
	}, nil
}

// planUncompressed sizes a texture from its TGA sibling. The image is
// scaled to power of two sizes when it is loaded.
func (c *Context) planUncompressed(tex *Texture) (plan, error) {
	req := tex.req
	if req.Kind != pixel.Plain {
		return plan{}, errors.Wrapf(ErrNoSource, "%s: %s textures need a dds source", tex.name, req.Kind)
	}
	info, err := c.uncompressedInfo(tex.name)
	if err != nil {
		return plan{}, err
	}

	w, h, _ := ValidateTextureSize(pixel.Plain, info.width, info.height, 1, c.device.Caps())

	want := req.Format
	if want == pixel.Unknown {
		want = info.format
	}
	format := c.validFormat(want, false)
	if format == pixel.Unknown {
		return plan{}, errors.Wrapf(device.ErrFormat, "%s: no format for %s", tex.name, info.format)
	}
	return plan{
		desc: c.scaledDesc(req, pixel.Plain, w, h, format),
		source: cache.SourceInfo{
			Width:  info.width,
			Height: info.height,
			Format: info.format,
		},
	}, nil
}
