package loader

import (
	"github.com/devblok/texstream/cache"
	"github.com/devblok/texstream/dds"
	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/targa"
	"github.com/devblok/texstream/utility/tagblock"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func (c *Context) loadCompressed(t *Task) error {
	img := t.image
	if err := img.Load(); err != nil {
		return err
	}
	shift := t.texture.req.Shift
	s := &t.surfaces
	if t.scaled {
		return loadScaled(t.image, t.level, s, shift)
	}
	for level := 0; level < t.desc.MipLevels; level++ {
		switch s.Kind {
		case pixel.Cube:
			for face := range s.Cube {
				if err := img.CopyCubeLevelToSurface(face, level, s.Cube[face][level], shift); err != nil {
					return err
				}
			}
		case pixel.Volume:
			if err := img.CopyVolumeLevelToSurface(level, s.Volume[level], shift); err != nil {
				return err
			}
		default:
			if err := img.CopyLevelToSurface(level, s.Plain[level], shift); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadScaled decodes one level of every face and scales the chain of
// each face from it.
func loadScaled(img *dds.Image, level int, s *Surfaces, shift mgl32.Vec3) error {
	for face := 0; face < s.Kind.Faces(); face++ {
		decoded := pixel.NewSurface(pixel.A8R8G8B8, img.Width(level), img.Height(level))
		var err error
		if s.Kind == pixel.Cube {
			err = img.CopyCubeLevelToSurface(face, level, decoded, shift)
		} else {
			err = img.CopyLevelToSurface(level, decoded, shift)
		}
		if err != nil {
			return err
		}
		src, err := pixel.ToImage(decoded)
		if err != nil {
			return err
		}
		if err := fillLevels(s.Levels(face), src, mgl32.Vec3{}); err != nil {
			return err
		}
	}
	return nil
}

// loadUncompressed fills the levels from the content cache, or decodes
// the TGA source and generates the chain. Shifted textures bypass the
// cache, it only holds unshifted levels.
func (c *Context) loadUncompressed(t *Task) error {
	levels := t.surfaces.Plain
	name := sourceName(t.texture.name, ".tga")
	shift := t.texture.req.Shift
	cacheable := c.cache != nil && !pixel.HasShift(shift)

	if cacheable {
		err := c.cache.Load(name, levels)
		if err == nil {
			return nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			log.WithError(err).WithField("texture", name).Debug("cache load")
		}
	}

	img, _, err := targa.Decode(c.sources, name)
	if err != nil {
		return err
	}
	if err := fillLevels(levels, img, shift); err != nil {
		return err
	}

	if cacheable {
		if err := c.cache.Save(name, t.source, levels); err != nil && !errors.Is(err, tagblock.ErrExists) {
			log.WithError(err).WithField("texture", name).Debug("cache save")
		}
	}
	return nil
}
