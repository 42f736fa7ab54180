package device

import (
	"github.com/devblok/texstream/pixel"
	"github.com/pkg/errors"
)

// Guard holds every level of every face of a texture locked until it is
// released.
type Guard struct {
	tex      Texture
	surfaces [][]pixel.Surface
	released bool
}

// LockAll locks the whole texture. When a level fails to lock, the ones
// already locked are unlocked again.
func LockAll(tex Texture) (*Guard, error) {
	desc := tex.Desc()
	g := &Guard{
		tex:      tex,
		surfaces: make([][]pixel.Surface, desc.Kind.Faces()),
	}
	for face := range g.surfaces {
		for level := 0; level < desc.MipLevels; level++ {
			s, err := tex.Lock(face, level)
			if err != nil {
				g.Release()
				return nil, errors.Wrapf(err, "lock face %d level %d", face, level)
			}
			g.surfaces[face] = append(g.surfaces[face], s)
		}
	}
	return g, nil
}

// Texture is the guarded texture.
func (g *Guard) Texture() Texture {
	return g.tex
}

// Surface returns a locked level.
func (g *Guard) Surface(face, level int) pixel.Surface {
	return g.surfaces[face][level]
}

// Levels returns the locked levels of a face, largest first.
func (g *Guard) Levels(face int) []pixel.Surface {
	return g.surfaces[face]
}

// Release unlocks everything that is locked. Calling it again does
// nothing.
func (g *Guard) Release() error {
	if g.released {
		return nil
	}
	g.released = true
	var first error
	for face, levels := range g.surfaces {
		for level := range levels {
			if err := g.tex.Unlock(face, level); err != nil && first == nil {
				first = err
			}
		}
	}
	g.surfaces = nil
	return first
}

// WithLock runs fn on one locked level and unlocks it on every path out.
func WithLock(tex Texture, face, level int, fn func(pixel.Surface) error) (err error) {
	s, err := tex.Lock(face, level)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := tex.Unlock(face, level); err == nil {
			err = uerr
		}
	}()
	return fn(s)
}
