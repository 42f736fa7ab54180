package loader

import (
	"container/list"

	"github.com/devblok/texstream/cache"
	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/dds"
	"github.com/devblok/texstream/device"
	"github.com/devblok/texstream/pixel"
	log "github.com/sirupsen/logrus"
)

// Surfaces are the locked levels of a task's texture. Only the member
// matching Kind is set.
type Surfaces struct {
	Kind   pixel.Kind
	Plain  []pixel.Surface
	Cube   [pixel.CubeFaces][]pixel.Surface
	Volume []pixel.Surface
}

func surfacesOf(g *device.Guard) Surfaces {
	s := Surfaces{Kind: g.Texture().Desc().Kind}
	switch s.Kind {
	case pixel.Cube:
		for face := range s.Cube {
			s.Cube[face] = g.Levels(face)
		}
	case pixel.Volume:
		s.Volume = g.Levels(0)
	default:
		s.Plain = g.Levels(0)
	}
	return s
}

// Levels returns the mip chain of a face, largest first.
func (s *Surfaces) Levels(face int) []pixel.Surface {
	switch s.Kind {
	case pixel.Cube:
		return s.Cube[face]
	case pixel.Volume:
		return s.Volume
	}
	return s.Plain
}

// Task is one pending load of a texture.
type Task struct {
	handle Handle
	freed  bool
	owner  *queue
	elem   *list.Element

	ctx      *Context
	texture  *Texture
	kind     TaskKind
	priority Priority
	state    atomicState

	desc     device.Desc
	image    *dds.Image
	scaled   bool
	level    int
	source   cache.SourceInfo
	resource device.Texture
	guard    *device.Guard
	surfaces Surfaces
	err      error
}

// Handle addresses the task in its context.
func (t *Task) Handle() Handle { return t.handle }

// Texture is the texture being loaded.
func (t *Task) Texture() *Texture { return t.texture }

// Kind tells full loads from thumbnail loads.
func (t *Task) Kind() TaskKind { return t.kind }

// Priority of the task.
func (t *Task) Priority() Priority { return t.priority }

// State is safe to read from any goroutine.
func (t *Task) State() State { return t.state.load() }

// Desc is the texture the task creates, valid once the load has begun.
func (t *Task) Desc() device.Desc { return t.desc }

// Surfaces are the locked levels while the load is in progress.
func (t *Task) Surfaces() Surfaces { return t.surfaces }

// Compressed reports whether the task reads a DDS source.
func (t *Task) Compressed() bool { return t.image != nil }

func (t *Task) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"texture":  t.texture.name,
		"priority": t.priority,
	})
}

// beginLoad sizes the texture, creates it and locks every level. It runs
// on the main goroutine.
func (t *Task) beginLoad() bool {
	core.Assert(t.State() == StateNone, "begin %s in state %s", t.texture.name, t.State())
	c := t.ctx

	p, err := c.planCompressed(t.texture)
	if err != nil {
		t.logger().WithError(err).Debug("no compressed source")
		p, err = c.planUncompressed(t.texture)
	}
	if err != nil {
		t.logger().WithError(err).Warn("texture unavailable")
		return false
	}

	res, err := c.device.CreateTexture(p.desc)
	if err != nil {
		t.logger().WithError(err).Warn("create texture")
		return false
	}
	guard, err := device.LockAll(res)
	if err != nil {
		res.Release()
		t.logger().WithError(err).Warn("lock texture")
		return false
	}

	t.desc = p.desc
	t.image = p.image
	t.scaled = p.scaled
	t.level = p.level
	t.source = p.source
	t.resource = res
	t.guard = guard
	t.surfaces = surfacesOf(guard)
	t.state.store(StateLoadBegun)
	return true
}

// load fills the locked levels. It runs on the worker or, for high
// priority tasks, on the main goroutine.
func (t *Task) load() {
	core.Assert(t.State() == StateLoadBegun, "load %s in state %s", t.texture.name, t.State())
	if t.image != nil {
		t.err = t.ctx.loadCompressed(t)
	} else {
		t.err = t.ctx.loadUncompressed(t)
	}
	t.state.store(StateLoadMipmap)
}

// endLoad unlocks and publishes the texture. A failed load publishes the
// missing texture instead.
func (t *Task) endLoad() {
	core.Assert(t.State() == StateLoadMipmap, "end %s in state %s", t.texture.name, t.State())
	if err := t.guard.Release(); err != nil && t.err == nil {
		t.err = err
	}
	t.guard = nil
	t.surfaces = Surfaces{}

	if t.err != nil {
		t.logger().WithError(t.err).Warn("texture load failed")
		t.resource.Release()
		t.ctx.applyMissing(t.texture)
	} else {
		t.texture.apply(t.resource, true, false)
		t.logger().WithFields(log.Fields{
			"size":   [3]int{t.desc.Width, t.desc.Height, t.desc.Depth},
			"mips":   t.desc.MipLevels,
			"format": t.desc.Format,
		}).Debug("texture loaded")
	}
	t.resource = nil
	t.image = nil
	t.state.store(StateComplete)
}

// finishLoad runs whatever is left of the load on the main goroutine.
func (t *Task) finishLoad() {
	switch t.State() {
	case StateNone:
		if !t.beginLoad() {
			t.ctx.applyMissing(t.texture)
			t.state.store(StateComplete)
			return
		}
		fallthrough
	case StateLoadBegun:
		t.load()
		fallthrough
	case StateLoadMipmap:
		t.endLoad()
	}
}
