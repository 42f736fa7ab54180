package loader

import (
	"strings"
	"sync"

	"github.com/devblok/texstream/device"
)

// Texture is a named texture handle. Its resource is swapped as loads
// progress, from nothing to a thumbnail to the full texture or the
// missing texture.
type Texture struct {
	name string
	req  Request

	mutex       sync.RWMutex
	resource    device.Texture
	missing     bool
	thumbnail   bool
	initialized bool
	ready       chan struct{}

	// guarded by the foreground lock of the context
	loadTask  *Task
	thumbTask *Task
}

// NewTexture creates an unloaded texture. name is the source file name;
// the extension is replaced by .dds or .tga when the source is looked up.
func NewTexture(name string, req Request) *Texture {
	return &Texture{
		name:  name,
		req:   req,
		ready: make(chan struct{}),
	}
}

// Name is the source name the texture was created with.
func (t *Texture) Name() string {
	return t.name
}

// Request returns how the texture is loaded.
func (t *Texture) Request() Request {
	return t.req
}

// Ready is closed once the full texture, or the missing texture in its
// place, is published.
func (t *Texture) Ready() <-chan struct{} {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.ready
}

// Resource is the current device texture, nil before anything loaded.
func (t *Texture) Resource() device.Texture {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.resource
}

// IsInitialized reports whether the full load finished.
func (t *Texture) IsInitialized() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.initialized
}

// IsMissing reports whether the missing texture stands in.
func (t *Texture) IsMissing() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.missing
}

// IsThumbnail reports whether only the thumbnail is loaded.
func (t *Texture) IsThumbnail() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.thumbnail
}

func (t *Texture) hasResource() bool {
	return t.Resource() != nil
}

// apply publishes res. The previous resource is released unless it is
// the shared missing texture.
func (t *Texture) apply(res device.Texture, initialize, missing bool) {
	t.mutex.Lock()
	old, oldMissing := t.resource, t.missing
	t.resource = res
	t.missing = missing
	t.thumbnail = !initialize
	if initialize && !t.initialized {
		t.initialized = true
		close(t.ready)
	}
	t.mutex.Unlock()

	if old != nil && old != res && !oldMissing {
		old.Release()
	}
}

// Release drops the resource. The texture can be requested again.
func (t *Texture) Release() {
	t.mutex.Lock()
	res, missing := t.resource, t.missing
	t.resource = nil
	t.missing = false
	t.thumbnail = false
	if t.initialized {
		t.initialized = false
		t.ready = make(chan struct{})
	}
	t.mutex.Unlock()

	if res != nil && !missing {
		res.Release()
	}
}

// baseName strips the extension of a texture name.
func baseName(name string) string {
	slash := strings.LastIndexAny(name, "/\\")
	if dot := strings.LastIndexByte(name, '.'); dot > slash {
		return name[:dot]
	}
	return name
}

func sourceName(name, ext string) string {
	return baseName(name) + ext
}
