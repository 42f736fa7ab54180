package loader

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/devblok/texstream/cache"
	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/dds"
	"github.com/devblok/texstream/device"
	"github.com/devblok/texstream/vfs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Context owns the load queues, the background worker and the missing
// texture. Its methods must be called from the main goroutine, the one
// that drives Update; other goroutines request through Remote.
//
// Lock order is the foreground lock, then the background lock, then the
// queue locks.
type Context struct {
	cfg        core.Configuration
	device     device.Device
	sources    vfs.FileSystem
	policy     dds.Policy
	cache      *cache.Cache
	thumbnails *Thumbnails
	missing    device.Texture
	time       core.Time

	fgMu sync.Mutex
	bgMu sync.Mutex
	pool pool
	fg   *queue
	bg   *queue

	suspended bool
	closed    bool
	started   atomic.Bool
	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
}

var _ core.Service = (*Context)(nil)

// NewContext creates a loader reading sources into textures of dev. The
// content cache is opened when cfg.Cache.Path is set. The worker does
// not run until Start.
func NewContext(cfg core.Configuration, dev device.Device, sources vfs.FileSystem) (*Context, error) {
	c := &Context{
		cfg:     cfg,
		device:  dev,
		sources: sources,
		policy:  dds.KeepAll,
		fg:      newQueue("foreground"),
		bg:      newQueue("background"),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.Loader.DropSmallMips {
		c.policy = dds.DropTwoSmallest
	}
	c.thumbnails = NewThumbnails(sources, cfg.Loader.ThumbnailSize, c.policy)

	missing, err := c.newMissingTexture()
	if err != nil {
		return nil, err
	}
	c.missing = missing

	if cfg.Cache.Path != "" {
		if c.cache, err = cache.New(cfg.Cache, sources); err != nil {
			missing.Release()
			return nil, errors.Wrap(err, "open content cache")
		}
	}
	c.time = core.NewTime(cfg.Time)
	return c, nil
}

// Start launches the background worker. Until it runs, low priority
// loads are only read by Flush.
func (c *Context) Start() {
	if c.started.CompareAndSwap(false, true) {
		go c.worker()
	}
}

// Remote returns the request interface for goroutines other than the
// main one.
func (c *Context) Remote() *Remote {
	return &Remote{ctx: c}
}

// Thumbnails are consulted before any source file is opened.
func (c *Context) Thumbnails() *Thumbnails {
	return c.thumbnails
}

// Cache is the content cache, nil when disabled.
func (c *Context) Cache() *cache.Cache {
	return c.cache
}

// Missing is the texture standing in for textures that failed to load.
func (c *Context) Missing() device.Texture {
	return c.missing
}

// Suspend stops Update from completing tasks. Flush still drains.
func (c *Context) Suspend() {
	c.suspended = true
}

// Continue undoes Suspend.
func (c *Context) Continue() {
	c.suspended = false
}

// Suspended reports whether Update is suspended.
func (c *Context) Suspended() bool {
	return c.suspended
}

// Pending is the number of tasks not yet completed.
func (c *Context) Pending() int {
	c.fgMu.Lock()
	defer c.fgMu.Unlock()
	return c.pool.live
}

func (c *Context) newTask(tex *Texture, kind TaskKind, priority Priority) *Task {
	t := c.pool.alloc()
	t.ctx = c
	t.texture = tex
	t.kind = kind
	t.priority = priority
	if kind == ThumbnailLoad {
		tex.thumbTask = t
	} else {
		tex.loadTask = t
	}
	return t
}

// freeTask detaches t from its texture and returns it to the pool.
func (c *Context) freeTask(t *Task) {
	core.Assert(t.owner == nil, "free %s while it is queued", t.texture.name)
	if t.kind == ThumbnailLoad {
		if t.texture.thumbTask == t {
			t.texture.thumbTask = nil
		}
	} else if t.texture.loadTask == t {
		t.texture.loadTask = nil
	}
	if t.guard != nil {
		t.guard.Release()
		t.resource.Release()
	}
	c.pool.release(t)
}

func (c *Context) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// beginAndQueue begins t and hands it to the worker. When it can not
// begin the missing texture is applied.
func (c *Context) beginAndQueue(t *Task) {
	if !t.beginLoad() {
		c.applyMissing(t.texture)
		t.state.store(StateComplete)
		c.freeTask(t)
		return
	}
	c.bg.pushFront(t)
	c.signal()
}

// RequestForeground loads tex before returning. A pending load of tex is
// taken over and finished here.
func (c *Context) RequestForeground(tex *Texture) {
	c.fgMu.Lock()
	defer c.fgMu.Unlock()
	if tex.IsInitialized() {
		return
	}
	if t := tex.thumbTask; t != nil {
		c.fg.remove(t)
		c.freeTask(t)
	}

	t := tex.loadTask
	if t != nil {
		// The worker holds the background lock while it loads.
		c.bgMu.Lock()
		c.fg.remove(t)
		c.bg.remove(t)
		c.bgMu.Unlock()
		t.priority = High
	} else {
		t = c.newTask(tex, FullLoad, High)
	}
	t.finishLoad()
	c.freeTask(t)
}

// RequestBackground queues tex for the worker. Textures that are loaded
// or already have a load pending are left alone.
func (c *Context) RequestBackground(tex *Texture) {
	c.fgMu.Lock()
	defer c.fgMu.Unlock()
	if tex.IsInitialized() || tex.loadTask != nil {
		return
	}
	c.beginAndQueue(c.newTask(tex, FullLoad, Low))
}

// RequestThumbnail shows the thumbnail of tex until its full load is
// done. Textures that have any resource are left alone.
func (c *Context) RequestThumbnail(tex *Texture) {
	c.fgMu.Lock()
	defer c.fgMu.Unlock()
	if tex.hasResource() {
		return
	}
	if t := tex.thumbTask; t != nil {
		c.fg.remove(t)
		c.freeTask(t)
	}
	c.loadThumbnail(tex)
}

// Update completes the tasks handed back to the main goroutine. It does
// nothing while suspended.
func (c *Context) Update() {
	if c.suspended {
		return
	}
	c.update()
}

func (c *Context) update() {
	c.fgMu.Lock()
	defer c.fgMu.Unlock()
	for t := c.fg.popFront(); t != nil; t = c.fg.popFront() {
		if t.kind == ThumbnailLoad {
			if t.State() == StateNone {
				c.loadThumbnail(t.texture)
			}
			t.state.store(StateComplete)
			c.freeTask(t)
			continue
		}
		if t.priority == High {
			t.finishLoad()
			c.freeTask(t)
			continue
		}
		switch t.State() {
		case StateNone:
			c.beginAndQueue(t)
		case StateLoadMipmap:
			t.endLoad()
			c.freeTask(t)
		default:
			core.Assert(false, "low priority task %s in the foreground queue in state %s", t.texture.name, t.State())
		}
	}
}

// serviceBackground loads the newest background task and hands it to
// the foreground queue. It reports false when there was none.
func (c *Context) serviceBackground() bool {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	t := c.bg.popFront()
	if t == nil {
		return false
	}
	core.Assert(t.kind == FullLoad && t.State() == StateLoadBegun,
		"background task %s in state %s", t.texture.name, t.State())
	t.load()
	c.fg.pushBack(t)
	return true
}

func (c *Context) worker() {
	defer close(c.done)
	ticker := c.time.WorkerTicker()
	log.Debug("texture loader worker started")
	for {
		for c.serviceBackground() {
		}
		select {
		case <-c.quit:
			log.Debug("texture loader worker stopped")
			return
		case <-c.wake:
		case <-ticker.C:
		}
	}
}

func (c *Context) idle() bool {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	return c.bg.empty() && c.fg.empty()
}

// Flush blocks until both queues are drained, suspended or not.
func (c *Context) Flush() {
	for !c.idle() {
		if c.started.Load() {
			c.signal()
		} else {
			c.serviceBackground()
		}
		c.update()
		runtime.Gosched()
	}
}

// Close flushes, stops the worker and releases the missing texture and
// the cache.
func (c *Context) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.Flush()
	c.closed = true
	close(c.quit)
	if c.started.Load() {
		<-c.done
	}
	c.time.Stop()
	c.missing.Release()
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

// Remote requests loads from goroutines other than the main one. The
// work that needs the main goroutine is left to the next Update.
type Remote struct {
	ctx *Context
}

// RequestForeground queues tex to be loaded by the next Update. A
// pending low priority load is upgraded rather than duplicated.
func (r *Remote) RequestForeground(tex *Texture) {
	c := r.ctx
	c.fgMu.Lock()
	defer c.fgMu.Unlock()
	if tex.IsInitialized() {
		return
	}
	c.bgMu.Lock()
	defer c.bgMu.Unlock()

	if t := tex.thumbTask; t != nil {
		t.state.store(StateComplete)
	}
	if t := tex.loadTask; t != nil {
		if c.bg.remove(t) {
			c.fg.pushBack(t)
		}
		t.priority = High
		return
	}
	c.fg.pushBack(c.newTask(tex, FullLoad, High))
}

// RequestBackground queues tex to be begun by the next Update and then
// read by the worker.
func (r *Remote) RequestBackground(tex *Texture) {
	c := r.ctx
	c.fgMu.Lock()
	defer c.fgMu.Unlock()
	if tex.IsInitialized() || tex.loadTask != nil {
		return
	}
	c.fg.pushBack(c.newTask(tex, FullLoad, Low))
}

// RequestThumbnail queues the thumbnail of tex for the next Update.
func (r *Remote) RequestThumbnail(tex *Texture) {
	c := r.ctx
	c.fgMu.Lock()
	defer c.fgMu.Unlock()
	if tex.hasResource() || tex.thumbTask != nil {
		return
	}
	if t := tex.loadTask; t != nil && t.State() >= StateLoadMipmap {
		return
	}
	c.fg.pushBack(c.newTask(tex, ThumbnailLoad, Low))
}
