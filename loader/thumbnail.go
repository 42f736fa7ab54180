package loader

import (
	"image"
	"sort"
	"strings"
	"sync"

	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/dds"
	"github.com/devblok/texstream/device"
	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/targa"
	"github.com/devblok/texstream/vfs"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ThumbnailFormat is the format previews are stored and loaded in.
const ThumbnailFormat = pixel.A4R4G4B4

// Thumbnail is a small preview of a texture together with what a full
// load needs to know about its source.
type Thumbnail struct {
	Name   string
	Width  int
	Height int
	Depth  int
	Mips   int
	Format pixel.Format
	Kind   pixel.Kind

	Preview pixel.Surface
}

// Thumbnails keeps thumbnails by texture name. Names are matched without
// their extension and case.
type Thumbnails struct {
	sources vfs.FileSystem
	size    int
	policy  dds.Policy

	mutex   sync.RWMutex
	entries map[string]*Thumbnail
}

// NewThumbnails creates an empty set of thumbnails whose previews are at
// most size texels on a side.
func NewThumbnails(sources vfs.FileSystem, size int, policy dds.Policy) *Thumbnails {
	if size < 1 {
		size = 1
	}
	return &Thumbnails{
		sources: sources,
		size:    size,
		policy:  policy,
		entries: make(map[string]*Thumbnail),
	}
}

func thumbnailKey(name string) string {
	return strings.ToLower(baseName(name))
}

// Peek finds the thumbnail of name.
func (m *Thumbnails) Peek(name string) (*Thumbnail, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	t, ok := m.entries[thumbnailKey(name)]
	return t, ok
}

// Add stores t, replacing a thumbnail of the same name.
func (m *Thumbnails) Add(t *Thumbnail) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entries[thumbnailKey(t.Name)] = t
}

// Remove forgets the thumbnail of name.
func (m *Thumbnails) Remove(name string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.entries, thumbnailKey(name))
}

// Names lists the stored thumbnails, sorted.
func (m *Thumbnails) Names() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.entries))
	for _, t := range m.entries {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Len is the number of stored thumbnails.
func (m *Thumbnails) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.entries)
}

func previewSize(width, height, size int) (int, int) {
	largest := width
	if height > largest {
		largest = height
	}
	if largest <= size {
		return width, height
	}
	return atLeast(width*size/largest, 1), atLeast(height*size/largest, 1)
}

func (m *Thumbnails) preview(img image.Image) (pixel.Surface, error) {
	b := img.Bounds()
	w, h := previewSize(b.Dx(), b.Dy(), m.size)
	s := pixel.NewSurface(ThumbnailFormat, w, h)
	if err := pixel.FromImage(s, core.ScaleImage(img, w, h), mgl32.Vec3{}); err != nil {
		return pixel.Surface{}, err
	}
	return s, nil
}

// Generate builds and stores the thumbnail of name from its DDS sibling,
// or from its TGA sibling when there is no DDS.
func (m *Thumbnails) Generate(name string) (*Thumbnail, error) {
	t, err := m.fromDDS(name)
	if err != nil {
		var terr error
		t, terr = m.fromTGA(name)
		if terr != nil {
			return nil, errors.Wrapf(ErrNoSource, "thumbnail %s: %v, %v", name, err, terr)
		}
	}
	m.Add(t)
	return t, nil
}

func (m *Thumbnails) fromDDS(name string) (*Thumbnail, error) {
	file := sourceName(name, ".dds")
	info, err := dds.Open(m.sources, file, 0, m.policy)
	if err != nil {
		return nil, err
	}

	// The preview is decoded from the first level small enough.
	reduction := 0
	for reduction < info.HeaderMipLevels()-1 &&
		(shrink(info.FullWidth(), reduction) > m.size || shrink(info.FullHeight(), reduction) > m.size) {
		reduction++
	}
	small, err := dds.Open(m.sources, file, reduction, dds.KeepAll)
	if err != nil {
		return nil, err
	}
	if err := small.Load(); err != nil {
		return nil, err
	}
	decoded := pixel.NewSurface(pixel.A8R8G8B8, small.Width(0), small.Height(0))
	if err := small.CopyLevelToSurface(0, decoded, mgl32.Vec3{}); err != nil {
		return nil, err
	}
	img, err := pixel.ToImage(decoded)
	if err != nil {
		return nil, err
	}
	preview, err := m.preview(img)
	if err != nil {
		return nil, err
	}
	return &Thumbnail{
		Name:    name,
		Width:   info.Width(0),
		Height:  info.Height(0),
		Depth:   info.Depth(0),
		Mips:    info.MipLevels(),
		Format:  info.Format(),
		Kind:    info.Kind(),
		Preview: preview,
	}, nil
}

func (m *Thumbnails) fromTGA(name string) (*Thumbnail, error) {
	img, h, err := targa.Decode(m.sources, sourceName(name, ".tga"))
	if err != nil {
		return nil, err
	}
	preview, err := m.preview(img)
	if err != nil {
		return nil, err
	}
	return &Thumbnail{
		Name:    name,
		Width:   int(h.Width),
		Height:  int(h.Height),
		Depth:   1,
		Mips:    core.MipCount(int(h.Width), int(h.Height)),
		Format:  h.Format(),
		Kind:    pixel.Plain,
		Preview: preview,
	}, nil
}

// loadThumbnail publishes the thumbnail of tex. Textures that finished
// their full load keep it.
func (c *Context) loadThumbnail(tex *Texture) {
	if tex.IsInitialized() {
		return
	}
	thumb, ok := c.thumbnails.Peek(tex.name)
	if !ok {
		var err error
		if thumb, err = c.thumbnails.Generate(tex.name); err != nil {
			log.WithError(err).WithField("texture", tex.name).Debug("no thumbnail")
			tex.apply(c.missing, false, true)
			return
		}
	}
	res, err := c.createThumbnail(thumb, tex.req.Shift)
	if err != nil {
		log.WithError(err).WithField("texture", tex.name).Warn("thumbnail load failed")
		tex.apply(c.missing, false, true)
		return
	}
	tex.apply(res, false, false)
}

// createThumbnail uploads a preview with a full mip chain. The shift is
// applied to the first level, the others are scaled from it.
func (c *Context) createThumbnail(thumb *Thumbnail, shift mgl32.Vec3) (device.Texture, error) {
	p := thumb.Preview
	format := c.validFormat(ThumbnailFormat, false)
	mips := core.MipCount(p.Width, p.Height)
	res, err := c.device.CreateTexture(device.Desc{
		Kind:      pixel.Plain,
		Width:     p.Width,
		Height:    p.Height,
		Depth:     1,
		MipLevels: mips,
		Format:    format,
	})
	if err != nil {
		return nil, err
	}
	img, err := pixel.ToImage(p)
	if err != nil {
		res.Release()
		return nil, err
	}
	if err := fillChain(res, img, shift); err != nil {
		res.Release()
		return nil, err
	}
	return res, nil
}

// fillChain writes img into the first level of res and downscales it
// into the rest.
func fillChain(res device.Texture, img image.Image, shift mgl32.Vec3) (err error) {
	guard, err := device.LockAll(res)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := guard.Release(); err == nil {
			err = rerr
		}
	}()

	return fillLevels(guard.Levels(0), img, shift)
}

func fillLevels(levels []pixel.Surface, img image.Image, shift mgl32.Vec3) error {
	top := levels[0]
	if err := pixel.FromImage(top, core.ScaleImage(img, top.Width, top.Height), shift); err != nil {
		return err
	}
	if len(levels) == 1 {
		return nil
	}
	base, err := pixel.ToImage(top)
	if err != nil {
		return err
	}
	chain := core.MipChain(base, top.Width, top.Height, len(levels))
	for i := 1; i < len(levels); i++ {
		if err := pixel.FromImage(levels[i], chain[i], mgl32.Vec3{}); err != nil {
			return err
		}
	}
	return nil
}
