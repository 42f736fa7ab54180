package device

import (
	"sync"

	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/pixel"
	"github.com/pkg/errors"
)

// pitchAlign pads every row, so code that assumes tight surfaces breaks
// early.
const pitchAlign = 16

// AllFormats lists every format the memory device supports by default.
var AllFormats = []pixel.Format{
	pixel.A8R8G8B8, pixel.X8R8G8B8, pixel.R8G8B8, pixel.R5G6B5,
	pixel.X1R5G5B5, pixel.A1R5G5B5, pixel.A4R4G4B4, pixel.A8, pixel.L8,
	pixel.DXT1, pixel.DXT2, pixel.DXT3, pixel.DXT4, pixel.DXT5,
}

// NewMemory creates a device keeping textures in main memory. Without
// formats every format in AllFormats is supported.
func NewMemory(cfg core.DeviceConfiguration, formats ...pixel.Format) *Memory {
	if len(formats) == 0 {
		formats = AllFormats
	}
	return &Memory{
		caps: Caps{
			MaxTextureWidth:  cfg.MaxTextureWidth,
			MaxTextureHeight: cfg.MaxTextureHeight,
			MaxVolumeExtent:  cfg.MaxVolumeExtent,
			Formats:          append([]pixel.Format(nil), formats...),
		},
	}
}

// Memory is a software Device.
type Memory struct {
	caps Caps

	mutex   sync.Mutex
	live    int
	created int
}

// Caps returns the device limits.
func (m *Memory) Caps() Caps {
	return m.caps
}

// Live is the number of textures not yet released.
func (m *Memory) Live() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.live
}

// Created is the number of textures created so far.
func (m *Memory) Created() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.created
}

// CreateTexture allocates every level of every face.
func (m *Memory) CreateTexture(desc Desc) (Texture, error) {
	if !m.caps.ValidFormat(desc.Format) {
		return nil, errors.Wrap(ErrFormat, desc.Format.String())
	}
	if desc.Width < 1 || desc.Height < 1 || desc.MipLevels < 1 {
		return nil, errors.Wrapf(ErrSize, "%dx%d with %d levels", desc.Width, desc.Height, desc.MipLevels)
	}
	if desc.Kind != pixel.Volume {
		desc.Depth = 1
	}
	if desc.Depth < 1 || !m.caps.Fits(desc.Kind, desc.Width, desc.Height, desc.Depth) {
		w, h, d := m.caps.Limits(desc.Kind)
		return nil, errors.Wrapf(ErrSize, "%s %dx%dx%d over %dx%dx%d", desc.Kind, desc.Width, desc.Height, desc.Depth, w, h, d)
	}

	t := &memoryTexture{
		device: m,
		desc:   desc,
		faces:  make([][]memoryLevel, desc.Kind.Faces()),
	}
	for face := range t.faces {
		t.faces[face] = make([]memoryLevel, desc.MipLevels)
		for level := range t.faces[face] {
			t.faces[face][level].surface = allocate(desc, level)
		}
	}

	m.mutex.Lock()
	m.live++
	m.created++
	m.mutex.Unlock()
	return t, nil
}

func allocate(desc Desc, level int) pixel.Surface {
	w, h, d := desc.LevelSize(level)
	pitch := desc.Format.RowBytes(w)
	pitch = (pitch + pitchAlign - 1) / pitchAlign * pitchAlign
	slice := pitch * desc.Format.Rows(h)
	return pixel.Surface{
		Format:     desc.Format,
		Width:      w,
		Height:     h,
		Depth:      d,
		Pitch:      pitch,
		SlicePitch: slice,
		Data:       make([]byte, slice*d),
	}
}

type memoryLevel struct {
	surface pixel.Surface
	locked  bool
}

type memoryTexture struct {
	device *Memory

	mutex    sync.Mutex
	desc     Desc
	faces    [][]memoryLevel
	released bool
}

func (t *memoryTexture) Desc() Desc {
	return t.desc
}

func (t *memoryTexture) level(face, level int) (*memoryLevel, error) {
	if t.released {
		return nil, ErrReleased
	}
	if face < 0 || face >= len(t.faces) || level < 0 || level >= t.desc.MipLevels {
		return nil, errors.Errorf("no level %d of face %d", level, face)
	}
	return &t.faces[face][level], nil
}

func (t *memoryTexture) Lock(face, level int) (pixel.Surface, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	l, err := t.level(face, level)
	if err != nil {
		return pixel.Surface{}, err
	}
	if l.locked {
		return pixel.Surface{}, errors.Wrapf(ErrLocked, "face %d level %d", face, level)
	}
	l.locked = true
	return l.surface, nil
}

func (t *memoryTexture) Unlock(face, level int) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	l, err := t.level(face, level)
	if err != nil {
		return err
	}
	if !l.locked {
		return errors.Wrapf(ErrNotLocked, "face %d level %d", face, level)
	}
	l.locked = false
	return nil
}

func (t *memoryTexture) Release() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.faces = nil

	t.device.mutex.Lock()
	t.device.live--
	t.device.mutex.Unlock()
}
