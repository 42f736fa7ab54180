package device_test

import (
	"testing"

	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/device"
	"github.com/devblok/texstream/pixel"
	"github.com/pkg/errors"
)

func newDevice(formats ...pixel.Format) *device.Memory {
	return device.NewMemory(core.DefaultConfiguration().Device, formats...)
}

func TestCreateTexture(t *testing.T) {
	dev := newDevice()
	tests := []struct {
		name string
		desc device.Desc
		err  error
	}{
		{"plain", device.Desc{Kind: pixel.Plain, Width: 64, Height: 32, MipLevels: 7, Format: pixel.DXT1}, nil},
		{"cube", device.Desc{Kind: pixel.Cube, Width: 16, Height: 16, MipLevels: 5, Format: pixel.A8R8G8B8}, nil},
		{"volume", device.Desc{Kind: pixel.Volume, Width: 16, Height: 16, Depth: 8, MipLevels: 2, Format: pixel.L8}, nil},
		{"too wide", device.Desc{Kind: pixel.Plain, Width: 8192, Height: 32, MipLevels: 1, Format: pixel.DXT1}, device.ErrSize},
		{"deep", device.Desc{Kind: pixel.Volume, Width: 16, Height: 16, Depth: 512, MipLevels: 1, Format: pixel.L8}, device.ErrSize},
		{"wide volume", device.Desc{Kind: pixel.Volume, Width: 512, Height: 512, Depth: 4, MipLevels: 1, Format: pixel.L8}, device.ErrSize},
		{"no levels", device.Desc{Kind: pixel.Plain, Width: 16, Height: 16, Format: pixel.L8}, device.ErrSize},
		{"unknown", device.Desc{Kind: pixel.Plain, Width: 16, Height: 16, MipLevels: 1}, device.ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex, err := dev.CreateTexture(tt.desc)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer tex.Release()
			last := tt.desc.MipLevels - 1
			s, err := tex.Lock(tt.desc.Kind.Faces()-1, last)
			if err != nil {
				t.Fatal(err)
			}
			w, h, d := tt.desc.LevelSize(last)
			if s.Width != w || s.Height != h || s.Depth != d {
				t.Errorf("last level %dx%dx%d, expected %dx%dx%d", s.Width, s.Height, s.Depth, w, h, d)
			}
			if s.Pitch < s.Format.RowBytes(s.Width) || len(s.Data) < s.SlicePitch*d {
				t.Errorf("surface too small: pitch %d, %d bytes", s.Pitch, len(s.Data))
			}
		})
	}
	if dev.Live() != 0 {
		t.Errorf("%d textures leaked", dev.Live())
	}
}

func TestLimits(t *testing.T) {
	tests := []struct {
		name    string
		caps    device.Caps
		kind    pixel.Kind
		w, h, d int
		fits    bool
	}{
		{"unlimited", device.Caps{}, pixel.Plain, 8192, 16, 1, true},
		{"unlimited volume", device.Caps{}, pixel.Volume, 512, 8, 512, true},
		{"plain over width", device.Caps{MaxTextureWidth: 64}, pixel.Plain, 128, 8, 1, false},
		{"plain ignores volume extent", device.Caps{MaxVolumeExtent: 16}, pixel.Plain, 512, 512, 1, true},
		{"volume side", device.Caps{MaxTextureWidth: 4096, MaxTextureHeight: 4096, MaxVolumeExtent: 256}, pixel.Volume, 512, 16, 4, false},
		{"volume depth", device.Caps{MaxVolumeExtent: 256}, pixel.Volume, 16, 16, 512, false},
		{"volume inside", device.Caps{MaxTextureWidth: 4096, MaxTextureHeight: 4096, MaxVolumeExtent: 256}, pixel.Volume, 256, 8, 256, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.caps.Fits(tt.kind, tt.w, tt.h, tt.d); got != tt.fits {
				t.Errorf("fits %v, expected %v", got, tt.fits)
			}
			dev := device.NewMemory(core.DeviceConfiguration{
				MaxTextureWidth:  tt.caps.MaxTextureWidth,
				MaxTextureHeight: tt.caps.MaxTextureHeight,
				MaxVolumeExtent:  tt.caps.MaxVolumeExtent,
			})
			tex, err := dev.CreateTexture(device.Desc{Kind: tt.kind, Width: tt.w, Height: tt.h, Depth: tt.d, MipLevels: 1, Format: pixel.L8})
			if tt.fits && err != nil {
				t.Errorf("create: %v", err)
			}
			if !tt.fits && !errors.Is(err, device.ErrSize) {
				t.Errorf("expected size error, got %v", err)
			}
			if tex != nil {
				tex.Release()
			}
		})
	}
}

func TestLockRules(t *testing.T) {
	dev := newDevice(pixel.A8R8G8B8)
	if dev.Caps().ValidFormat(pixel.DXT5) {
		t.Error("restricted device accepts dxt5")
	}
	tex, err := dev.CreateTexture(device.Desc{Kind: pixel.Plain, Width: 4, Height: 4, MipLevels: 3, Format: pixel.A8R8G8B8})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tex.Lock(0, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := tex.Lock(0, 1); !errors.Is(err, device.ErrLocked) {
		t.Errorf("locked twice: %v", err)
	}
	if err := tex.Unlock(0, 2); !errors.Is(err, device.ErrNotLocked) {
		t.Errorf("unlocked an unlocked level: %v", err)
	}
	if _, err := tex.Lock(1, 0); err == nil {
		t.Error("locked face 1 of a plain texture")
	}
	tex.Release()
	tex.Release()
	if _, err := tex.Lock(0, 0); !errors.Is(err, device.ErrReleased) {
		t.Errorf("locked a released texture: %v", err)
	}
	if dev.Live() != 0 || dev.Created() != 1 {
		t.Errorf("live %d, created %d", dev.Live(), dev.Created())
	}
}

func TestGuard(t *testing.T) {
	dev := newDevice()
	tex, err := dev.CreateTexture(device.Desc{Kind: pixel.Cube, Width: 8, Height: 8, MipLevels: 4, Format: pixel.A8R8G8B8})
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()

	g, err := device.LockAll(tex)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Levels(5)) != 4 || g.Surface(5, 3).Width != 1 {
		t.Error("guard does not hold every level")
	}
	g.Surface(2, 0).Set(7, 7, 0xff123456)
	if err := g.Release(); err != nil {
		t.Fatal(err)
	}
	if err := g.Release(); err != nil {
		t.Errorf("second release: %v", err)
	}

	err = device.WithLock(tex, 2, 0, func(s pixel.Surface) error {
		if c := s.At(7, 7); c != 0xff123456 {
			t.Errorf("texel %08x", c)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// A level left locked makes LockAll fail and unwind.
	if _, err := tex.Lock(3, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := device.LockAll(tex); !errors.Is(err, device.ErrLocked) {
		t.Errorf("expected locked, got %v", err)
	}
	if err := device.WithLock(tex, 0, 0, func(pixel.Surface) error { return nil }); err != nil {
		t.Errorf("face 0 still locked after unwinding: %v", err)
	}

	failure := errors.New("fill failed")
	if err := device.WithLock(tex, 1, 1, func(pixel.Surface) error { return failure }); err != failure {
		t.Errorf("expected the callback error, got %v", err)
	}
	if err := device.WithLock(tex, 1, 1, func(pixel.Surface) error { return nil }); err != nil {
		t.Errorf("level stayed locked after a failing callback: %v", err)
	}
}
