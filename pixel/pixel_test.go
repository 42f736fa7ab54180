package pixel_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/devblok/texstream/pixel"
	"github.com/go-gl/mathgl/mgl32"
)

func TestWriteReadB8G8R8A8(t *testing.T) {
	cases := []struct {
		format pixel.Format
		in     uint32
		out    uint32
	}{
		{pixel.A8R8G8B8, 0x80112233, 0x80112233},
		{pixel.X8R8G8B8, 0x80112233, 0xff112233},
		{pixel.R8G8B8, 0x00445566, 0xff445566},
		{pixel.R5G6B5, 0xffffffff, 0xffffffff},
		{pixel.R5G6B5, 0xff000000, 0xff000000},
		{pixel.A1R5G5B5, 0x7fffffff, 0x00ffffff},
		{pixel.A4R4G4B4, 0xf0f0f0f0, 0xffffffff},
		{pixel.A4R4G4B4, 0x00000000, 0x00000000},
		{pixel.A8, 0x7f123456, 0x7f000000},
		{pixel.L8, 0xffffffff, 0xffffffff},
	}

	for _, c := range cases {
		t.Run(c.format.String(), func(t *testing.T) {
			buf := make([]byte, c.format.BytesPerPixel())
			pixel.WriteB8G8R8A8(buf, c.format, c.in)
			if got := pixel.ReadB8G8R8A8(buf, c.format); got != c.out {
				t.Errorf("read back %08x, expected %08x", got, c.out)
			}
		})
	}
}

func TestSurfaceSize(t *testing.T) {
	if size := pixel.DXT1.SurfaceSize(256, 256); size != 64*64*8 {
		t.Errorf("dxt1 256x256: %d", size)
	}
	if size := pixel.DXT5.SurfaceSize(2, 1); size != 16 {
		t.Errorf("dxt5 2x1 should floor at one block, got %d", size)
	}
	if size := pixel.DXT1.SurfaceSize(6, 10); size != 2*3*8 {
		t.Errorf("dxt1 6x10: %d", size)
	}
	if size := pixel.A8R8G8B8.SurfaceSize(3, 5); size != 60 {
		t.Errorf("a8r8g8b8 3x5: %d", size)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := pixel.ParseFormat(" DXT5 ")
	if err != nil {
		t.Fatal(err)
	}
	if f != pixel.DXT5 {
		t.Errorf("parsed %s", f)
	}
	if _, err := pixel.ParseFormat("bc7"); err == nil {
		t.Error("bc7 should not parse")
	}
	if pixel.FromFourCC(pixel.DXT3.FourCC()) != pixel.DXT3 {
		t.Error("fourcc does not map back")
	}
}

func TestRecolor(t *testing.T) {
	red := uint32(0x80ff0000)
	if got := pixel.Recolor(red, mgl32.Vec3{}); got != red {
		t.Errorf("zero shift changed colour: %08x", got)
	}
	if got := pixel.Recolor(red, mgl32.Vec3{120, 0, 0}); got != 0x8000ff00 {
		t.Errorf("hue 120 of red: %08x", got)
	}
	if got := pixel.Recolor(red, mgl32.Vec3{360, 0, 0}); got != red {
		t.Errorf("hue 360 should wrap to identity: %08x", got)
	}
	if got := pixel.Recolor(red, mgl32.Vec3{0, -1, 0}); got != 0x80ffffff {
		t.Errorf("desaturated red: %08x", got)
	}
	if got := pixel.Recolor(0xff808080, mgl32.Vec3{0, 0, 5}); got != 0xffffffff {
		t.Errorf("value should clamp at one: %08x", got)
	}
}

func TestTightAndFill(t *testing.T) {
	s := pixel.Surface{
		Format: pixel.A8R8G8B8,
		Width:  2,
		Height: 2,
		Depth:  1,
		Pitch:  12,
		Data:   make([]byte, 24),
	}
	s.Set(1, 1, 0xff010203)
	tight := s.Tight()
	if len(tight) != 16 {
		t.Fatalf("tight length %d", len(tight))
	}

	d := pixel.NewSurface(pixel.A8R8G8B8, 2, 2)
	if err := d.Fill(tight); err != nil {
		t.Fatal(err)
	}
	if d.At(1, 1) != 0xff010203 {
		t.Errorf("filled pixel %08x", d.At(1, 1))
	}
	if err := d.Fill(tight[:3]); err == nil {
		t.Error("short fill should fail")
	}
}

func TestImageConversion(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	s := pixel.NewSurface(pixel.X8R8G8B8, 4, 4)
	if err := pixel.FromImage(s, img, mgl32.Vec3{}); err != nil {
		t.Fatal(err)
	}
	if s.At(2, 3) != 0xff0a141e {
		t.Errorf("pixel %08x", s.At(2, 3))
	}

	back, err := pixel.ToImage(s)
	if err != nil {
		t.Fatal(err)
	}
	if c := back.NRGBAAt(2, 3); c.R != 10 || c.G != 20 || c.B != 30 {
		t.Errorf("round trip %v", c)
	}

	if _, err := pixel.ToImage(pixel.NewSurface(pixel.DXT1, 4, 4)); err == nil {
		t.Error("compressed surface should not convert")
	}
}
