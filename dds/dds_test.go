// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dds_test

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"testing"
	"time"

	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/dds"
	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/vfs"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

func levelBytes(f pixel.Format, w, h, d, level int) int {
	depth := d >> uint(level)
	if depth < 1 {
		depth = 1
	}
	return f.SurfaceSize(w>>uint(level), h>>uint(level)) * depth
}

// makeDDS builds a DDS file in memory. fill gets every level of every
// face in file order.
func makeDDS(t testing.TB, f pixel.Format, kind pixel.Kind, w, h, d, mips int, fill func(face, level int, data []byte)) []byte {
	t.Helper()
	header := dds.NewHeader(f, kind, w, h, d, mips)
	buf := bytes.NewBuffer(nil)
	if _, err := header.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	for face := 0; face < kind.Faces(); face++ {
		for level := 0; level < mips; level++ {
			data := make([]byte, levelBytes(f, w, h, d, level))
			if fill != nil {
				fill(face, level, data)
			}
			buf.Write(data)
		}
	}
	return buf.Bytes()
}

func whiteDXT5(face, level int, data []byte) {
	for i := 0; i < len(data); i += 16 {
		copy(data[i:], []byte{0xff, 0xff, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0})
	}
}

func memFS(name string, data []byte) *vfs.Mem {
	fs := vfs.NewMem()
	fs.Set(name, data, time.Unix(1500000000, 0))
	return fs
}

func TestReducedWhiteDXT5(t *testing.T) {
	fs := memFS("white.dds", makeDDS(t, pixel.DXT5, pixel.Plain, 256, 256, 1, 4, whiteDXT5))

	img, err := dds.Open(fs, "white.dds", 1, dds.KeepAll)
	if err != nil {
		t.Fatal(err)
	}
	if img.Width(0) != 128 || img.Height(0) != 128 {
		t.Errorf("base level %dx%d", img.Width(0), img.Height(0))
	}
	if img.MipLevels() != 3 {
		t.Errorf("mip levels %d", img.MipLevels())
	}
	if err := img.Load(); err != nil {
		t.Fatal(err)
	}
	c, err := img.Pixel(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c != 0xffffffff {
		t.Errorf("pixel 0,0 is %08x", c)
	}

	dropped, err := dds.Open(fs, "white.dds", 1, dds.DropTwoSmallest)
	if err != nil {
		t.Fatal(err)
	}
	if dropped.MipLevels() != 1 {
		t.Errorf("dropping the two smallest of 3 levels left %d", dropped.MipLevels())
	}
}

func TestLevelSizes(t *testing.T) {
	sizes := [][2]int{{256, 256}, {100, 30}, {64, 4}, {8, 512}, {5, 5}, {1, 1}}
	for _, format := range []pixel.Format{pixel.DXT1, pixel.DXT5} {
		for _, s := range sizes {
			w, h := core.NextPowerOfTwo(s[0]), core.NextPowerOfTwo(s[1])
			mips := core.MipCount(w, h)
			fs := memFS("t.dds", makeDDS(t, format, pixel.Plain, w, h, 1, mips, nil))
			img, err := dds.Open(fs, "t.dds", 0, dds.KeepAll)
			if err != nil {
				t.Fatal(err)
			}

			bb := format.BlockBytes()
			for level := 0; level < img.MipLevels(); level++ {
				size := img.LevelSize(level)
				if size < bb {
					t.Errorf("%s %dx%d level %d: %d bytes is below one block", format, w, h, level, size)
				}
				if w>>uint(level) <= 4 && h>>uint(level) <= 4 && size != bb {
					t.Errorf("%s %dx%d level %d: %d bytes, expected one %d byte block", format, w, h, level, size, bb)
				}
				if level == 0 {
					continue
				}
				prev := img.LevelSize(level - 1)
				bw, bh := pixel.Blocks(w>>uint(level-1)), pixel.Blocks(h>>uint(level-1))
				expected := prev
				if bw > 1 {
					expected /= 2
				}
				if bh > 1 {
					expected /= 2
				}
				if size != expected {
					t.Errorf("%s %dx%d level %d: %d bytes, expected %d", format, w, h, level, size, expected)
				}
			}
		}
	}
}

func TestCopySameFormatIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var stored [][]byte
	data := makeDDS(t, pixel.DXT1, pixel.Plain, 64, 32, 1, 6, func(face, level int, b []byte) {
		rng.Read(b)
		stored = append(stored, append([]byte(nil), b...))
	})
	fs := memFS("noise.dds", data)

	img, err := dds.Open(fs, "noise.dds", 2, dds.KeepAll)
	if err != nil {
		t.Fatal(err)
	}
	if err := img.Load(); err != nil {
		t.Fatal(err)
	}
	for level := 0; level < img.MipLevels(); level++ {
		dst := pixel.NewSurface(pixel.DXT1, img.Width(level), img.Height(level))
		if err := img.CopyLevelToSurface(level, dst, mgl32.Vec3{}); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(dst.Data, stored[level+2]) {
			t.Errorf("level %d differs from the stored bytes", level)
		}
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	fs := memFS("white.dds", makeDDS(t, pixel.DXT5, pixel.Plain, 16, 16, 1, 1, whiteDXT5))
	img, err := dds.Open(fs, "white.dds", 0, dds.DropTwoSmallest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := img.Level(0); !errors.Is(err, dds.ErrNotLoaded) {
		t.Errorf("expected not loaded, got %v", err)
	}
	if err := img.Load(); err != nil {
		t.Fatal(err)
	}
	first, _ := img.Level(0)

	fs.Remove("white.dds")
	if err := img.Load(); err != nil {
		t.Errorf("second load should not touch the file: %v", err)
	}
	second, _ := img.Level(0)
	if &first[0] != &second[0] {
		t.Error("second load replaced the buffer")
	}
}

func TestCubeFaces(t *testing.T) {
	data := makeDDS(t, pixel.DXT1, pixel.Cube, 16, 16, 1, 3, func(face, level int, b []byte) {
		for i := range b {
			b[i] = byte(face*16 + level)
		}
	})
	fs := memFS("sky.dds", data)

	img, err := dds.Open(fs, "sky.dds", 1, dds.KeepAll)
	if err != nil {
		t.Fatal(err)
	}
	if img.Kind() != pixel.Cube {
		t.Fatalf("kind %s", img.Kind())
	}
	if err := img.Load(); err != nil {
		t.Fatal(err)
	}
	for face := 0; face < pixel.CubeFaces; face++ {
		for level := 0; level < img.MipLevels(); level++ {
			b, err := img.FaceLevel(face, level)
			if err != nil {
				t.Fatal(err)
			}
			if b[0] != byte(face*16+level+1) {
				t.Errorf("face %d level %d starts with %d", face, level, b[0])
			}
		}
	}

	dst := pixel.NewSurface(pixel.DXT1, 8, 8)
	if err := img.CopyCubeLevelToSurface(5, 0, dst, mgl32.Vec3{}); err != nil {
		t.Fatal(err)
	}
	if dst.Data[0] != 5*16+1 {
		t.Errorf("copied face starts with %d", dst.Data[0])
	}
}

func TestVolumeLevels(t *testing.T) {
	data := makeDDS(t, pixel.DXT5, pixel.Volume, 8, 8, 4, 2, whiteDXT5)
	fs := memFS("fog.dds", data)
	img, err := dds.Open(fs, "fog.dds", 0, dds.KeepAll)
	if err != nil {
		t.Fatal(err)
	}
	if img.Depth(0) != 4 || img.Depth(1) != 2 {
		t.Errorf("depths %d %d", img.Depth(0), img.Depth(1))
	}
	if img.LevelSize(0) != 4*4*16 {
		t.Errorf("level 0 size %d", img.LevelSize(0))
	}
	if err := img.Load(); err != nil {
		t.Fatal(err)
	}

	dst := pixel.NewVolume(pixel.A8R8G8B8, 4, 4, 2)
	if err := img.CopyVolumeLevelToSurface(1, dst, mgl32.Vec3{}); err != nil {
		t.Fatal(err)
	}
	if c := dst.Slice(1).At(3, 3); c != 0xffffffff {
		t.Errorf("last slice texel %08x", c)
	}
}

func TestAlphaUpgradeAndDecode(t *testing.T) {
	data := makeDDS(t, pixel.DXT1, pixel.Plain, 8, 8, 1, 4, func(face, level int, b []byte) {
		for i := 0; i < len(b); i += 8 {
			// Pure red endpoints, every texel code 0.
			copy(b[i:], []byte{0x00, 0xf8, 0x00, 0xf8, 0, 0, 0, 0})
		}
	})
	fs := memFS("red.dds", data)
	img, err := dds.Open(fs, "red.dds", 0, dds.KeepAll)
	if err != nil {
		t.Fatal(err)
	}
	if err := img.Load(); err != nil {
		t.Fatal(err)
	}

	upgraded := pixel.NewSurface(pixel.DXT2, 8, 8)
	if err := img.CopyLevelToSurface(0, upgraded, mgl32.Vec3{}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		if upgraded.Data[i] != 0xff {
			t.Fatalf("alpha byte %d is %02x", i, upgraded.Data[i])
		}
	}
	if upgraded.Data[9] != 0xf8 {
		t.Errorf("colour block not copied: %v", upgraded.Data[8:16])
	}

	// The 1x1 level still decodes from its single block.
	tiny := pixel.NewSurface(pixel.A8R8G8B8, 1, 1)
	if err := img.CopyLevelToSurface(3, tiny, mgl32.Vec3{}); err != nil {
		t.Fatal(err)
	}
	if c := tiny.At(0, 0); c != 0xffff0000 {
		t.Errorf("decoded %08x", c)
	}

	shifted := pixel.NewSurface(pixel.X8R8G8B8, 8, 8)
	if err := img.CopyLevelToSurface(0, shifted, mgl32.Vec3{120, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if c := shifted.At(7, 7); c != 0xff00ff00 {
		t.Errorf("shifted %08x", c)
	}

	if err := img.CopyLevelToSurface(0, pixel.NewSurface(pixel.A8R8G8B8, 16, 16), mgl32.Vec3{}); !errors.Is(err, dds.ErrMismatch) {
		t.Errorf("expected size mismatch, got %v", err)
	}
	if err := img.CopyLevelToSurface(0, pixel.NewSurface(pixel.DXT5, 8, 8), mgl32.Vec3{}); !errors.Is(err, dds.ErrMismatch) {
		t.Errorf("expected format mismatch, got %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	good := makeDDS(t, pixel.DXT1, pixel.Plain, 8, 8, 1, 1, nil)

	badFourCC := append([]byte(nil), good...)
	badFourCC[4+80] = 'Z'
	badSize := append([]byte(nil), good...)
	badSize[4] = 100

	cases := map[string][]byte{
		"fourcc": badFourCC,
		"size":   badSize,
		"short":  good[:60],
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			fs := memFS("bad.dds", data)
			if _, err := dds.Open(fs, "bad.dds", 0, dds.KeepAll); !errors.Is(err, dds.ErrUnavailable) {
				t.Errorf("expected unavailable, got %v", err)
			}
		})
	}

	if _, err := dds.Open(vfs.NewMem(), "absent.dds", 0, dds.KeepAll); !errors.Is(err, dds.ErrUnavailable) {
		t.Errorf("missing file: %v", err)
	}

	truncated := memFS("cut.dds", good[:len(good)-4])
	img, err := dds.Open(truncated, "cut.dds", 0, dds.KeepAll)
	if err != nil {
		t.Fatal(err)
	}
	if err := img.Load(); !errors.Is(err, dds.ErrCorrupt) {
		t.Errorf("expected corrupt, got %v", err)
	}

	headerOnly := memFS("empty.dds", good[:dds.MagicLength+dds.HeaderSize])
	img, err = dds.Open(headerOnly, "empty.dds", 0, dds.KeepAll)
	if err != nil {
		t.Fatal(err)
	}
	if err := img.Load(); !errors.Is(err, dds.ErrCorrupt) {
		t.Errorf("expected corrupt for an empty payload, got %v", err)
	}
}

func TestEncode(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			src.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}

	buf := bytes.NewBuffer(nil)
	if err := dds.Encode(buf, src, pixel.DXT5, 3); err != nil {
		t.Fatal(err)
	}

	fs := memFS("encoded.dds", buf.Bytes())
	img, err := dds.Open(fs, "encoded.dds", 0, dds.KeepAll)
	if err != nil {
		t.Fatal(err)
	}
	if img.Format() != pixel.DXT5 || img.MipLevels() != 3 {
		t.Fatalf("encoded %s with %d levels", img.Format(), img.MipLevels())
	}
	if err := img.Load(); err != nil {
		t.Fatal(err)
	}
	if c, err := img.Pixel(0, 17, 9); err != nil || c != 0xffffffff {
		t.Errorf("pixel %08x, %v", c, err)
	}

	if err := dds.Encode(buf, src, pixel.A8R8G8B8, 1); err == nil {
		t.Error("uncompressed formats cannot be encoded")
	}
}
