// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package cache

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/vfs"
	"github.com/pkg/errors"
)

var errCompress = errors.New("compressor failed")

// failing packs the first level and fails on the next one.
type failing struct {
	passthrough
	calls int
}

func (f *failing) Compress(dst, src []byte) ([]byte, error) {
	f.calls++
	if f.calls > 1 {
		return dst, errCompress
	}
	return append(dst, src...), nil
}

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	fs := vfs.NewMem()
	fs.Set("a.tga", []byte("source"), time.Unix(1500000000, 0))
	path := filepath.Join(t.TempDir(), "textures.tfc")
	c, err := New(core.CacheConfiguration{Path: path, Resident: 2, Compressor: "none"}, fs)
	if err != nil {
		t.Fatal(err)
	}
	return c, path
}

func levels(size, n int) []pixel.Surface {
	var out []pixel.Surface
	for l := 0; l < n; l++ {
		s := pixel.NewSurface(pixel.A8R8G8B8, size>>uint(l), size>>uint(l))
		for i := range s.Data {
			s.Data[i] = byte(l + 1)
		}
		out = append(out, s)
	}
	return out
}

func blank(src []pixel.Surface) []pixel.Surface {
	var out []pixel.Surface
	for _, s := range src {
		out = append(out, pixel.NewSurface(s.Format, s.Width, s.Height))
	}
	return out
}

func TestFailedSaveLeavesNoRecord(t *testing.T) {
	c, path := newTestCache(t)
	defer c.Close()
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	src := levels(8, 3)
	c.compressor = &failing{}
	if err := c.Save("a.tga", SourceInfo{}, src); !errors.Is(err, errCompress) {
		t.Fatalf("expected the compressor error, got %v", err)
	}
	if c.Exists("a.tga") {
		t.Error("failed save left a record")
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() != before.Size() {
		t.Errorf("cache file is %d bytes after a failed save, was %d", after.Size(), before.Size())
	}
	if err := c.Load("a.tga", blank(src)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	c.compressor = passthrough{}
	if err := c.Save("a.tga", SourceInfo{}, src); err != nil {
		t.Fatalf("save after a failed one: %v", err)
	}
	dst := blank(src)
	if err := c.Load("a.tga", dst); err != nil {
		t.Fatal(err)
	}
	for l := range dst {
		if dst[l].Data[0] != byte(l+1) {
			t.Errorf("level %d holds %d", l, dst[l].Data[0])
		}
	}
}

func TestUnfilledTableIsDiscarded(t *testing.T) {
	c, _ := newTestCache(t)
	defer c.Close()

	// A record whose offset table was never rewritten.
	h, err := c.file.Create("a.tga")
	if err != nil {
		t.Fatal(err)
	}
	header := textureHeader{
		FileTime:      uint32(time.Unix(1500000000, 0).Unix()),
		NumMipMaps:    2,
		LargestWidth:  8,
		LargestHeight: 8,
		PixelFormat:   int32(pixel.A8R8G8B8),
	}
	if err := binary.Write(h, binary.LittleEndian, &header); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(h, binary.LittleEndian, make([]offsetEntry, 3)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Write(make([]byte, 8*8*4+4*4*4)); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		run  func() error
	}{
		{"Load", func() error { return c.Load("a.tga", blank(levels(8, 2))) }},
		{"GetSurface", func() error { _, err := c.GetSurface("a.tga", 0); return err }},
		{"Info", func() error { _, err := c.Info("a.tga"); return err }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := test.run(); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected not found, got %v", err)
			}
			if c.Exists("a.tga") {
				t.Error("corrupt record was kept")
			}
		})
	}

	src := levels(8, 2)
	if err := c.Save("a.tga", SourceInfo{}, src); err != nil {
		t.Fatalf("save after discard: %v", err)
	}
	if !c.Validate("a.tga") {
		t.Error("fresh record invalid")
	}
}

func TestSaveRejectsBrokenChain(t *testing.T) {
	c, _ := newTestCache(t)
	defer c.Close()
	src := levels(8, 2)
	src[1] = pixel.NewSurface(pixel.A8R8G8B8, 3, 4)
	if err := c.Save("a.tga", SourceInfo{}, src); !errors.Is(err, ErrMismatch) {
		t.Errorf("expected mismatch, got %v", err)
	}
	if c.Exists("a.tga") {
		t.Error("broken chain was saved")
	}
}
