package targa_test

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"testing"
	"time"

	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/targa"
	"github.com/devblok/texstream/vfs"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
)

func TestMissingAsset(t *testing.T) {
	fs := vfs.NewBox(packr.NewBox("../assets"))

	h, err := targa.Open(fs, "missing.tga")
	if err != nil {
		t.Fatal(err)
	}
	if h.Width != 64 || h.Height != 64 || h.Format() != pixel.A8R8G8B8 || !h.TopDown() {
		t.Errorf("header %+v", h)
	}

	img, h2, err := targa.Decode(fs, "missing.tga")
	if err != nil {
		t.Fatal(err)
	}
	if h2 != h {
		t.Error("decode read a different header")
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("bounds %v", b)
	}
	magenta := color.NRGBAModel.Convert(img.At(0, 0)).(color.NRGBA)
	if magenta != (color.NRGBA{R: 0xff, B: 0xff, A: 0xff}) {
		t.Errorf("top left %v", magenta)
	}
	black := color.NRGBAModel.Convert(img.At(8, 0)).(color.NRGBA)
	if black != (color.NRGBA{A: 0xff}) {
		t.Errorf("second square %v", black)
	}
}

func header(imageType, bits, descriptor, mapDepth uint8) []byte {
	buf := bytes.NewBuffer(nil)
	binary.Write(buf, binary.LittleEndian, targa.Header{
		ImageType:       imageType,
		ColorMapDepth:   mapDepth,
		Width:           4,
		Height:          2,
		BitsPerPixel:    bits,
		ImageDescriptor: descriptor,
	})
	return buf.Bytes()
}

func TestHeaderFormats(t *testing.T) {
	tests := []struct {
		name       string
		imageType  uint8
		bits       uint8
		descriptor uint8
		mapDepth   uint8
		format     pixel.Format
	}{
		{"bgra", targa.TypeTrueColor, 32, 8, 0, pixel.A8R8G8B8},
		{"bgrx", targa.TypeTrueColor, 32, 0, 0, pixel.X8R8G8B8},
		{"bgr", targa.TypeRLETrueColor, 24, 0, 0, pixel.R8G8B8},
		{"555", targa.TypeTrueColor, 16, 0, 0, pixel.X1R5G5B5},
		{"1555", targa.TypeTrueColor, 16, 1, 0, pixel.A1R5G5B5},
		{"gray", targa.TypeGrayscale, 8, 0, 0, pixel.L8},
		{"palette", targa.TypeColorMapped, 8, 0, 24, pixel.R8G8B8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := targa.ReadHeader(bytes.NewReader(header(tt.imageType, tt.bits, tt.descriptor, tt.mapDepth)))
			if err != nil {
				t.Fatal(err)
			}
			if h.Format() != tt.format {
				t.Errorf("format %s, expected %s", h.Format(), tt.format)
			}
		})
	}
}

func TestUnsupported(t *testing.T) {
	if _, err := targa.ReadHeader(bytes.NewReader(header(targa.TypeGrayscale, 16, 0, 0))); !errors.Is(err, targa.ErrFormat) {
		t.Errorf("16 bit grayscale accepted: %v", err)
	}
	if _, err := targa.ReadHeader(bytes.NewReader(header(targa.TypeNone, 32, 0, 0))); !errors.Is(err, targa.ErrFormat) {
		t.Errorf("empty image type accepted: %v", err)
	}
	if _, err := targa.ReadHeader(bytes.NewReader([]byte{0, 0, 2})); err == nil {
		t.Error("short header accepted")
	}

	fs := vfs.NewMem()
	fs.Set("broken.tga", header(targa.TypeTrueColor, 32, 8, 0), time.Now())
	if _, _, err := targa.Decode(fs, "broken.tga"); err == nil {
		t.Error("decoded a file without pixels")
	}
	if _, err := targa.Open(fs, "absent.tga"); !errors.Is(err, vfs.ErrNotExist) {
		t.Errorf("expected not exist, got %v", err)
	}
}
