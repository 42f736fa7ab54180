// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package cache

import (
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Compressor ids stored in the cache file header. Changing the
// compressor of an existing cache resets it.
const (
	CompressorNone int32 = iota
	CompressorLZ4
	CompressorZstd
)

// Compressor packs the level bytes stored in the cache.
type Compressor interface {
	ID() int32
	Name() string

	// Compress appends the packed form of src to dst.
	Compress(dst, src []byte) ([]byte, error)

	// Decompress unpacks src into dst, which must have exactly the
	// unpacked size.
	Decompress(dst, src []byte) error

	Close()
}

// NewCompressor returns the compressor with the configured name.
func NewCompressor(name string) (Compressor, error) {
	switch strings.ToLower(name) {
	case "", "none", "passthrough":
		return passthrough{}, nil
	case "lz4":
		return lz4Compressor{}, nil
	case "zstd":
		return newZstd()
	}
	return nil, errors.Errorf("unknown compressor %q", name)
}

type passthrough struct{}

func (passthrough) ID() int32    { return CompressorNone }
func (passthrough) Name() string { return "none" }
func (passthrough) Close()       {}

func (passthrough) Compress(dst, src []byte) ([]byte, error) {
	return append(dst, src...), nil
}

func (passthrough) Decompress(dst, src []byte) error {
	if len(src) != len(dst) {
		return errors.Errorf("stored %d bytes, expected %d", len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

// lz4 block modes, the first byte of every packed level.
const (
	lz4Raw byte = iota
	lz4Block
)

type lz4Compressor struct{}

func (lz4Compressor) ID() int32    { return CompressorLZ4 }
func (lz4Compressor) Name() string { return "lz4" }
func (lz4Compressor) Close()       {}

func (lz4Compressor) Compress(dst, src []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, buf, nil)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 compress")
	}
	// Incompressible data is stored as is.
	if n == 0 || n >= len(src) {
		return append(append(dst, lz4Raw), src...), nil
	}
	return append(append(dst, lz4Block), buf[:n]...), nil
}

func (lz4Compressor) Decompress(dst, src []byte) error {
	if len(src) == 0 {
		return errors.New("lz4: empty level")
	}
	switch src[0] {
	case lz4Raw:
		return passthrough{}.Decompress(dst, src[1:])
	case lz4Block:
		n, err := lz4.UncompressBlock(src[1:], dst)
		if err != nil {
			return errors.Wrap(err, "lz4 decompress")
		}
		if n != len(dst) {
			return errors.Errorf("lz4: unpacked %d bytes, expected %d", n, len(dst))
		}
		return nil
	}
	return errors.Errorf("lz4: bad block mode %d", src[0])
}

type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstd() (*zstdCompressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, errors.Wrap(err, "zstd encoder")
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		encoder.Close()
		return nil, errors.Wrap(err, "zstd decoder")
	}
	return &zstdCompressor{encoder: encoder, decoder: decoder}, nil
}

func (z *zstdCompressor) ID() int32    { return CompressorZstd }
func (z *zstdCompressor) Name() string { return "zstd" }

func (z *zstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	return z.encoder.EncodeAll(src, dst), nil
}

func (z *zstdCompressor) Decompress(dst, src []byte) error {
	out, err := z.decoder.DecodeAll(src, dst[:0])
	if err != nil {
		return errors.Wrap(err, "zstd decompress")
	}
	// DecodeAll appends in place while the output fits.
	if len(out) != len(dst) {
		return errors.Errorf("zstd: unpacked %d bytes, expected %d", len(out), len(dst))
	}
	return nil
}

func (z *zstdCompressor) Close() {
	z.encoder.Close()
	z.decoder.Close()
}
