// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package cache keeps decoded and mipmapped textures on disk, so an
// uncompressed source only has to be decoded and scaled once. Every
// texture is one tag of a tagblock file, holding a small header, the
// level offset table and the compressed levels. A texture record is
// only valid while the source file keeps the timestamp it was saved
// with; a stale record resets the whole file.
//
// A few decompressed levels of the texture in use stay resident, so
// asking for the same sizes again skips the file.
package cache

import (
	"encoding/binary"
	"io"
	"strings"
	"sync"

	"github.com/devblok/texstream/core"
	"github.com/devblok/texstream/pixel"
	"github.com/devblok/texstream/utility/tagblock"
	"github.com/devblok/texstream/vfs"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// package errors
var (
	ErrDisabled = errors.New("content cache disabled")
	ErrNotFound = errors.New("texture not in cache")
	ErrCorrupt  = errors.New("cache record corrupt")
	ErrMismatch = errors.New("destination does not match cached levels")
	ErrClosed   = errors.New("cache closed")
)

// HeaderTag names the tag holding the cache file header.
const HeaderTag = "Texture File Cache Header"

// Version of the record layout.
const Version = 1

// maxLevels bounds the level count read from a record.
const maxLevels = 32

type fileHeader struct {
	Version    int32
	Compressor int32
}

type textureHeader struct {
	FileTime          uint32
	NumMipMaps        int32
	LargestWidth      int32
	LargestHeight     int32
	SourceWidth       int32
	SourceHeight      int32
	SourcePixelFormat int32
	PixelFormat       int32
}

type offsetEntry struct {
	Offset int32
	Size   int32
}

// SourceInfo describes the image a texture was generated from.
type SourceInfo struct {
	Width  int
	Height int
	Format pixel.Format
}

// Info describes a cached texture.
type Info struct {
	Name     string
	FileTime uint32
	Width    int
	Height   int
	Format   pixel.Format
	Source   SourceInfo

	// Sizes holds the unpacked byte size of every stored level
	Sizes []int

	// Packed holds the stored byte size of every level
	Packed []int
}

// Cache is the content cache. It is safe for concurrent use, calls are
// serialized.
type Cache struct {
	mutex      sync.Mutex
	file       *tagblock.File
	sources    vfs.FileSystem
	compressor Compressor
	capacity   int

	current  string
	handle   *tagblock.Handle
	header   textureHeader
	offsets  []offsetEntry
	resident [][]byte
}

// New opens or creates the cache file configured in cfg. sources is
// where the timestamps of the cached textures are looked up.
func New(cfg core.CacheConfiguration, sources vfs.FileSystem) (*Cache, error) {
	if cfg.Path == "" {
		return nil, ErrDisabled
	}
	compressor, err := NewCompressor(cfg.Compressor)
	if err != nil {
		return nil, err
	}
	file, err := tagblock.Open(cfg.Path)
	if err != nil {
		compressor.Close()
		return nil, err
	}

	capacity := cfg.Resident
	if capacity < 0 {
		capacity = 0
	}
	c := &Cache{
		file:       file,
		sources:    sources,
		compressor: compressor,
		capacity:   capacity,
	}
	if !c.headerMatches() {
		if err := c.reset(); err != nil {
			file.Close()
			compressor.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Cache) headerMatches() bool {
	h, err := c.file.OpenTag(HeaderTag)
	if err != nil {
		return false
	}
	defer h.Close()
	var header fileHeader
	if err := binary.Read(h, binary.LittleEndian, &header); err != nil {
		return false
	}
	return header.Version == Version && header.Compressor == c.compressor.ID()
}

func (c *Cache) reset() error {
	c.closeTexture()
	if err := c.file.Reset(); err != nil {
		return err
	}
	h, err := c.file.Create(HeaderTag)
	if err != nil {
		return err
	}
	header := fileHeader{Version: Version, Compressor: c.compressor.ID()}
	if err := binary.Write(h, binary.LittleEndian, &header); err != nil {
		h.Close()
		return errors.Wrap(err, "write cache header")
	}
	return h.Close()
}

// Reset throws away every cached texture.
func (c *Cache) Reset() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.file == nil {
		return ErrClosed
	}
	log.WithField("file", c.file.Path()).Debug("cache reset")
	return c.reset()
}

func sameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

// closeTexture drops the current texture along with its resident
// levels.
func (c *Cache) closeTexture() {
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	c.current = ""
	c.offsets = nil
	c.resident = nil
}

// openTexture makes name the current texture. A record saved for an
// older source file resets the cache and reports ErrNotFound.
func (c *Cache) openTexture(name string) error {
	if c.file == nil {
		return ErrClosed
	}
	if !sameName(c.current, name) {
		c.closeTexture()
	}
	if c.handle != nil {
		return c.checkStamp(name, c.header.FileTime)
	}

	h, err := c.file.OpenTag(name)
	if err != nil {
		return errors.Wrap(ErrNotFound, name)
	}

	var header textureHeader
	if err := binary.Read(h, binary.LittleEndian, &header); err != nil {
		h.Close()
		return c.discard(name, err)
	}
	c.handle = h
	if err := c.checkStamp(name, header.FileTime); err != nil {
		return err
	}
	if header.NumMipMaps < 1 || header.NumMipMaps > maxLevels {
		return c.discard(name, errors.Errorf("%d levels", header.NumMipMaps))
	}

	offsets := make([]offsetEntry, header.NumMipMaps+1)
	if err := binary.Read(h, binary.LittleEndian, offsets); err != nil {
		return c.discard(name, err)
	}
	if err := checkTable(&header, offsets, h.Size()); err != nil {
		return c.discard(name, err)
	}

	c.current = name
	c.header = header
	c.offsets = offsets
	return nil
}

// checkStamp compares the time a record was saved for with the source
// file. A stale record resets the cache.
func (c *Cache) checkStamp(name string, saved uint32) error {
	stamp, err := vfs.Timestamp(c.sources, name)
	if err != nil {
		return errors.Wrapf(ErrNotFound, "%s: %v", name, err)
	}
	if stamp == saved {
		return nil
	}
	log.WithFields(log.Fields{
		"texture": name,
		"cached":  saved,
		"source":  stamp,
	}).Debug("cached texture is stale")
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	if err := c.reset(); err != nil {
		return err
	}
	return errors.Wrapf(ErrNotFound, "%s: stale", name)
}

// discard resets the cache after a record turned out to be unreadable.
func (c *Cache) discard(name string, cause error) error {
	log.WithFields(log.Fields{
		"texture": name,
		"cause":   cause,
	}).Debug("cached texture unreadable")
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	if err := c.reset(); err != nil {
		return err
	}
	return errors.Wrapf(ErrNotFound, "%s: %v", name, cause)
}

// checkTable tells a complete record from one whose offset table was
// never filled in. Levels follow the table back to back, each holding
// the tight bytes of its mip size, and the sentinel ends the tag.
func checkTable(header *textureHeader, offsets []offsetEntry, size int64) error {
	format := pixel.Format(header.PixelFormat)
	if format == pixel.Unknown || header.LargestWidth < 1 || header.LargestHeight < 1 {
		return errors.Wrapf(ErrCorrupt, "%s %dx%d", format, header.LargestWidth, header.LargestHeight)
	}
	start := int64(binary.Size(header)) + int64(binary.Size(offsets))
	if int64(offsets[0].Offset) != start {
		return errors.Wrapf(ErrCorrupt, "levels start at %d, want %d", offsets[0].Offset, start)
	}
	w, h := int(header.LargestWidth), int(header.LargestHeight)
	for i := 0; i < len(offsets)-1; i++ {
		if want := format.SurfaceSize(w, h); int(offsets[i].Size) != want {
			return errors.Wrapf(ErrCorrupt, "level %d holds %d bytes, want %d", i, offsets[i].Size, want)
		}
		if offsets[i+1].Offset < offsets[i].Offset {
			return errors.Wrapf(ErrCorrupt, "level %d ends before it starts", i)
		}
		w, h = atLeast1(w>>1), atLeast1(h>>1)
	}
	if end := int64(offsets[len(offsets)-1].Offset); end != size {
		return errors.Wrapf(ErrCorrupt, "levels end at %d of %d", end, size)
	}
	return nil
}

func atLeast1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

func (c *Cache) levelSize(idx int) int {
	return int(c.offsets[idx].Size)
}

func (c *Cache) packedSize(idx int) int {
	return int(c.offsets[idx+1].Offset - c.offsets[idx].Offset)
}

func (c *Cache) findResident(size int) []byte {
	for _, buf := range c.resident {
		if len(buf) == size {
			return buf
		}
	}
	return nil
}

// addResident keeps a copy of data. A full set gives up its smallest
// buffer.
func (c *Cache) addResident(data []byte) {
	if c.capacity == 0 || c.findResident(len(data)) != nil {
		return
	}
	buf := append([]byte(nil), data...)
	if len(c.resident) < c.capacity {
		c.resident = append(c.resident, buf)
		return
	}
	smallest := 0
	for i, r := range c.resident {
		if len(r) < len(c.resident[smallest]) {
			smallest = i
		}
	}
	log.WithFields(log.Fields{
		"texture": c.current,
		"evicted": len(c.resident[smallest]),
	}).Debug("resident level replaced")
	c.resident[smallest] = buf
}

// readLevel unpacks stored level idx into dst.
func (c *Cache) readLevel(idx int, dst pixel.Surface) error {
	size := c.levelSize(idx)
	if dst.Size() != size {
		return errors.Wrapf(ErrMismatch, "%s level %d: %d bytes into %d", c.current, idx, size, dst.Size())
	}
	if buf := c.findResident(size); buf != nil {
		return dst.Fill(buf)
	}

	packed := make([]byte, c.packedSize(idx))
	if _, err := c.handle.ReadAt(packed, int64(c.offsets[idx].Offset)); err != nil && err != io.EOF {
		return errors.Wrapf(err, "read %s level %d", c.current, idx)
	}
	data := make([]byte, size)
	if err := c.compressor.Decompress(data, packed); err != nil {
		return errors.Wrapf(ErrCorrupt, "%s level %d: %v", c.current, idx, err)
	}
	c.addResident(data)
	return dst.Fill(data)
}

// Save stores the levels generated for name. It fails when name is
// already cached.
func (c *Cache) Save(name string, src SourceInfo, levels []pixel.Surface) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.file == nil {
		return ErrClosed
	}
	if len(levels) == 0 || len(levels) > maxLevels {
		return errors.Errorf("save %s: %d levels", name, len(levels))
	}
	for i, level := range levels {
		w, h := atLeast1(levels[0].Width>>uint(i)), atLeast1(levels[0].Height>>uint(i))
		if level.Format != levels[0].Format || level.Width != w || level.Height != h {
			return errors.Wrapf(ErrMismatch, "save %s level %d: %dx%d %s", name, i, level.Width, level.Height, level.Format)
		}
	}
	stamp, err := vfs.Timestamp(c.sources, name)
	if err != nil {
		return errors.Wrapf(err, "save %s", name)
	}

	c.closeTexture()
	h, err := c.file.Create(name)
	if err != nil {
		return errors.Wrapf(err, "save %s", name)
	}
	c.current = name

	header := textureHeader{
		FileTime:          stamp,
		NumMipMaps:        int32(len(levels)),
		LargestWidth:      int32(levels[0].Width),
		LargestHeight:     int32(levels[0].Height),
		SourceWidth:       int32(src.Width),
		SourceHeight:      int32(src.Height),
		SourcePixelFormat: int32(src.Format),
		PixelFormat:       int32(levels[0].Format),
	}
	offsets := make([]offsetEntry, len(levels)+1)

	if err := c.writeRecord(h, &header, offsets, levels); err != nil {
		if aerr := h.Abort(); aerr != nil {
			log.WithError(aerr).WithField("texture", name).Warn("abort cache record")
		}
		c.closeTexture()
		return errors.Wrapf(err, "save %s", name)
	}
	if err := h.Close(); err != nil {
		c.closeTexture()
		return errors.Wrapf(err, "save %s", name)
	}
	c.header = header
	c.offsets = offsets
	return nil
}

func (c *Cache) writeRecord(h *tagblock.Handle, header *textureHeader, offsets []offsetEntry, levels []pixel.Surface) error {
	if err := binary.Write(h, binary.LittleEndian, header); err != nil {
		return err
	}
	table := h.Tell()
	if err := binary.Write(h, binary.LittleEndian, offsets); err != nil {
		return err
	}

	var packed []byte
	for i, level := range levels {
		data := level.Tight()
		offsets[i] = offsetEntry{Offset: int32(h.Tell()), Size: int32(len(data))}
		c.addResident(data)

		var err error
		packed, err = c.compressor.Compress(packed[:0], data)
		if err != nil {
			return err
		}
		if _, err := h.Write(packed); err != nil {
			return err
		}
	}
	end, err := h.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	offsets[len(levels)] = offsetEntry{Offset: int32(end)}

	if _, err := h.Seek(table, io.SeekStart); err != nil {
		return err
	}
	return binary.Write(h, binary.LittleEndian, offsets)
}

// Load fills dst, largest level first, from the cached record of name.
// Stored levels are matched by byte size; destination levels the record
// has no match for are scaled from the largest level that was read.
func (c *Cache) Load(name string, dst []pixel.Surface) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(dst) == 0 {
		return nil
	}
	if err := c.openTexture(name); err != nil {
		return err
	}
	if format := pixel.Format(c.header.PixelFormat); dst[0].Format != format {
		return errors.Wrapf(ErrMismatch, "%s: cached %s, want %s", name, format, dst[0].Format)
	}

	levels := int(c.header.NumMipMaps)
	first := 0
	for first < len(dst) && dst[first].Size() > c.levelSize(0) {
		first++
	}
	idx := 0
	if first < len(dst) {
		for idx < levels && c.levelSize(idx) > dst[first].Size() {
			idx++
		}
	}

	lod := first
	if idx < levels && first < len(dst) && c.levelSize(idx) == dst[first].Size() {
		for lod < len(dst) && idx < levels {
			if err := c.readLevel(idx, dst[lod]); err != nil {
				return err
			}
			lod++
			idx++
		}
	}
	last := lod - 1

	if first == 0 && last == len(dst)-1 {
		return nil
	}
	if dst[0].Format.IsCompressed() {
		return errors.Wrapf(ErrMismatch, "%s: levels %d..%d of %d not cached", name, first, last, len(dst))
	}

	var source pixel.Surface
	if last >= first {
		source = dst[first]
	} else {
		source = pixel.NewSurface(pixel.Format(c.header.PixelFormat), int(c.header.LargestWidth), int(c.header.LargestHeight))
		if err := c.readLevel(0, source); err != nil {
			return err
		}
	}
	img, err := pixel.ToImage(source)
	if err != nil {
		return err
	}
	fill := func(s pixel.Surface) error {
		return pixel.FromImage(s, core.ScaleImage(img, s.Width, s.Height), mgl32.Vec3{})
	}
	for l := 0; l < first; l++ {
		if err := fill(dst[l]); err != nil {
			return err
		}
	}
	for l := last + 1; l < len(dst); l++ {
		if err := fill(dst[l]); err != nil {
			return err
		}
	}
	return nil
}

// GetSurface returns a copy of stored level reduce, clamped to the
// smallest level.
func (c *Cache) GetSurface(name string, reduce int) (pixel.Surface, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.openTexture(name); err != nil {
		return pixel.Surface{}, err
	}
	if reduce < 0 {
		reduce = 0
	}
	if reduce >= int(c.header.NumMipMaps) {
		reduce = int(c.header.NumMipMaps) - 1
	}
	w := int(c.header.LargestWidth) >> uint(reduce)
	h := int(c.header.LargestHeight) >> uint(reduce)
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	s := pixel.NewSurface(pixel.Format(c.header.PixelFormat), w, h)
	if err := c.readLevel(reduce, s); err != nil {
		return pixel.Surface{}, err
	}
	return s, nil
}

// Exists reports whether name has a record. The record may still be
// stale.
func (c *Cache) Exists(name string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.file != nil && c.file.Exists(name)
}

// Validate reports whether name has a record matching the current
// source file.
func (c *Cache) Validate(name string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.openTexture(name) == nil
}

// Info describes the record of name.
func (c *Cache) Info(name string) (Info, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.openTexture(name); err != nil {
		return Info{}, err
	}
	info := Info{
		Name:     c.current,
		FileTime: c.header.FileTime,
		Width:    int(c.header.LargestWidth),
		Height:   int(c.header.LargestHeight),
		Format:   pixel.Format(c.header.PixelFormat),
		Source: SourceInfo{
			Width:  int(c.header.SourceWidth),
			Height: int(c.header.SourceHeight),
			Format: pixel.Format(c.header.SourcePixelFormat),
		},
	}
	for i := 0; i < int(c.header.NumMipMaps); i++ {
		info.Sizes = append(info.Sizes, c.levelSize(i))
		info.Packed = append(info.Packed, c.packedSize(i))
	}
	return info, nil
}

// Resident returns the byte sizes of the resident levels.
func (c *Cache) Resident() []int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	sizes := make([]int, len(c.resident))
	for i, r := range c.resident {
		sizes[i] = len(r)
	}
	return sizes
}

// Compressor is the name of the compressor in use.
func (c *Cache) Compressor() string {
	return c.compressor.Name()
}

// Close closes the backing file.
func (c *Cache) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.file == nil {
		return nil
	}
	c.closeTexture()
	err := c.file.Close()
	c.file = nil
	c.compressor.Close()
	return err
}
