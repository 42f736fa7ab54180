// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package tagblock is an api for a file made of named blocks.
// Blocks are appended one after another and never rewritten in place,
// a file knows where all of its blocks are once it has been scanned on
// open. This makes it a good fit for caches, where a stale file can be
// thrown away as a whole with Reset. Tag names are case insensitive.
// Only one block can be created at a time, any number can be read.
package tagblock

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// package errors
var (
	ErrExists   = errors.New("tag already exists")
	ErrNotFound = errors.New("tag not found")
	ErrBusy     = errors.New("another tag is being created")
	ErrOpen     = errors.New("tag handles are still open")
	ErrReadOnly = errors.New("tag handle is read only")
	ErrClosed   = errors.New("tag handle or file closed")
	ErrTagName  = errors.New("invalid tag name")
)

// Version of the file layout. Files of any other version are reset on
// open.
const Version = 1

// Sizes of the on disk structures
const (
	MagicLength     = 4
	FileHeaderSize  = MagicLength + 12
	BlockHeaderSize = 12
	MaxTagSize      = 1024
)

var magic = [MagicLength]byte{'T', 'A', 'G', '\x00'}

type fileHeader struct {
	Magic     [MagicLength]byte
	Version   int32
	NumBlocks int32
	FileSize  int32
}

// blockHeader precedes every tag. Index is -1 while the block is being
// written.
type blockHeader struct {
	Index    int32
	TagSize  int32
	DataSize int32
}

type entry struct {
	name        string
	blockOffset int64
	dataOffset  int64
}

// File is an open tag block file.
type File struct {
	mutex   sync.Mutex
	path    string
	file    *os.File
	header  fileHeader
	index   map[string]*entry
	order   []*entry
	create  *Handle
	handles int
	modTime time.Time
}

// Open opens the tag file at path, creating it when it does not exist.
// A file that is not a tag file of the current version is reset, so
// don't pass anything you want to keep.
func Open(path string) (*File, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open tag file %s", path)
	}
	f := &File{
		path:  path,
		file:  fd,
		index: make(map[string]*entry),
	}

	if err := f.readHeader(); err != nil {
		log.WithFields(log.Fields{
			"file":  path,
			"cause": err,
		}).Debug("resetting tag file")
		if err := f.reset(); err != nil {
			fd.Close()
			return nil, err
		}
		return f, nil
	}

	if err := f.scan(); err != nil {
		fd.Close()
		return nil, err
	}
	if err := f.stamp(); err != nil {
		fd.Close()
		return nil, err
	}
	return f, nil
}

func (f *File) readHeader() error {
	buf := make([]byte, FileHeaderSize)
	if _, err := f.file.ReadAt(buf, 0); err != nil {
		return errors.Wrap(err, "read file header")
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &f.header); err != nil {
		return errors.Wrap(err, "decode file header")
	}
	if f.header.Magic != magic {
		return errors.New("not a tag file")
	}
	if f.header.Version != Version {
		return errors.Errorf("version %d", f.header.Version)
	}
	return nil
}

// scan walks the blocks and builds the index. It stops at the first
// block that was not finished and rewrites the header when it disagrees
// with what was found.
func (f *File) scan() error {
	info, err := f.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat tag file")
	}
	size := info.Size()

	pos := int64(FileHeaderSize)
	block := int32(0)
	for ; block < f.header.NumBlocks; block++ {
		var bh blockHeader
		if err := f.readAt(&bh, BlockHeaderSize, pos); err != nil {
			break
		}
		if bh.Index != block || bh.TagSize < 2 || bh.TagSize > MaxTagSize || bh.DataSize < 0 {
			break
		}
		end := pos + BlockHeaderSize + int64(bh.TagSize) + int64(bh.DataSize)
		if end > size {
			break
		}
		tag := make([]byte, bh.TagSize)
		if _, err := f.file.ReadAt(tag, pos+BlockHeaderSize); err != nil {
			break
		}
		name := string(tag[:len(tag)-1])
		if _, ok := f.index[key(name)]; ok {
			break
		}
		f.addEntry(name, pos)
		pos = end
	}

	if block != f.header.NumBlocks || pos != int64(f.header.FileSize) {
		f.header.NumBlocks = block
		f.header.FileSize = int32(pos)
		return f.writeHeader()
	}
	return nil
}

func (f *File) readAt(v interface{}, size int, off int64) error {
	buf := make([]byte, size)
	if _, err := f.file.ReadAt(buf, off); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

func (f *File) writeAt(v interface{}, off int64) error {
	buf := bytes.NewBuffer(nil)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return err
	}
	_, err := f.file.WriteAt(buf.Bytes(), off)
	return err
}

func (f *File) writeHeader() error {
	return errors.Wrap(f.writeAt(&f.header, 0), "write file header")
}

func (f *File) stamp() error {
	info, err := f.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat tag file")
	}
	f.modTime = info.ModTime()
	return nil
}

func key(name string) string {
	return strings.ToLower(name)
}

func (f *File) addEntry(name string, blockOffset int64) *entry {
	e := &entry{
		name:        name,
		blockOffset: blockOffset,
		dataOffset:  blockOffset + BlockHeaderSize + int64(len(name)+1),
	}
	f.index[key(name)] = e
	f.order = append(f.order, e)
	return e
}

func (f *File) removeEntry(e *entry) {
	delete(f.index, key(e.name))
	for i, o := range f.order {
		if o == e {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *File) reset() error {
	f.index = make(map[string]*entry)
	f.order = nil
	f.header = fileHeader{
		Magic:    magic,
		Version:  Version,
		FileSize: FileHeaderSize,
	}
	if err := f.file.Truncate(0); err != nil {
		return errors.Wrap(err, "truncate tag file")
	}
	if err := f.writeHeader(); err != nil {
		return err
	}
	return f.stamp()
}

// Reset throws away every block. It fails while handles are open.
func (f *File) Reset() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.file == nil {
		return ErrClosed
	}
	if f.handles > 0 {
		return errors.Wrapf(ErrOpen, "%d handles", f.handles)
	}
	return f.reset()
}

// Path is the path the file was opened with.
func (f *File) Path() string { return f.path }

// ModTime is the modification time when the file was opened or last
// reset.
func (f *File) ModTime() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.modTime
}

// Exists reports whether a finished or in progress tag has the name.
func (f *File) Exists(tag string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	_, ok := f.index[key(tag)]
	return ok
}

// Tags lists the tag names in file order.
func (f *File) Tags() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	names := make([]string, 0, len(f.order))
	for _, e := range f.order {
		if f.create != nil && f.create.entry == e {
			continue
		}
		names = append(names, e.name)
	}
	return names
}

// NumBlocks is the number of finished blocks.
func (f *File) NumBlocks() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return int(f.header.NumBlocks)
}

// OpenTag opens a finished tag for reading.
func (f *File) OpenTag(tag string) (*Handle, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.file == nil {
		return nil, ErrClosed
	}
	e, ok := f.index[key(tag)]
	if !ok || (f.create != nil && f.create.entry == e) {
		return nil, errors.Wrap(ErrNotFound, tag)
	}

	var bh blockHeader
	if err := f.readAt(&bh, BlockHeaderSize, e.blockOffset); err != nil {
		return nil, errors.Wrapf(err, "read block header of %s", tag)
	}
	f.handles++
	return &Handle{file: f, entry: e, header: bh}, nil
}

// Create appends a new tag at the end of the file. The data written
// through the handle becomes visible to OpenTag once it is closed.
func (f *File) Create(tag string) (*Handle, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.file == nil {
		return nil, ErrClosed
	}
	if tag == "" || len(tag)+1 > MaxTagSize || strings.IndexByte(tag, 0) >= 0 {
		return nil, errors.Wrapf(ErrTagName, "%q", tag)
	}
	if f.create != nil {
		return nil, errors.Wrapf(ErrBusy, "creating %s", f.create.entry.name)
	}
	if _, ok := f.index[key(tag)]; ok {
		return nil, errors.Wrap(ErrExists, tag)
	}

	e := f.addEntry(tag, int64(f.header.FileSize))
	bh := blockHeader{Index: -1, TagSize: int32(len(tag) + 1)}
	if err := f.writeAt(&bh, e.blockOffset); err != nil {
		f.removeEntry(e)
		return nil, errors.Wrapf(err, "write block header of %s", tag)
	}
	if _, err := f.file.WriteAt(append([]byte(tag), 0), e.blockOffset+BlockHeaderSize); err != nil {
		f.removeEntry(e)
		return nil, errors.Wrapf(err, "write tag %s", tag)
	}

	h := &Handle{file: f, entry: e, header: bh, writable: true}
	f.create = h
	f.handles++
	return h, nil
}

// endWrite finishes the block of the create handle, numbering it and
// moving the end of the file past its data.
func (f *File) endWrite(h *Handle) error {
	if f.create != h {
		return nil
	}
	f.create = nil
	h.header.Index = f.header.NumBlocks
	if err := f.writeAt(&h.header, h.entry.blockOffset); err != nil {
		f.removeEntry(h.entry)
		return errors.Wrapf(err, "finish %s", h.entry.name)
	}
	f.header.NumBlocks++
	f.header.FileSize = int32(h.entry.dataOffset + int64(h.header.DataSize))
	return f.writeHeader()
}

// Close closes the file. Handles must be closed first.
func (f *File) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.file == nil {
		return nil
	}
	if f.handles > 0 {
		return errors.Wrapf(ErrOpen, "%d handles", f.handles)
	}
	err := f.file.Close()
	f.file = nil
	return errors.Wrap(err, "close tag file")
}

// Handle reads a finished tag or writes the tag being created. Offsets
// are relative to the start of the tag data.
type Handle struct {
	file     *File
	entry    *entry
	header   blockHeader
	pos      int64
	writable bool
	closed   bool
}

// Name of the tag.
func (h *Handle) Name() string { return h.entry.name }

// Size is the current data size.
func (h *Handle) Size() int64 {
	h.file.mutex.Lock()
	defer h.file.mutex.Unlock()
	return int64(h.header.DataSize)
}

// Tell is the current offset.
func (h *Handle) Tell() int64 {
	return h.pos
}

// Read implements io.Reader over the tag data.
func (h *Handle) Read(p []byte) (int, error) {
	n, err := h.ReadAt(p, h.pos)
	h.pos += int64(n)
	return n, err
}

// ReadAt implements io.ReaderAt over the tag data.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	h.file.mutex.Lock()
	defer h.file.mutex.Unlock()
	if h.closed || h.file.file == nil {
		return 0, ErrClosed
	}
	size := int64(h.header.DataSize)
	if off >= size {
		return 0, io.EOF
	}
	short := false
	if rest := size - off; int64(len(p)) > rest {
		p = p[:rest]
		short = true
	}
	n, err := h.file.file.ReadAt(p, h.entry.dataOffset+off)
	if err == nil && short {
		err = io.EOF
	}
	return n, err
}

// Write implements io.Writer for the create handle. Writing past the
// end grows the tag.
func (h *Handle) Write(p []byte) (int, error) {
	h.file.mutex.Lock()
	defer h.file.mutex.Unlock()
	if h.closed || h.file.file == nil {
		return 0, ErrClosed
	}
	if !h.writable {
		return 0, errors.Wrap(ErrReadOnly, h.entry.name)
	}
	n, err := h.file.file.WriteAt(p, h.entry.dataOffset+h.pos)
	h.pos += int64(n)
	if h.pos > int64(h.header.DataSize) {
		h.header.DataSize = int32(h.pos)
	}
	return n, errors.Wrapf(err, "write %s", h.entry.name)
}

// Seek implements io.Seeker.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = h.pos + offset
	case io.SeekEnd:
		pos = h.Size() + offset
	default:
		return h.pos, errors.Errorf("bad whence %d", whence)
	}
	if pos < 0 {
		return h.pos, errors.Errorf("seek to %d", pos)
	}
	h.pos = pos
	return pos, nil
}

// Close releases the handle. Closing the create handle finishes the
// block.
func (h *Handle) Close() error {
	h.file.mutex.Lock()
	defer h.file.mutex.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.file.handles--
	if h.writable && h.file.file != nil {
		return h.file.endWrite(h)
	}
	return nil
}

// Abort releases the create handle without finishing its block. The tag
// is forgotten and the file is cut back to the size it had before
// Create. On any other handle Abort is Close.
func (h *Handle) Abort() error {
	h.file.mutex.Lock()
	defer h.file.mutex.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.file.handles--
	f := h.file
	if !h.writable || f.file == nil || f.create != h {
		return nil
	}
	f.create = nil
	f.removeEntry(h.entry)
	return errors.Wrapf(f.file.Truncate(int64(f.header.FileSize)), "abort %s", h.entry.name)
}
