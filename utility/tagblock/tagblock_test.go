// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package tagblock_test

import (
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/texstream/utility/tagblock"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func createTag(t *testing.T, f *tagblock.File, name, data string) {
	t.Helper()
	h, err := f.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Write([]byte(data)); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
}

func readTag(t *testing.T, f *tagblock.File, name string) string {
	t.Helper()
	h, err := f.OpenTag(name)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	data, err := ioutil.ReadAll(h)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestCreateAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.tag")
	f, err := tagblock.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	createTag(t, f, "test", testString1)
	createTag(t, f, "test2", testString2)

	if got := readTag(t, f, "TEST"); got != testString1 {
		t.Errorf("read %q", got)
	}
	if got := readTag(t, f, "test2"); got != testString2 {
		t.Errorf("read %q", got)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := tagblock.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.NumBlocks() != 2 {
		t.Errorf("reopened file has %d blocks", reopened.NumBlocks())
	}
	tags := reopened.Tags()
	if len(tags) != 2 || tags[0] != "test" || tags[1] != "test2" {
		t.Errorf("tags %v", tags)
	}
	if got := readTag(t, reopened, "test2"); got != testString2 {
		t.Errorf("read %q after reopen", got)
	}
}

func TestLayoutOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.tag")
	f, err := tagblock.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	createTag(t, f, "ab", "xyz")
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := mmap.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	expected := tagblock.FileHeaderSize + tagblock.BlockHeaderSize + 3 + 3
	if r.Len() != expected {
		t.Fatalf("file is %d bytes, expected %d", r.Len(), expected)
	}
	buf := make([]byte, r.Len())
	if _, err := r.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	if string(buf[:4]) != "TAG\x00" {
		t.Errorf("magic %q", buf[:4])
	}
	if n := binary.LittleEndian.Uint32(buf[8:]); n != 1 {
		t.Errorf("header counts %d blocks", n)
	}
	if size := binary.LittleEndian.Uint32(buf[12:]); int(size) != expected {
		t.Errorf("header file size %d", size)
	}
	block := buf[tagblock.FileHeaderSize:]
	if idx := int32(binary.LittleEndian.Uint32(block)); idx != 0 {
		t.Errorf("block index %d", idx)
	}
	if string(block[tagblock.BlockHeaderSize:]) != "ab\x00xyz" {
		t.Errorf("block body %q", block[tagblock.BlockHeaderSize:])
	}
}

func TestSingleCreateAndDuplicates(t *testing.T) {
	f, err := tagblock.Open(filepath.Join(t.TempDir(), "dup.tag"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	h, err := f.Create("first")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Create("second"); !errors.Is(err, tagblock.ErrBusy) {
		t.Errorf("expected busy, got %v", err)
	}
	if _, err := f.OpenTag("first"); !errors.Is(err, tagblock.ErrNotFound) {
		t.Errorf("unfinished tag opened: %v", err)
	}
	if err := f.Close(); !errors.Is(err, tagblock.ErrOpen) {
		t.Errorf("closed with an open handle: %v", err)
	}
	h.Close()

	if _, err := f.Create("FIRST"); !errors.Is(err, tagblock.ErrExists) {
		t.Errorf("expected exists, got %v", err)
	}
	if _, err := f.Create(""); !errors.Is(err, tagblock.ErrTagName) {
		t.Errorf("empty name accepted: %v", err)
	}
}

func TestSeekAndRewrite(t *testing.T) {
	f, err := tagblock.Open(filepath.Join(t.TempDir(), "seek.tag"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	h, err := f.Create("table")
	if err != nil {
		t.Fatal(err)
	}
	h.Write(make([]byte, 8))
	h.Write([]byte("payload"))
	if h.Tell() != 15 {
		t.Errorf("tell %d", h.Tell())
	}
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	h.Write([]byte("abcdefgh"))
	if h.Size() != 15 {
		t.Errorf("rewrite grew the tag to %d", h.Size())
	}
	h.Close()

	r, err := f.OpenTag("table")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := r.Write([]byte("x")); !errors.Is(err, tagblock.ErrReadOnly) {
		t.Errorf("wrote through a read handle: %v", err)
	}
	if pos, _ := r.Seek(-7, io.SeekEnd); pos != 8 {
		t.Errorf("seek end %d", pos)
	}
	tail := make([]byte, 16)
	n, err := r.Read(tail)
	if err != io.EOF || string(tail[:n]) != "payload" {
		t.Errorf("read %q, %v", tail[:n], err)
	}
	head := make([]byte, 8)
	if _, err := r.ReadAt(head, 0); err != nil || string(head) != "abcdefgh" {
		t.Errorf("read %q, %v", head, err)
	}
}

func TestUnfinishedBlockIsDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.tag")
	f, err := tagblock.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	createTag(t, f, "kept", testString1)
	h, err := f.Create("lost")
	if err != nil {
		t.Fatal(err)
	}
	h.Write([]byte(testString2))

	// Reopen while the block is still unfinished on disk.
	f2, err := tagblock.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Close()
	if f2.Exists("lost") {
		t.Error("unfinished block was indexed")
	}
	if got := readTag(t, f2, "kept"); got != testString1 {
		t.Errorf("read %q", got)
	}
	createTag(t, f2, "next", "data")
	if got := readTag(t, f2, "next"); got != "data" {
		t.Errorf("read %q", got)
	}
}

func TestAbortDropsBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abort.tag")
	f, err := tagblock.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	createTag(t, f, "kept", testString1)
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	h, err := f.Create("aborted")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Write([]byte(testString2)); err != nil {
		t.Fatal(err)
	}
	if err := h.Abort(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("close after abort: %v", err)
	}

	if f.Exists("aborted") {
		t.Error("aborted tag is indexed")
	}
	if f.NumBlocks() != 1 {
		t.Errorf("%d blocks, want 1", f.NumBlocks())
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() != before.Size() {
		t.Errorf("file is %d bytes after abort, was %d", after.Size(), before.Size())
	}

	// The name is free again and the file still reopens cleanly.
	createTag(t, f, "aborted", "second try")
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	f2, err := tagblock.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Close()
	if got := readTag(t, f2, "aborted"); got != "second try" {
		t.Errorf("read %q", got)
	}
	if got := readTag(t, f2, "kept"); got != testString1 {
		t.Errorf("read %q", got)
	}
}

func TestResetAndForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.tag")
	if err := ioutil.WriteFile(path, []byte("this is not a tag file at all"), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := tagblock.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if len(f.Tags()) != 0 {
		t.Errorf("foreign file has tags %v", f.Tags())
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != tagblock.FileHeaderSize {
		t.Errorf("reset file is %d bytes", info.Size())
	}

	createTag(t, f, "a", "1")
	h, _ := f.OpenTag("a")
	if err := f.Reset(); !errors.Is(err, tagblock.ErrOpen) {
		t.Errorf("reset with an open handle: %v", err)
	}
	h.Close()
	if err := f.Reset(); err != nil {
		t.Fatal(err)
	}
	if f.Exists("a") || f.NumBlocks() != 0 {
		t.Error("reset kept blocks")
	}
}
