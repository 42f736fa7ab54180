// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblok/texstream/utility/kar"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func build(t *testing.T) []byte {
	t.Helper()
	builder := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Unix(1500000000, 0).Unix(),
		Version:     1,
	})
	if err := builder.Add("textures/test.tga", []byte(testString1)); err != nil {
		t.Fatal(err)
	}
	if err := builder.AddFrom("textures/test2.dds", bytes.NewReader([]byte(testString2))); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("textures/test.tga", nil); !errors.Is(err, kar.ErrExists) {
		t.Errorf("duplicate accepted: %v", err)
	}

	buf := bytes.NewBuffer([]byte{})
	written, err := builder.WriteTo(buf)
	if err != nil {
		t.Fatal(err)
	}
	if written != int64(buf.Len()) {
		t.Errorf("written %d of %d", written, buf.Len())
	}
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	ar, err := kar.Open(bytes.NewReader(build(t)))
	if err != nil {
		t.Fatal(err)
	}
	if h := ar.Header(); h.Author != "devblok" || h.Version != 1 || len(h.Index) != 2 {
		t.Errorf("header %+v", h)
	}

	f, err := ar.Open("textures/test.tga")
	if err != nil {
		t.Fatal(err)
	}
	result, err := ioutil.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(result) != testString1 || f.Size() != int64(len(testString1)) {
		t.Errorf("read %q", result)
	}

	all, err := ar.ReadAll("textures/test2.dds")
	if err != nil {
		t.Fatal(err)
	}
	if string(all) != testString2 {
		t.Errorf("read all %q", all)
	}

	if _, err := ar.ReadAll("textures/absent.tga"); !errors.Is(err, kar.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestOpenmmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opentest.kar")
	if err := ioutil.WriteFile(path, build(t), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := mmap.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ar, err := kar.Open(r)
	if err != nil {
		t.Fatal(err)
	}
	names := ar.Names()
	if len(names) != 2 || names[0] != "textures/test.tga" {
		t.Errorf("names %v", names)
	}
	if e, ok := ar.Entry("textures/test2.dds"); !ok || e.Size != int64(len(testString2)) || e.Offset == 0 {
		t.Errorf("entry %+v", e)
	}
}

func TestNotAnArchive(t *testing.T) {
	if _, err := kar.Open(bytes.NewReader([]byte("TAG\x00 and then some more bytes"))); !errors.Is(err, kar.ErrFileFormat) {
		t.Errorf("expected file format error, got %v", err)
	}
	data := build(t)
	if _, err := kar.Open(bytes.NewReader(data[:kar.DataOffset+4])); !errors.Is(err, kar.ErrFileFormat) {
		t.Errorf("truncated archive opened: %v", err)
	}
}
