// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fskeleton

import (
	"bytes"
	"io"
	"io/fs"
	"testing"
	"time"
)

func openBytes(data []byte) OpenFunc {
	return func(stub fs.File) (fs.File, error) {
		return &memFile{stub: stub, r: bytes.NewReader(data)}, nil
	}
}

type memFile struct {
	stub fs.File
	r    *bytes.Reader
}

func (m *memFile) Stat() (fs.FileInfo, error) { return m.stub.Stat() }
func (m *memFile) Read(p []byte) (int, error) { return m.r.Read(p) }
func (m *memFile) Close() error               { return nil }

func TestFSCreateAndOpenFile(t *testing.T) {
	fsys := New()
	if err := fsys.CreateFile("dir/hello.txt", openBytes([]byte("hello")), 5, 0o644, time.Time{}, nil); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fsys.NoMore()

	f, err := fsys.Open("dir/hello.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("content = %q, want %q", got, "hello")
	}

	info, err := fsys.Stat("dir/hello.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 5 {
		t.Fatalf("Size = %d, want 5", info.Size())
	}
}

func TestFSImplicitDirectory(t *testing.T) {
	fsys := New()
	if err := fsys.CreateFile("a/b/c.txt", openBytes([]byte("x")), 1, 0o644, time.Time{}, nil); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fsys.NoMore()

	info, err := fsys.Stat("a/b")
	if err != nil {
		t.Fatalf("Stat implicit dir: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("a/b is not reported as a directory")
	}

	f, err := fsys.Open("a/b")
	if err != nil {
		t.Fatalf("Open implicit dir: %v", err)
	}
	defer f.Close()
	rdf, ok := f.(fs.ReadDirFile)
	if !ok {
		t.Fatalf("opened directory does not implement fs.ReadDirFile")
	}
	entries, err := rdf.ReadDir(-1)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "c.txt" {
		t.Fatalf("ReadDir = %v, want [c.txt]", entries)
	}
}

func TestFSRandomAccessFile(t *testing.T) {
	fsys := New()
	data := []byte("0123456789")
	if err := fsys.CreateRandomAccessFile("f.bin", bytes.NewReader(data), int64(len(data)), 0o644, time.Time{}, nil); err != nil {
		t.Fatalf("CreateRandomAccessFile: %v", err)
	}
	fsys.NoMore()

	f, err := fsys.Open("f.bin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	ra, ok := f.(io.ReaderAt)
	if !ok {
		t.Fatalf("opened file does not implement io.ReaderAt")
	}
	buf := make([]byte, 4)
	if _, err := ra.ReadAt(buf, 3); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "3456" {
		t.Fatalf("ReadAt = %q, want %q", buf, "3456")
	}
}

func TestFSSymlink(t *testing.T) {
	fsys := New()
	if err := fsys.CreateFile("real.txt", openBytes([]byte("data")), 4, 0o644, time.Time{}, nil); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := fsys.CreateSymlink("link.txt", "real.txt", 0o777, time.Time{}, nil); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}
	fsys.NoMore()

	target, err := fsys.ReadLink("link.txt")
	if err != nil {
		t.Fatalf("ReadLink: %v", err)
	}
	if target != "real.txt" {
		t.Fatalf("ReadLink = %q, want %q", target, "real.txt")
	}

	f, err := fsys.Open("link.txt")
	if err != nil {
		t.Fatalf("Open through symlink: %v", err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil || string(got) != "data" {
		t.Fatalf("read through symlink = (%q, %v), want (data, nil)", got, err)
	}
}

func TestFSNoMoreChildrenBlocksCreate(t *testing.T) {
	fsys := New()
	if err := fsys.CreateDir("locked", 0o755, time.Time{}, nil); err != nil {
		t.Fatalf("CreateDir: %v", err)
	}
	if err := fsys.NoMoreChildren("locked"); err != nil {
		t.Fatalf("NoMoreChildren: %v", err)
	}
	err := fsys.CreateFile("locked/late.txt", openBytes([]byte("x")), 1, 0o644, time.Time{}, nil)
	if err == nil {
		t.Fatalf("CreateFile after NoMoreChildren succeeded, want error")
	}
}
