// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package archivefs exposes the contents of an LHA/LZH archive as an
// [io/fs.FS]. Build one with [New], passing an [io.ReaderAt] over the
// raw archive bytes (a *os.File, a *bytes.Reader, anything that can be
// reopened from byte zero on demand).
package archivefs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/elliotnunn/lhareader/internal/appledouble"
	"github.com/elliotnunn/lhareader/internal/archivecache"
	"github.com/elliotnunn/lhareader/internal/fskeleton"
	"github.com/elliotnunn/lhareader/internal/lha"
)

// New parses every header in the archive read through ra (size bytes
// starting at offset 0) and returns an fs.FS over its entries. Archive
// reading is strictly forward-streaming, so New walks the whole header
// chain once up front; the returned fs.FS can then be opened and read
// in any order, and individual members decode lazily and independently
// on first read.
func New(name string, ra io.ReaderAt, size int64) (fs.FS, error) {
	fsys := fskeleton.New()
	src := &readerAtSource{name: name, ra: ra, size: size}
	if err := walk(fsys, src); err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return fsys, nil
}

// readerAtSource adapts an io.ReaderAt archive into an
// archivecache.Source: every call to OpenArchive hands back an
// independent forward-only view from byte zero, which is what lets
// archivecache's "close, reopen, reread" recovery strategy work
// without disturbing any other open member.
type readerAtSource struct {
	name string
	ra   io.ReaderAt
	size int64
}

func (s *readerAtSource) OpenArchive() (io.Reader, error) {
	return io.NewSectionReader(s.ra, 0, s.size), nil
}

func (s *readerAtSource) String() string { return s.name }

// walk reads every header once and registers a directory or file with
// fsys for each. LHA headers carry a complete slash-separated path in
// every entry (Header.Path), so fskeleton's implicit parent-directory
// creation is sufficient in one pass; there is no parent-by-offset
// indirection to resolve the way some archive formats require.
func walk(fsys fskeleton.FS, src *readerAtSource) error {
	defer fsys.NoMore()

	ar, err := src.OpenArchive()
	if err != nil {
		return err
	}
	rd, err := lha.NewReader(ar)
	if errors.Is(err, lha.ErrNoMoreHeader) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("archivefs: %w", err)
	}

	seen := make(map[string]bool)
	for {
		if err := addEntry(fsys, src, rd, seen); err != nil {
			return err
		}
		err := rd.NextFile()
		if errors.Is(err, lha.ErrNoMoreHeader) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("archivefs: %w", err)
		}
	}
}

// addEntry registers the member currently selected by rd, plus its
// AppleDouble sidecar when the originating OS carries Finder metadata
// worth preserving.
func addEntry(fsys fskeleton.FS, src *readerAtSource, rd *lha.Reader, seen map[string]bool) error {
	h := rd.Header()
	name := h.Path()
	if name == "" {
		slog.Warn("archivefs: entry with empty path, skipping", "archive", src.name)
		return nil
	}

	method, merr := h.CompressionMethod()
	isSymlink := h.MsDosAttrs&lha.AttrSymlink != 0
	isDir := merr == nil && method.IsDirectory() && !isSymlink

	// Unix LHA packs "link|target" into the single pathname field rather
	// than the archive's content: Lhd entries carry no payload, so there
	// is nothing to decode.
	var target string
	if isSymlink {
		link, rawTarget, ok := strings.Cut(name, "|")
		if !ok {
			slog.Warn("archivefs: symlink entry missing target, skipping", "archive", src.name, "path", name)
			return nil
		}
		name = link
		target = fskeleton.CleanLinkTarget(link, rawTarget)
		if target == "" {
			slog.Warn("archivefs: symlink target escapes archive root, skipping", "archive", src.name, "path", link, "target", rawTarget)
			return nil
		}
	}

	if seen[name] {
		slog.Warn("archivefs: duplicate path in archive, keeping first", "archive", src.name, "path", name)
		return nil
	}

	mtime := h.ModTime()

	var err error
	switch {
	case isSymlink:
		err = fsys.CreateSymlink(name, target, fileMode(h)&^fs.ModeSymlink, mtime, h)
	case isDir:
		err = fsys.CreateDir(name, dirMode(), mtime, h)
	default:
		mode := fileMode(h)
		ra := memberReaderAt{opener: archivecache.NewOpener(src, name, h.CompressedSize, h.OriginalSize, h.FileCRC)}
		err = fsys.CreateRandomAccessFile(name, ra, int64(h.OriginalSize), mode, mtime, h)
	}
	if err != nil {
		return fmt.Errorf("archivefs: %s: %w", name, err)
	}
	seen[name] = true

	if isClassicMacOS(h.OSType) {
		if err := addAppleDoubleSidecar(fsys, name, h, isDir); err != nil {
			return err
		}
	}
	return nil
}

// memberReaderAt makes one archive member's decompressed content
// available at random offsets, backed by archivecache's block cache so
// repeated or out-of-order ReadAt calls don't each restart decoding
// from the front of the archive.
type memberReaderAt struct {
	opener archivecache.Opener
}

func (r memberReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return archivecache.ReadAt(r.opener, p, off)
}

func fileMode(h *lha.Header) fs.FileMode {
	var m fs.FileMode = 0o444
	if h.MsDosAttrs&lha.AttrReadOnly == 0 {
		m = 0o644
	}
	if h.MsDosAttrs&lha.AttrSymlink != 0 {
		m |= fs.ModeSymlink
	}
	return m
}

func dirMode() fs.FileMode {
	return fs.ModeDir | 0o755
}

// isClassicMacOS reports whether an entry's OS type tag is one that gets
// an AppleDouble sidecar: classic Mac OS ('m'), and also OS-9 ('9') and
// OS-9/68K ('K').
func isClassicMacOS(os byte) bool {
	switch lha.OsType(os) {
	case lha.OsMacOs, lha.OsOs9, lha.OsOsk:
		return true
	default:
		return false
	}
}

// addAppleDoubleSidecar creates the "._name" AppleDouble companion file
// carrying the entry's modification time and locked flag. LHA's header
// format (unlike StuffIt's dedicated resource-fork records) has no field
// for Finder type/creator codes or a resource fork, so the sidecar
// produced here carries only what Header exposes: timestamps and the
// read-only bit, via appledouble.AppleDouble.ForFile/ForDir.
func addAppleDoubleSidecar(fsys fskeleton.FS, name string, h *lha.Header, isDir bool) error {
	var meta appledouble.AppleDouble
	meta.ModTime = h.ModTime()
	meta.CreateTime = meta.ModTime
	meta.Locked = h.MsDosAttrs&lha.AttrReadOnly != 0

	var open fskeleton.OpenFunc
	var size int64
	if isDir {
		reader, n := meta.ForDir()
		open, size = readerFile(reader), n
	} else {
		reader, n := meta.ForFile()
		open, size = readerFile(reader), n
	}

	sidecar := appledouble.Sidecar(name)
	err := fsys.CreateFile(sidecar, open, size, 0o444, meta.ModTime, h)
	if err != nil {
		return fmt.Errorf("archivefs: %s: %w", sidecar, err)
	}
	return nil
}

// readerFile adapts the func()io.Reader factories returned by
// appledouble's For* methods to fskeleton's stat-then-open convention:
// the stub fs.File backs Stat, and a freshly made reader serves Read.
func readerFile(newReader func() io.Reader) fskeleton.OpenFunc {
	return func(stub fs.File) (fs.File, error) {
		return &sidecarFile{stub: stub, r: newReader()}, nil
	}
}

type sidecarFile struct {
	stub fs.File
	r    io.Reader
}

func (f *sidecarFile) Stat() (fs.FileInfo, error) { return f.stub.Stat() }
func (f *sidecarFile) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *sidecarFile) Close() error               { return nil }
