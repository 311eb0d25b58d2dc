// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package archivecache turns a forward-only lha.Reader into something
// archivefs can hand out as a random-access [io.ReaderAt]: [ReadAt]
// maintains a block cache and a cache of already-open decoders so that
// repeated or out-of-order reads of the same archive member don't each
// restart decompression from byte zero.
package archivecache

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/elliotnunn/lhareader/internal/lha"
)

// Source reopens the raw archive bytes from byte zero. archivefs supplies
// one per archive (typically wrapping a *os.File or other io.ReaderAt),
// so every block-cache worker goroutine gets its own independent cursor.
type Source interface {
	OpenArchive() (io.Reader, error)
	fmt.Stringer
}

// Opener names one member of an LHA archive for [ReadAt]. It must be,
// and is, comparable: Src is expected to be a small comparable value (a
// pointer or a path string), and Key is a 64-bit digest of the fields
// that identify the member, so two entries that happen to share a
// pathname (LHA enforces no such uniqueness) still compare unequal
// unless their sizes and checksum also agree.
type Opener struct {
	Src  Source
	Name string
	Key  uint64
}

// NewOpener builds an Opener for the member named name, with Key derived
// from name plus the three header fields Open re-checks against every
// header it walks past while fast-forwarding to this member.
func NewOpener(src Source, name string, compressedSize, originalSize uint64, fileCRC uint16) Opener {
	return Opener{Src: src, Name: name, Key: memberDigest(name, compressedSize, originalSize, fileCRC)}
}

func memberDigest(name string, compressedSize, originalSize uint64, fileCRC uint16) uint64 {
	h := xxhash.New()
	io.WriteString(h, name)
	var buf [18]byte
	binary.LittleEndian.PutUint64(buf[0:], compressedSize)
	binary.LittleEndian.PutUint64(buf[8:], originalSize)
	binary.LittleEndian.PutUint16(buf[16:], fileCRC)
	h.Write(buf[:])
	return h.Sum64()
}

func (o Opener) String() string { return fmt.Sprintf("%s!%s", o.Src, o.Name) }

// Open reopens the archive from the start and fast-forwards through
// headers until it finds the member matching o, then returns an fs.File
// streaming that member's decompressed bytes. This is exactly the cost
// [ReadAt] exists to amortize: Open only runs again when a read seeks
// backward past what the block cache retained.
func (o Opener) Open() (fs.File, error) {
	raw, err := o.Src.OpenArchive()
	if err != nil {
		return nil, err
	}
	closer, _ := raw.(io.Closer)

	r, err := lha.NewReader(raw)
	if err != nil {
		closeQuiet(closer)
		return nil, err
	}
	for !o.matches(r.Header()) {
		if err := r.NextFile(); err != nil {
			closeQuiet(closer)
			return nil, fmt.Errorf("archivecache: member %q: %w", o.Name, err)
		}
	}
	if !r.IsDecoderSupported() {
		closeQuiet(closer)
		return nil, fmt.Errorf("archivecache: member %q: %w", o.Name, lha.ErrUnsupported)
	}
	return &memberFile{r: r, closer: closer, size: int64(r.Header().OriginalSize)}, nil
}

func (o Opener) matches(h *lha.Header) bool {
	name := h.Path()
	if name != o.Name {
		return false
	}
	return memberDigest(name, h.CompressedSize, h.OriginalSize, h.FileCRC) == o.Key
}

// memberFile streams one archive member through its lha.Reader. Reads
// are strictly sequential; once size bytes have been delivered, Read
// keeps returning io.EOF.
type memberFile struct {
	r      *lha.Reader
	closer io.Closer
	off    int64
	size   int64
}

func (m *memberFile) Stat() (fs.FileInfo, error) { return memberInfo{m}, nil }

func (m *memberFile) Read(p []byte) (int, error) {
	if m.off >= m.size {
		return 0, io.EOF
	}
	n, err := m.r.Read(p)
	m.off += int64(n)
	if err == nil && n == 0 {
		err = io.EOF
	}
	return n, err
}

func (m *memberFile) Close() error {
	if m.closer != nil {
		return m.closer.Close()
	}
	return nil
}

// memberInfo backs memberFile.Stat, which sizeOf calls (via fs.File.Stat)
// to learn a freshly opened member's length up front.
type memberInfo struct{ f *memberFile }

func (i memberInfo) Name() string       { return i.f.r.Header().Path() }
func (i memberInfo) Size() int64        { return i.f.size }
func (i memberInfo) Mode() fs.FileMode  { return 0 }
func (i memberInfo) ModTime() time.Time { return time.Time{} }
func (i memberInfo) IsDir() bool        { return false }
func (i memberInfo) Sys() any           { return nil }

func closeQuiet(c io.Closer) {
	if c != nil {
		c.Close()
	}
}
