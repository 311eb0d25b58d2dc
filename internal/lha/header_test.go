// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package lha

import (
	"bytes"
	"testing"
)

// buildLevel2Header assembles a minimal, valid level-2 header with no
// extra headers: header_len/csum are reinterpreted as the low/high bytes
// of the 16-bit long_header_len, which here equals the header's own
// total length (26 bytes) since first_header_len is zero.
func buildLevel2Header(t *testing.T) []byte {
	t.Helper()
	b := []byte{
		0x1A, 0x00, // long_header_len (LE16) split across header_len/csum
		'-', 'l', 'h', '5', '-', // compression
		0x0A, 0x00, 0x00, 0x00, // compressed_size = 10
		0x14, 0x00, 0x00, 0x00, // original_size = 20
		0x00, 0x00, 0x00, 0x00, // last_modified
		0x20,       // msdos_attrs
		0x02,       // level
		0x34, 0x12, // file_crc = 0x1234
		0x55,       // os_type = 'U'
		0x00, 0x00, // first_header_len = 0
	}
	if len(b) != 26 {
		t.Fatalf("test fixture is %d bytes, want 26", len(b))
	}
	return b
}

func TestReadHeaderLevel2Minimal(t *testing.T) {
	raw := buildLevel2Header(t)
	h, err := ReadHeader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Level != 2 {
		t.Fatalf("Level = %d, want 2", h.Level)
	}
	if method, err := h.CompressionMethod(); err != nil || method != Lh5 {
		t.Fatalf("CompressionMethod = %v, %v; want Lh5", method, err)
	}
	if h.CompressedSize != 10 || h.OriginalSize != 20 {
		t.Fatalf("sizes = %d/%d, want 10/20", h.CompressedSize, h.OriginalSize)
	}
	if h.OSType != 'U' {
		t.Fatalf("OSType = %q, want 'U'", h.OSType)
	}
	if h.FileCRC != 0x1234 {
		t.Fatalf("FileCRC = %#04x, want 0x1234", h.FileCRC)
	}
	if h.FirstHeaderLen != 0 || len(h.ExtraHeaders) != 0 {
		t.Fatalf("FirstHeaderLen/ExtraHeaders = %d/%d, want 0/0", h.FirstHeaderLen, len(h.ExtraHeaders))
	}
}

func TestReadHeaderLevel2TruncatedLongLen(t *testing.T) {
	raw := buildLevel2Header(t)
	// Claim a longer header than is actually present; this must be caught
	// rather than silently accepted.
	raw[0] = 0x1B
	if _, err := ReadHeader(bytes.NewReader(raw)); err == nil {
		t.Fatalf("ReadHeader with overstated long_header_len succeeded, want error")
	}
}

// TestExtraHeaderIterRoundTrip builds two concatenated extra-header
// records by hand (filename then comment) with the trailing 2-byte
// "length of next record" fields level 0/1/2 use, and checks that
// IterExtra yields each record's body in order and stops at zero.
func TestExtraHeaderIterRoundTrip(t *testing.T) {
	record2 := []byte{extHeaderComment, 'h', 'i', 0x00, 0x00}
	record1 := []byte{extHeaderFilename, 'a', 'b', 'c', byte(len(record2)), 0x00}

	h := &Header{
		Level:          0,
		FirstHeaderLen: uint32(len(record1)),
		ExtraHeaders:   append(append([]byte{}, record1...), record2...),
	}

	it := h.IterExtra()

	rec, ok := it.Next()
	if !ok {
		t.Fatalf("first Next() = false, want true")
	}
	if !bytes.Equal(rec, []byte{extHeaderFilename, 'a', 'b', 'c'}) {
		t.Fatalf("first record = %v, want filename(abc)", rec)
	}

	rec, ok = it.Next()
	if !ok {
		t.Fatalf("second Next() = false, want true")
	}
	if !bytes.Equal(rec, []byte{extHeaderComment, 'h', 'i'}) {
		t.Fatalf("second record = %v, want comment(hi)", rec)
	}

	if _, ok := it.Next(); ok {
		t.Fatalf("third Next() = true, want false (exhausted)")
	}
}

func TestParsePathnameDropsDotSegments(t *testing.T) {
	got := ParsePathname([]byte("foo/./bar/../baz"))
	if want := "foo/bar/baz"; got != want {
		t.Fatalf("ParsePathname = %q, want %q", got, want)
	}
}

func TestParsePathnameEscapesControlBytes(t *testing.T) {
	got := ParsePathname([]byte{'a', 0x01, 'b'})
	if want := "a%01b"; got != want {
		t.Fatalf("ParsePathname = %q, want %q", got, want)
	}
}

func TestParsePathnameBackslashSeparator(t *testing.T) {
	got := ParsePathname([]byte(`foo\bar`))
	if want := "foo/bar"; got != want {
		t.Fatalf("ParsePathname = %q, want %q", got, want)
	}
}

func TestHeaderPathLevel0UsesFilename(t *testing.T) {
	h := &Header{Level: 0, Filename: []byte("readme.txt")}
	if got, want := h.Path(), "readme.txt"; got != want {
		t.Fatalf("Path() = %q, want %q", got, want)
	}
}

// TestHeaderPathLevel2JoinsDirAndFilename builds a path(0x02)-then-
// filename(0x01) extra header pair by hand: the path record's value ends
// with the 0xFF byte LHA uses between directory components, so Path must
// treat it as a separator when it stitches the two records together.
func TestHeaderPathLevel2JoinsDirAndFilename(t *testing.T) {
	pathRec := append([]byte{extHeaderPath}, append([]byte("sub"), 0xFF)...)
	nameRec := []byte{extHeaderFilename, 'f', 'i', 'l', 'e', '.', 't', 'x', 't'}

	record2 := append(append([]byte{}, nameRec...), 0x00, 0x00)
	record1 := append(append([]byte{}, pathRec...), byte(len(record2)), 0x00)

	h := &Header{
		Level:          2,
		FirstHeaderLen: uint32(len(record1)),
		ExtraHeaders:   append(append([]byte{}, record1...), record2...),
	}

	if got, want := h.Path(), "sub/file.txt"; got != want {
		t.Fatalf("Path() = %q, want %q", got, want)
	}
}
