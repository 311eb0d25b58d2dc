// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package lha

import "io"

// unsupportedDecoder backs directory markers, the rare -pm1-/-pm2- methods,
// and any unrecognized identifier. Every read attempt fails, even a
// zero-length one: a directory entry has no byte stream to be at the end of.
type unsupportedDecoder struct{}

func (unsupportedDecoder) fillBuffer([]byte) error {
	return decompressErr("unsupported compression method")
}

// Reader drives a single LHA/LZH byte stream: it owns the current file's
// Header and decoder, tracks the per-file CRC-16 and output length, and
// knows how to skip to the next file's header. Construct one with
// NewReader, then alternate Read and NextFile calls the way a caller would
// walk tar.Reader or zip.Reader: one Header at a time, forward-only.
type Reader struct {
	src       io.Reader
	header    *Header
	crc       CRC16
	out       uint64
	lim       *io.LimitedReader
	dec       decoder
	supported bool
}

// NewReader parses the first header from src and prepares its decoder.
// ErrNoMoreHeader is returned if src begins with the end-of-archive marker.
func NewReader(src io.Reader) (*Reader, error) {
	r := &Reader{src: src}
	if err := r.startFile(); err != nil {
		return nil, err
	}
	return r, nil
}

// Header returns the currently selected file's parsed header.
func (r *Reader) Header() *Header { return r.header }

// startFile reads the next header from the raw stream (not bounded by any
// previous file's compressed_size) and wires up a fresh decoder for it.
func (r *Reader) startFile() error {
	h, err := ReadHeader(r.src)
	if err != nil {
		return err
	}
	r.header = h
	r.crc.Reset()
	r.out = 0
	r.lim = &io.LimitedReader{R: r.src, N: int64(h.CompressedSize)}

	method, merr := h.CompressionMethod()
	if merr != nil || method.IsDirectory() {
		r.dec, r.supported = unsupportedDecoder{}, false
		return nil
	}
	d, ok := newDecoder(method, r.lim)
	if !ok {
		r.dec, r.supported = unsupportedDecoder{}, false
		return nil
	}
	r.dec, r.supported = d, true
	return nil
}

// Read fills buf with decompressed bytes from the current file, clamped to
// the bytes remaining before header.OriginalSize. A return of (0, nil)
// signals the end of the current file's content; call NextFile to advance.
// The clamped request is always handed to the decoder, so reading a
// directory entry or an unsupported method fails even at length zero.
func (r *Reader) Read(buf []byte) (int, error) {
	remain := r.header.OriginalSize - r.out
	n := len(buf)
	if uint64(n) > remain {
		n = int(remain)
	}
	target := buf[:n]
	if err := r.dec.fillBuffer(target); err != nil {
		return 0, err
	}
	r.out += uint64(n)
	r.crc.Digest(target)
	return n, nil
}

// NextFile discards any unread compressed bytes belonging to the current
// file, then parses the following header. It returns ErrNoMoreHeader when
// the archive's end marker is reached, in which case the Reader is left
// with an unsupported, zero-length decoder so IsDecoderSupported reports
// false and any further Read fails.
func (r *Reader) NextFile() error {
	if _, err := io.Copy(io.Discard, r.lim); err != nil {
		return err
	}

	h, err := ReadHeader(r.src)
	if err != nil {
		r.lim = &io.LimitedReader{R: r.src, N: 0}
		r.dec, r.supported = unsupportedDecoder{}, false
		return err
	}

	r.header = h
	r.crc.Reset()
	r.out = 0
	r.lim = &io.LimitedReader{R: r.src, N: int64(h.CompressedSize)}

	method, merr := h.CompressionMethod()
	if merr != nil || method.IsDirectory() {
		r.dec, r.supported = unsupportedDecoder{}, false
		return nil
	}
	d, ok := newDecoder(method, r.lim)
	if !ok {
		r.dec, r.supported = unsupportedDecoder{}, false
		return nil
	}
	r.dec, r.supported = d, true
	return nil
}

// CrcCheck reports whether the CRC-16 accumulated over every byte this
// Reader has produced for the current file matches header.FileCRC.
func (r *Reader) CrcCheck() (uint16, error) {
	if r.crc.Sum16() != r.header.FileCRC {
		return 0, &staticError{prefix: "lha: ", msg: "crc16 mismatch", sentinel: ErrChecksum}
	}
	return r.header.FileCRC, nil
}

// IsDecoderSupported reports whether the current file's compression
// method can actually be decoded: false for directory markers, the
// unsupported -pm1-/-pm2- methods, and any unrecognized identifier.
func (r *Reader) IsDecoderSupported() bool { return r.supported }
