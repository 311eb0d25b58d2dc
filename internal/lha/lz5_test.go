// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package lha

import (
	"bytes"
	"testing"
)

// TestLz5DecoderAllLiterals sends a bitmap byte of all-ones (every
// command is a literal) followed by 8 raw bytes.
func TestLz5DecoderAllLiterals(t *testing.T) {
	stream := append([]byte{0xFF}, []byte("ABCDEFGH")...)
	d := newLz5Decoder(bytes.NewReader(stream))
	got := make([]byte, 8)
	if err := d.fillBuffer(got); err != nil {
		t.Fatalf("fillBuffer: %v", err)
	}
	if string(got) != "ABCDEFGH" {
		t.Fatalf("fillBuffer = %q, want %q", got, "ABCDEFGH")
	}
}

// TestLz5DecoderLiteralThenBackref decodes one literal byte, then a
// 2-byte position/count command reaching into the decoder's preseeded
// history window (the 0..255 ascending run starting at ring position
// 3328, per newLz5Decoder's seeding). Position 3330 holds value 2, so a
// 3-byte copy from there yields {2, 3, 4}.
func TestLz5DecoderLiteralThenBackref(t *testing.T) {
	const pos = 3330
	const count = 3
	lo := byte(pos & 0xFF)
	hi := byte((pos>>4)&0xF0) | byte(count-3)

	// bitmap bit0 = 1 (literal 'Z'), bit1 = 0 (command); the rest of the
	// byte is never consumed because the requested output ends exactly
	// after the command.
	stream := []byte{0x01, 'Z', lo, hi}
	d := newLz5Decoder(bytes.NewReader(stream))
	got := make([]byte, 4)
	if err := d.fillBuffer(got); err != nil {
		t.Fatalf("fillBuffer: %v", err)
	}
	want := []byte{'Z', 2, 3, 4}
	if !bytes.Equal(got, want) {
		t.Fatalf("fillBuffer = %v, want %v", got, want)
	}
}
