// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package lha

import (
	"bytes"
	"testing"
)

// lhv2HandBuiltStream builds two blocks using the degenerate single-code
// tree mode (num_codes == 0 means "one fixed code for the whole block, no
// bits consumed reading it"), which sidesteps hand-computing a canonical
// multi-symbol Huffman code while still exercising beginNewBlock's full
// three-tree setup, the command/offset dispatch, and the ring copy.
//
// Block 1: remaining_commands = 2, command tree fixed to literal 'A'.
// Block 2: remaining_commands = 1, command tree fixed to the match code
// meaning count 3 (0x100), offset tree fixed to 0 (repeat the last byte
// written, which is 'A' after block 1).
func lhv2HandBuiltStream() []byte {
	var p bitPacker

	singleTempTree := func() {
		p.writeBits(0, 5) // temp tree num_codes = 0 (single mode)
		p.writeBits(0, 5) // dummy code: never consulted, the command
		// tree below is also single-mode so the temp tree's readEntry
		// is never called
	}

	block := func(remainingCommands, commandCode, offsetCode uint64) {
		p.writeBits(remainingCommands, 16)
		singleTempTree()
		p.writeBits(0, 9)           // command tree num_codes = 0 (single mode)
		p.writeBits(commandCode, 9) // fixed command code
		p.writeBits(0, 4)           // offset tree num_codes = 0 (single mode)
		p.writeBits(offsetCode, 4)  // fixed offset code
	}

	block(2, 'A', 0)
	block(1, 0x100, 0) // count = 0x100-0x100+3 = 3, offset = 0

	return p.bytesPadded()
}

func TestLhv2DecoderRoundTrip(t *testing.T) {
	d := newLhv2Decoder(bytes.NewReader(lhv2HandBuiltStream()), lh5Config)
	got := make([]byte, 5)
	if err := d.fillBuffer(got); err != nil {
		t.Fatalf("fillBuffer: %v", err)
	}
	// "A", "A", then an offset-0 match repeats the last written byte
	// ('A') three times.
	if string(got) != "AAAAA" {
		t.Fatalf("fillBuffer = %q, want %q", got, "AAAAA")
	}
}

// TestLhv2DecoderResumesPartialCopy checks that a match spanning two
// fillBuffer calls stitches back together via copyPending/copyOffset.
func TestLhv2DecoderResumesPartialCopy(t *testing.T) {
	d := newLhv2Decoder(bytes.NewReader(lhv2HandBuiltStream()), lh5Config)

	first := make([]byte, 3) // "A", "A", and the first match byte
	if err := d.fillBuffer(first); err != nil {
		t.Fatalf("fillBuffer #1: %v", err)
	}
	if !d.copyPending {
		t.Fatalf("copyPending = false after partial match, want true")
	}

	second := make([]byte, 2) // remaining two match bytes
	if err := d.fillBuffer(second); err != nil {
		t.Fatalf("fillBuffer #2: %v", err)
	}
	if d.copyPending {
		t.Fatalf("copyPending = true after completing match, want false")
	}

	got := append(first, second...)
	if string(got) != "AAAAA" {
		t.Fatalf("stitched output = %q, want %q", got, "AAAAA")
	}
}
