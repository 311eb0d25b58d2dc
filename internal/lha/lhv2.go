// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package lha

import "io"

const (
	numCommands    = 510
	numTempCodeLen = 20
)

// lhv2Config parameterizes the shared -lh4-/-lh5-/-lh6-/-lh7-/-lhx- decoder:
// historyBits controls the window size (1<<historyBits bytes) and the
// maximum code-length-table size for the offset tree; offsetBits is the
// width of the "number of offset codes" field at the head of each block.
type lhv2Config struct {
	historyBits uint
	offsetBits  uint
}

var (
	lh5Config = lhv2Config{historyBits: 14, offsetBits: 4}
	lh7Config = lhv2Config{historyBits: 17, offsetBits: 5}
	lhxConfig = lhv2Config{historyBits: 20, offsetBits: 5}
)

// lhv2Decoder implements the block-structured LHArc v2 family. Each block
// starts with a command count, then rebuilds three Huffman trees in
// sequence: a 19-symbol "temp" tree used only to decode the command
// tree's code-length table (with three reserved low values meaning "skip
// N zero-length entries" rather than a length), the 510-symbol command
// tree itself, and an offset tree whose symbols are themselves bit
// widths rather than values.
type lhv2Decoder struct {
	cfg  lhv2Config
	br   *bitReader
	ring *ringBuffer

	commandTree *staticTree
	offsetTree  *staticTree // doubles as the temp tree while building commandTree

	remainingCommands int

	copyOffset  int
	copyRemain  int
	copyPending bool
}

func newLhv2Decoder(rd io.Reader, cfg lhv2Config) *lhv2Decoder {
	ringSize := 1 << cfg.historyBits
	return &lhv2Decoder{
		cfg:  cfg,
		br:   newBitReader(rd),
		ring: newRingBuffer(ringSize),
	}
}

func (d *lhv2Decoder) readCodeLength() (byte, error) {
	v, err := d.br.readBits(3)
	if err != nil {
		return 0, err
	}
	length := byte(v)
	if length == 7 {
		for {
			bit, err := d.br.readBit()
			if err != nil {
				return 0, err
			}
			if bit == 0 {
				break
			}
			if length == 255 {
				return 0, decompressErr("code length overflow")
			}
			length++
		}
	}
	return length, nil
}

// readCodeSkip returns how many zero-length entries to skip, given the
// 0/1/2 marker symbol read from the temp tree.
func (d *lhv2Decoder) readCodeSkip(skipRange uint16) (int, error) {
	var bits uint
	var increment int
	switch skipRange {
	case 0:
		return 1, nil
	case 1:
		bits, increment = 4, 3
	default:
		bits, increment = 9, 20
	}
	v, err := d.br.readBits(bits)
	if err != nil {
		return 0, err
	}
	return int(v) + increment, nil
}

func (d *lhv2Decoder) readTempTree() error {
	numCodes, err := d.br.readBits(5)
	if err != nil {
		return err
	}
	if numCodes == 0 {
		code, err := d.br.readBits(5)
		if err != nil {
			return err
		}
		t := &staticTree{}
		t.setSingle(uint16(code))
		d.offsetTree = t
		return nil
	}
	if numCodes > numTempCodeLen {
		return decompressErr("temporary codelen table has invalid size")
	}

	codeLengths := make([]byte, numCodes)
	firstRun := int(numCodes)
	if firstRun > 3 {
		firstRun = 3
	}
	for i := 0; i < firstRun; i++ {
		l, err := d.readCodeLength()
		if err != nil {
			return err
		}
		codeLengths[i] = l
	}
	skip, err := d.br.readBits(2)
	if err != nil {
		return err
	}
	for i := 3 + int(skip); i < int(numCodes); i++ {
		l, err := d.readCodeLength()
		if err != nil {
			return err
		}
		codeLengths[i] = l
	}

	tree, err := buildStaticTree(codeLengths)
	if err != nil {
		return err
	}
	d.offsetTree = tree
	return nil
}

func (d *lhv2Decoder) readCommandTree() error {
	numCodes, err := d.br.readBits(9)
	if err != nil {
		return err
	}
	if numCodes == 0 {
		code, err := d.br.readBits(9)
		if err != nil {
			return err
		}
		t := &staticTree{}
		t.setSingle(uint16(code))
		d.commandTree = t
		return nil
	}
	if numCodes > numCommands {
		return decompressErr("commands codelen table has invalid size")
	}

	codeLengths := make([]byte, numCodes)
	index := 0
outer:
	for index < int(numCodes) {
		for n := 0; index+n < int(numCodes); n++ {
			entry, err := d.offsetTree.readEntry(d.br)
			if err != nil {
				return err
			}
			if entry <= 2 {
				skipCount, err := d.readCodeSkip(entry)
				if err != nil {
					return err
				}
				index += n + skipCount
				continue outer
			}
			codeLengths[index+n] = byte(entry - 2)
		}
		break
	}

	tree, err := buildStaticTree(codeLengths)
	if err != nil {
		return err
	}
	d.commandTree = tree
	return nil
}

func (d *lhv2Decoder) readOffsetTree() error {
	numCodes, err := d.br.readBits(d.cfg.offsetBits)
	if err != nil {
		return err
	}
	if numCodes == 0 {
		code, err := d.br.readBits(d.cfg.offsetBits)
		if err != nil {
			return err
		}
		t := &staticTree{}
		t.setSingle(uint16(code))
		d.offsetTree = t
		return nil
	}
	if numCodes > uint64(d.cfg.historyBits) {
		return decompressErr("offset codelen table has invalid size")
	}

	codeLengths := make([]byte, numCodes)
	for i := range codeLengths {
		l, err := d.readCodeLength()
		if err != nil {
			return err
		}
		codeLengths[i] = l
	}

	tree, err := buildStaticTree(codeLengths)
	if err != nil {
		return err
	}
	d.offsetTree = tree
	return nil
}

func (d *lhv2Decoder) beginNewBlock() error {
	n, err := d.br.readBits(16)
	if err != nil {
		return err
	}
	d.remainingCommands = int(n)
	if err := d.readTempTree(); err != nil {
		return err
	}
	if err := d.readCommandTree(); err != nil {
		return err
	}
	return d.readOffsetTree()
}

func (d *lhv2Decoder) readOffset() (int, error) {
	bits, err := d.offsetTree.readEntry(d.br)
	if err != nil {
		return 0, err
	}
	if bits <= 1 {
		return int(bits), nil
	}
	rest, err := d.br.readBits(uint(bits) - 1)
	if err != nil {
		return 0, err
	}
	return int(rest) | (1 << (bits - 1)), nil
}

func (d *lhv2Decoder) copyFromHistory(dst []byte, offset, count int) []byte {
	it := d.ring.iterFromOffset(offset)
	realCount := count
	if len(dst) < realCount {
		realCount = len(dst)
	}
	for i := 0; i < realCount; i++ {
		dst[i] = it.next()
	}
	remain := count - realCount
	if remain > 0 {
		d.copyPending = true
		d.copyOffset = offset
		d.copyRemain = remain
	} else {
		d.copyPending = false
	}
	return dst[realCount:]
}

func (d *lhv2Decoder) fillBuffer(buf []byte) error {
	target := buf
	if d.copyPending {
		target = d.copyFromHistory(target, d.copyOffset, d.copyRemain)
	}

	for len(target) > 0 {
		for d.remainingCommands == 0 {
			if err := d.beginNewBlock(); err != nil {
				return err
			}
		}
		d.remainingCommands--

		code, err := d.commandTree.readEntry(d.br)
		if err != nil {
			return err
		}
		if code <= 0xff {
			v := byte(code)
			target[0] = v
			d.ring.push(v)
			target = target[1:]
			continue
		}
		offset, err := d.readOffset()
		if err != nil {
			return err
		}
		count := int(code) - 0x100 + 3
		target = d.copyFromHistory(target, offset, count)
	}
	return nil
}
