// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package archivecache

import (
	"fmt"
	"hash/maphash"
	"io"
	"io/fs"
	"math/bits"
	"sync"

	"github.com/dgryski/go-tinylfu"
)

// ReadAt reads len(p) bytes into p starting at offset off of the archive
// member o identifies, maintaining a cache of decompressed 4 KiB blocks
// and a cache of already-open lha.Reader decoders so that repeated or
// out-of-order reads don't each restart decompression from the member's
// first byte. Random access to a decoder that can only run forward is
// recovered by closing, reopening (via o.Open) and rereading the member
// when a read seeks backward past what's cached.
func ReadAt(o Opener, p []byte, off int64) (int, error) {
	return cacheReadAt(o, p, off)
}

// member is the block cache's view of anything it can reopen from byte
// zero and read forward: archivecache.Opener satisfies it against a real
// LHA archive, and blockcache_test.go satisfies it against a synthetic
// in-memory file to exercise block-boundary bookkeeping independently of
// the LHA format.
type member interface {
	Open() (fs.File, error)
	fmt.Stringer
}

func cacheReadAt(id member, p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, fs.ErrInvalid
	}
	c := make(chan readAtDone)
	readAtCalls <- readAtCall{id: id, p: p, off: off, done: c}
	d := <-c
	return d.n, d.err
}

const (
	blockSize   = 4096 // bytes of decompressed data per cached block
	blockMask   = -blockSize
	blockCacheN = 1024 * 1024 * 1024 / blockSize

	readerCacheN = 64 // open decoders (some compression methods carry sizeable ring buffers)

	becausePopular = 1
	becauseBusy    = 2
)

var (
	readAtCalls = make(chan readAtCall, 16)
	blockPool   = sync.Pool{New: func() any { return new(block) }}
	seed        = maphash.MakeSeed()
)

type (
	block [blockSize]byte

	readAtCall struct {
		id   member
		p    []byte
		off  int64
		done chan<- readAtDone
	}
	readAtDone struct {
		n   int
		err error
	}

	blockRequest struct {
		off int64
	}
	blockReturn struct {
		id  member
		p   *block
		off int64
		n   int
		err error
	}

	readAtState struct {
		readAtCall        // the struct we got from ReadAt
		progress   bitmap // the blocks that are still outstanding for this call
	}
	wkrState struct {
		ch      chan<- blockRequest
		seek    int64
		err     error
		errAt   int64
		whyKeep int
		readAts []readAtState
	}

	blkCacheKey struct {
		id     member
		offset int64
	}
)

func init() { go multiplexer() }

// multiplexer is the single goroutine that owns every worker's state; it
// serializes both new ReadAt requests and blocks returned from the
// per-member worker goroutines onto one select loop, avoiding any lock
// around the block and worker-popularity caches.
func multiplexer() {
	var (
		wkrs         = make(map[member]*wkrState)
		evictWkr     member
		haveEvictWkr bool
		blockReturns = make(chan blockReturn)
		blkCache     = tinylfu.New[blkCacheKey, *block](
			blockCacheN, blockCacheN*10, blkHash,
			tinylfu.OnEvict(blkEvict))
		wkrPopularity = tinylfu.New[member, struct{}](
			readerCacheN, readerCacheN*10, openerHash,
			tinylfu.OnEvict(func(k member, _ struct{}) { evictWkr, haveEvictWkr = k, true }))
	)
	for {
		var (
			wkr *wkrState
			id  member
		)
		select {
		case job := <-readAtCalls:
			id, wkr = job.id, wkrs[job.id]
			if wkr == nil {
				wkr = new(wkrState)
				wkrs[job.id] = wkr
				ch := make(chan blockRequest, 1)
				wkr.ch = ch
				go work(id, ch, blockReturns)
				if knownSize, serr := sizeOf(id); serr == nil {
					wkr.err, wkr.errAt = io.EOF, knownSize
				}
			}

			wkrPopularity.Add(id, struct{}{}) // might set evictWkr
			wkr.whyKeep |= becausePopular
			if haveEvictWkr {
				exwkr := wkrs[evictWkr]
				exwkr.whyKeep &^= becausePopular
				if exwkr.whyKeep == 0 {
					close(exwkr.ch)
					delete(wkrs, evictWkr)
				}
			}
			haveEvictWkr = false

			r := readAtState{
				readAtCall: job,
				progress:   newBitmap(nBlocksTouched(job.off, job.p)),
			}
			for off := job.off & blockMask; off >= 0 && off < bufEnd(job.off, job.p); off += blockSize {
				if blk, ok := blkCache.Get(blkCacheKey{job.id, off}); ok {
					r.putBlock(off, blk)
				}
			}
			wkr.readAts = append(wkr.readAts, r)
		case done := <-blockReturns:
			id, wkr = done.id, wkrs[done.id]
			wkr.whyKeep &^= becauseBusy
			if done.off != wkr.seek {
				panic(fmt.Sprintf("did not get the block we requested: %d not %d", done.off, wkr.seek))
			}
			if done.p != nil {
				blkCache.Add(blkCacheKey{done.id, wkr.seek}, done.p)
				for i := range wkr.readAts {
					wkr.readAts[i].putBlock(wkr.seek, done.p)
				}
			}
			wkr.seek += int64(done.n)
			if done.err != nil {
				wkr.err, wkr.errAt = done.err, wkr.seek
			}
		}

		// Return those reads that are fully satisfied (either all blocks
		// retrieved, or an error found).
		keepReads := wkr.readAts[:0]
		for _, r := range wkr.readAts {
			furthestPossible := bufEnd(r.off, r.p) // achievable in future iterations
			if wkr.err != nil {
				furthestPossible = min(furthestPossible, wkr.errAt)
			}

			furthestFound := furthestPossible // achieved and placed in the buffer so far
			if nextBit := r.progress.firstClear(0); nextBit >= 0 {
				furthestFound = min(furthestFound, offsetOfBlockIndex(r.off, nextBit))
			}

			if furthestFound == furthestPossible {
				if furthestFound == bufEnd(r.off, r.p) {
					r.done <- readAtDone{err: nil, n: len(r.p)}
				} else {
					n := furthestFound - r.off
					n = max(n, 0) // sanity clipping
					n = min(n, int64(len(r.p)))
					r.done <- readAtDone{err: wkr.err, n: int(n)}
				}
			} else { // leave for next time
				keepReads = append(keepReads, r)
			}
		}
		wkr.readAts = keepReads

		// Now, finally, determine the direction we must go in.
		if wkr.whyKeep&becauseBusy != 0 {
			// just wait
		} else if len(wkr.readAts) == 0 {
			if wkr.whyKeep == 0 {
				close(wkr.ch)
				delete(wkrs, id)
			}
		} else {
			wantReset := true
			for _, r := range wkr.readAts {
				nextVacant := r.progress.firstClear(0)
				if nextVacant >= 0 && offsetOfBlockIndex(r.off, nextVacant) >= wkr.seek {
					wantReset = false
					break
				}
			}
			if wantReset {
				wkr.seek = 0
			}
			wkr.ch <- blockRequest{wkr.seek}
			wkr.whyKeep |= becauseBusy
		}
	}
}

func (r *readAtState) putBlock(off int64, p *block) {
	if off < r.off&blockMask || off >= bufEnd(r.off, r.p) {
		return // not applicable
	}
	bitmapIdx := int(off/blockSize - r.off/blockSize)
	r.progress.set(bitmapIdx)
	if off > r.off {
		copy(r.p[off-r.off:], p[:])
	} else {
		copy(r.p, p[r.off-off:])
	}
}

// work manages one archive member's lifecycle (open, read, read, ...,
// close), driven by blockRequests on ctrl. It returns once ctrl is
// closed, signalling no further interest in this member.
func work(id member, ctrl <-chan blockRequest, result chan<- blockReturn) {
	var (
		f   fs.File
		off int64
		err error
	)
	defer func() {
		if f != nil {
			f.Close()
		}
	}()
	for req := range ctrl {
		if req.off != 0 && req.off != off || (req.off == off && err != nil) {
			panic(fmt.Sprintf("invalid blockRequest for %d: %s", req.off, id))
		}

		if req.off < off {
			f.Close()
			f, off = nil, 0
		}

		if f == nil {
			f, err = id.Open()
			if err != nil {
				err = errWithPath(err, id.String())
				result <- blockReturn{id: id, off: 0, p: nil, n: 0, err: err}
				continue
			}
		}

		blk := blockPoolGet()
		n := 0
		for n < len(blk) && err == nil {
			var nn int
			nn, err = f.Read(blk[n:])
			n += nn
		}
		if n == 0 {
			blockPoolPut(blk)
			blk = nil
		}
		result <- blockReturn{id: id, off: off, p: blk, n: n, err: err}
		off += int64(n)
	}
}

func errWithPath(err error, path string) error {
	if pe, ok := err.(*fs.PathError); ok {
		pe.Path = path
		return pe
	}
	return fmt.Errorf("%w: %s", err, path)
}

func blkHash(k blkCacheKey) uint64     { return maphash.Comparable(seed, k) }
func blkEvict(_ blkCacheKey, b *block) { blockPoolPut(b) }

func openerHash(o member) uint64 { return maphash.Comparable(seed, o) }

func blockPoolGet() *block  { return blockPool.Get().(*block) }
func blockPoolPut(b *block) { blockPool.Put(b) }

func bufEnd(off int64, p []byte) int64 { return off + int64(len(p)) }

func nBlocksTouched(off int64, p []byte) int {
	return ((int(off) % blockSize) + len(p) + blockSize - 1) / blockSize
}

func offsetOfBlockIndex(bufoff int64, blockIdx int) int64 {
	if blockIdx == 0 {
		return bufoff
	}
	return bufoff&blockMask + int64(blockIdx)*blockSize
}

// sizeOf opens the member just to learn its length up front, letting the
// multiplexer pre-seed an EOF position before any block is actually
// requested. memberFile.Stat (backed by memberInfo) reports the original,
// uncompressed size straight from the header, so this never has to
// decompress anything.
func sizeOf(o member) (int64, error) {
	f, err := o.Open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	type sizer interface{ Size() int64 }
	if sizer, ok := f.(sizer); ok {
		return sizer.Size(), nil
	}
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

// bitmap tracks, for one in-flight ReadAt, which of its covered 4 KiB
// blocks have already been filled in.
type bitmap struct {
	size   int
	data   []uint
	inline [1]uint
}

func newBitmap(size int) bitmap {
	if size < 0 {
		panic("negative bit count")
	}
	b := bitmap{size: size}
	if size > bits.UintSize {
		b.data = make([]uint, (size+bits.UintSize-1)/bits.UintSize)
	}
	return b
}

func (m *bitmap) set(idx int) {
	data := m.data
	if data == nil {
		data = m.inline[:]
	}
	data[idx/bits.UintSize] |= uint(1) << (idx % bits.UintSize)
}

func (m *bitmap) firstClear(fromIdx int) int {
	data := m.data
	if data == nil {
		data = m.inline[:]
	}
	for idx := fromIdx; idx < m.size; idx++ {
		mask := uint(1) << (idx % bits.UintSize)
		if data[idx/bits.UintSize]&mask == 0 {
			return idx
		}
	}
	return -1
}
