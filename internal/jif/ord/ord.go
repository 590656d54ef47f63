// Package ord implements the ordering section: a sequence of page runs
// recording the order pages were accessed in, used to drive prefetch and
// to provide the split boundaries for ITree.Fracture.
package ord

import (
	"encoding/binary"
	"io"

	"github.com/bsdinis/jiftool/internal/jif/page"
)

// RawSize is the on-disk size of one OrdChunk record (two u64 fields,
// per spec: this supersedes the packed single-u64 layout of the original
// implementation).
const RawSize = 16

// maxPagesPerChunk mirrors the original implementation's clamp: n_pages is
// kept small enough to fit the low 12 bits of a packed vaddr|n_pages word,
// even though this on-disk layout no longer packs them into one word.
const maxPagesPerChunk = page.Size - 1

// Kind tags the data source an OrdChunk's pages ultimately resolved to.
// It is not written to disk, and nothing in jiftool assigns it: New, Read
// and Merge produce chunks with KindUnknown, and ITree.Fracture receives
// only boundary addresses, not chunks.
type Kind int

const (
	KindUnknown Kind = iota
	KindZero
	KindShared
	KindPrivate
)

// Chunk is one page run: n_pages consecutive pages starting at VAddr.
type Chunk struct {
	VAddr  uint64
	NPages uint64
	Kind   Kind
}

// New builds a Chunk, aligning vaddr down to a page boundary and clamping
// n_pages to maxPagesPerChunk.
func New(vaddr, n_pages uint64) Chunk {
	if n_pages > maxPagesPerChunk {
		n_pages = maxPagesPerChunk
	}
	return Chunk{VAddr: page.AlignDown(vaddr), NPages: n_pages}
}

// IsEmpty reports whether the chunk covers zero pages.
func (c Chunk) IsEmpty() bool { return c.NPages == 0 }

// End returns the address one past the last byte the chunk covers.
func (c Chunk) End() uint64 { return c.VAddr + c.NPages*page.Size }

// LastPageAddr returns the address of the chunk's last page.
func (c Chunk) LastPageAddr() uint64 {
	if c.NPages == 0 {
		return c.VAddr
	}
	return c.VAddr + (c.NPages-1)*page.Size
}

// MergePage attempts to extend c by one page at vaddr in either direction,
// returning the extended chunk and true if vaddr is adjacent to c's range,
// samePheader reports vaddr as mapped by the same pheader as c's existing
// range, and the chunk has not hit its page-count clamp; otherwise it
// returns c unchanged and false. samePheader guards both directions so a
// chunk can never grow across a pheader boundary, mirroring the original
// implementation's mapping_pheader_idx check in merge_page.
func (c Chunk) MergePage(vaddr uint64, samePheader func(a, b uint64) bool) (Chunk, bool) {
	vaddr = page.AlignDown(vaddr)
	if c.IsEmpty() {
		return New(vaddr, 1), true
	}
	if c.NPages >= maxPagesPerChunk {
		return c, false
	}
	switch {
	case vaddr == c.End() && samePheader(c.LastPageAddr(), vaddr):
		c.NPages++
		return c, true
	// vaddr+page.Size == c.VAddr is the backward-merge test; written this
	// way rather than vaddr == c.VAddr-page.Size to avoid underflow when
	// c.VAddr is 0.
	case vaddr+page.Size == c.VAddr && samePheader(vaddr, c.VAddr):
		c.VAddr = vaddr
		c.NPages++
		return c, true
	}
	return c, false
}

// Merge coalesces a sequence of individual page accesses into the minimal
// set of adjacent-run Chunks, in the order the pages were supplied. Pages
// are only coalesced into the same Chunk when samePheader reports both
// sides of the merge as mapped by the same pheader.
func Merge(pages []uint64, samePheader func(a, b uint64) bool) []Chunk {
	var out []Chunk
	for _, p := range pages {
		if len(out) > 0 {
			if merged, ok := out[len(out)-1].MergePage(p, samePheader); ok {
				out[len(out)-1] = merged
				continue
			}
		}
		out = append(out, New(p, 1))
	}
	return out
}

func (c Chunk) WriteTo(w io.Writer) (int64, error) {
	var buf [RawSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], c.VAddr)
	binary.LittleEndian.PutUint64(buf[8:16], c.NPages)
	n, err := w.Write(buf[:])
	return int64(n), err
}

func Read(r io.Reader) (Chunk, error) {
	var buf [RawSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Chunk{}, err
	}
	return Chunk{
		VAddr:  binary.LittleEndian.Uint64(buf[0:8]),
		NPages: binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

// Boundaries returns the distinct vaddrs at which the given chunks start
// or end, suitable as split points for ITree.Fracture.
func Boundaries(chunks []Chunk) []uint64 {
	seen := make(map[uint64]struct{}, len(chunks)*2)
	var out []uint64
	add := func(v uint64) {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, c := range chunks {
		if c.IsEmpty() {
			continue
		}
		add(c.VAddr)
		add(c.End())
	}
	return out
}
