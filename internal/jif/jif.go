// Package jif is the top-level façade over a parsed snapshot: a set of
// pheaders, the ordering section, the shared deduper, and (optionally) the
// prefetch windowing section. It is the main type external collaborators
// (the CLI, the TUI) talk to; some commands (build, trace, plot) and the
// TUI also use the pheader, itree and dedup packages directly.
package jif

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/bsdinis/jiftool/internal/jif/container"
	"github.com/bsdinis/jiftool/internal/jif/dedup"
	"github.com/bsdinis/jiftool/internal/jif/itree"
	"github.com/bsdinis/jiftool/internal/jif/jiferr"
	"github.com/bsdinis/jiftool/internal/jif/ord"
	"github.com/bsdinis/jiftool/internal/jif/page"
	"github.com/bsdinis/jiftool/internal/jif/pheader"
	"github.com/bsdinis/jiftool/internal/jif/prefetch"
)

const maxU32 = ^uint32(0)
const maxU64 = ^uint64(0)

// Jif is a fully materialized snapshot: every pheader's ITree resolved
// into memory, all private bytes reachable through Dedup.
type Jif struct {
	Pheaders []*pheader.Pheader
	Ord      []ord.Chunk
	Dedup    *dedup.Deduper
	Windows  *prefetch.PheaderWindows
}

// FromRaw lifts a parsed RawJif into its canonical, token-backed,
// materialized form.
func FromRaw(raw *container.RawJif) (*Jif, error) {
	// raw.Data is already keyed the way FromDataMap wants: one entry per
	// distinct data-segment offset, which is exactly one entry per distinct
	// token the writer assigned (two intervals sharing a token share an
	// offset). Building the Deduper this way means nodes can be lowered
	// straight to their canonical KindRef form instead of through a
	// transient KindOwned round-trip.
	dd, tokensAtOffset := dedup.FromDataMap(raw.Data)
	pheaders := make([]*pheader.Pheader, len(raw.Pheaders))

	for i, rp := range raw.Pheaders {
		flavor := itree.Anonymous
		var ref *pheader.RefRange
		if rp.HasRef() {
			flavor = itree.Reference
			ref = &pheader.RefRange{
				Path:  readString(raw.Strings, rp.PathnameOffset),
				Begin: rp.RefBegin,
				End:   rp.RefEnd,
			}
		}

		rawNodes := raw.Nodes[rp.ITreeIdx : rp.ITreeIdx+rp.ITreeNNodes]
		nodes := make([]itree.Node, len(rawNodes))
		for ni, rn := range rawNodes {
			n, err := rn.FromRaw(flavor, func(offset, length uint64) []byte {
				return raw.Data[offset]
			})
			if err != nil {
				return nil, jiferr.WrapPheader(i, jiferr.WrapNode(ni, err))
			}
			for si, slot := range n.Ranges {
				if slot.Data.Kind == itree.KindOwned {
					n.Ranges[si].Data = itree.RefData(tokensAtOffset[rn.Ranges[si].Offset])
				}
			}
			nodes[ni] = n
		}

		tree := &itree.Tree{Flavor: flavor, Nodes: nodes, VRange: [2]uint64{rp.VBegin, rp.VEnd}}
		if err := tree.Validate(); err != nil {
			return nil, jiferr.WrapPheader(i, err)
		}

		pheaders[i] = &pheader.Pheader{
			VBegin: rp.VBegin,
			VEnd:   rp.VEnd,
			Ref:    ref,
			Tree:   tree,
			Prot:   pheader.Prot(rp.Prot),
		}
	}

	return &Jif{Pheaders: pheaders, Ord: raw.Ord, Dedup: dd, Windows: raw.Windows}, nil
}

func readString(strings []byte, off uint32) string {
	if off == maxU32 || int(off) >= len(strings) {
		return ""
	}
	end := int(off)
	for end < len(strings) && strings[end] != 0 {
		end++
	}
	return string(strings[off:end])
}

// ToRaw lowers j into its on-disk shape. It assigns data-segment offsets
// to every token in the order each is first encountered while walking
// pheaders and their intervals, matching the write-ordering discipline:
// the writer appends data in the order tokens were first assigned offsets
// during itree-node materialization.
func (j *Jif) ToRaw() (*container.RawJif, error) {
	var rawPheaders []pheader.RawPheader
	var allNodes []itree.RawNode

	var strings []byte
	stringOffsets := map[string]uint32{}
	internString := func(s string) uint32 {
		if s == "" {
			return maxU32
		}
		if off, ok := stringOffsets[s]; ok {
			return off
		}
		off := uint32(len(strings))
		strings = append(strings, []byte(s)...)
		strings = append(strings, 0)
		stringOffsets[s] = off
		return off
	}

	dataOffsets := map[dedup.Token]uint64{}
	tokensAtOffset := map[uint64]dedup.Token{}
	var nextOffset uint64
	nodeIdx := uint32(0)

	for _, p := range j.Pheaders {
		offsetsByStart := map[uint64]uint64{}
		for _, iv := range p.Tree.InOrderIntervals() {
			if !iv.IsData() {
				continue
			}
			var tok dedup.Token
			switch iv.Data.Kind {
			case itree.KindRef:
				tok = iv.Data.Token
			case itree.KindOwned:
				tok = j.Dedup.Insert(iv.Data.Bytes)
			}
			off, ok := dataOffsets[tok]
			if !ok {
				off = nextOffset
				dataOffsets[tok] = off
				tokensAtOffset[off] = tok
				nextOffset += iv.Len()
			}
			offsetsByStart[iv.Start] = off
		}

		for _, n := range p.Tree.Nodes {
			allNodes = append(allNodes, n.ToRaw(offsetsByStart))
		}

		refBegin, refEnd, pathOff := maxU64, maxU64, uint32(maxU32)
		if p.Ref != nil {
			refBegin, refEnd = p.Ref.Begin, p.Ref.End
			pathOff = internString(p.Ref.Path)
		}

		dataBegin, dataEnd := maxU64, maxU64
		for start := range offsetsByStart {
			off := offsetsByStart[start]
			length := uint64(0)
			for _, iv := range p.Tree.InOrderIntervals() {
				if iv.Start == start {
					length = iv.Len()
					break
				}
			}
			if dataBegin == maxU64 || off < dataBegin {
				dataBegin = off
			}
			if dataEnd == maxU64 || off+length > dataEnd {
				dataEnd = off + length
			}
		}

		rawPheaders = append(rawPheaders, pheader.RawPheader{
			VBegin: p.VBegin, VEnd: p.VEnd,
			DataBegin: dataBegin, DataEnd: dataEnd,
			RefBegin: refBegin, RefEnd: refEnd,
			ITreeIdx: nodeIdx, ITreeNNodes: uint32(len(p.Tree.Nodes)),
			PathnameOffset: pathOff,
			Prot:           uint8(p.Prot),
		})
		nodeIdx += uint32(len(p.Tree.Nodes))
	}

	// Destructure dumps every token referenced by an interval back to its
	// stored bytes in one pass, keyed by the same data-segment offsets
	// assigned above, matching the canonical token-backed representation
	// FromRaw lifts into.
	data := j.Dedup.Destructure(tokensAtOffset)

	stringsSize := page.AlignUp(uint64(len(strings)))
	itreesSize := page.AlignUp(uint64(len(allNodes)) * itree.RawNodeSize)
	ordSize := page.AlignUp(uint64(len(j.Ord)) * ord.RawSize)

	var nPrefetch uint64
	if j.Windows != nil {
		nPrefetch = uint64(len(j.Windows.Windows))
	}

	hdr := container.Header{
		NPheaders:   uint32(len(rawPheaders)),
		StringsSize: uint32(stringsSize),
		ItreesSize:  uint32(itreesSize),
		OrdSize:     uint32(ordSize),
		Version:     container.Version,
		NPrefetch:   nPrefetch,
	}

	return &container.RawJif{
		Header:   hdr,
		Pheaders: rawPheaders,
		Strings:  strings,
		Nodes:    allNodes,
		Ord:      j.Ord,
		Windows:  j.Windows,
		Data:     data,
	}, nil
}

// MappingPheaderIdx returns the index of the pheader mapping addr.
func (j *Jif) MappingPheaderIdx(addr uint64) (int, bool) {
	for i, p := range j.Pheaders {
		if addr >= p.VBegin && addr < p.VEnd {
			return i, true
		}
	}
	return 0, false
}

// MappingPheader returns the pheader mapping addr.
func (j *Jif) MappingPheader(addr uint64) (*pheader.Pheader, bool) {
	idx, ok := j.MappingPheaderIdx(addr)
	if !ok {
		return nil, false
	}
	return j.Pheaders[idx], true
}

// Resolution is the result of resolving a single virtual address.
type Resolution struct {
	Source    itree.DataSource
	Bytes     []byte // populated for SourceZero and SourcePrivate
	RefPath   string // populated for SourceShared
	RefOffset uint64 // populated for SourceShared
}

// Resolve looks up addr's mapping pheader and returns how its bytes
// should be obtained.
func (j *Jif) Resolve(addr uint64) (*Resolution, error) {
	p, ok := j.MappingPheader(addr)
	if !ok {
		return nil, fmt.Errorf("jif: address %#x is not mapped by any pheader", addr)
	}
	iv, gap, found := p.Tree.Resolve(addr)
	if !found {
		if p.Tree.Flavor == itree.Anonymous {
			return &Resolution{Source: itree.SourceZero, Bytes: make([]byte, page.Size)}, nil
		}
		refOffset := p.Ref.Begin + page.AlignDown(addr-p.VBegin)
		_ = gap
		return &Resolution{Source: itree.SourceShared, RefPath: p.Ref.Path, RefOffset: refOffset}, nil
	}
	if iv.IsZero() {
		return &Resolution{Source: itree.SourceZero, Bytes: make([]byte, page.Size)}, nil
	}
	return &Resolution{Source: itree.SourcePrivate, Bytes: iv.Data.Resolve(j.Dedup)}, nil
}

// SharedRegion names a contiguous virtual range backed by a reference
// file.
type SharedRegion struct {
	Path       string
	VAddrStart uint64
	VAddrEnd   uint64
}

// IterSharedRegions returns one SharedRegion per reference-backed pheader.
func (j *Jif) IterSharedRegions() []SharedRegion {
	var out []SharedRegion
	for _, p := range j.Pheaders {
		if p.Ref == nil {
			continue
		}
		out = append(out, SharedRegion{Path: p.Ref.Path, VAddrStart: p.VBegin, VAddrEnd: p.VEnd})
	}
	return out
}

// ForEachPrivatePage calls visit once per page-sized chunk of private data
// across every pheader, in ascending virtual-address order.
func (j *Jif) ForEachPrivatePage(visit func(addr uint64, data []byte)) {
	for _, p := range j.Pheaders {
		for _, iv := range p.Tree.InOrderIntervals() {
			if !iv.IsData() {
				continue
			}
			b := iv.Data.Resolve(j.Dedup)
			for off := uint64(0); off < iv.Len(); off += page.Size {
				end := off + page.Size
				if end > iv.Len() {
					end = iv.Len()
				}
				visit(iv.Start+off, b[off:end])
			}
		}
	}
}

// RenameFile rewrites the reference-file path on every pheader currently
// pointing at oldPath.
func (j *Jif) RenameFile(oldPath, newPath string) {
	for _, p := range j.Pheaders {
		p.RenameFile(oldPath, newPath)
	}
}

// ComparePrivatePages compares the private pages of j and other that share
// a virtual address, using equal to decide equality (callers typically pass
// a SHA-256-based comparator for the `compare` command). It returns the
// addresses of pages present in both but judged different.
func (j *Jif) ComparePrivatePages(other *Jif, equal func(a, b []byte) bool) []uint64 {
	mine := map[uint64][]byte{}
	j.ForEachPrivatePage(func(addr uint64, data []byte) {
		mine[addr] = append([]byte(nil), data...)
	})

	var diffs []uint64
	other.ForEachPrivatePage(func(addr uint64, data []byte) {
		a, ok := mine[addr]
		if !ok {
			return
		}
		if !equal(a, data) {
			diffs = append(diffs, addr)
		}
	})
	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })
	return diffs
}

// bytesEqual is a byte-for-byte comparator with the signature
// ComparePrivatePages expects. Nothing in this package calls it.
func bytesEqual(a, b []byte) bool { return bytes.Equal(a, b) }

// Load reads and parses a .jif file from path.
func Load(path string) (*Jif, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	raw, err := container.ReadRaw(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	j, err := FromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("materializing %s: %w", path, err)
	}
	return j, nil
}

// Save lowers j and writes it to path.
func (j *Jif) Save(path string) error {
	raw, err := j.ToRaw()
	if err != nil {
		return fmt.Errorf("lowering jif: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if _, err := container.WriteRaw(f, raw); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
