// Package pheader implements JIF's program-header-style segment
// description: a virtual range, optional backing reference file, owned
// interval tree, and protection bits.
package pheader

import (
	"encoding/binary"
	"io"

	"github.com/bsdinis/jiftool/internal/jif/dedup"
	"github.com/bsdinis/jiftool/internal/jif/diffbuild"
	"github.com/bsdinis/jiftool/internal/jif/itree"
	"github.com/bsdinis/jiftool/internal/jif/jiferr"
)

// Prot holds the R/W/X protection bits, matching the on-disk encoding.
type Prot uint8

const (
	ProtRead  Prot = 1 << 3
	ProtWrite Prot = 1 << 2
	ProtExec  Prot = 1 << 1
)

func (p Prot) Readable() bool   { return p&ProtRead != 0 }
func (p Prot) Writable() bool   { return p&ProtWrite != 0 }
func (p Prot) Executable() bool { return p&ProtExec != 0 }

// String renders protection bits in the conventional rwx form, e.g. "r-x".
func (p Prot) String() string {
	b := [3]byte{'-', '-', '-'}
	if p.Readable() {
		b[0] = 'r'
	}
	if p.Writable() {
		b[1] = 'w'
	}
	if p.Executable() {
		b[2] = 'x'
	}
	return string(b[:])
}

// RefRange names a byte range within an external reference file that backs
// this pheader's gaps.
type RefRange struct {
	Path  string
	Begin uint64
	End   uint64
}

// Pheader is one mapped virtual-address segment of a snapshotted process.
type Pheader struct {
	VBegin, VEnd uint64
	Ref          *RefRange
	Tree         *itree.Tree
	Prot         Prot

	// DataSegment holds the segment's raw overlay bytes, present only
	// before BuildITree has consumed them into Tree.
	DataSegment []byte
}

// Flavor returns the ITree flavor this pheader should use: Reference when
// backed by a file, Anonymous otherwise.
func (p *Pheader) Flavor() itree.Flavor {
	if p.Ref != nil {
		return itree.Reference
	}
	return itree.Anonymous
}

// BuildITree constructs p.Tree from p.DataSegment, diffing against the
// reference file's corresponding byte range (read via readRef) when p.Ref
// is set, or scanning for zero-page runs otherwise. It clears DataSegment
// once the tree is built.
func (p *Pheader) BuildITree(readRef func(ref RefRange) ([]byte, error)) error {
	var tree *itree.Tree
	var err error

	if p.Ref != nil {
		base, rerr := readRef(*p.Ref)
		if rerr != nil {
			return rerr
		}
		tree, err = diffbuild.FromDiff(base, p.DataSegment, p.VBegin)
	} else {
		tree, err = diffbuild.FromZeroPageAnon(p.DataSegment, p.VBegin)
	}
	if err != nil {
		return err
	}
	p.Tree = tree
	p.DataSegment = nil
	return nil
}

// RenameFile rewrites p's reference path if it currently points at oldPath.
func (p *Pheader) RenameFile(oldPath, newPath string) {
	if p.Ref != nil && p.Ref.Path == oldPath {
		p.Ref.Path = newPath
	}
}

// RawPheaderSize is the on-disk size of a RawPheader: 6 u64 fields, 3 u32
// fields, 1 u8 field.
const RawPheaderSize = 6*8 + 3*4 + 1

// RawPheader is the on-disk shape of a Pheader.
type RawPheader struct {
	VBegin, VEnd       uint64
	DataBegin, DataEnd uint64
	RefBegin, RefEnd   uint64
	ITreeIdx           uint32
	ITreeNNodes        uint32
	PathnameOffset     uint32
	Prot               uint8
}

const maxU64 = ^uint64(0)
const maxU32 = ^uint32(0)

func (r RawPheader) WriteTo(w io.Writer) (int64, error) {
	var buf [RawPheaderSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], r.VBegin)
	binary.LittleEndian.PutUint64(buf[8:16], r.VEnd)
	binary.LittleEndian.PutUint64(buf[16:24], r.DataBegin)
	binary.LittleEndian.PutUint64(buf[24:32], r.DataEnd)
	binary.LittleEndian.PutUint64(buf[32:40], r.RefBegin)
	binary.LittleEndian.PutUint64(buf[40:48], r.RefEnd)
	binary.LittleEndian.PutUint32(buf[48:52], r.ITreeIdx)
	binary.LittleEndian.PutUint32(buf[52:56], r.ITreeNNodes)
	binary.LittleEndian.PutUint32(buf[56:60], r.PathnameOffset)
	buf[60] = r.Prot
	n, err := w.Write(buf[:])
	return int64(n), err
}

func ReadRawPheader(r io.Reader) (RawPheader, error) {
	var buf [RawPheaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return RawPheader{}, err
	}
	return RawPheader{
		VBegin:         binary.LittleEndian.Uint64(buf[0:8]),
		VEnd:           binary.LittleEndian.Uint64(buf[8:16]),
		DataBegin:      binary.LittleEndian.Uint64(buf[16:24]),
		DataEnd:        binary.LittleEndian.Uint64(buf[24:32]),
		RefBegin:       binary.LittleEndian.Uint64(buf[32:40]),
		RefEnd:         binary.LittleEndian.Uint64(buf[40:48]),
		ITreeIdx:       binary.LittleEndian.Uint32(buf[48:52]),
		ITreeNNodes:    binary.LittleEndian.Uint32(buf[52:56]),
		PathnameOffset: binary.LittleEndian.Uint32(buf[56:60]),
		Prot:           buf[60],
	}, nil
}

// HasRef reports whether r names a backing reference-file range.
func (r RawPheader) HasRef() bool { return r.RefBegin != maxU64 && r.RefEnd != maxU64 }

// Validate checks r's own invariants against the total node and string
// table sizes available in the containing Jif.
func (r RawPheader) Validate(totalNodes uint32, stringTableSize uint32) error {
	if r.VBegin > r.VEnd {
		return jiferr.ErrOutOfRange
	}
	if r.PathnameOffset != maxU32 && r.PathnameOffset >= stringTableSize {
		return jiferr.ErrBadPathnameOff
	}
	if uint64(r.ITreeIdx)+uint64(r.ITreeNNodes) > uint64(totalNodes) {
		return jiferr.ErrBadITreeIndex
	}
	return nil
}

// DedupeOnto inserts every Owned interval in tree into dd, promoting
// them to canonical KindRef form in place.
func DedupeOnto(tree *itree.Tree, dd *dedup.Deduper) {
	for ni := range tree.Nodes {
		for ii := range tree.Nodes[ni].Ranges {
			iv := &tree.Nodes[ni].Ranges[ii]
			if iv.Data.Kind == itree.KindOwned {
				tok := dd.Insert(iv.Data.Bytes)
				iv.Data = itree.RefData(tok)
			}
		}
	}
}
