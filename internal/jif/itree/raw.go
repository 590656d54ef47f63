package itree

import (
	"encoding/binary"
	"io"

	"github.com/bsdinis/jiftool/internal/jif/jiferr"
)

// RawIntervalSize is the on-disk size of a RawInterval: three u64 fields.
const RawIntervalSize = 3 * 8

// RawNodeSize is the on-disk size of a RawNode: IvalPerNode RawIntervals.
const RawNodeSize = IvalPerNode * RawIntervalSize

// RawInterval is the on-disk shape of an interval slot: a virtual range
// plus an offset into the data segment (Offset == MaxU64 means "no data",
// which disambiguates a Zero slot from an empty slot only in conjunction
// with Start/End both being MaxU64 too).
type RawInterval struct {
	Start, End, Offset uint64
}

// DefaultRawInterval is the on-disk empty-slot sentinel: all three fields
// MaxU64.
func DefaultRawInterval() RawInterval {
	return RawInterval{Start: MaxU64, End: MaxU64, Offset: MaxU64}
}

func (r RawInterval) IsEmpty() bool { return r.Start == MaxU64 || r.End == MaxU64 }
func (r RawInterval) IsZero() bool  { return !r.IsEmpty() && r.Offset == MaxU64 }
func (r RawInterval) IsData() bool  { return !r.IsEmpty() && r.Offset != MaxU64 }

func (r RawInterval) WriteTo(w io.Writer) (int64, error) {
	var buf [RawIntervalSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], r.Start)
	binary.LittleEndian.PutUint64(buf[8:16], r.End)
	binary.LittleEndian.PutUint64(buf[16:24], r.Offset)
	n, err := w.Write(buf[:])
	return int64(n), err
}

func ReadRawInterval(r io.Reader) (RawInterval, error) {
	var buf [RawIntervalSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return RawInterval{}, err
	}
	return RawInterval{
		Start:  binary.LittleEndian.Uint64(buf[0:8]),
		End:    binary.LittleEndian.Uint64(buf[8:16]),
		Offset: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// RawNode is the on-disk shape of a Node: IvalPerNode RawIntervals.
type RawNode struct {
	Ranges [IvalPerNode]RawInterval
}

func DefaultRawNode() RawNode {
	var n RawNode
	for i := range n.Ranges {
		n.Ranges[i] = DefaultRawInterval()
	}
	return n
}

func (n RawNode) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, iv := range n.Ranges {
		m, err := iv.WriteTo(w)
		total += m
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func ReadRawNode(r io.Reader) (RawNode, error) {
	var n RawNode
	for i := range n.Ranges {
		iv, err := ReadRawInterval(r)
		if err != nil {
			return RawNode{}, err
		}
		n.Ranges[i] = iv
	}
	return n, nil
}

// ToRaw lowers a materialized Node to its on-disk shape. dataOffsets maps
// each data-bearing interval's canonical identity (its Start address,
// unique within a single tree) to the byte offset assigned to it within
// the data segment.
func (n Node) ToRaw(dataOffsets map[uint64]uint64) RawNode {
	var raw RawNode
	for i, iv := range n.Ranges {
		if iv.IsNone() {
			raw.Ranges[i] = DefaultRawInterval()
			continue
		}
		r := RawInterval{Start: iv.Start, End: iv.End, Offset: MaxU64}
		if iv.IsData() {
			off, ok := dataOffsets[iv.Start]
			if !ok {
				panic("itree: materialized data interval missing a data offset")
			}
			r.Offset = off
		}
		raw.Ranges[i] = r
	}
	return raw
}

// FromRaw lifts an on-disk Node into its materialized form. For
// data-bearing slots, dataAt resolves the raw Offset field to bytes
// already read from the data segment.
func (n RawNode) FromRaw(flavor Flavor, dataAt func(offset, length uint64) []byte) (Node, error) {
	var out Node
	for i, r := range n.Ranges {
		switch {
		case r.IsEmpty():
			out.Ranges[i] = EmptyInterval()
		case r.IsZero():
			if flavor == Anonymous {
				return Node{}, jiferr.ErrZeroInAnon
			}
			out.Ranges[i] = Interval{Start: r.Start, End: r.End, Data: ZeroData()}
		default:
			b := dataAt(r.Offset, r.End-r.Start)
			out.Ranges[i] = Interval{Start: r.Start, End: r.End, Data: OwnedData(b)}
		}
	}
	return out, nil
}
