// Package itree implements JIF's interval tree: a shallow, wide B-tree of
// virtual-address intervals used to resolve a faulting address to either a
// zero page, a byte range in the reference file, or private data stored in
// a Deduper.
//
// Two flavors share the same node/tree shape (Flavor field): an Anonymous
// tree, whose gaps resolve to the zero page and which forbids explicit Zero
// slots, and a Reference tree, whose gaps resolve to the backing reference
// file and which allows explicit Zero slots for pages that were zeroed out
// after the reference file was captured.
package itree

import (
	"sort"

	"github.com/bsdinis/jiftool/internal/jif/dedup"
	"github.com/bsdinis/jiftool/internal/jif/jiferr"
)

// FANOUT is the branching factor of an ITree node.
const FANOUT = 4

// IvalPerNode is the number of interval slots held directly by a node
// (FANOUT - 1, so the in-order walk alternates slot/child/slot/child...).
const IvalPerNode = FANOUT - 1

// MaxU64 is the sentinel value used for empty interval slots.
const MaxU64 = ^uint64(0)

// DataSource describes where the bytes for an address ultimately come from
// once an interval has been resolved.
type DataSource int

const (
	SourceZero DataSource = iota
	SourceShared
	SourcePrivate
)

func (s DataSource) String() string {
	switch s {
	case SourceZero:
		return "zero"
	case SourceShared:
		return "shared"
	case SourcePrivate:
		return "private"
	default:
		return "unknown"
	}
}

// Kind tags what an interval's Data slot currently holds.
type Kind uint8

const (
	// KindNone marks an unused interval slot.
	KindNone Kind = iota
	// KindOwned holds un-deduped bytes, produced transiently by the diff
	// builders before a tree is lowered into its canonical token-backed
	// form.
	KindOwned
	// KindRef holds a dedup.Token, the canonical on-disk/in-memory form.
	KindRef
	// KindZero is an explicit zero-page marking, valid only in a
	// Reference-flavor tree.
	KindZero
)

// Data is the payload carried by an Interval. The zero value is KindNone,
// so a zero-value Interval is a valid empty slot once Start/End are also
// set to MaxU64 (see EmptyInterval).
type Data struct {
	Kind  Kind
	Bytes []byte
	Token dedup.Token
}

func (d Data) IsNone() bool { return d.Kind == KindNone }
func (d Data) IsZero() bool { return d.Kind == KindZero }
func (d Data) IsData() bool { return d.Kind == KindOwned || d.Kind == KindRef }

// Resolve returns the bytes for d, consulting dd for KindRef data. It
// returns nil for KindNone/KindZero (callers distinguish those cases via
// IsZero/IsNone before calling Resolve).
func (d Data) Resolve(dd *dedup.Deduper) []byte {
	switch d.Kind {
	case KindOwned:
		return d.Bytes
	case KindRef:
		b, _ := dd.Get(d.Token)
		return b
	default:
		return nil
	}
}

// OwnedData builds a KindOwned Data from un-deduped bytes.
func OwnedData(b []byte) Data { return Data{Kind: KindOwned, Bytes: b} }

// RefData builds a KindRef Data from a dedup token.
func RefData(tok dedup.Token) Data { return Data{Kind: KindRef, Token: tok} }

// ZeroData builds a KindZero Data (reference-flavor only).
func ZeroData() Data { return Data{Kind: KindZero} }

// Interval is a [Start, End) virtual-address range and its payload.
type Interval struct {
	Start, End uint64
	Data       Data
}

// EmptyInterval returns the canonical empty slot: start/end sentinel set to
// MaxU64, data KindNone.
func EmptyInterval() Interval {
	return Interval{Start: MaxU64, End: MaxU64, Data: Data{Kind: KindNone}}
}

// IsNone reports whether iv is an empty slot.
func (iv Interval) IsNone() bool {
	return iv.Start == MaxU64 || iv.End == MaxU64 || iv.Data.IsNone()
}

func (iv Interval) IsZero() bool { return iv.Data.IsZero() }
func (iv Interval) IsData() bool { return iv.Data.IsData() }

// Len returns the byte length of the interval, 0 if it is an empty slot.
func (iv Interval) Len() uint64 {
	if iv.IsNone() {
		return 0
	}
	return iv.End - iv.Start
}

// cmp places addr relative to iv: -1 if addr < iv.Start, 0 if addr falls
// inside [iv.Start, iv.End), 1 if addr >= iv.End.
func (iv Interval) cmp(addr uint64) int {
	if addr < iv.Start {
		return -1
	}
	if addr < iv.End {
		return 0
	}
	return 1
}

// Intersect returns the overlap of iv with [start, end), and whether one
// exists.
func (iv Interval) Intersect(start, end uint64) (Interval, bool) {
	if iv.IsNone() || end <= iv.Start || start >= iv.End {
		return Interval{}, false
	}
	lo := iv.Start
	if start > lo {
		lo = start
	}
	hi := iv.End
	if end < hi {
		hi = end
	}
	if lo >= hi {
		return Interval{}, false
	}
	out := iv
	out.Start = lo
	out.End = hi
	if iv.Data.Kind == KindOwned {
		offset := lo - iv.Start
		length := hi - lo
		out.Data.Bytes = iv.Data.Bytes[offset : offset+length]
	}
	return out, true
}

// Node holds IvalPerNode interval slots. A newly constructed Node has all
// slots empty.
type Node struct {
	Ranges [IvalPerNode]Interval
}

// NewNode returns a Node with every slot set to EmptyInterval.
func NewNode() Node {
	var n Node
	for i := range n.Ranges {
		n.Ranges[i] = EmptyInterval()
	}
	return n
}

// Flavor distinguishes an Anonymous tree (gaps -> zero page) from a
// Reference tree (gaps -> backing file, explicit Zero slots allowed).
type Flavor int

const (
	Anonymous Flavor = iota
	Reference
)

// Tree is a materialized interval tree over [VRange[0], VRange[1]).
type Tree struct {
	Flavor Flavor
	Nodes  []Node
	VRange [2]uint64
}

// NNodesForIntervals returns how many nodes are needed to hold n intervals.
func NNodesForIntervals(n int) int {
	if n == 0 {
		return 0
	}
	return (n + IvalPerNode - 1) / IvalPerNode
}

// inOrder appends every non-empty interval under node nodeIdx, in ascending
// address order, to out.
func inOrder(nodes []Node, nodeIdx int, out *[]Interval) {
	if nodeIdx < 0 || nodeIdx >= len(nodes) {
		return
	}
	for i := 0; i < IvalPerNode; i++ {
		inOrder(nodes, nodeIdx*FANOUT+1+i, out)
		if !nodes[nodeIdx].Ranges[i].IsNone() {
			*out = append(*out, nodes[nodeIdx].Ranges[i])
		}
	}
	inOrder(nodes, nodeIdx*FANOUT+FANOUT, out)
}

// InOrderIntervals returns every non-empty interval in ascending address
// order.
func (t *Tree) InOrderIntervals() []Interval {
	var out []Interval
	inOrder(t.Nodes, 0, &out)
	return out
}

// NIntervals returns the number of non-empty intervals.
func (t *Tree) NIntervals() int {
	return len(t.InOrderIntervals())
}

// NDataIntervals returns the number of intervals actually carrying data
// (owned bytes or a dedup token), excluding explicit zero slots.
func (t *Tree) NDataIntervals() int {
	n := 0
	for _, iv := range t.InOrderIntervals() {
		if iv.IsData() {
			n++
		}
	}
	return n
}

// ZeroByteSize returns the number of bytes covered by gaps (Anonymous
// flavor) or explicit Zero intervals (Reference flavor).
func (t *Tree) ZeroByteSize() uint64 {
	var total uint64
	prev := t.VRange[0]
	for _, iv := range t.InOrderIntervals() {
		if iv.Start > prev && t.Flavor == Anonymous {
			total += iv.Start - prev
		}
		if iv.IsZero() {
			total += iv.Len()
		}
		prev = iv.End
	}
	if t.Flavor == Anonymous && t.VRange[1] > prev {
		total += t.VRange[1] - prev
	}
	return total
}

// PrivateDataSize returns the number of bytes held as private (owned or
// deduped) data.
func (t *Tree) PrivateDataSize() uint64 {
	var total uint64
	for _, iv := range t.InOrderIntervals() {
		if iv.IsData() {
			total += iv.Len()
		}
	}
	return total
}

// ExplicitlyMappedSubregionSize returns the number of bytes covered by
// explicit slots of any kind (data or zero).
func (t *Tree) ExplicitlyMappedSubregionSize() uint64 {
	var total uint64
	for _, iv := range t.InOrderIntervals() {
		total += iv.Len()
	}
	return total
}

// ImplicitlyMappedSubregionSize returns the number of bytes covered by
// gaps (resolved implicitly to zero or the reference file).
func (t *Tree) ImplicitlyMappedSubregionSize() uint64 {
	total := t.VRange[1] - t.VRange[0]
	return total - t.ExplicitlyMappedSubregionSize()
}

// Resolve walks the tree looking for addr, returning the interval holding
// it, or the gap range containing addr when no interval does.
func (t *Tree) Resolve(addr uint64) (iv Interval, gap [2]uint64, found bool) {
	return resolveAux(t.Nodes, addr, 0, t.VRange)
}

func resolveAux(nodes []Node, addr uint64, nodeIdx int, rng [2]uint64) (Interval, [2]uint64, bool) {
	if nodeIdx < 0 || nodeIdx >= len(nodes) {
		return Interval{}, rng, false
	}
	for i := 0; i < IvalPerNode; i++ {
		ival := nodes[nodeIdx].Ranges[i]
		switch ival.cmp(addr) {
		case -1:
			rng[1] = min64(rng[1], ival.Start)
			return resolveAux(nodes, addr, nodeIdx*FANOUT+1+i, rng)
		case 0:
			return ival, rng, true
		default:
			rng[0] = max64(rng[0], ival.End)
		}
	}
	return resolveAux(nodes, addr, nodeIdx*FANOUT+FANOUT, rng)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// Build validates and arranges a flat set of intervals into a balanced
// Tree covering vrange. It checks out-of-range intervals (and explicit
// Zero intervals in an Anonymous tree) first, then intersecting intervals.
// Range coverage, compactness and ordering are not checked here: gaps make
// up the uncovered remainder, and the sorted fill below always produces a
// compact, in-order layout.
func Build(flavor Flavor, intervals []Interval, vrange [2]uint64) (*Tree, error) {
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for _, iv := range sorted {
		if iv.Start < vrange[0] || iv.End > vrange[1] {
			return nil, jiferr.ErrOutOfRange
		}
		if flavor == Anonymous && iv.IsZero() {
			return nil, jiferr.ErrZeroInAnon
		}
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return nil, jiferr.ErrIntersecting
		}
	}

	n := len(sorted)
	nodes := make([]Node, NNodesForIntervals(n))
	for i := range nodes {
		nodes[i] = NewNode()
	}

	// Descending order so repeated pop-from-end below consumes ascending.
	descending := make([]Interval, n)
	copy(descending, sorted)
	sort.Slice(descending, func(i, j int) bool { return descending[i].Start > descending[j].Start })

	stack := descending
	fill(nodes, &stack, 0)

	return &Tree{Flavor: flavor, Nodes: nodes, VRange: vrange}, nil
}

func fill(nodes []Node, stack *[]Interval, nodeIdx int) {
	if nodeIdx >= len(nodes) {
		return
	}
	childIdx := nodeIdx*FANOUT + 1
	for i := 0; i < IvalPerNode; i++ {
		fill(nodes, stack, childIdx)
		if len(*stack) == 0 {
			return
		}
		last := len(*stack) - 1
		nodes[nodeIdx].Ranges[i] = (*stack)[last]
		*stack = (*stack)[:last]
		childIdx++
	}
	fill(nodes, stack, childIdx)
}

// Validate checks the structural invariants of an already-built Tree
// (used after reading raw nodes off disk, where Build's sorting/filling
// steps are bypassed).
func (t *Tree) Validate() error {
	intervals := t.InOrderIntervals()
	for _, iv := range intervals {
		if iv.Start < t.VRange[0] || iv.End > t.VRange[1] {
			return jiferr.ErrOutOfRange
		}
		if t.Flavor == Anonymous && iv.IsZero() {
			return jiferr.ErrZeroInAnon
		}
	}
	if len(t.Nodes) != NNodesForIntervals(len(intervals)) {
		return jiferr.ErrNotCompact
	}
	for i := 1; i < len(intervals); i++ {
		if intervals[i].Start < intervals[i-1].Start {
			return jiferr.ErrNotInOrder
		}
		if intervals[i].Start < intervals[i-1].End {
			return jiferr.ErrIntersecting
		}
	}
	return nil
}
