package itree

import (
	"testing"

	"github.com/bsdinis/jiftool/internal/jif/dedup"
	"github.com/bsdinis/jiftool/internal/jif/jiferr"
)

const vaddrBegin = 0x10000
const vaddrEnd = 0x20000

func genAnonTree(t *testing.T) *Tree {
	t.Helper()
	intervals := []Interval{
		{Start: vaddrBegin + 0x1000, End: vaddrBegin + 0x2000, Data: OwnedData([]byte("aaaa"))},
		{Start: vaddrBegin + 0x4000, End: vaddrBegin + 0x5000, Data: OwnedData([]byte("bbbb"))},
		{Start: vaddrBegin + 0x8000, End: vaddrBegin + 0x9000, Data: OwnedData([]byte("cccc"))},
	}
	tree, err := Build(Anonymous, intervals, [2]uint64{vaddrBegin, vaddrEnd})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tree
}

func genRefTree(t *testing.T) *Tree {
	t.Helper()
	intervals := []Interval{
		{Start: vaddrBegin + 0x1000, End: vaddrBegin + 0x2000, Data: OwnedData([]byte("aaaa"))},
		{Start: vaddrBegin + 0x2000, End: vaddrBegin + 0x3000, Data: ZeroData()},
		{Start: vaddrBegin + 0x8000, End: vaddrBegin + 0x9000, Data: OwnedData([]byte("cccc"))},
	}
	tree, err := Build(Reference, intervals, [2]uint64{vaddrBegin, vaddrEnd})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tree
}

func TestEmptyTree(t *testing.T) {
	tree, err := Build(Anonymous, nil, [2]uint64{vaddrBegin, vaddrEnd})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n := tree.NIntervals(); n != 0 {
		t.Fatalf("NIntervals() = %d, want 0", n)
	}
	if got := tree.ZeroByteSize(); got != vaddrEnd-vaddrBegin {
		t.Fatalf("ZeroByteSize() = %d, want %d", got, vaddrEnd-vaddrBegin)
	}
	_, _, found := tree.Resolve(vaddrBegin + 0x100)
	if found {
		t.Fatalf("Resolve() on an empty tree found an interval")
	}
}

func TestAnonTreeInOrder(t *testing.T) {
	tree := genAnonTree(t)
	intervals := tree.InOrderIntervals()
	if len(intervals) != 3 {
		t.Fatalf("len(InOrderIntervals()) = %d, want 3", len(intervals))
	}
	for i := 1; i < len(intervals); i++ {
		if intervals[i].Start <= intervals[i-1].Start {
			t.Fatalf("intervals out of order: %v", intervals)
		}
	}
}

func TestAnonTreeResolve(t *testing.T) {
	tree := genAnonTree(t)

	iv, _, found := tree.Resolve(vaddrBegin + 0x1500)
	if !found || !iv.IsData() {
		t.Fatalf("Resolve(0x1500) = %+v, %v, want a data interval", iv, found)
	}

	_, gap, found := tree.Resolve(vaddrBegin + 0x3000)
	if found {
		t.Fatalf("Resolve(0x3000) unexpectedly found %+v", gap)
	}
	if gap[0] != vaddrBegin+0x2000 || gap[1] != vaddrBegin+0x4000 {
		t.Fatalf("Resolve(0x3000) gap = %v, want [0x12000, 0x14000)", gap)
	}
}

func TestAnonTreeRejectsZero(t *testing.T) {
	intervals := []Interval{
		{Start: vaddrBegin + 0x1000, End: vaddrBegin + 0x2000, Data: ZeroData()},
	}
	if _, err := Build(Anonymous, intervals, [2]uint64{vaddrBegin, vaddrEnd}); err == nil {
		t.Fatalf("Build() on an anon tree with an explicit zero interval did not fail")
	}
}

func TestBuildRejectsIntersecting(t *testing.T) {
	intervals := []Interval{
		{Start: vaddrBegin + 0x1000, End: vaddrBegin + 0x3000, Data: OwnedData([]byte("a"))},
		{Start: vaddrBegin + 0x2000, End: vaddrBegin + 0x4000, Data: OwnedData([]byte("b"))},
	}
	if _, err := Build(Anonymous, intervals, [2]uint64{vaddrBegin, vaddrEnd}); err == nil {
		t.Fatalf("Build() with intersecting intervals did not fail")
	}
}

func TestBuildRejectsOutOfRange(t *testing.T) {
	intervals := []Interval{
		{Start: vaddrBegin - 0x1000, End: vaddrBegin, Data: OwnedData([]byte("a"))},
	}
	if _, err := Build(Anonymous, intervals, [2]uint64{vaddrBegin, vaddrEnd}); err == nil {
		t.Fatalf("Build() with an out-of-range interval did not fail")
	}
}

func TestRefTreeZeroSlot(t *testing.T) {
	tree := genRefTree(t)
	iv, _, found := tree.Resolve(vaddrBegin + 0x2500)
	if !found || !iv.IsZero() {
		t.Fatalf("Resolve(0x2500) = %+v, %v, want an explicit zero interval", iv, found)
	}

	_, gap, found := tree.Resolve(vaddrBegin + 0x3500)
	if found {
		t.Fatalf("Resolve(0x3500) unexpectedly found an interval")
	}
	if gap[0] != vaddrBegin+0x3000 || gap[1] != vaddrBegin+0x8000 {
		t.Fatalf("Resolve(0x3500) gap = %v, want [0x13000, 0x18000)", gap)
	}
}

func TestValidateAcceptsCompactTree(t *testing.T) {
	tree := genAnonTree(t)
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsNonCompact(t *testing.T) {
	tree := genAnonTree(t)
	// Append a padding node beyond the minimum NNodesForIntervals(3) needs:
	// still a structurally valid sorted, non-intersecting set of intervals,
	// but laid out across more nodes than the compact minimum.
	tree.Nodes = append(tree.Nodes, NewNode())
	if err := tree.Validate(); err != jiferr.ErrNotCompact {
		t.Fatalf("Validate() = %v, want ErrNotCompact", err)
	}
}

func TestFractureSplitsAndDedupes(t *testing.T) {
	data := make([]byte, 0x2000)
	for i := range data {
		data[i] = byte(i)
	}
	tree, err := Build(Anonymous, []Interval{
		{Start: vaddrBegin, End: vaddrBegin + 0x2000, Data: OwnedData(data)},
	}, [2]uint64{vaddrBegin, vaddrEnd})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dd := dedup.New()
	out, err := Fracture(tree, []uint64{vaddrBegin + 0x1000}, dd, 4)
	if err != nil {
		t.Fatalf("Fracture: %v", err)
	}

	intervals := out.InOrderIntervals()
	if len(intervals) != 2 {
		t.Fatalf("len(intervals) = %d, want 2", len(intervals))
	}
	for _, iv := range intervals {
		if iv.Data.Kind != KindRef {
			t.Fatalf("interval %+v was not lowered to KindRef", iv)
		}
		b := iv.Data.Resolve(dd)
		if len(b) != int(iv.Len()) {
			t.Fatalf("resolved bytes length = %d, want %d", len(b), iv.Len())
		}
	}
}

func TestIntervalIntersect(t *testing.T) {
	iv := Interval{Start: 0x1000, End: 0x3000, Data: OwnedData(make([]byte, 0x2000))}
	got, ok := iv.Intersect(0x1800, 0x2800)
	if !ok {
		t.Fatalf("Intersect() = _, false, want true")
	}
	if got.Start != 0x1800 || got.End != 0x2800 {
		t.Fatalf("Intersect() = [%x, %x), want [0x1800, 0x2800)", got.Start, got.End)
	}
	if len(got.Data.Bytes) != int(got.Len()) {
		t.Fatalf("intersected data length = %d, want %d", len(got.Data.Bytes), got.Len())
	}

	if _, ok := iv.Intersect(0x3000, 0x4000); ok {
		t.Fatalf("Intersect() of disjoint ranges returned true")
	}
}
