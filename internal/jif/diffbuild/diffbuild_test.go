package diffbuild

import (
	"bytes"
	"testing"

	"github.com/bsdinis/jiftool/internal/jif/page"
)

func repeatPage(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n*page.Size)
}

func TestFromZeroPageAnon(t *testing.T) {
	data := append(repeatPage(0, 1), append(repeatPage(1, 1), repeatPage(0, 1)...)...)
	tree, err := FromZeroPageAnon(data, 0x10000)
	if err != nil {
		t.Fatalf("FromZeroPageAnon: %v", err)
	}
	intervals := tree.InOrderIntervals()
	if len(intervals) != 1 {
		t.Fatalf("len(intervals) = %d, want 1", len(intervals))
	}
	if intervals[0].Start != 0x11000 || intervals[0].End != 0x12000 {
		t.Fatalf("intervals[0] = [%#x, %#x), want [0x11000, 0x12000)", intervals[0].Start, intervals[0].End)
	}
}

func TestFromDiffSameZeroDiff(t *testing.T) {
	base := append(repeatPage(0xAA, 1), append(repeatPage(0xBB, 1), repeatPage(0xCC, 1)...)...)
	overlay := append(repeatPage(0xAA, 1), append(repeatPage(0, 1), repeatPage(0xDD, 1)...)...)

	tree, err := FromDiff(base, overlay, 0x20000)
	if err != nil {
		t.Fatalf("FromDiff: %v", err)
	}
	intervals := tree.InOrderIntervals()
	if len(intervals) != 2 {
		t.Fatalf("len(intervals) = %d, want 2 (zero page + diff page)", len(intervals))
	}
	if !intervals[0].IsZero() {
		t.Fatalf("intervals[0] should be the explicit zero page, got %+v", intervals[0])
	}
	if !intervals[1].IsData() {
		t.Fatalf("intervals[1] should be the diff data page, got %+v", intervals[1])
	}

	// The first page (Same) must be a gap, resolving from the reference
	// file rather than an explicit interval.
	_, _, found := tree.Resolve(0x20000 + 0x100)
	if found {
		t.Fatalf("Resolve() on a Same page unexpectedly found an explicit interval")
	}
}

func TestFromDiffLongerOverlayTail(t *testing.T) {
	base := repeatPage(0xAA, 1)
	overlay := append(repeatPage(0xAA, 1), append(repeatPage(0xBB, 1), repeatPage(0, 1)...)...)

	tree, err := FromDiff(base, overlay, 0x30000)
	if err != nil {
		t.Fatalf("FromDiff: %v", err)
	}
	intervals := tree.InOrderIntervals()
	if len(intervals) != 2 {
		t.Fatalf("len(intervals) = %d, want 2 (data tail page + zero tail page), got %+v", len(intervals), intervals)
	}
	if !intervals[0].IsData() {
		t.Fatalf("intervals[0] should be data, got %+v", intervals[0])
	}
	if !intervals[1].IsZero() {
		t.Fatalf("intervals[1] should be explicit zero, got %+v", intervals[1])
	}
}
