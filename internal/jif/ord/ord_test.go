package ord

import "testing"

func alwaysSamePheader(a, b uint64) bool { return true }

func TestMergeAdjacentPages(t *testing.T) {
	chunks := Merge([]uint64{0x1000, 0x2000, 0x3000, 0x6000}, alwaysSamePheader)
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if chunks[0].VAddr != 0x1000 || chunks[0].NPages != 3 {
		t.Fatalf("chunks[0] = %+v, want {VAddr: 0x1000, NPages: 3}", chunks[0])
	}
	if chunks[1].VAddr != 0x6000 || chunks[1].NPages != 1 {
		t.Fatalf("chunks[1] = %+v, want {VAddr: 0x6000, NPages: 1}", chunks[1])
	}
}

func TestNewClampsPageCount(t *testing.T) {
	c := New(0x1000, maxPagesPerChunk+10)
	if c.NPages != maxPagesPerChunk {
		t.Fatalf("NPages = %d, want %d", c.NPages, maxPagesPerChunk)
	}
}

func TestNewAlignsDown(t *testing.T) {
	c := New(0x1234, 1)
	if c.VAddr != 0x1000 {
		t.Fatalf("VAddr = %#x, want 0x1000", c.VAddr)
	}
}

func TestBoundaries(t *testing.T) {
	chunks := Merge([]uint64{0x1000, 0x2000, 0x6000}, alwaysSamePheader)
	bounds := Boundaries(chunks)
	want := map[uint64]bool{0x1000: true, 0x3000: true, 0x6000: true, 0x7000: true}
	if len(bounds) != len(want) {
		t.Fatalf("len(bounds) = %d, want %d (%v)", len(bounds), len(want), bounds)
	}
	for _, b := range bounds {
		if !want[b] {
			t.Fatalf("unexpected boundary %#x", b)
		}
	}
}

func TestMergePageBackward(t *testing.T) {
	c := New(0x2000, 1)
	merged, ok := c.MergePage(0x1000, alwaysSamePheader)
	if !ok {
		t.Fatalf("MergePage(0x1000) on chunk starting at 0x2000 should merge backward")
	}
	if merged.VAddr != 0x1000 || merged.NPages != 2 {
		t.Fatalf("merged = %+v, want {VAddr: 0x1000, NPages: 2}", merged)
	}
}

func TestMergePageRejectsDifferentPheader(t *testing.T) {
	neverSamePheader := func(a, b uint64) bool { return false }

	c := New(0x1000, 1)
	if _, ok := c.MergePage(0x2000, neverSamePheader); ok {
		t.Fatalf("MergePage should not merge across a pheader boundary")
	}
	if _, ok := c.MergePage(0x0, neverSamePheader); ok {
		t.Fatalf("MergePage should not merge backward across a pheader boundary")
	}
}

func TestMergeStopsAtPheaderBoundary(t *testing.T) {
	// pages < 0x3000 belong to one pheader, pages >= 0x3000 to another.
	samePheader := func(a, b uint64) bool { return (a < 0x3000) == (b < 0x3000) }

	chunks := Merge([]uint64{0x1000, 0x2000, 0x3000, 0x4000}, samePheader)
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2 (split at the pheader boundary)", len(chunks))
	}
	if chunks[0].VAddr != 0x1000 || chunks[0].NPages != 2 {
		t.Fatalf("chunks[0] = %+v, want {VAddr: 0x1000, NPages: 2}", chunks[0])
	}
	if chunks[1].VAddr != 0x3000 || chunks[1].NPages != 2 {
		t.Fatalf("chunks[1] = %+v, want {VAddr: 0x3000, NPages: 2}", chunks[1])
	}
}
