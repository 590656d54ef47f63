package trace

import (
	"strings"
	"testing"

	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/jif/dedup"
	"github.com/bsdinis/jiftool/internal/jif/itree"
	"github.com/bsdinis/jiftool/internal/jif/pheader"
)

// singlePheaderJif returns a Jif with one Anonymous pheader spanning
// [0, vend), enough to exercise ToOrdChunks's samePheader closure without a
// boundary to split on.
func singlePheaderJif(t *testing.T, vend uint64) *jif.Jif {
	t.Helper()
	tree, err := itree.Build(itree.Anonymous, nil, [2]uint64{0, vend})
	if err != nil {
		t.Fatalf("itree.Build: %v", err)
	}
	p := &pheader.Pheader{VBegin: 0, VEnd: vend, Tree: tree}
	return &jif.Jif{Pheaders: []*pheader.Pheader{p}, Dedup: dedup.New()}
}

// twoPheaderJif returns a Jif with two adjacent Anonymous pheaders, split
// at boundary, so tests can exercise the pheader-boundary merge guard.
func twoPheaderJif(t *testing.T, boundary, vend uint64) *jif.Jif {
	t.Helper()
	treeA, err := itree.Build(itree.Anonymous, nil, [2]uint64{0, boundary})
	if err != nil {
		t.Fatalf("itree.Build: %v", err)
	}
	treeB, err := itree.Build(itree.Anonymous, nil, [2]uint64{boundary, vend})
	if err != nil {
		t.Fatalf("itree.Build: %v", err)
	}
	pA := &pheader.Pheader{VBegin: 0, VEnd: boundary, Tree: treeA}
	pB := &pheader.Pheader{VBegin: boundary, VEnd: vend, Tree: treeB}
	return &jif.Jif{Pheaders: []*pheader.Pheader{pA, pB}, Dedup: dedup.New()}
}

func TestParseLineDecimalAndHex(t *testing.T) {
	a, err := ParseLine("1234: 5678")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if a.Usecs != 1234 || a.Addr != 5678 {
		t.Fatalf("ParseLine() = %+v, want {1234 5678}", a)
	}

	a, err = ParseLine("1234: 0x1234")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if a.Addr != 0x1234 {
		t.Fatalf("ParseLine().Addr = %#x, want 0x1234", a.Addr)
	}
}

func TestParseLineMasksWriteFlag(t *testing.T) {
	a, err := ParseLine("0: 0x1000000000001000")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if a.Addr != 0x1000 {
		t.Fatalf("ParseLine().Addr = %#x, want write flag masked off (0x1000)", a.Addr)
	}
}

func TestParseLineMissingDelimiter(t *testing.T) {
	if _, err := ParseLine("1234 0x1234"); err == nil {
		t.Fatalf("ParseLine() on missing delimiter did not fail")
	}
}

func TestToOrdChunksDedupsAndMerges(t *testing.T) {
	accesses, err := ReadTrace(strings.NewReader("0: 0x1000\n1: 0x2000\n2: 0x1000\n3: 0x4000\n"))
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	j := singlePheaderJif(t, 0x10000)
	chunks := ToOrdChunks(j, accesses)
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2 (run [0x1000,0x3000) then [0x4000,0x5000))", len(chunks))
	}
	if chunks[0].VAddr != 0x1000 || chunks[0].NPages != 2 {
		t.Fatalf("chunks[0] = %+v, want {0x1000 2}", chunks[0])
	}
	if chunks[1].VAddr != 0x4000 || chunks[1].NPages != 1 {
		t.Fatalf("chunks[1] = %+v, want {0x4000 1}", chunks[1])
	}
}

func TestToOrdChunksSplitsAtPheaderBoundary(t *testing.T) {
	accesses, err := ReadTrace(strings.NewReader("0: 0x1000\n1: 0x2000\n"))
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	j := twoPheaderJif(t, 0x2000, 0x4000)
	chunks := ToOrdChunks(j, accesses)
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2 (adjacent pages split across pheaders)", len(chunks))
	}
	if chunks[0].VAddr != 0x1000 || chunks[0].NPages != 1 {
		t.Fatalf("chunks[0] = %+v, want {0x1000 1}", chunks[0])
	}
	if chunks[1].VAddr != 0x2000 || chunks[1].NPages != 1 {
		t.Fatalf("chunks[1] = %+v, want {0x2000 1}", chunks[1])
	}
}
