package jif

import (
	"bytes"
	"testing"

	"github.com/bsdinis/jiftool/internal/jif/container"
	"github.com/bsdinis/jiftool/internal/jif/dedup"
	"github.com/bsdinis/jiftool/internal/jif/diffbuild"
	"github.com/bsdinis/jiftool/internal/jif/ord"
	"github.com/bsdinis/jiftool/internal/jif/pheader"
)

func buildSampleJif(t *testing.T) *Jif {
	t.Helper()
	data := make([]byte, 3*0x1000)
	for i := 0x1000; i < 0x2000; i++ {
		data[i] = byte(i)
	}
	tree, err := diffbuild.FromZeroPageAnon(data, 0x400000)
	if err != nil {
		t.Fatalf("FromZeroPageAnon: %v", err)
	}

	dd := dedup.New()
	pheader.DedupeOnto(tree, dd)

	p := &pheader.Pheader{VBegin: 0x400000, VEnd: 0x400000 + uint64(len(data)), Tree: tree, Prot: pheader.ProtRead | pheader.ProtWrite}

	return &Jif{
		Pheaders: []*pheader.Pheader{p},
		Ord:      []ord.Chunk{ord.New(0x401000, 1)},
		Dedup:    dd,
	}
}

func TestRoundTrip(t *testing.T) {
	j := buildSampleJif(t)

	raw, err := j.ToRaw()
	if err != nil {
		t.Fatalf("ToRaw: %v", err)
	}

	var buf bytes.Buffer
	if _, err := container.WriteRaw(&buf, raw); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}

	r := bytes.NewReader(buf.Bytes())
	readBack, err := container.ReadRaw(r)
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}

	j2, err := FromRaw(readBack)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}

	if len(j2.Pheaders) != 1 {
		t.Fatalf("len(Pheaders) = %d, want 1", len(j2.Pheaders))
	}

	res, err := j2.Resolve(0x401001)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Bytes holds the whole private interval, which starts at 0x401000, so
	// the byte at 0x401001 is at index 1.
	if res.Bytes[1] != 0x01 {
		t.Fatalf("Resolve(0x401001).Bytes[1] = %#x, want 0x01", res.Bytes[1])
	}

	zeroRes, err := j2.Resolve(0x400100)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if zeroRes.Source.String() != "zero" {
		t.Fatalf("Resolve(0x400100).Source = %v, want zero", zeroRes.Source)
	}
}

func TestRenameFile(t *testing.T) {
	j := &Jif{
		Pheaders: []*pheader.Pheader{
			{VBegin: 0x1000, VEnd: 0x2000, Ref: &pheader.RefRange{Path: "/old/path", Begin: 0, End: 0x1000}},
		},
	}
	j.RenameFile("/old/path", "/new/path")
	if j.Pheaders[0].Ref.Path != "/new/path" {
		t.Fatalf("Ref.Path = %q, want /new/path", j.Pheaders[0].Ref.Path)
	}
}
