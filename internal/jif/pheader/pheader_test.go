package pheader

import (
	"bytes"
	"testing"
)

func TestBuildITreeAnon(t *testing.T) {
	data := make([]byte, 0x2000)
	for i := 0x1000; i < 0x2000; i++ {
		data[i] = 0xAB
	}
	p := &Pheader{VBegin: 0x10000, VEnd: 0x12000, DataSegment: data}
	if err := p.BuildITree(nil); err != nil {
		t.Fatalf("BuildITree: %v", err)
	}
	if p.DataSegment != nil {
		t.Fatalf("DataSegment not cleared after BuildITree")
	}
	if p.Tree == nil {
		t.Fatalf("Tree is nil after BuildITree")
	}
	iv, _, found := p.Tree.Resolve(0x11000)
	if !found || !iv.IsData() {
		t.Fatalf("Resolve(0x11000) = %+v, %v, want a data interval", iv, found)
	}
}

func TestBuildITreeRef(t *testing.T) {
	base := bytes.Repeat([]byte{0xAA}, 0x1000)
	overlay := bytes.Repeat([]byte{0xBB}, 0x1000)
	p := &Pheader{
		VBegin: 0x20000, VEnd: 0x21000,
		Ref:         &RefRange{Path: "/snap/base.bin", Begin: 0, End: 0x1000},
		DataSegment: overlay,
	}
	err := p.BuildITree(func(ref RefRange) ([]byte, error) {
		if ref.Path != "/snap/base.bin" {
			t.Fatalf("unexpected ref path %q", ref.Path)
		}
		return base, nil
	})
	if err != nil {
		t.Fatalf("BuildITree: %v", err)
	}
	iv, _, found := p.Tree.Resolve(0x20000)
	if !found || !iv.IsData() {
		t.Fatalf("Resolve(0x20000) = %+v, %v, want a data interval", iv, found)
	}
}

func TestRenameFileOnlyMatchesCurrentPath(t *testing.T) {
	p := &Pheader{Ref: &RefRange{Path: "/a"}}
	p.RenameFile("/b", "/c")
	if p.Ref.Path != "/a" {
		t.Fatalf("RenameFile changed path when oldPath did not match: %q", p.Ref.Path)
	}
	p.RenameFile("/a", "/c")
	if p.Ref.Path != "/c" {
		t.Fatalf("RenameFile did not update path: %q", p.Ref.Path)
	}
}

func TestRawPheaderRoundTrip(t *testing.T) {
	r := RawPheader{
		VBegin: 0x1000, VEnd: 0x2000,
		DataBegin: 0, DataEnd: 0x1000,
		RefBegin: maxU64, RefEnd: maxU64,
		ITreeIdx: 3, ITreeNNodes: 2,
		PathnameOffset: maxU32,
		Prot:           uint8(ProtRead | ProtExec),
	}
	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	got, err := ReadRawPheader(&buf)
	if err != nil {
		t.Fatalf("ReadRawPheader: %v", err)
	}
	if got != r {
		t.Fatalf("ReadRawPheader() = %+v, want %+v", got, r)
	}
	if got.HasRef() {
		t.Fatalf("HasRef() = true, want false")
	}
}
