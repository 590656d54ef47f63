package container

import (
	"bytes"
	"testing"

	"github.com/bsdinis/jiftool/internal/jif/itree"
	"github.com/bsdinis/jiftool/internal/jif/ord"
	"github.com/bsdinis/jiftool/internal/jif/pheader"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{NPheaders: 2, StringsSize: 4096, ItreesSize: 4096, OrdSize: 0, Version: Version, NPrefetch: 0}
	var buf bytes.Buffer
	if _, err := h.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	got, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got != h {
		t.Fatalf("ReadHeader() = %+v, want %+v", got, h)
	}
}

func TestReadHeaderBadMagic(t *testing.T) {
	buf := bytes.NewReader(make([]byte, HeaderSize))
	if _, err := ReadHeader(buf); err == nil {
		t.Fatalf("ReadHeader() on zeroed bytes did not fail")
	}
}

func TestRawRoundTripEmptyPheader(t *testing.T) {
	node := itree.NewNode()
	node.Ranges[0] = itree.Interval{Start: 0x1000, End: 0x2000, Data: itree.RefData(1)}

	raw := &RawJif{
		Header: Header{
			NPheaders:   1,
			StringsSize: 0,
			ItreesSize:  4096,
			OrdSize:     4096,
			Version:     Version,
		},
		Pheaders: []pheader.RawPheader{
			{
				VBegin: 0x1000, VEnd: 0x2000,
				DataBegin: 0, DataEnd: 0x1000,
				RefBegin: ^uint64(0), RefEnd: ^uint64(0),
				ITreeIdx: 0, ITreeNNodes: 1,
				PathnameOffset: ^uint32(0),
			},
		},
		Nodes: []itree.RawNode{node.ToRaw(map[uint64]uint64{0x1000: 0})},
		Ord:   []ord.Chunk{ord.New(0x1000, 1)},
		Data:  map[uint64][]byte{0: bytes.Repeat([]byte{0xAB}, 0x1000)},
	}

	var buf bytes.Buffer
	if _, err := WriteRaw(&buf, raw); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}

	readBack, err := ReadRaw(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if len(readBack.Pheaders) != 1 {
		t.Fatalf("len(Pheaders) = %d, want 1", len(readBack.Pheaders))
	}
	if len(readBack.Ord) != 1 {
		t.Fatalf("len(Ord) = %d, want 1", len(readBack.Ord))
	}
	got, ok := readBack.Data[0]
	if !ok || len(got) != 0x1000 || got[0] != 0xAB {
		t.Fatalf("Data[0] = %v, want a 0x1000-byte 0xAB run", got)
	}
}
