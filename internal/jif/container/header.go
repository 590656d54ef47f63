// Package container implements the top-level JIF binary layout: the
// header, the section ordering, page-alignment padding discipline, and the
// data-segment collection/write-back, grounded line-for-line on the
// original read/jif.rs and write/jif.rs section ordering.
package container

import (
	"encoding/binary"
	"io"

	"github.com/bsdinis/jiftool/internal/jif/jiferr"
	"github.com/bsdinis/jiftool/internal/jif/page"
)

// Magic is the 4-byte JIF file signature.
var Magic = [4]byte{0x77, 'J', 'I', 'F'}

// Version is the current on-disk format version this package reads and
// writes.
const Version = 1

// HeaderSize is the fixed on-disk size of Header: magic + 5 u32 fields +
// one trailing u64 (n_prefetch).
const HeaderSize = 4 + 4*5 + 8

// Header is the fixed-size file header preceding the pheader array.
type Header struct {
	NPheaders   uint32
	StringsSize uint32 // page-aligned
	ItreesSize  uint32 // page-aligned
	OrdSize     uint32 // page-aligned
	Version     uint32
	NPrefetch   uint64
}

func (h Header) WriteTo(w io.Writer) (int64, error) {
	var buf [HeaderSize]byte
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.NPheaders)
	binary.LittleEndian.PutUint32(buf[8:12], h.StringsSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.ItreesSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.OrdSize)
	binary.LittleEndian.PutUint32(buf[20:24], h.Version)
	binary.LittleEndian.PutUint64(buf[24:32], h.NPrefetch)
	n, err := w.Write(buf[:])
	return int64(n), err
}

func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, jiferr.ErrTruncated
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return Header{}, jiferr.ErrBadMagic
	}
	h := Header{
		NPheaders:   binary.LittleEndian.Uint32(buf[4:8]),
		StringsSize: binary.LittleEndian.Uint32(buf[8:12]),
		ItreesSize:  binary.LittleEndian.Uint32(buf[12:16]),
		OrdSize:     binary.LittleEndian.Uint32(buf[16:20]),
		Version:     binary.LittleEndian.Uint32(buf[20:24]),
		NPrefetch:   binary.LittleEndian.Uint64(buf[24:32]),
	}
	if h.Version != Version {
		return Header{}, jiferr.ErrBadVersion
	}
	if !page.Aligned(uint64(h.StringsSize)) || !page.Aligned(uint64(h.ItreesSize)) || !page.Aligned(uint64(h.OrdSize)) {
		return Header{}, jiferr.ErrBadAlignment
	}
	return h, nil
}
