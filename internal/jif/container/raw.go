package container

import (
	"io"
	"sort"

	"github.com/bsdinis/jiftool/internal/jif/itree"
	"github.com/bsdinis/jiftool/internal/jif/jiferr"
	"github.com/bsdinis/jiftool/internal/jif/ord"
	"github.com/bsdinis/jiftool/internal/jif/page"
	"github.com/bsdinis/jiftool/internal/jif/pheader"
	"github.com/bsdinis/jiftool/internal/jif/prefetch"
)

const maxU32 = ^uint32(0)

// RawJif is the fully-parsed, not-yet-materialized on-disk shape of a JIF
// file: every section read verbatim, with the data segment indexed by the
// distinct byte offsets data intervals reference.
type RawJif struct {
	Header   Header
	Pheaders []pheader.RawPheader
	Strings  []byte
	Nodes    []itree.RawNode
	Ord      []ord.Chunk
	Windows  *prefetch.PheaderWindows // nil when Header.NPrefetch == 0
	Data     map[uint64][]byte        // offset (relative to data_offset) -> bytes
}

// ReadRaw parses every section of a JIF file from r, in the order laid out
// in the format: header, pheader array, page padding, string table,
// itree-node pool (with 0xFF padding), ord-chunk array, optional windowing
// section, page padding, then the data segment.
func ReadRaw(r io.ReadSeeker) (*RawJif, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	pheaders := make([]pheader.RawPheader, hdr.NPheaders)
	for i := range pheaders {
		ph, err := pheader.ReadRawPheader(r)
		if err != nil {
			return nil, jiferr.WrapPheader(i, err)
		}
		if ph.VBegin > ph.VEnd || ph.DataBegin > ph.DataEnd {
			return nil, jiferr.WrapPheader(i, jiferr.ErrOutOfRange)
		}
		pheaders[i] = ph
	}

	if err := seekToPage(r); err != nil {
		return nil, err
	}

	strings := make([]byte, hdr.StringsSize)
	if _, err := io.ReadFull(r, strings); err != nil {
		return nil, jiferr.ErrTruncated
	}
	for i, ph := range pheaders {
		if ph.PathnameOffset != maxU32 && ph.PathnameOffset >= hdr.StringsSize {
			return nil, jiferr.WrapPheader(i, jiferr.ErrBadPathnameOff)
		}
	}

	var totalNodes uint32
	for _, ph := range pheaders {
		totalNodes += ph.ITreeNNodes
	}
	nodes := make([]itree.RawNode, totalNodes)
	for i := range nodes {
		n, err := itree.ReadRawNode(r)
		if err != nil {
			return nil, jiferr.WrapNode(i, err)
		}
		nodes[i] = n
	}
	for i, ph := range pheaders {
		if uint64(ph.ITreeIdx)+uint64(ph.ITreeNNodes) > uint64(totalNodes) {
			return nil, jiferr.WrapPheader(i, jiferr.ErrBadITreeIndex)
		}
	}
	consumed := uint64(totalNodes) * itree.RawNodeSize
	if remaining := uint64(hdr.ItreesSize) - consumed; remaining > 0 {
		if _, err := r.Seek(int64(remaining), io.SeekCurrent); err != nil {
			return nil, err
		}
	}

	nOrd := hdr.OrdSize / ord.RawSize
	var chunks []ord.Chunk
	for i := uint32(0); i < nOrd; i++ {
		c, err := ord.Read(r)
		if err != nil {
			return nil, err
		}
		if !c.IsEmpty() {
			chunks = append(chunks, c)
		}
	}

	var windows *prefetch.PheaderWindows
	if hdr.NPrefetch > 0 {
		strat, err := prefetch.ReadTaggedStrategy(r)
		if err != nil {
			return nil, err
		}
		ws := make([]prefetch.Window, hdr.NPrefetch)
		for i := range ws {
			w, err := prefetch.ReadWindow(r)
			if err != nil {
				return nil, err
			}
			ws[i] = w
		}
		windows = &prefetch.PheaderWindows{Strategy: strat, Windows: ws}
	}

	if err := seekToPage(r); err != nil {
		return nil, err
	}
	dataOffset, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	distinct := map[uint64]uint64{} // offset (relative) -> length
	var order []uint64
	for _, n := range nodes {
		for _, iv := range n.Ranges {
			if !iv.IsData() {
				continue
			}
			if _, ok := distinct[iv.Offset]; !ok {
				distinct[iv.Offset] = iv.End - iv.Start
				order = append(order, iv.Offset)
			}
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	data := make(map[uint64][]byte, len(order))
	cursor := uint64(dataOffset)
	for _, off := range order {
		length := distinct[off]
		if uint64(dataOffset)+off != cursor {
			return nil, jiferr.ErrDiscontiguous
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, jiferr.ErrTruncated
		}
		data[off] = buf
		cursor += length
	}

	return &RawJif{
		Header:   hdr,
		Pheaders: pheaders,
		Strings:  strings,
		Nodes:    nodes,
		Ord:      chunks,
		Windows:  windows,
		Data:     data,
	}, nil
}

func seekToPage(r io.ReadSeeker) error {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	target := int64(page.AlignUp(uint64(pos)))
	_, err = r.Seek(target, io.SeekStart)
	return err
}

// WriteRaw serializes raw to w, in the same section order ReadRaw expects,
// zero-padding between sections up to each page-aligned size and 0xFF-
// padding the unused tail of the itree-node pool (the empty-interval
// sentinel byte).
func WriteRaw(w io.Writer, raw *RawJif) (int64, error) {
	var total int64
	write := func(n int64, err error) error {
		total += n
		return err
	}

	if err := write(raw.Header.WriteTo(w)); err != nil {
		return total, err
	}
	pos := uint64(HeaderSize)
	for _, ph := range raw.Pheaders {
		if err := write(ph.WriteTo(w)); err != nil {
			return total, err
		}
		pos += pheader.RawPheaderSize
	}
	if err := write(writeZeroPad(w, page.AlignUp(pos)-pos)); err != nil {
		return total, err
	}

	if err := write(writeBytes(w, raw.Strings)); err != nil {
		return total, err
	}
	if err := write(writeZeroPad(w, uint64(raw.Header.StringsSize)-uint64(len(raw.Strings)))); err != nil {
		return total, err
	}

	var nodeBytes uint64
	for _, n := range raw.Nodes {
		if err := write(n.WriteTo(w)); err != nil {
			return total, err
		}
		nodeBytes += itree.RawNodeSize
	}
	if err := write(writeFFPad(w, uint64(raw.Header.ItreesSize)-nodeBytes)); err != nil {
		return total, err
	}

	var ordBytes uint64
	for _, c := range raw.Ord {
		if err := write(c.WriteTo(w)); err != nil {
			return total, err
		}
		ordBytes += ord.RawSize
	}
	if err := write(writeZeroPad(w, uint64(raw.Header.OrdSize)-ordBytes)); err != nil {
		return total, err
	}

	if raw.Header.NPrefetch > 0 && raw.Windows != nil {
		if err := write(raw.Windows.Strategy.WriteTo(w)); err != nil {
			return total, err
		}
		for _, win := range raw.Windows.Windows {
			if err := write(win.WriteTo(w)); err != nil {
				return total, err
			}
		}
	}

	if err := write(writeZeroPad(w, page.AlignUp(uint64(total))-uint64(total))); err != nil {
		return total, err
	}

	order := make([]uint64, 0, len(raw.Data))
	for off := range raw.Data {
		order = append(order, off)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	dataOffset := uint64(total)
	cursor := dataOffset
	for _, off := range order {
		target := dataOffset + off
		if target < cursor {
			return total, jiferr.ErrDiscontiguous
		}
		if target > cursor {
			if err := write(writeZeroPad(w, target-cursor)); err != nil {
				return total, err
			}
			cursor = target
		}
		buf := raw.Data[off]
		if err := write(writeBytes(w, buf)); err != nil {
			return total, err
		}
		cursor += uint64(len(buf))
	}

	return total, nil
}

func writeBytes(w io.Writer, b []byte) (int64, error) {
	n, err := w.Write(b)
	return int64(n), err
}

func writeZeroPad(w io.Writer, n uint64) (int64, error) {
	return writePad(w, n, 0x00)
}

func writeFFPad(w io.Writer, n uint64) (int64, error) {
	return writePad(w, n, 0xFF)
}

func writePad(w io.Writer, n uint64, b byte) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	buf := make([]byte, n)
	if b != 0 {
		for i := range buf {
			buf[i] = b
		}
	}
	wn, err := w.Write(buf)
	return int64(wn), err
}
