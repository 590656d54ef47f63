// Package diffbuild implements the two state machines that turn a raw
// stream of page bytes into an interval tree: the zero-page builder, which
// scans a single byte stream looking for runs of all-zero pages, and the
// diff builder, which compares an overlay against a base reference file
// page by page and only materializes pages that changed.
package diffbuild

import (
	"github.com/bsdinis/jiftool/internal/jif/itree"
	"github.com/bsdinis/jiftool/internal/jif/page"
)

type spanState int

const (
	stateInitial spanState = iota
	stateData
	stateZero
)

// rawSpan is an offset/length run within a single byte buffer, tagged with
// whether it is zero or real data. It is the intermediate product of a
// scan, before it is translated into an itree.Interval anchored at a
// virtual address.
type rawSpan struct {
	offset, length uint64
	zero           bool
}

// scanZero walks data one page at a time, coalescing adjacent same-kind
// pages into runs. This is the zero-page builder: a two-state machine
// (Data, Zero) with an Initial state before the first page is seen.
func scanZero(data []byte) []rawSpan {
	var spans []rawSpan
	state := stateInitial
	var cur rawSpan

	flush := func() {
		if state != stateInitial {
			spans = append(spans, cur)
		}
	}

	for off := uint64(0); off < uint64(len(data)); off += page.Size {
		end := off + page.Size
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		p := data[off:end]
		isZero := page.IsZero(p)

		switch state {
		case stateInitial:
			state = kindOf(isZero)
			cur = rawSpan{offset: off, length: end - off, zero: isZero}
		case stateData, stateZero:
			sameKind := (state == stateZero) == isZero
			if sameKind {
				cur.length += end - off
			} else {
				flush()
				state = kindOf(isZero)
				cur = rawSpan{offset: off, length: end - off, zero: isZero}
			}
		}
	}
	flush()
	return spans
}

func kindOf(isZero bool) spanState {
	if isZero {
		return stateZero
	}
	return stateData
}

// FromZeroPageAnon scans data for zero-page runs and returns the resulting
// Anonymous-flavor tree covering [vbegin, vbegin+len(data)). Zero runs
// become gaps (the anon tree's implicit zero resolution), not explicit
// Zero intervals, since Anonymous trees forbid those.
func FromZeroPageAnon(data []byte, vbegin uint64) (*itree.Tree, error) {
	spans := scanZero(data)
	intervals := make([]itree.Interval, 0, len(spans))
	for _, s := range spans {
		if s.zero {
			continue
		}
		intervals = append(intervals, itree.Interval{
			Start: vbegin + s.offset,
			End:   vbegin + s.offset + s.length,
			Data:  itree.OwnedData(data[s.offset : s.offset+s.length]),
		})
	}
	vend := page.AlignUp(vbegin + uint64(len(data)))
	return itree.Build(itree.Anonymous, intervals, [2]uint64{vbegin, vend})
}

// FromZeroPageRef is the reference-flavor sibling of FromZeroPageAnon: zero
// runs become explicit Zero intervals rather than gaps, since a Reference
// tree's gaps resolve to the backing file, which does not exist for this
// data (used for the tail of an overlay that extends past the end of its
// base, see FromDiff).
func FromZeroPageRef(data []byte, vbegin uint64) []itree.Interval {
	spans := scanZero(data)
	intervals := make([]itree.Interval, 0, len(spans))
	for _, s := range spans {
		iv := itree.Interval{Start: vbegin + s.offset, End: vbegin + s.offset + s.length}
		if s.zero {
			iv.Data = itree.ZeroData()
		} else {
			iv.Data = itree.OwnedData(data[s.offset : s.offset+s.length])
		}
		intervals = append(intervals, iv)
	}
	return intervals
}

// FromDiff builds a Reference-flavor tree by comparing overlay against
// base page by page. Same pages become gaps (resolved from the reference
// file); Zero pages become explicit Zero intervals; Diff pages become
// private data intervals. If overlay is longer than base, the tail beyond
// len(base) is scanned with the zero-page (reference-flavor) builder,
// since there is no base page left to diff against.
func FromDiff(base, overlay []byte, vbegin uint64) (*itree.Tree, error) {
	var intervals []itree.Interval
	state := stateInitial
	var cur struct {
		offset, length uint64
		cmp            page.Comparison
	}

	baseLen := uint64(len(base))
	commonEnd := baseLen
	if uint64(len(overlay)) < commonEnd {
		commonEnd = uint64(len(overlay))
	}

	flush := func() {
		if state == stateInitial {
			return
		}
		start := vbegin + cur.offset
		end := start + cur.length
		switch cur.cmp {
		case page.Same:
			// Gap: leave unrepresented so Resolve falls through to the
			// reference file.
		case page.Zero:
			intervals = append(intervals, itree.Interval{Start: start, End: end, Data: itree.ZeroData()})
		case page.Diff:
			intervals = append(intervals, itree.Interval{
				Start: start, End: end,
				Data: itree.OwnedData(overlay[cur.offset : cur.offset+cur.length]),
			})
		}
	}

	for off := uint64(0); off < commonEnd; off += page.Size {
		end := off + page.Size
		if end > commonEnd {
			end = commonEnd
		}
		basePage := base[off:end]
		overlayPage := overlay[off:end]
		cmp := page.Compare(basePage, overlayPage)

		if state == stateInitial {
			state = stateData
			cur.offset, cur.length, cur.cmp = off, end-off, cmp
			continue
		}
		if cur.cmp == cmp {
			cur.length += end - off
			continue
		}
		flush()
		cur.offset, cur.length, cur.cmp = off, end-off, cmp
	}
	flush()

	if uint64(len(overlay)) > commonEnd {
		tail := FromZeroPageRef(overlay[commonEnd:], vbegin+commonEnd)
		intervals = append(intervals, tail...)
	}

	vend := page.AlignUp(vbegin + uint64(len(overlay)))
	return itree.Build(itree.Reference, intervals, [2]uint64{vbegin, vend})
}
