// Package page provides the page-granularity arithmetic shared by every
// other jif package: alignment, zero testing, and the three-way
// base/overlay comparison used by the diff builders.
package page

import "bytes"

// Size is the page size JIF lays its sections and intervals out against.
const Size = 4096

// Aligned reports whether v falls on a page boundary.
func Aligned(v uint64) bool {
	return v%Size == 0
}

// AlignDown rounds v down to the nearest page boundary.
func AlignDown(v uint64) uint64 {
	return v &^ (Size - 1)
}

// AlignUp rounds v up to the nearest page boundary.
func AlignUp(v uint64) uint64 {
	return AlignDown(v + Size - 1)
}

// Count returns the number of pages needed to cover n bytes.
func Count(n uint64) uint64 {
	return AlignUp(n) / Size
}

// IsZero reports whether every byte of page is zero. An empty slice counts
// as zero.
func IsZero(page []byte) bool {
	for _, b := range page {
		if b != 0 {
			return false
		}
	}
	return true
}

// Comparison is the outcome of comparing a base page against an overlay
// page while building a reference-flavor ITree.
type Comparison int

const (
	// Same means the overlay page is byte-identical to the base page, so
	// the range can be left as an implicit hole resolved from the
	// reference file.
	Same Comparison = iota
	// Diff means the overlay page differs from the base and must be
	// captured as private data.
	Diff
	// Zero means the overlay page is entirely zero bytes.
	Zero
)

func (c Comparison) String() string {
	switch c {
	case Same:
		return "same"
	case Diff:
		return "diff"
	case Zero:
		return "zero"
	default:
		return "unknown"
	}
}

// Compare classifies a single overlay page against its corresponding base
// page. base may be shorter than Size (a partial tail page) or nil (no base
// page exists at this address at all, e.g. the overlay extends past the end
// of the base file).
func Compare(base, overlay []byte) Comparison {
	if IsZero(overlay) {
		return Zero
	}
	if base != nil && bytes.Equal(base, overlay) {
		return Same
	}
	return Diff
}
