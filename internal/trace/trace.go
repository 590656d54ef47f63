// Package trace parses the access-trace log format emitted by the
// junction tracer: one "<usecs>: <addr>" line per memory access, in
// chronological order. jiftool turns such a trace into an ordering section
// that tells a JIF loader which pages to prefetch first.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/jif/ord"
	"github.com/bsdinis/jiftool/internal/jif/page"
)

// ordWriteFlag marks an access as a write in the tracer's raw address
// encoding; jiftool only cares about which pages were touched, not the
// access kind, so it is masked off immediately.
const ordWriteFlag = uint64(1) << 60
const ordFlagMask = ordWriteFlag - 1

// Access is one parsed trace line.
type Access struct {
	Usecs uint64
	Addr  uint64 // masked, i.e. with any tracer metadata bits stripped
}

// ParseLine parses a single "<usecs>: <address>" line. Address may be
// decimal or 0x-prefixed hex.
func ParseLine(line string) (Access, error) {
	usecStr, addrStr, ok := strings.Cut(line, ":")
	if !ok {
		return Access{}, fmt.Errorf("trace: missing ':' delimiter in %q", line)
	}

	usecs, err := strconv.ParseUint(strings.TrimSpace(usecStr), 10, 64)
	if err != nil {
		return Access{}, fmt.Errorf("trace: bad timestamp in %q: %w", line, err)
	}

	addrStr = strings.TrimSpace(addrStr)
	var addr uint64
	if hexStr, ok := strings.CutPrefix(addrStr, "0x"); ok {
		addr, err = strconv.ParseUint(hexStr, 16, 64)
	} else {
		addr, err = strconv.ParseUint(addrStr, 10, 64)
	}
	if err != nil {
		return Access{}, fmt.Errorf("trace: bad address in %q: %w", line, err)
	}

	return Access{Usecs: usecs, Addr: addr & ordFlagMask}, nil
}

// ReadTrace reads every line from r as an Access, in file order.
func ReadTrace(r io.Reader) ([]Access, error) {
	var accesses []Access
	scanner := bufio.NewScanner(r)
	for lineNo := 0; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		a, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("trace: line %d: %w", lineNo, err)
		}
		accesses = append(accesses, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trace: reading: %w", err)
	}
	return accesses, nil
}

// ToOrdChunks reduces a trace to an ordering section: each access's address
// is truncated to its containing page, duplicate pages (a page touched more
// than once) are dropped after their first occurrence, and the remaining
// first-touch order is run-length encoded into ord.Chunks via ord.Merge. j
// identifies which pheader maps each page, so a run that happens to cross
// from one pheader's range into an adjacent one splits into separate
// chunks instead of merging across the boundary.
func ToOrdChunks(j *jif.Jif, accesses []Access) []ord.Chunk {
	sort.SliceStable(accesses, func(i, j int) bool { return accesses[i].Usecs < accesses[j].Usecs })

	seen := make(map[uint64]bool, len(accesses))
	pages := make([]uint64, 0, len(accesses))
	for _, a := range accesses {
		p := page.AlignDown(a.Addr)
		if seen[p] {
			continue
		}
		seen[p] = true
		pages = append(pages, p)
	}

	samePheader := func(a, b uint64) bool {
		aIdx, aOK := j.MappingPheaderIdx(a)
		bIdx, bOK := j.MappingPheaderIdx(b)
		return aOK && bOK && aIdx == bIdx
	}
	return ord.Merge(pages, samePheader)
}
