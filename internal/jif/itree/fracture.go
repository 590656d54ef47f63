package itree

import (
	"sort"
	"sync"
	"time"

	"github.com/bsdinis/jiftool/internal/jif/dedup"
	"github.com/bsdinis/jiftool/internal/jiflog"
)

// fractureJob is one original interval to split at a set of boundaries and
// dedupe, mirroring the copyJob shape used by the uffd parallel-copy path:
// a self-contained unit of work plus a shared destination (here, the
// Deduper instead of a destination mapping).
type fractureJob struct {
	interval Interval
	splits   []uint64 // boundaries strictly inside (interval.Start, interval.End)
}

// Fracture splits every data-bearing interval of t at the given ordering
// boundaries (deduplicated, ascending vaddr values) and lowers each
// resulting piece into its canonical token-backed form. Zero and empty
// slots pass through unchanged; they carry no bytes to split or dedupe.
//
// The split-and-dedupe work for each original interval is independent, so
// it runs across a fixed worker pool sharing a single Deduper guarded by
// its own RWMutex -- the same jobCh/errCh/sync.WaitGroup shape the uffd
// parallel-copy path uses to share one destination mapping across
// goroutines copying disjoint regions.
func Fracture(t *Tree, boundaries []uint64, dd *dedup.Deduper, workers int) (*Tree, error) {
	if workers < 1 {
		workers = 1
	}
	sortedBounds := append([]uint64(nil), boundaries...)
	sort.Slice(sortedBounds, func(i, j int) bool { return sortedBounds[i] < sortedBounds[j] })

	originals := t.InOrderIntervals()
	jobs := make([]fractureJob, 0, len(originals))
	for _, iv := range originals {
		jobs = append(jobs, fractureJob{interval: iv, splits: splitsWithin(sortedBounds, iv.Start, iv.End)})
	}

	log := jiflog.Entry("fracture")
	log.Debugf("fracturing %d interval(s) at %d boundary(ies) across %d worker(s)", len(jobs), len(sortedBounds), workers)
	start := time.Now()

	jobCh := make(chan int, len(jobs))
	for i := range jobs {
		jobCh <- i
	}
	close(jobCh)

	results := make([][]Interval, len(jobs))
	errCh := make(chan error, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				pieces, err := fractureOne(jobs[idx], dd)
				if err != nil {
					errCh <- err
					return
				}
				results[idx] = pieces
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			log.Debugf("fracture failed after %s: %v", time.Since(start), err)
			return nil, err
		}
	}

	var flat []Interval
	for _, pieces := range results {
		flat = append(flat, pieces...)
	}
	log.Debugf("fracture produced %d piece(s) in %s", len(flat), time.Since(start))
	return Build(t.Flavor, flat, t.VRange)
}

// splitsWithin returns the subset of bounds strictly between start and end.
func splitsWithin(bounds []uint64, start, end uint64) []uint64 {
	var out []uint64
	for _, b := range bounds {
		if b > start && b < end {
			out = append(out, b)
		}
	}
	return out
}

// fractureOne splits a single interval at its local boundaries, dedupes
// each resulting piece's bytes into dd, and returns the resulting pieces
// in their canonical KindRef (or KindZero/unchanged) form.
func fractureOne(job fractureJob, dd *dedup.Deduper) ([]Interval, error) {
	iv := job.interval
	if iv.IsNone() || iv.IsZero() || len(job.splits) == 0 {
		return []Interval{lower(iv, dd)}, nil
	}

	cuts := append([]uint64{iv.Start}, job.splits...)
	cuts = append(cuts, iv.End)

	out := make([]Interval, 0, len(cuts)-1)
	for i := 0; i+1 < len(cuts); i++ {
		piece, ok := iv.Intersect(cuts[i], cuts[i+1])
		if !ok {
			continue
		}
		out = append(out, lower(piece, dd))
	}
	return out, nil
}

// lower converts an Owned-data interval into its canonical token-backed
// form by inserting its bytes into dd. Already-canonical (Ref) and
// non-data intervals pass through unchanged.
func lower(iv Interval, dd *dedup.Deduper) Interval {
	if iv.Data.Kind != KindOwned {
		return iv
	}
	tok := dd.Insert(iv.Data.Bytes)
	iv.Data = RefData(tok)
	return iv
}
