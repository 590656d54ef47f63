// Package dedup implements the content-addressed byte store shared by every
// ITree in a Jif. A single Deduper backs all pheaders so identical private
// pages across different mappings are stored once.
//
// Choice of hash function is intentionally out of scope here: any strong
// 64-bit content hash works, so Deduper uses the standard library's
// FNV-1a rather than pulling in an ecosystem hashing package.
package dedup

import (
	"hash/fnv"
	"sync"
)

// Token identifies a unique byte sequence stored in a Deduper. The zero
// Token never refers to a stored sequence.
type Token uint64

// Deduper is a content-addressed byte store. It is safe for concurrent use;
// Insert takes a write lock, Get takes a read lock, so that the ITree
// fracture worker pool can share a single Deduper across goroutines the
// same way uffd's copyJob workers share a single destination mapping.
type Deduper struct {
	mu     sync.RWMutex
	byTok  map[Token][]byte
	byHash map[Token]Token // hash(data) -> canonical token, for dedup on insert
}

// New returns an empty Deduper.
func New() *Deduper {
	return &Deduper{
		byTok:  make(map[Token][]byte),
		byHash: make(map[Token]Token),
	}
}

// NewWithCapacity returns an empty Deduper pre-sized for n distinct entries.
func NewWithCapacity(n int) *Deduper {
	return &Deduper{
		byTok:  make(map[Token][]byte, n),
		byHash: make(map[Token]Token, n),
	}
}

func hashOf(data []byte) Token {
	h := fnv.New64a()
	h.Write(data)
	return Token(h.Sum64())
}

// Insert stores data and returns a Token for it. If an identical byte
// sequence has already been inserted, the existing Token is returned and no
// new copy is made.
func (d *Deduper) Insert(data []byte) Token {
	hash := hashOf(data)

	d.mu.RLock()
	if tok, ok := d.byHash[hash]; ok {
		d.mu.RUnlock()
		return tok
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	// Re-check under the write lock: another goroutine may have inserted
	// the same content while we waited.
	if tok, ok := d.byHash[hash]; ok {
		return tok
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	d.byTok[hash] = owned
	d.byHash[hash] = hash
	return hash
}

// Get returns the bytes stored for tok, or nil, false if tok is unknown.
func (d *Deduper) Get(tok Token) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.byTok[tok]
	return b, ok
}

// Len returns the number of distinct byte sequences currently stored.
func (d *Deduper) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byTok)
}

// FromDataMap builds a Deduper from a set of already-materialized byte
// ranges (keyed by an opaque range identifier, e.g. a data-segment
// offset), and returns the token each range was assigned. This is the
// entry point jif.FromRaw uses to turn a parsed data segment into the
// canonical token-backed representation.
func FromDataMap[K comparable](dataMap map[K][]byte) (*Deduper, map[K]Token) {
	d := NewWithCapacity(len(dataMap))
	tokens := make(map[K]Token, len(dataMap))
	for k, v := range dataMap {
		tokens[k] = d.Insert(v)
	}
	return d, tokens
}

// Destructure returns the stored byte slice for every token in tokenMap,
// keyed the same way tokenMap is keyed. A token present in tokenMap but
// absent from the Deduper indicates a structural bug (an interval
// referencing a token that was never inserted), so Destructure panics
// rather than returning a partial result: this can only happen if the
// ITree and Deduper have gotten out of sync, which is an invariant
// violation, not a recoverable runtime condition.
func (d *Deduper) Destructure(tokenMap map[uint64]Token) map[uint64][]byte {
	out := make(map[uint64][]byte, len(tokenMap))
	for k, tok := range tokenMap {
		b, ok := d.Get(tok)
		if !ok {
			panic("dedup: token referenced by an interval was never inserted")
		}
		out[k] = b
	}
	return out
}
