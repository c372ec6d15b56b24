package store

import "sync"

// Store is the facade every session talks to: a single mutex serializes
// Get and Transact so that a transaction's writes are atomic with respect
// to concurrent readers — no reader ever observes half of a transaction's
// effects.
//
// The original this was ported from resolves a bloom-filter hit straight
// into an unconditional memtable lookup and panics if the memtable has no
// entry at all (a false positive with zero corresponding writes). That
// case is reachable in practice and is not a bug here: Get treats a
// filter hit with no memtable entry as absent, same as a filter miss.
type Store struct {
	mu     sync.Mutex
	mem    *memtable
	filter *bloomFilter
	log    *commitLog
	stats  *Stats
}

// Options sizes a Store at construction: bloom filter cardinality/false-
// positive rate (SPEC_FULL.md §4.6) and the commit log's reserved segment
// directory (SPEC_FULL.md §6).
type Options struct {
	BloomN       int
	BloomP       float64
	CommitLogDir string
}

// DefaultOptions mirrors SPEC_FULL.md §4.6's defaults (N=512, p=0.01) and
// leaves the commit log purely in-memory (no directory reserved).
func DefaultOptions() Options {
	return Options{BloomN: defaultBloomN, BloomP: defaultBloomP}
}

// New constructs an empty Store sized per opts. A zero-value BloomN/BloomP
// falls back to the SPEC_FULL.md defaults.
func New(opts Options) (*Store, error) {
	log, err := newCommitLog(opts.CommitLogDir)
	if err != nil {
		return nil, err
	}

	n, p := opts.BloomN, opts.BloomP
	if n <= 0 {
		n = defaultBloomN
	}
	if p <= 0 {
		p = defaultBloomP
	}

	return &Store{
		mem:    newMemtable(),
		filter: newBloomFilter(n, p),
		log:    log,
		stats:  NewStats(),
	}, nil
}

// Get returns a key's current value. ok is false for a key that was never
// set or that was most recently deleted — callers don't distinguish the
// two, matching the wire protocol's single "null" response for both.
func (s *Store) Get(key string) (value []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.IncGets()

	if !s.filter.mayContain(key) {
		return nil, false
	}
	v, deleted, present := s.mem.get(key)
	if !present || deleted {
		return nil, false
	}
	return v, true
}

// Transact applies every write in txn in order, atomically with respect
// to Get. It never fails partway: each Write is a local in-memory upsert
// or tombstone, so once Transact is called with the lock held there is
// nothing left to fail on.
func (s *Store) Transact(txn Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.log.Append(txn); err != nil {
		return err
	}

	for _, w := range txn {
		switch w.Kind {
		case OpSet:
			s.mem.set(w.Key, w.Value)
			s.filter.insert(w.Key)
			s.stats.IncSets()
		case OpDelete:
			s.mem.delete(w.Key)
			s.stats.IncDeletes()
		}
	}
	return nil
}

// Len reports how many keys (live or tombstoned) the memtable currently
// tracks. Used by the observability layer, not by any wire operation.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.len()
}
