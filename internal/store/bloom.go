package store

import (
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/zeebo/xxh3"
)

// defaultBloomN and defaultBloomP size the filter for the expected
// working-set of a single memtable generation: capacity for 512 distinct
// keys at a 1% false-positive rate.
const (
	defaultBloomN = 512
	defaultBloomP = 0.01
)

// bloomFilter is a probabilistic membership filter consulted before the
// memtable on every read: a "maybe present" answer falls through to the
// memtable lookup, while "definitely absent" short-circuits it. It never
// produces false negatives, so it's always safe to trust an absent
// verdict.
//
// Two independent 64-bit digests (rather than k distinct hash functions)
// are combined via the standard double-hashing technique,
// g_i(x) = h1(x) + i*h2(x) mod m, to derive the k bit positions.
type bloomFilter struct {
	bits *bitset.BitSet
	m    uint
	k    uint
}

// newBloomFilter builds a filter optimally sized for n expected insertions
// at false-positive rate p.
func newBloomFilter(n int, p float64) *bloomFilter {
	m := optimalM(n, p)
	k := optimalK(m, n)
	return &bloomFilter{bits: bitset.New(m), m: m, k: k}
}


func optimalM(n int, p float64) uint {
	if n <= 0 {
		n = 1
	}
	m := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	if m < 1 {
		m = 1
	}
	return uint(m)
}

func optimalK(m uint, n int) uint {
	if n <= 0 {
		n = 1
	}
	k := math.Round((float64(m) / float64(n)) * math.Ln2)
	if k < 1 {
		k = 1
	}
	return uint(k)
}

// positions derives two independent digests for key using xxh3's seeded
// string hash twice with different seeds, rather than maintaining k
// separate hash function implementations.
func (f *bloomFilter) positions(key string) (h1, h2 uint64) {
	return xxh3.HashStringSeed(key, 0), xxh3.HashStringSeed(key, 1)
}

// insert records key as present. It is never removed — SPEC_FULL.md keeps
// a single append-only filter per store generation, so a deleted key
// keeps registering as "maybe present" and falls through to the memtable,
// where its tombstone is authoritative.
func (f *bloomFilter) insert(key string) {
	h1, h2 := f.positions(key)
	for i := uint64(0); i < uint64(f.k); i++ {
		pos := (h1 + i*h2) % uint64(f.m)
		f.bits.Set(uint(pos))
	}
}

// mayContain reports whether key could be present. false is definitive;
// true means "check the memtable".
func (f *bloomFilter) mayContain(key string) bool {
	h1, h2 := f.positions(key)
	for i := uint64(0); i < uint64(f.k); i++ {
		pos := (h1 + i*h2) % uint64(f.m)
		if !f.bits.Test(uint(pos)) {
			return false
		}
	}
	return true
}
