package store

import "go.uber.org/atomic"

// Stats tracks cumulative operation counters for the observability layer.
// Each field is an independent atomic counter rather than a struct behind
// one mutex, since Store already serializes the calls that touch them and
// the only remaining concurrent access is observability reads.
type Stats struct {
	gets    atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
}

// NewStats returns a zeroed counter set.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncGets()    { s.gets.Inc() }
func (s *Stats) IncSets()    { s.sets.Inc() }
func (s *Stats) IncDeletes() { s.deletes.Inc() }

// Snapshot is a point-in-time copy of the counters, safe to log or
// serialize.
type Snapshot struct {
	Gets    uint64
	Sets    uint64
	Deletes uint64
}

// Snapshot reads all counters consistently enough for reporting purposes
// — each field is read independently, which is fine for monotonic
// counters used only for observability.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Gets:    s.gets.Load(),
		Sets:    s.sets.Load(),
		Deletes: s.deletes.Load(),
	}
}
