package store

import (
	"fmt"
	"os"
)

// commitLog is a reserved durability hook. SPEC_FULL.md's storage engine
// is in-memory only — there is no on-disk recovery format yet — but every
// Transaction already flows through Append so that adding write-ahead
// durability later is a matter of filling this in, not re-plumbing the
// Store facade. dir is reserved for the append-only segment files
// described in SPEC_FULL.md §6; newCommitLog reserves it on disk even
// though Append doesn't write to it yet.
type commitLog struct {
	dir     string
	entries int
}

// newCommitLog records dir as the commit log's segment directory,
// creating it if it doesn't already exist. dir may be empty, in which
// case the log stays purely in-memory (used by tests that don't care
// about on-disk layout).
func newCommitLog(dir string) (*commitLog, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: reserve commit log directory %s: %w", dir, err)
		}
	}
	return &commitLog{dir: dir}, nil
}

// Append records txn. It currently only counts entries; no bytes are
// persisted to dir yet.
func (c *commitLog) Append(txn Transaction) error {
	c.entries += len(txn)
	return nil
}
