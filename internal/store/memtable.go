package store

import "github.com/google/btree"

// entry is one memtable record; deleted marks a tombstone, which keeps the
// key's entry in place — a delete is itself a write, recorded so later
// reads can tell "never written" apart from "deleted".
type entry struct {
	key     string
	value   []byte
	deleted bool
}

func (e *entry) Less(other btree.Item) bool {
	return e.key < other.(*entry).key
}

// memtable is the in-memory sorted map backing the store: keys ordered
// lexically over a B-tree, values optional (nil + deleted means
// tombstone). It has no locking of its own — Store serializes all access.
type memtable struct {
	tree *btree.BTree
}

func newMemtable() *memtable {
	return &memtable{tree: btree.New(32)}
}

// get reports whether key has ever been written and, if so, its current
// value — nil with present=true for a tombstoned key.
func (m *memtable) get(key string) (value []byte, deleted bool, present bool) {
	item := m.tree.Get(&entry{key: key})
	if item == nil {
		return nil, false, false
	}
	e := item.(*entry)
	return e.value, e.deleted, true
}

// set upserts a live value for key.
func (m *memtable) set(key string, value []byte) {
	m.tree.ReplaceOrInsert(&entry{key: key, value: value})
}

// delete records a tombstone for key, whether or not it was ever set.
func (m *memtable) delete(key string) {
	m.tree.ReplaceOrInsert(&entry{key: key, deleted: true})
}

func (m *memtable) len() int {
	return m.tree.Len()
}
