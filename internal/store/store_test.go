package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(DefaultOptions())
	require.NoError(t, err)
	return s
}

func TestStore_GetUnsetKeyIsAbsent(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Get("missing")
	require.False(t, ok)
}

func TestStore_SetThenGet(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Transact(Transaction{}.Set("k", []byte("v"))))
	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestStore_DeleteLeavesTombstone(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Transact(Transaction{}.Set("k", []byte("v"))))
	require.NoError(t, s.Transact(Transaction{}.Delete("k")))

	_, ok := s.Get("k")
	require.False(t, ok)

	v, deleted, present := s.mem.get("k")
	require.True(t, present)
	require.True(t, deleted)
	require.Nil(t, v)
}

func TestStore_DeleteOfNeverSetKey(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Transact(Transaction{}.Delete("never-set")))
	_, ok := s.Get("never-set")
	require.False(t, ok)
}

func TestStore_TransactionAppliesInOrder(t *testing.T) {
	s := newTestStore(t)
	txn := Transaction{}.Set("a", []byte("1")).Set("b", []byte("2")).Delete("a")
	require.NoError(t, s.Transact(txn))

	_, ok := s.Get("a")
	require.False(t, ok, "later delete in the same transaction must win")
	v, ok := s.Get("b")
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}

func TestStore_OverwriteUpdatesValue(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Transact(Transaction{}.Set("k", []byte("first"))))
	require.NoError(t, s.Transact(Transaction{}.Set("k", []byte("second"))))
	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("second"), v)
}

func TestStore_CustomBloomSizingIsHonored(t *testing.T) {
	s, err := New(Options{BloomN: 4, BloomP: 0.5})
	require.NoError(t, err)
	require.Equal(t, uint(6), s.filter.m, "m = ceil(-4·ln 0.5 / (ln 2)²)")
	require.NoError(t, s.Transact(Transaction{}.Set("k", []byte("v"))))
	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestBloomFilter_NoFalseNegatives(t *testing.T) {
	f := newBloomFilter(256, 0.01)
	keys := make([]string, 256)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		f.insert(keys[i])
	}
	for _, k := range keys {
		require.True(t, f.mayContain(k), "inserted key must never read as absent")
	}
}

func TestBloomFilter_AbsentKeyUsuallyReportsAbsent(t *testing.T) {
	f := newBloomFilter(256, 0.01)
	for i := 0; i < 256; i++ {
		f.insert(fmt.Sprintf("present-%d", i))
	}
	falsePositives := 0
	trials := 1000
	for i := 0; i < trials; i++ {
		if f.mayContain(fmt.Sprintf("absent-%d", i)) {
			falsePositives++
		}
	}
	require.Less(t, falsePositives, trials/5, "false positive rate should stay under 20% for a filter sized for 1%")
}
