package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_AppendAndScanFromPreservesOrder(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.ensureBucket("orders"))

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, store.append("orders", i, []byte{byte(i)}))
	}

	var seen []uint64
	err := store.scanFrom("orders", 0, func(seq uint64, raw []byte) bool {
		seen = append(seen, seq)
		assert.Equal(t, []byte{byte(seq)}, raw)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seen)
}

func TestStore_ScanFromResumesAfterPosition(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.ensureBucket("orders"))
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, store.append("orders", i, []byte{byte(i)}))
	}

	var seen []uint64
	err := store.scanFrom("orders", 3, func(seq uint64, raw []byte) bool {
		seen = append(seen, seq)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 5}, seen)
}

func TestStore_ScanFromStopsEarlyWhenFnReturnsFalse(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.ensureBucket("orders"))
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, store.append("orders", i, []byte{byte(i)}))
	}

	var seen []uint64
	err := store.scanFrom("orders", 0, func(seq uint64, raw []byte) bool {
		seen = append(seen, seq)
		return seq < 2
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, seen)
}

func TestStore_ScanFromMissingBucketIsNoOp(t *testing.T) {
	store := newTestStore(t)
	calls := 0
	err := store.scanFrom("never-created", 0, func(seq uint64, raw []byte) bool {
		calls++
		return true
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}
