package cache

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	laierrors "github.com/standardbeagle/lai/internal/errors"
	"github.com/standardbeagle/lai/internal/index"
	"github.com/standardbeagle/lai/internal/scanner"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), DefaultFileName))
}

func populatedIndex(t *testing.T) *index.Index {
	t.Helper()
	ix := index.New()
	res := scanner.Result{
		Definitions: []scanner.Definition{
			{Hash: 100, Gyaml: "Enemy/Bokoblin"},
			{Hash: 200, Gyaml: "Weapon/Sword_001"},
		},
		Occurrences: map[uint64]struct{}{100: {}, 200: {}, 300: {}},
	}
	ix.Merge("Banc/MainField/A-1.byml", res)
	ix.Merge("Banc/MainField/A-2.byml", scanner.Result{
		Occurrences: map[uint64]struct{}{100: {}},
	})
	return ix
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := testStore(t)
	ix := populatedIndex(t)
	fps := FingerprintTable{
		"Banc/MainField/A-1.byml": {Hash: 0xaaaa, Size: 1024, MTime: 1700000000000000000},
		"Banc/MainField/A-2.byml": {Hash: 0xbbbb, Size: 2048, MTime: 1700000001000000000},
	}

	require.NoError(t, store.Save(ix, fps))

	gotIdx, gotFps, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, fps, gotFps)
	require.Equal(t, ix.Len(), gotIdx.Len())

	for _, want := range ix.Records() {
		got, ok := gotIdx.Lookup(want.Hash)
		require.True(t, ok, "record %d missing after reload", want.Hash)
		assert.Equal(t, want.Gyaml, got.Gyaml)
		assert.Equal(t, want.Source, got.Source)
		assert.Equal(t, want.RefList(), got.RefList())
	}

	// Secondary index survives the round trip.
	recs := gotIdx.LookupGyaml("Enemy/Bokoblin")
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(100), recs[0].Hash)
	assert.Equal(t, 1, gotIdx.OrphanCount())
}

func TestLoadMissingSnapshotStartsEmpty(t *testing.T) {
	store := testStore(t)

	idx, fps, err := store.Load()
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
	assert.Empty(t, fps)
}

func TestLoadCorruptSnapshotFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(data []byte) []byte
		errType laierrors.ErrorType
	}{
		{
			"truncated",
			func(data []byte) []byte { return data[:len(data)/2] },
			laierrors.ErrorTypeStoreCorrupt,
		},
		{
			"bad magic",
			func(data []byte) []byte { data[0] = 'X'; return data },
			laierrors.ErrorTypeStoreCorrupt,
		},
		{
			"flipped payload byte",
			func(data []byte) []byte { data[12] ^= 0xff; return data },
			laierrors.ErrorTypeStoreCorrupt,
		},
		{
			"future format version",
			func(data []byte) []byte {
				binary.LittleEndian.PutUint32(data[4:8], FormatVersion+1)
				return data
			},
			laierrors.ErrorTypeVersionMismatch,
		},
		{
			"trailing garbage",
			func(data []byte) []byte { return append(data, 0xde, 0xad) },
			laierrors.ErrorTypeStoreCorrupt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testStore(t)
			require.NoError(t, store.Save(populatedIndex(t), FingerprintTable{
				"a.byml": {Hash: 1, Size: 2, MTime: 3},
			}))

			data, err := os.ReadFile(store.Path())
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(store.Path(), tt.mutate(data), 0o644))

			idx, fps, loadErr := store.Load()
			require.Error(t, loadErr)

			var storeErr *laierrors.StoreError
			require.ErrorAs(t, loadErr, &storeErr)
			assert.Equal(t, tt.errType, storeErr.Type)

			// Fail closed: empty state, never a partial one.
			assert.Zero(t, idx.Len())
			assert.Empty(t, fps)
		})
	}
}

func TestSaveEmptyState(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save(index.New(), FingerprintTable{}))

	idx, fps, err := store.Load()
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
	assert.Empty(t, fps)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save(populatedIndex(t), FingerprintTable{
		"a.byml": {Hash: 1, Size: 2, MTime: 3},
	}))

	ix := index.New()
	ix.Merge("b.byml", scanner.Result{Occurrences: map[uint64]struct{}{999: {}}})
	require.NoError(t, store.Save(ix, FingerprintTable{
		"b.byml": {Hash: 4, Size: 5, MTime: 6},
	}))

	idx, fps, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	_, ok := idx.Lookup(999)
	assert.True(t, ok)
	assert.Len(t, fps, 1)

	// No leftover temp files from either save.
	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.Contains(entry.Name(), ".tmp"), "leftover temp file %s", entry.Name())
	}
}

func TestSaveIsDeterministic(t *testing.T) {
	fps := FingerprintTable{
		"b.byml": {Hash: 2, Size: 2, MTime: 2},
		"a.byml": {Hash: 1, Size: 1, MTime: 1},
	}

	store1 := testStore(t)
	require.NoError(t, store1.Save(populatedIndex(t), fps))
	store2 := testStore(t)
	require.NoError(t, store2.Save(populatedIndex(t), fps))

	d1, err := os.ReadFile(store1.Path())
	require.NoError(t, err)
	d2, err := os.ReadFile(store2.Path())
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestSaveRejectsOverlongString(t *testing.T) {
	store := testStore(t)
	long := strings.Repeat("x", maxStringLen+1)
	err := store.Save(index.New(), FingerprintTable{
		long: {Hash: 1, Size: 1, MTime: 1},
	})
	assert.Error(t, err)
}
