package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lai/internal/scanner"
)

func result(defs []scanner.Definition, occ ...uint64) scanner.Result {
	res := scanner.Result{
		Definitions: defs,
		Occurrences: make(map[uint64]struct{}, len(occ)),
	}
	for _, h := range occ {
		res.Occurrences[h] = struct{}{}
	}
	return res
}

func TestMergeDefinitionAndReferences(t *testing.T) {
	ix := New()

	anomalies := ix.Merge("a.byml", result(
		[]scanner.Definition{{Hash: 100, Gyaml: "Enemy/Bokoblin"}},
		100, 200,
	))
	assert.Empty(t, anomalies)

	rec, ok := ix.Lookup(100)
	require.True(t, ok)
	assert.Equal(t, "Enemy/Bokoblin", rec.Gyaml)
	assert.Equal(t, "a.byml", rec.Source)
	assert.Equal(t, []string{"a.byml"}, rec.RefList())

	// 200 is referenced but not defined anywhere yet.
	orphan, ok := ix.Lookup(200)
	require.True(t, ok)
	assert.Empty(t, orphan.Source)
	assert.Empty(t, orphan.Gyaml)
	assert.Equal(t, 1, ix.OrphanCount())
}

func TestMergeResolvesOrphan(t *testing.T) {
	ix := New()
	ix.Merge("a.byml", result(nil, 200))

	ix.Merge("b.byml", result([]scanner.Definition{{Hash: 200, Gyaml: "Weapon/Sword_001"}}, 200))

	rec, ok := ix.Lookup(200)
	require.True(t, ok)
	assert.Equal(t, "b.byml", rec.Source)
	assert.Equal(t, "Weapon/Sword_001", rec.Gyaml)
	assert.Equal(t, []string{"a.byml", "b.byml"}, rec.RefList())
	assert.Zero(t, ix.OrphanCount())
}

func TestMergeCommutative(t *testing.T) {
	resA := result([]scanner.Definition{{Hash: 100, Gyaml: "Enemy/Bokoblin"}}, 100, 300)
	resB := result([]scanner.Definition{{Hash: 300, Gyaml: "Npc/Zelda"}}, 300, 100)

	ab := New()
	ab.Merge("a.byml", resA)
	ab.Merge("b.byml", resB)

	ba := New()
	ba.Merge("b.byml", resB)
	ba.Merge("a.byml", resA)

	for _, hash := range []uint64{100, 300} {
		recAB, ok := ab.Lookup(hash)
		require.True(t, ok)
		recBA, ok := ba.Lookup(hash)
		require.True(t, ok)
		assert.Equal(t, recAB.Gyaml, recBA.Gyaml)
		assert.Equal(t, recAB.Source, recBA.Source)
		assert.Equal(t, recAB.RefList(), recBA.RefList())
	}
}

func TestMergeIdempotent(t *testing.T) {
	res := result([]scanner.Definition{{Hash: 100, Gyaml: "Enemy/Bokoblin"}}, 100, 200)

	ix := New()
	ix.Merge("a.byml", res)
	ix.Merge("a.byml", res)

	assert.Equal(t, 2, ix.Len())
	rec, _ := ix.Lookup(100)
	assert.Equal(t, []string{"a.byml"}, rec.RefList())
}

func TestMergeCrossFileDuplicate(t *testing.T) {
	ix := New()
	ix.Merge("a.byml", result([]scanner.Definition{{Hash: 100, Gyaml: "Enemy/Bokoblin"}}, 100))

	anomalies := ix.Merge("b.byml", result([]scanner.Definition{{Hash: 100, Gyaml: "Enemy/Moblin"}}, 100))

	require.Len(t, anomalies, 1)
	assert.Equal(t, scanner.AnomalyDuplicateDefinition, anomalies[0].Kind)
	assert.Equal(t, "b.byml", anomalies[0].Path)

	// First-seen source stays authoritative; the loser still counts as a ref.
	rec, _ := ix.Lookup(100)
	assert.Equal(t, "a.byml", rec.Source)
	assert.Equal(t, "Enemy/Bokoblin", rec.Gyaml)
	assert.Equal(t, []string{"a.byml", "b.byml"}, rec.RefList())
}

func TestRetractRemovesUnevidencedRecords(t *testing.T) {
	ix := New()
	ix.Merge("a.byml", result([]scanner.Definition{{Hash: 100, Gyaml: "Enemy/Bokoblin"}}, 100, 200))
	ix.Merge("b.byml", result(nil, 200))

	ix.Retract(map[string]struct{}{"a.byml": {}})

	// 100 had no other evidence and is gone entirely.
	_, ok := ix.Lookup(100)
	assert.False(t, ok)
	assert.Empty(t, ix.LookupGyaml("Enemy/Bokoblin"))

	// 200 is still referenced by b.byml.
	rec, ok := ix.Lookup(200)
	require.True(t, ok)
	assert.Equal(t, []string{"b.byml"}, rec.RefList())
}

func TestRetractOrphansDefinedRecord(t *testing.T) {
	ix := New()
	ix.Merge("a.byml", result([]scanner.Definition{{Hash: 100, Gyaml: "Enemy/Bokoblin"}}, 100))
	ix.Merge("b.byml", result(nil, 100))

	ix.Retract(map[string]struct{}{"a.byml": {}})

	rec, ok := ix.Lookup(100)
	require.True(t, ok)
	assert.Empty(t, rec.Source)
	assert.Empty(t, rec.Gyaml)
	assert.Equal(t, 1, ix.OrphanCount())
	assert.Empty(t, ix.LookupGyaml("Enemy/Bokoblin"))
}

func TestRetractBatch(t *testing.T) {
	ix := New()
	ix.Merge("a.byml", result([]scanner.Definition{{Hash: 100, Gyaml: "Enemy/Bokoblin"}}, 100, 300))
	ix.Merge("b.byml", result([]scanner.Definition{{Hash: 300, Gyaml: "Npc/Zelda"}}, 300, 100))
	ix.Merge("c.byml", result(nil, 100))

	ix.Retract(map[string]struct{}{"a.byml": {}, "b.byml": {}})

	_, ok := ix.Lookup(300)
	assert.False(t, ok)
	rec, ok := ix.Lookup(100)
	require.True(t, ok)
	assert.Equal(t, []string{"c.byml"}, rec.RefList())
}

func TestRetractEmptySet(t *testing.T) {
	ix := New()
	ix.Merge("a.byml", result(nil, 100))
	ix.Retract(nil)
	assert.Equal(t, 1, ix.Len())
}

func TestLookupGyaml(t *testing.T) {
	ix := New()
	ix.Merge("a.byml", result([]scanner.Definition{
		{Hash: 300, Gyaml: "Enemy/Bokoblin"},
		{Hash: 100, Gyaml: "Enemy/Bokoblin"},
		{Hash: 200, Gyaml: "Npc/Zelda"},
	}, 100, 200, 300))

	recs := ix.LookupGyaml("Enemy/Bokoblin")
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(100), recs[0].Hash)
	assert.Equal(t, uint64(300), recs[1].Hash)

	assert.Empty(t, ix.LookupGyaml("Enemy/Lizalfos"))
	assert.Equal(t, []string{"Enemy/Bokoblin", "Npc/Zelda"}, ix.GyamlNames())
}

func TestSuggest(t *testing.T) {
	ix := New()
	ix.Merge("a.byml", result([]scanner.Definition{
		{Hash: 100, Gyaml: "Enemy/Bokoblin"},
		{Hash: 200, Gyaml: "Enemy/Bokoblin_Gold"},
		{Hash: 300, Gyaml: "Npc/Zelda"},
	}, 100, 200, 300))

	got := ix.Suggest("Enemy/Bokobln", 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "Enemy/Bokoblin", got[0])
	assert.NotContains(t, got, "Npc/Zelda")

	assert.Empty(t, ix.Suggest("zzzz", 3))
	assert.Empty(t, ix.Suggest("Enemy/Bokoblin", 0))
}

func TestRestoreRebuildsSecondaryIndex(t *testing.T) {
	ix := New()
	ix.Restore(&Record{
		Hash:   100,
		Gyaml:  "Enemy/Bokoblin",
		Source: "a.byml",
		Refs:   map[string]struct{}{"a.byml": {}},
	})
	ix.Restore(&Record{
		Hash: 200,
		Refs: map[string]struct{}{"a.byml": {}},
	})

	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, 1, ix.OrphanCount())
	recs := ix.LookupGyaml("Enemy/Bokoblin")
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(100), recs[0].Hash)
}
