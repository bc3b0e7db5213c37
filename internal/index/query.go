package index

import (
	"sort"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/lai/internal/debug"
)

// Lookup returns the record for an identifier. A missing identifier is a
// well-defined empty result, not an error.
func (ix *Index) Lookup(hash uint64) (*Record, bool) {
	rec, ok := ix.records[hash]
	return rec, ok
}

// LookupGyaml returns every record whose type name equals name, ordered by
// hash for stable presentation. Orphan records never match (they carry no
// type name).
func (ix *Index) LookupGyaml(name string) []*Record {
	set, ok := ix.byGyaml[name]
	if !ok {
		return nil
	}
	out := make([]*Record, 0, len(set))
	for hash := range set {
		out = append(out, ix.records[hash])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	debug.LogQuery("gyaml %q matched %d records\n", name, len(out))
	return out
}

// GyamlNames returns all known type names, sorted.
func (ix *Index) GyamlNames() []string {
	names := make([]string, 0, len(ix.byGyaml))
	for name := range ix.byGyaml {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// suggestionThreshold is the minimum Jaro-Winkler similarity for a near-miss
// type name to be offered.
const suggestionThreshold = 0.82

// Suggest returns up to max known type names similar to name, best first.
// Used by the CLI when an exact gyaml lookup comes back empty.
func (ix *Index) Suggest(name string, max int) []string {
	if max <= 0 || len(ix.byGyaml) == 0 {
		return nil
	}

	type scored struct {
		name  string
		score float32
	}
	candidates := make([]scored, 0, 8)
	for candidate := range ix.byGyaml {
		sim, err := edlib.StringsSimilarity(name, candidate, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if sim >= suggestionThreshold {
			candidates = append(candidates, scored{name: candidate, score: sim})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}
