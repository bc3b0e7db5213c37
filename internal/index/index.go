// Package index maintains the reverse index from actor identifier to the
// files that define and reference it.
package index

import (
	"sort"

	"github.com/standardbeagle/lai/internal/debug"
	"github.com/standardbeagle/lai/internal/scanner"
)

// Record is the indexed unit for one identifier. Source is empty for orphan
// records (referenced somewhere, defined nowhere).
type Record struct {
	Hash   uint64
	Gyaml  string
	Source string
	Refs   map[string]struct{}
}

// RefList returns the referencing file paths sorted for presentation.
func (r *Record) RefList() []string {
	refs := make([]string, 0, len(r.Refs))
	for p := range r.Refs {
		refs = append(refs, p)
	}
	sort.Strings(refs)
	return refs
}

// Index is the reverse index plus a gyaml secondary index kept consistent
// through Merge and Retract. It is not internally synchronized: updates are
// single-writer, loaded snapshots are read-only (see the indexing engine).
type Index struct {
	records map[uint64]*Record
	byGyaml map[string]map[uint64]struct{}
}

// New creates an empty index.
func New() *Index {
	return &Index{
		records: make(map[uint64]*Record),
		byGyaml: make(map[string]map[uint64]struct{}),
	}
}

// Len returns the number of records.
func (ix *Index) Len() int {
	return len(ix.records)
}

// OrphanCount returns the number of records with no known defining file.
func (ix *Index) OrphanCount() int {
	n := 0
	for _, r := range ix.records {
		if r.Source == "" {
			n++
		}
	}
	return n
}

// Merge folds one file's scan result into the index. Commutative across
// files and idempotent for a repeated (path, result) pair. Returned
// anomalies cover cross-file duplicate definitions.
func (ix *Index) Merge(path string, res scanner.Result) []scanner.Anomaly {
	var anomalies []scanner.Anomaly

	for _, def := range res.Definitions {
		rec := ix.ensure(def.Hash)
		switch {
		case rec.Source == "" || rec.Source == path:
			rec.Source = path
			ix.setGyaml(rec, def.Gyaml)
		default:
			// First-seen source stays authoritative.
			anomalies = append(anomalies, scanner.Anomaly{
				Kind:   scanner.AnomalyDuplicateDefinition,
				Path:   path,
				Hash:   def.Hash,
				Detail: "identifier already defined in " + rec.Source,
			})
		}
	}

	for hash := range res.Occurrences {
		rec := ix.ensure(hash)
		rec.Refs[path] = struct{}{}
	}

	return anomalies
}

// Retract removes a set of files' contributions in one sweep: drop the paths
// from every record's referencing set, clear sources that point at a
// retracted path, and delete records no longer evidenced by any file.
func (ix *Index) Retract(paths map[string]struct{}) {
	if len(paths) == 0 {
		return
	}
	removed := 0
	for hash, rec := range ix.records {
		for p := range paths {
			delete(rec.Refs, p)
		}
		if _, gone := paths[rec.Source]; gone {
			// Orphaned pending a rescan, which may re-establish a source.
			ix.setGyaml(rec, "")
			rec.Source = ""
		}
		if rec.Source == "" && len(rec.Refs) == 0 {
			delete(ix.records, hash)
			removed++
		}
	}
	debug.LogIndexing("retracted %d paths, removed %d unevidenced records\n", len(paths), removed)
}

func (ix *Index) ensure(hash uint64) *Record {
	rec, ok := ix.records[hash]
	if !ok {
		rec = &Record{Hash: hash, Refs: make(map[string]struct{})}
		ix.records[hash] = rec
	}
	return rec
}

// setGyaml updates a record's type name and the secondary index together.
func (ix *Index) setGyaml(rec *Record, gyaml string) {
	if rec.Gyaml == gyaml {
		return
	}
	if rec.Gyaml != "" {
		if set, ok := ix.byGyaml[rec.Gyaml]; ok {
			delete(set, rec.Hash)
			if len(set) == 0 {
				delete(ix.byGyaml, rec.Gyaml)
			}
		}
	}
	rec.Gyaml = gyaml
	if gyaml != "" {
		set, ok := ix.byGyaml[gyaml]
		if !ok {
			set = make(map[uint64]struct{})
			ix.byGyaml[gyaml] = set
		}
		set[rec.Hash] = struct{}{}
	}
}

// Records returns all records in unspecified order. Callers must treat the
// result as read-only.
func (ix *Index) Records() []*Record {
	out := make([]*Record, 0, len(ix.records))
	for _, r := range ix.records {
		out = append(out, r)
	}
	return out
}

// Restore rebuilds index internals from persisted records. Used by the cache
// store on load; rec ownership transfers to the index.
func (ix *Index) Restore(rec *Record) {
	ix.records[rec.Hash] = rec
	if rec.Gyaml != "" {
		set, ok := ix.byGyaml[rec.Gyaml]
		if !ok {
			set = make(map[uint64]struct{})
			ix.byGyaml[rec.Gyaml] = set
		}
		set[rec.Hash] = struct{}{}
	}
}
