// Package scanner extracts actor definitions and identifier occurrences
// from one decoded document tree.
package scanner

import (
	"github.com/standardbeagle/lai/internal/byml"
)

// Canonical dump-format keys marking an actor definition node.
const (
	KeyHash  = "Hash"
	KeyGyaml = "Gyaml"
)

// Definition is an actor declaration: identifier plus its gyaml type name.
type Definition struct {
	Hash  uint64
	Gyaml string
}

// AnomalyKind classifies non-fatal findings reported during a run.
type AnomalyKind string

const (
	AnomalyMalformedDefinition AnomalyKind = "malformed_definition"
	AnomalyDuplicateDefinition AnomalyKind = "duplicate_definition"
	AnomalyDecodeFailure       AnomalyKind = "decode_failure"
)

// Anomaly records a local problem that never aborts scanning.
type Anomaly struct {
	Kind   AnomalyKind `json:"kind"`
	Path   string      `json:"path"`
	Hash   uint64      `json:"hash,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// Result holds one file's local findings: definitions in document order and
// the set of every 64-bit identifier value appearing anywhere in the tree.
type Result struct {
	Definitions []Definition
	Occurrences map[uint64]struct{}
	Anomalies   []Anomaly
}

// Scan traverses the decoded tree for path, collecting definitions and all
// identifier occurrences. One malformed node never aborts the rest of the
// file; it is reported as an anomaly and traversal continues.
func Scan(root byml.Node, path string) Result {
	s := &scan{
		path: path,
		res: Result{
			Occurrences: make(map[uint64]struct{}),
		},
		seen: make(map[uint64]struct{}),
	}
	s.walk(root)
	return s.res
}

type scan struct {
	path string
	res  Result
	seen map[uint64]struct{} // hashes already defined in this document
}

func (s *scan) walk(n byml.Node) {
	switch n.Kind() {
	case byml.KindArray:
		for _, c := range n.Array() {
			s.walk(c)
		}
	case byml.KindMap:
		s.visitMap(n)
		// Key-table order is document order; iterating sorted keys keeps
		// duplicate-definition precedence stable across runs.
		for _, k := range n.MapKeys() {
			c, _ := n.Get(k)
			s.walk(c)
		}
	default:
		if v, ok := n.AsU64(); ok {
			s.res.Occurrences[v] = struct{}{}
		}
	}
}

// visitMap checks whether a map node is an actor definition. A node carrying
// the canonical identifier key but a missing or unusable type name is a
// malformed definition; the walk continues either way.
func (s *scan) visitMap(n byml.Node) {
	hashNode, ok := n.Get(KeyHash)
	if !ok {
		return
	}
	hash, ok := hashNode.AsU64()
	if !ok {
		// An identifier key with a non-integer value cannot define anything.
		s.anomaly(AnomalyMalformedDefinition, 0, "Hash value is not a 64-bit integer")
		return
	}

	gyamlNode, ok := n.Get(KeyGyaml)
	if !ok {
		s.anomaly(AnomalyMalformedDefinition, hash, "definition node missing Gyaml key")
		return
	}
	gyaml, ok := gyamlNode.AsString()
	if !ok || gyaml == "" {
		s.anomaly(AnomalyMalformedDefinition, hash, "Gyaml value is not a non-empty string")
		return
	}

	if _, dup := s.seen[hash]; dup {
		// First definition in document order stays authoritative.
		s.anomaly(AnomalyDuplicateDefinition, hash, "identifier defined twice in one document")
		return
	}
	s.seen[hash] = struct{}{}
	s.res.Definitions = append(s.res.Definitions, Definition{Hash: hash, Gyaml: gyaml})
}

func (s *scan) anomaly(kind AnomalyKind, hash uint64, detail string) {
	s.res.Anomalies = append(s.res.Anomalies, Anomaly{
		Kind:   kind,
		Path:   s.path,
		Hash:   hash,
		Detail: detail,
	})
}
