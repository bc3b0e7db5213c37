// Package byml decodes the hierarchical binary document format used by the
// game dump into a generic tree of maps, sequences, and scalars.
package byml

import "sort"

// Kind identifies the variant held by a Node.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUInt
	KindFloat
	KindInt64
	KindUInt64
	KindDouble
	KindString
	KindBinary
	KindArray
	KindMap
)

// String returns a human-readable kind name
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUInt:
		return "uint"
	case KindFloat:
		return "float"
	case KindInt64:
		return "int64"
	case KindUInt64:
		return "uint64"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	}
	return "unknown"
}

// Node is a tagged-variant document tree node. The zero value is the null
// node. Nodes are immutable once built; sharing across goroutines is safe.
type Node struct {
	kind Kind
	u64  uint64
	f64  float64
	str  string
	raw  []byte
	arr  []Node
	m    map[string]Node
}

// Constructors for each variant.

func NullNode() Node             { return Node{kind: KindNull} }
func StringNode(s string) Node   { return Node{kind: KindString, str: s} }
func BinaryNode(b []byte) Node   { return Node{kind: KindBinary, raw: b} }
func FloatNode(f float32) Node   { return Node{kind: KindFloat, f64: float64(f)} }
func DoubleNode(f float64) Node  { return Node{kind: KindDouble, f64: f} }
func IntNode(v int32) Node       { return Node{kind: KindInt, u64: uint64(int64(v))} }
func UIntNode(v uint32) Node     { return Node{kind: KindUInt, u64: uint64(v)} }
func Int64Node(v int64) Node     { return Node{kind: KindInt64, u64: uint64(v)} }
func UInt64Node(v uint64) Node   { return Node{kind: KindUInt64, u64: v} }
func ArrayNode(ns ...Node) Node  { return Node{kind: KindArray, arr: ns} }
func MapNode(m map[string]Node) Node {
	return Node{kind: KindMap, m: m}
}

func BoolNode(b bool) Node {
	n := Node{kind: KindBool}
	if b {
		n.u64 = 1
	}
	return n
}

// Kind returns the variant tag.
func (n Node) Kind() Kind { return n.kind }

// IsNull reports whether the node is the null variant.
func (n Node) IsNull() bool { return n.kind == KindNull }

// Get looks up a key in a map node. Returns the null node and false for
// missing keys or non-map nodes.
func (n Node) Get(key string) (Node, bool) {
	if n.kind != KindMap {
		return Node{}, false
	}
	c, ok := n.m[key]
	return c, ok
}

// Index returns the i-th element of an array node.
func (n Node) Index(i int) (Node, bool) {
	if n.kind != KindArray || i < 0 || i >= len(n.arr) {
		return Node{}, false
	}
	return n.arr[i], true
}

// Len returns the element count of an array or map node, 0 otherwise.
func (n Node) Len() int {
	switch n.kind {
	case KindArray:
		return len(n.arr)
	case KindMap:
		return len(n.m)
	}
	return 0
}

// Array returns the underlying slice of an array node (nil otherwise).
// Callers must not mutate the result.
func (n Node) Array() []Node {
	if n.kind != KindArray {
		return nil
	}
	return n.arr
}

// Map returns the underlying map of a map node (nil otherwise).
// Callers must not mutate the result.
func (n Node) Map() map[string]Node {
	if n.kind != KindMap {
		return nil
	}
	return n.m
}

// MapKeys returns the sorted keys of a map node.
func (n Node) MapKeys() []string {
	if n.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(n.m))
	for k := range n.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsString returns the string value of a string node.
func (n Node) AsString() (string, bool) {
	if n.kind != KindString {
		return "", false
	}
	return n.str, true
}

// AsBool returns the value of a bool node.
func (n Node) AsBool() (bool, bool) {
	if n.kind != KindBool {
		return false, false
	}
	return n.u64 != 0, true
}

// AsBinary returns the payload of a binary node.
func (n Node) AsBinary() ([]byte, bool) {
	if n.kind != KindBinary {
		return nil, false
	}
	return n.raw, true
}

// AsFloat returns the value of a float or double node.
func (n Node) AsFloat() (float64, bool) {
	if n.kind != KindFloat && n.kind != KindDouble {
		return 0, false
	}
	return n.f64, true
}

// AsU64 returns the value of any integer node as a uint64. Negative values
// cannot name identifiers and report false.
func (n Node) AsU64() (uint64, bool) {
	switch n.kind {
	case KindUInt, KindUInt64:
		return n.u64, true
	case KindInt, KindInt64:
		if int64(n.u64) < 0 {
			return 0, false
		}
		return n.u64, true
	}
	return 0, false
}

// AsI64 returns the value of a signed integer node.
func (n Node) AsI64() (int64, bool) {
	switch n.kind {
	case KindInt, KindInt64:
		return int64(n.u64), true
	}
	return 0, false
}
