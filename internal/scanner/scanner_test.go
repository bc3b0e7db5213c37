package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lai/internal/byml"
)

func defNode(hash uint64, gyaml string) byml.Node {
	return byml.MapNode(map[string]byml.Node{
		KeyHash:  byml.UInt64Node(hash),
		KeyGyaml: byml.StringNode(gyaml),
	})
}

func TestScanCollectsDefinitions(t *testing.T) {
	root := byml.MapNode(map[string]byml.Node{
		"Actors": byml.ArrayNode(
			defNode(100, "Enemy/Bokoblin"),
			defNode(200, "Weapon/Sword_001"),
		),
	})

	res := Scan(root, "Banc/MainField/A-1.byml")

	require.Len(t, res.Definitions, 2)
	assert.Contains(t, res.Definitions, Definition{Hash: 100, Gyaml: "Enemy/Bokoblin"})
	assert.Contains(t, res.Definitions, Definition{Hash: 200, Gyaml: "Weapon/Sword_001"})
	assert.Empty(t, res.Anomalies)
}

func TestScanCollectsOccurrences(t *testing.T) {
	root := byml.MapNode(map[string]byml.Node{
		"Actors": byml.ArrayNode(
			byml.MapNode(map[string]byml.Node{
				KeyHash:  byml.UInt64Node(100),
				KeyGyaml: byml.StringNode("Enemy/Bokoblin"),
				"Links": byml.ArrayNode(
					byml.UInt64Node(200),
					byml.UInt64Node(300),
				),
			}),
		),
		"Rails": byml.ArrayNode(
			byml.MapNode(map[string]byml.Node{
				"Dest": byml.UInt64Node(300),
			}),
		),
		"Version": byml.IntNode(7),
	})

	res := Scan(root, "f.byml")

	// Every non-negative integer scalar counts, definition hashes included.
	for _, want := range []uint64{100, 200, 300, 7} {
		assert.Contains(t, res.Occurrences, want, "missing occurrence %d", want)
	}
	assert.Len(t, res.Occurrences, 4)
}

func TestScanNegativeIntegersIgnored(t *testing.T) {
	root := byml.MapNode(map[string]byml.Node{
		"A": byml.IntNode(-5),
		"B": byml.Int64Node(-1),
		"C": byml.FloatNode(3.5),
		"D": byml.StringNode("300"),
	})

	res := Scan(root, "f.byml")
	assert.Empty(t, res.Occurrences)
}

func TestScanMalformedDefinitions(t *testing.T) {
	tests := []struct {
		name string
		node byml.Node
	}{
		{
			"hash not an integer",
			byml.MapNode(map[string]byml.Node{
				KeyHash:  byml.StringNode("100"),
				KeyGyaml: byml.StringNode("Enemy/Bokoblin"),
			}),
		},
		{
			"missing gyaml",
			byml.MapNode(map[string]byml.Node{
				KeyHash: byml.UInt64Node(100),
			}),
		},
		{
			"empty gyaml",
			byml.MapNode(map[string]byml.Node{
				KeyHash:  byml.UInt64Node(100),
				KeyGyaml: byml.StringNode(""),
			}),
		},
		{
			"gyaml not a string",
			byml.MapNode(map[string]byml.Node{
				KeyHash:  byml.UInt64Node(100),
				KeyGyaml: byml.IntNode(1),
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Scan(tt.node, "f.byml")

			assert.Empty(t, res.Definitions)
			require.Len(t, res.Anomalies, 1)
			assert.Equal(t, AnomalyMalformedDefinition, res.Anomalies[0].Kind)
			assert.Equal(t, "f.byml", res.Anomalies[0].Path)
		})
	}
}

func TestScanDuplicateInDocument(t *testing.T) {
	root := byml.ArrayNode(
		defNode(100, "Enemy/Bokoblin"),
		defNode(100, "Enemy/Moblin"),
	)

	res := Scan(root, "f.byml")

	// First definition in document order wins.
	require.Len(t, res.Definitions, 1)
	assert.Equal(t, "Enemy/Bokoblin", res.Definitions[0].Gyaml)

	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, AnomalyDuplicateDefinition, res.Anomalies[0].Kind)
	assert.Equal(t, uint64(100), res.Anomalies[0].Hash)
}

func TestScanDuplicateSiblingPrecedenceIsStable(t *testing.T) {
	// Eight sibling definitions of the same hash under one map container.
	// Map children walk in sorted key order, so the winner is well-defined
	// and identical on every scan.
	siblings := make(map[string]byml.Node, 8)
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		siblings[k] = defNode(42, "Type_"+k)
	}
	root := byml.MapNode(siblings)

	first := Scan(root, "f.byml")
	require.Len(t, first.Definitions, 1)
	assert.Equal(t, "Type_a", first.Definitions[0].Gyaml)
	assert.Len(t, first.Anomalies, 7)

	for i := 0; i < 20; i++ {
		res := Scan(root, "f.byml")
		require.Len(t, res.Definitions, 1)
		assert.Equal(t, first.Definitions[0].Gyaml, res.Definitions[0].Gyaml)
	}
}

func TestScanMalformedNodeDoesNotAbort(t *testing.T) {
	root := byml.ArrayNode(
		byml.MapNode(map[string]byml.Node{
			KeyHash: byml.UInt64Node(100), // missing Gyaml
		}),
		defNode(200, "Weapon/Sword_001"),
	)

	res := Scan(root, "f.byml")

	require.Len(t, res.Definitions, 1)
	assert.Equal(t, uint64(200), res.Definitions[0].Hash)
	assert.Len(t, res.Anomalies, 1)
}

func TestScanEmptyAndScalarRoots(t *testing.T) {
	for _, root := range []byml.Node{
		byml.NullNode(),
		byml.ArrayNode(),
		byml.MapNode(map[string]byml.Node{}),
	} {
		res := Scan(root, "f.byml")
		assert.Empty(t, res.Definitions)
		assert.Empty(t, res.Occurrences)
		assert.Empty(t, res.Anomalies)
	}
}
