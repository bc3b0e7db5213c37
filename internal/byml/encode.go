package byml

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Encode serializes a tree to the little-endian wire format, current
// version. The root must be an array or map node (or null for an empty
// document). Primarily used to build fixtures and verify round-trips.
func Encode(root Node) ([]byte, error) {
	if root.kind == KindNull {
		out := make([]byte, headerSize)
		out[0], out[1] = 'Y', 'B'
		binary.LittleEndian.PutUint16(out[2:4], MaxVersion)
		return out, nil
	}
	if root.kind != KindArray && root.kind != KindMap {
		return nil, fmt.Errorf("byml: root must be a container, got %s", root.kind)
	}

	e := &encoder{
		keyIndex: map[string]int{},
		strIndex: map[string]int{},
	}
	e.collect(root)

	keyTable := buildStringTable(e.keys, e.keyIndex)
	strTable := buildStringTable(e.strs, e.strIndex)

	keyTableOff := 0
	strTableOff := 0
	nodesOff := headerSize
	if len(keyTable) > 0 {
		keyTableOff = nodesOff
		nodesOff += len(keyTable)
	}
	if len(strTable) > 0 {
		strTableOff = nodesOff
		nodesOff += len(strTable)
	}

	e.base = nodesOff
	rootOff := e.writeContainer(root)

	out := make([]byte, 0, nodesOff+len(e.buf))
	header := make([]byte, headerSize)
	header[0], header[1] = 'Y', 'B'
	binary.LittleEndian.PutUint16(header[2:4], MaxVersion)
	binary.LittleEndian.PutUint32(header[4:8], uint32(keyTableOff))
	binary.LittleEndian.PutUint32(header[8:12], uint32(strTableOff))
	binary.LittleEndian.PutUint32(header[12:16], uint32(rootOff))

	out = append(out, header...)
	out = append(out, keyTable...)
	out = append(out, strTable...)
	out = append(out, e.buf...)
	return out, nil
}

type encoder struct {
	keys     []string
	strs     []string
	keyIndex map[string]int
	strIndex map[string]int
	base     int    // absolute offset of the node region
	buf      []byte // node region
}

// collect gathers map keys and string values so the tables can be emitted
// sorted ahead of the nodes.
func (e *encoder) collect(n Node) {
	switch n.kind {
	case KindString:
		if _, ok := e.strIndex[n.str]; !ok {
			e.strIndex[n.str] = 0
			e.strs = append(e.strs, n.str)
		}
	case KindArray:
		for _, c := range n.arr {
			e.collect(c)
		}
	case KindMap:
		for k, c := range n.m {
			if _, ok := e.keyIndex[k]; !ok {
				e.keyIndex[k] = 0
				e.keys = append(e.keys, k)
			}
			e.collect(c)
		}
	}
}

// buildStringTable emits a 0xc2 node and fills index with each string's
// table position. The wire format requires sorted tables.
func buildStringTable(strs []string, index map[string]int) []byte {
	if len(strs) == 0 {
		return nil
	}
	sort.Strings(strs)
	for i, s := range strs {
		index[s] = i
	}

	count := len(strs)
	addrsEnd := 4 + (count+1)*4
	total := addrsEnd
	for _, s := range strs {
		total += len(s) + 1
	}

	out := make([]byte, total)
	out[0] = typeStringTable
	putU24(out[1:4], count)
	pos := addrsEnd
	for i, s := range strs {
		binary.LittleEndian.PutUint32(out[4+i*4:], uint32(pos))
		copy(out[pos:], s)
		pos += len(s) + 1 // keep the null terminator
	}
	binary.LittleEndian.PutUint32(out[4+count*4:], uint32(pos))
	return out
}

func putU24(b []byte, v int) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// writeContainer appends a container node and its descendants, returning the
// container's absolute offset. Offset-valued slots are reserved first and
// patched once each child lands.
func (e *encoder) writeContainer(n Node) int {
	off := e.base + len(e.buf)

	switch n.kind {
	case KindArray:
		count := len(n.arr)
		header := make([]byte, 4+(count+3)&^3)
		header[0] = typeArray
		putU24(header[1:4], count)
		for i, c := range n.arr {
			header[4+i] = wireType(c)
		}
		e.buf = append(e.buf, header...)

		valuesPos := len(e.buf)
		e.buf = append(e.buf, make([]byte, count*4)...)
		for i, c := range n.arr {
			e.writeValue(valuesPos+i*4, c)
		}

	case KindMap:
		keys := n.MapKeys()
		count := len(keys)
		header := make([]byte, 4+count*8)
		header[0] = typeHash
		putU24(header[1:4], count)
		for i, k := range keys {
			entry := header[4+i*8:]
			putU24(entry[0:3], e.keyIndex[k])
			entry[3] = wireType(n.m[k])
		}
		entriesPos := len(e.buf)
		e.buf = append(e.buf, header...)
		for i, k := range keys {
			e.writeValue(entriesPos+4+i*8+4, n.m[k])
		}
	}
	return off
}

// writeValue fills the 4-byte slot at pos (position within buf) for child c,
// appending out-of-line data as needed.
func (e *encoder) writeValue(pos int, c Node) {
	var val uint32
	switch c.kind {
	case KindNull:
		val = 0
	case KindBool:
		val = uint32(c.u64)
	case KindInt, KindUInt:
		val = uint32(c.u64)
	case KindFloat:
		val = math.Float32bits(float32(c.f64))
	case KindString:
		val = uint32(e.strIndex[c.str])
	case KindInt64, KindUInt64:
		val = uint32(e.base + len(e.buf))
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], c.u64)
		e.buf = append(e.buf, tmp[:]...)
	case KindDouble:
		val = uint32(e.base + len(e.buf))
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(c.f64))
		e.buf = append(e.buf, tmp[:]...)
	case KindBinary:
		val = uint32(e.base + len(e.buf))
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(c.raw)))
		e.buf = append(e.buf, tmp[:]...)
		e.buf = append(e.buf, c.raw...)
	case KindArray, KindMap:
		val = uint32(e.writeContainer(c))
	}
	binary.LittleEndian.PutUint32(e.buf[pos:pos+4], val)
}

func wireType(n Node) byte {
	switch n.kind {
	case KindNull:
		return typeNull
	case KindBool:
		return typeBool
	case KindInt:
		return typeInt
	case KindUInt:
		return typeUInt
	case KindFloat:
		return typeFloat
	case KindInt64:
		return typeInt64
	case KindUInt64:
		return typeUInt64
	case KindDouble:
		return typeDouble
	case KindString:
		return typeString
	case KindBinary:
		return typeBinary
	case KindArray:
		return typeArray
	case KindMap:
		return typeHash
	}
	return typeNull
}
