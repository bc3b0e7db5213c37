package byml

import (
	"encoding/binary"
	"fmt"
	"math"

	laierrors "github.com/standardbeagle/lai/internal/errors"
)

// Wire node type tags. Shared between the decoder and encoder.
const (
	typeString      = 0xa0
	typeBinary      = 0xa1
	typeArray       = 0xc0
	typeHash        = 0xc1
	typeStringTable = 0xc2
	typeBool        = 0xd0
	typeInt         = 0xd1
	typeFloat       = 0xd2
	typeUInt        = 0xd3
	typeInt64       = 0xd4
	typeUInt64      = 0xd5
	typeDouble      = 0xd6
	typeNull        = 0xff
)

const headerSize = 16

// The format cannot legitimately nest deeper than this; anything beyond is a
// crafted offset cycle and fails the decode.
const maxDepth = 256

// MinVersion and MaxVersion bound the supported format versions.
const (
	MinVersion = 1
	MaxVersion = 7
)

type decoder struct {
	data  []byte
	order binary.ByteOrder
	keys  []string // hash key table
	strs  []string // string value table
}

// Decode parses a binary document into a Node tree. All offsets are
// bounds-checked; malformed input returns a DecodeError, never a panic.
func Decode(data []byte) (Node, error) {
	if len(data) < headerSize {
		return Node{}, laierrors.NewDecodeError("", 0, fmt.Errorf("document too short: %d bytes", len(data)))
	}

	d := &decoder{data: data}
	switch {
	case data[0] == 'Y' && data[1] == 'B':
		d.order = binary.LittleEndian
	case data[0] == 'B' && data[1] == 'Y':
		d.order = binary.BigEndian
	default:
		return Node{}, laierrors.NewDecodeError("", 0, fmt.Errorf("bad magic 0x%02x%02x", data[0], data[1]))
	}

	version := d.order.Uint16(data[2:4])
	if version < MinVersion || version > MaxVersion {
		return Node{}, laierrors.NewDecodeError("", 2, fmt.Errorf("unsupported format version %d", version))
	}

	keyTableOff := d.order.Uint32(data[4:8])
	strTableOff := d.order.Uint32(data[8:12])
	rootOff := d.order.Uint32(data[12:16])

	var err error
	if keyTableOff != 0 {
		if d.keys, err = d.parseStringTable(int(keyTableOff)); err != nil {
			return Node{}, err
		}
	}
	if strTableOff != 0 {
		if d.strs, err = d.parseStringTable(int(strTableOff)); err != nil {
			return Node{}, err
		}
	}

	// A zero root offset is a legal empty document.
	if rootOff == 0 {
		return NullNode(), nil
	}

	rootType, err := d.byteAt(int(rootOff))
	if err != nil {
		return Node{}, err
	}
	if rootType != typeArray && rootType != typeHash {
		return Node{}, laierrors.NewDecodeError("", int(rootOff), fmt.Errorf("root node type 0x%02x is not a container", rootType))
	}
	return d.parseContainer(int(rootOff), 0)
}

func (d *decoder) byteAt(off int) (byte, error) {
	if off < 0 || off >= len(d.data) {
		return 0, laierrors.NewDecodeError("", off, fmt.Errorf("offset beyond document end (%d bytes)", len(d.data)))
	}
	return d.data[off], nil
}

func (d *decoder) u32At(off int) (uint32, error) {
	if off < 0 || off+4 > len(d.data) {
		return 0, laierrors.NewDecodeError("", off, fmt.Errorf("truncated u32 read"))
	}
	return d.order.Uint32(d.data[off : off+4]), nil
}

func (d *decoder) u64At(off int) (uint64, error) {
	if off < 0 || off+8 > len(d.data) {
		return 0, laierrors.NewDecodeError("", off, fmt.Errorf("truncated u64 read"))
	}
	return d.order.Uint64(d.data[off : off+8]), nil
}

// u24At reads the 3-byte count that follows a container type tag.
func (d *decoder) u24At(off int) (int, error) {
	if off < 0 || off+3 > len(d.data) {
		return 0, laierrors.NewDecodeError("", off, fmt.Errorf("truncated u24 read"))
	}
	b := d.data[off : off+3]
	if d.order == binary.LittleEndian {
		return int(b[0]) | int(b[1])<<8 | int(b[2])<<16, nil
	}
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2]), nil
}

// parseStringTable reads a 0xc2 table node: count, count+1 relative address
// words, then null-terminated strings.
func (d *decoder) parseStringTable(off int) ([]string, error) {
	typ, err := d.byteAt(off)
	if err != nil {
		return nil, err
	}
	if typ != typeStringTable {
		return nil, laierrors.NewDecodeError("", off, fmt.Errorf("expected string table, found node type 0x%02x", typ))
	}
	count, err := d.u24At(off + 1)
	if err != nil {
		return nil, err
	}

	strs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		rel, err := d.u32At(off + 4 + i*4)
		if err != nil {
			return nil, err
		}
		end, err := d.u32At(off + 4 + (i+1)*4)
		if err != nil {
			return nil, err
		}
		start := off + int(rel)
		stop := off + int(end)
		if start < 0 || stop > len(d.data) || start > stop {
			return nil, laierrors.NewDecodeError("", start, fmt.Errorf("string table entry %d out of range", i))
		}
		s := d.data[start:stop]
		// Strip the null terminator included in the address span.
		for len(s) > 0 && s[len(s)-1] == 0 {
			s = s[:len(s)-1]
		}
		strs = append(strs, string(s))
	}
	return strs, nil
}

func (d *decoder) parseContainer(off, depth int) (Node, error) {
	if depth > maxDepth {
		return Node{}, laierrors.NewDecodeError("", off, fmt.Errorf("container nesting exceeds %d levels", maxDepth))
	}
	typ, err := d.byteAt(off)
	if err != nil {
		return Node{}, err
	}
	count, err := d.u24At(off + 1)
	if err != nil {
		return Node{}, err
	}

	switch typ {
	case typeArray:
		// count child type bytes, padded to a 4-byte boundary, then count
		// 4-byte value words.
		typesOff := off + 4
		valuesOff := typesOff + (count+3)&^3
		elems := make([]Node, 0, count)
		for i := 0; i < count; i++ {
			childType, err := d.byteAt(typesOff + i)
			if err != nil {
				return Node{}, err
			}
			val, err := d.u32At(valuesOff + i*4)
			if err != nil {
				return Node{}, err
			}
			child, err := d.parseValue(childType, val, depth+1)
			if err != nil {
				return Node{}, err
			}
			elems = append(elems, child)
		}
		return Node{kind: KindArray, arr: elems}, nil

	case typeHash:
		// count 8-byte entries: u24 key index, u8 child type, u32 value.
		m := make(map[string]Node, count)
		for i := 0; i < count; i++ {
			entryOff := off + 4 + i*8
			keyIdx, err := d.u24At(entryOff)
			if err != nil {
				return Node{}, err
			}
			childType, err := d.byteAt(entryOff + 3)
			if err != nil {
				return Node{}, err
			}
			val, err := d.u32At(entryOff + 4)
			if err != nil {
				return Node{}, err
			}
			if keyIdx >= len(d.keys) {
				return Node{}, laierrors.NewDecodeError("", entryOff, fmt.Errorf("key index %d beyond key table (%d keys)", keyIdx, len(d.keys)))
			}
			child, err := d.parseValue(childType, val, depth+1)
			if err != nil {
				return Node{}, err
			}
			m[d.keys[keyIdx]] = child
		}
		return Node{kind: KindMap, m: m}, nil

	default:
		return Node{}, laierrors.NewDecodeError("", off, fmt.Errorf("node type 0x%02x is not a container", typ))
	}
}

// parseValue interprets a 4-byte value word: inline scalar for small types,
// absolute offset for containers and 8-byte scalars.
func (d *decoder) parseValue(typ byte, val uint32, depth int) (Node, error) {
	switch typ {
	case typeNull:
		return NullNode(), nil
	case typeBool:
		return BoolNode(val != 0), nil
	case typeInt:
		return IntNode(int32(val)), nil
	case typeUInt:
		return UIntNode(val), nil
	case typeFloat:
		return FloatNode(math.Float32frombits(val)), nil
	case typeString:
		if int(val) >= len(d.strs) {
			return Node{}, laierrors.NewDecodeError("", 0, fmt.Errorf("string index %d beyond string table (%d strings)", val, len(d.strs)))
		}
		return StringNode(d.strs[val]), nil
	case typeInt64:
		v, err := d.u64At(int(val))
		if err != nil {
			return Node{}, err
		}
		return Int64Node(int64(v)), nil
	case typeUInt64:
		v, err := d.u64At(int(val))
		if err != nil {
			return Node{}, err
		}
		return UInt64Node(v), nil
	case typeDouble:
		v, err := d.u64At(int(val))
		if err != nil {
			return Node{}, err
		}
		return DoubleNode(math.Float64frombits(v)), nil
	case typeBinary:
		size, err := d.u32At(int(val))
		if err != nil {
			return Node{}, err
		}
		start := int(val) + 4
		if start+int(size) > len(d.data) {
			return Node{}, laierrors.NewDecodeError("", start, fmt.Errorf("binary payload of %d bytes overruns document", size))
		}
		buf := make([]byte, size)
		copy(buf, d.data[start:start+int(size)])
		return BinaryNode(buf), nil
	case typeArray, typeHash:
		return d.parseContainer(int(val), depth)
	default:
		return Node{}, laierrors.NewDecodeError("", 0, fmt.Errorf("unknown node type 0x%02x", typ))
	}
}
