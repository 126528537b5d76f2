package cimrepo

import (
	"encoding/binary"
	"fmt"
	"time"
)

type ValueKind uint8

const (
	NoValue ValueKind = iota
	ScalarValue
	ExtentsValue
	ArrayValue
)

func (k ValueKind) String() string {
	switch k {
	case NoValue:
		return "none"
	case ScalarValue:
		return "scalar"
	case ExtentsValue:
		return "extents"
	case ArrayValue:
		return "array"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Value is a decoded field. Scalars are held directly; everything else is
// referenced by extents of Objects.data and only read by Materialize.
type Value struct {
	Kind     ValueKind
	Scalar   uint64
	Extents  Extents
	Elements []Extents
}

func scalarValue(v uint64) Value {
	return Value{Kind: ScalarValue, Scalar: v}
}

func extentsValue(ext Extents) Value {
	return Value{Kind: ExtentsValue, Extents: ext}
}

func arrayValue(elems []Extents) Value {
	return Value{Kind: ArrayValue, Elements: elems}
}

func (v Value) IsSet() bool {
	return v.Kind != NoValue
}

func (v Value) Bool() bool {
	return v.Scalar != 0
}

// readScalar reads a little-endian integer of 1, 2, 4 or 8 bytes.
func readScalar(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		return 0
	}
}

const (
	fileTimeTicksPerSecond = 10_000_000
	fileTimeUnixOffset     = 11644473600 // seconds from 1601-01-01 to 1970-01-01
)

// FileTime converts a Windows FILETIME (100ns ticks since 1601) to UTC time.
func FileTime(ft uint64) time.Time {
	sec := int64(ft/fileTimeTicksPerSecond) - fileTimeUnixOffset
	nsec := int64(ft%fileTimeTicksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}
