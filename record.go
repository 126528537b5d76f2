package cimrepo

import (
	"fmt"
	"strings"
)

type FieldKind uint8

const (
	FieldString FieldKind = iota + 1
	FieldBytes
	FieldBool
	FieldU16
	FieldU32
	FieldI32
	FieldU64
	FieldStringArray
)

var fieldKindNames = [...]string{
	FieldString:      "string",
	FieldBytes:       "bytes",
	FieldBool:        "bool",
	FieldU16:         "uint16",
	FieldU32:         "uint32",
	FieldI32:         "int32",
	FieldU64:         "uint64",
	FieldStringArray: "string[]",
}

func (k FieldKind) String() string {
	if int(k) < len(fieldKindNames) && fieldKindNames[k] != "" {
		return fieldKindNames[k]
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// FieldSpec describes one slot of a record's table of contents.
type FieldSpec struct {
	Kind FieldKind
	Size int
	Name string
}

// Schema is the fixed layout of one record family.
type Schema struct {
	TypeName string
	Gap      int
	Fields   []FieldSpec
}

func (s *Schema) TocSize() int {
	var n int
	for _, f := range s.Fields {
		n += f.Size
	}
	return n
}

func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// RecordHeader is the envelope shared by instance-like records.
type RecordHeader struct {
	Marker     Extents
	Timestamp1 uint64
	Timestamp2 uint64
}

// DecodedRecord holds one value per schema field, in schema order. Absent
// fields have Kind NoValue.
type DecodedRecord struct {
	Schema *Schema
	Header RecordHeader
	Values []Value
}

func (r *DecodedRecord) Value(name string) Value {
	if i := r.Schema.FieldIndex(name); i >= 0 {
		return r.Values[i]
	}
	return Value{}
}

// readRecordHeader consumes the type marker, both timestamps and the
// remaining size word.
func readRecordHeader(d *byteDecoder, ext Extents, dg Digest, typeName string) (RecordHeader, error) {
	var h RecordHeader
	n := dg.MarkerLen()
	if d.Remaining() < n {
		return h, dataErrf(d.Orig, d.Off(), ErrTruncated, "record too short for a %v marker", dg)
	}
	if !dg.MatchMarker(d.Buf, typeName) {
		return h, dataErrf(d.Orig[:n], 0, ErrTypeMismatch, "not a %s record", typeName)
	}
	var err error
	if h.Marker, err = Project(ext, uint64(d.Off()), uint64(n)); err != nil {
		return h, err
	}
	_ = d.Skip(n)
	if h.Timestamp1, err = d.Uint64(); err != nil {
		return h, err
	}
	if h.Timestamp2, err = d.Uint64(); err != nil {
		return h, err
	}
	start := d.Off()
	rem, err := d.Uint32()
	if err != nil {
		return h, err
	}
	rem &= blobSizeMask
	if uint64(start)+uint64(rem) > uint64(len(d.Orig)) {
		return h, dataErrf(d.Orig, start, ErrTruncated, "remaining size %d overruns record of %d bytes", rem, len(d.Orig))
	}
	return h, nil
}

// readDataBlob consumes the two skipped blocks and the sized data blob that
// end every record.
func readDataBlob(d *byteDecoder) (window, error) {
	// A length shorter than its own prefix still consumes the prefix, so the
	// cursor never steps back into bytes already read.
	if err := d.SizedSkip(); err != nil {
		return window{}, err
	}
	if err := d.ByteSizedSkip(); err != nil {
		return window{}, err
	}
	size, err := d.Uint32()
	if err != nil {
		return window{}, err
	}
	return makeWindow(d.Orig, d.Off(), int(size&blobSizeMask))
}

// DecodeRecord decodes an instance record of a fixed-layout system class.
// data must be the materialized record and ext its extents; a record that
// fails any bounds check is rejected as a whole.
func DecodeRecord(data []byte, ext Extents, schema *Schema, legacy bool) (*DecodedRecord, error) {
	d := makeByteDecoder(data)
	h, err := readRecordHeader(&d, ext, digestFor(legacy), schema.TypeName)
	if err != nil {
		return nil, err
	}
	if err := d.Skip(schema.Gap); err != nil {
		return nil, err
	}
	toc, err := d.Raw(schema.TocSize())
	if err != nil {
		return nil, err
	}
	tocOff := d.Off() - len(toc)
	blob, err := readDataBlob(&d)
	if err != nil {
		return nil, err
	}

	r := &DecodedRecord{Schema: schema, Header: h, Values: make([]Value, len(schema.Fields))}
	slot := 0
	for i, f := range schema.Fields {
		if slot+f.Size > len(toc) {
			return nil, dataErrf(data, tocOff+slot, ErrTruncated, "field %s overruns the table of contents", f.Name)
		}
		raw := toc[slot : slot+f.Size]
		slot += f.Size
		v, err := decodeField(data, ext, blob, f, raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", schema.TypeName, f.Name, err)
		}
		r.Values[i] = v
	}
	return r, nil
}

func decodeField(data []byte, ext Extents, blob window, f FieldSpec, raw []byte) (Value, error) {
	switch f.Kind {
	case FieldBool, FieldU16, FieldU32, FieldI32, FieldU64:
		return scalarValue(readScalar(raw)), nil
	}

	off := uint32(readScalar(raw))
	if off == 0 {
		return Value{}, nil
	}
	switch f.Kind {
	case FieldString:
		e, err := blobString(data, ext, blob, off)
		if err != nil {
			return Value{}, err
		}
		return extentsValue(e), nil
	case FieldBytes:
		n, err := blob.Uint32(off)
		if err != nil {
			return Value{}, err
		}
		start, err := blob.Abs(uint64(off), uint64(n)+4)
		if err != nil {
			return Value{}, err
		}
		e, err := Project(ext, uint64(start), uint64(n)+4)
		if err != nil {
			return Value{}, err
		}
		return extentsValue(e), nil
	case FieldStringArray:
		count, err := blob.Uint32(off)
		if err != nil {
			return Value{}, err
		}
		if err := blob.check(uint64(off)+4, uint64(count)*4); err != nil {
			return Value{}, err
		}
		elems := make([]Extents, 0, count)
		for i := range count {
			so, _ := blob.Uint32(off + 4 + 4*i)
			e, err := blobString(data, ext, blob, so)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			elems = append(elems, e)
		}
		return arrayValue(elems), nil
	default:
		return Value{}, fmt.Errorf("%w: field kind %v", ErrDecode, f.Kind)
	}
}

// blobString resolves an ASCII string whose reserved leading byte is zero.
func blobString(data []byte, ext Extents, blob window, off uint32) (Extents, error) {
	start, n, err := blob.CString(off)
	if err != nil {
		return nil, err
	}
	if data[start-1] != 0 {
		return nil, dataErrf(data, start-1, ErrDecode, "string flag byte is 0x%02x", data[start-1])
	}
	return Project(ext, uint64(start), uint64(n))
}

// DetectConsumer returns the consumer schema whose type marker starts data.
func DetectConsumer(data []byte, legacy bool) (*Schema, bool) {
	dg := digestFor(legacy)
	for _, s := range ConsumerSchemas {
		if dg.MatchMarker(data, s.TypeName) {
			return s, true
		}
	}
	return nil, false
}

// ConsumerSchema looks up a consumer schema by class name, ignoring case.
func ConsumerSchema(typeName string) (*Schema, bool) {
	for _, s := range ConsumerSchemas {
		if strings.EqualFold(s.TypeName, typeName) {
			return s, true
		}
	}
	return nil, false
}

// Int32 reinterprets a scalar read from a signed slot.
func Int32(v Value) int32 {
	return int32(uint32(v.Scalar))
}
