package cimrepo

import (
	"encoding/binary"
	"fmt"
)

const qualifierHeaderSize = 4 + 1 + 4

// Qualifier is a named, typed attribute of a class or property.
type Qualifier struct {
	Name    string
	Builtin bool
	ID      uint32 // builtin id, or the name offset in the data blob
	Flavor  uint8
	Type    CIMType
	Value   Value
}

// recordCtx ties a materialized record to its extents and data blob, so that
// record offsets can be turned into field extents.
type recordCtx struct {
	data []byte
	ext  Extents
	blob window
}

func (c recordCtx) project(start, n int) (Extents, error) {
	return Project(c.ext, uint64(start), uint64(n))
}

// name decodes a blob string eagerly. Names are needed to match and merge
// definitions; values stay lazy.
func (c recordCtx) name(off uint32) (string, error) {
	start, n, err := c.blob.CString(off)
	if err != nil {
		return "", err
	}
	return string(c.data[start : start+n]), nil
}

func (c recordCtx) stringExtents(off uint32) (Extents, error) {
	start, n, err := c.blob.CString(off)
	if err != nil {
		return nil, err
	}
	return c.project(start, n)
}

// slotValue resolves the value whose slot starts at data[slot]. Inline types
// are the slot bytes themselves; other types keep an offset into the blob.
func (c recordCtx) slotValue(t CIMType, slot int) (Value, error) {
	info, err := t.info()
	if err != nil {
		return Value{}, err
	}
	if t.IsInline() {
		if slot < 0 || slot+info.Size > len(c.data) {
			return Value{}, dataErrf(c.data, max(slot, 0), ErrTruncated, "%v slot outside record", t)
		}
		e, err := c.project(slot, info.Size)
		if err != nil {
			return Value{}, err
		}
		return extentsValue(e), nil
	}
	if slot < 0 || slot+4 > len(c.data) {
		return Value{}, dataErrf(c.data, max(slot, 0), ErrTruncated, "%v slot outside record", t)
	}
	return c.blobValue(t, binary.LittleEndian.Uint32(c.data[slot:]))
}

func (c recordCtx) blobValue(t CIMType, off uint32) (Value, error) {
	if t.IsArray() {
		return c.multiValue(t, off)
	}
	if t.Base() == CIMObject {
		e, err := c.objectExtents(off)
		if err != nil {
			return Value{}, err
		}
		return extentsValue(e), nil
	}
	e, err := c.stringExtents(off)
	if err != nil {
		return Value{}, err
	}
	return extentsValue(e), nil
}

// objectExtents resolves an embedded object: a u32 length, then the bytes.
func (c recordCtx) objectExtents(off uint32) (Extents, error) {
	n, err := c.blob.Uint32(off)
	if err != nil {
		return nil, err
	}
	start, err := c.blob.Abs(uint64(off)+4, uint64(n))
	if err != nil {
		return nil, err
	}
	return c.project(start, int(n))
}

// multiValue resolves an array stored in the blob. String-like elements are
// a count followed by string offsets; fixed-size elements are a byte length
// followed by the packed values.
func (c recordCtx) multiValue(t CIMType, off uint32) (Value, error) {
	base := t.Base()
	switch {
	case base.IsStringLike():
		count, err := c.blob.Uint32(off)
		if err != nil {
			return Value{}, err
		}
		if err := c.blob.check(uint64(off)+4, uint64(count)*4); err != nil {
			return Value{}, err
		}
		elems := make([]Extents, 0, count)
		for i := range count {
			so, _ := c.blob.Uint32(off + 4 + 4*i)
			e, err := c.stringExtents(so)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			elems = append(elems, e)
		}
		return arrayValue(elems), nil

	case base == CIMObject:
		e, err := c.objectExtents(off)
		if err != nil {
			return Value{}, err
		}
		return arrayValue([]Extents{e}), nil

	default:
		size := cimTypes[base].Size
		n, err := c.blob.Uint32(off)
		if err != nil {
			return Value{}, err
		}
		start, err := c.blob.Abs(uint64(off)+4, uint64(n))
		if err != nil {
			return Value{}, err
		}
		if size == 0 {
			return arrayValue(nil), nil
		}
		count := int(n) / size
		elems := make([]Extents, 0, count)
		for i := range count {
			e, err := c.project(start+i*size, size)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, e)
		}
		return arrayValue(elems), nil
	}
}

// parseQualifiers reads the qualifier set stored in data[start:start+size].
func (c recordCtx) parseQualifiers(start, size int) ([]Qualifier, error) {
	end := start + size
	if start < 0 || size < 0 || end > len(c.data) {
		return nil, dataErrf(c.data, max(start, 0), ErrTruncated, "qualifier set of %d bytes outside record", size)
	}
	var result []Qualifier
	for off := start; off+qualifierHeaderSize < end; {
		d := makeByteDecoder(c.data[off:end])
		nameID, _ := d.Uint32()
		flavor, _ := d.Uint8()
		typ, _ := d.Uint32()

		t := CIMType(typ)
		if !t.Known() {
			return nil, dataErrf(c.data, off, ErrUnknownType, "qualifier type 0x%x", typ)
		}
		q := Qualifier{
			Builtin: nameID&builtinFlag != 0,
			ID:      nameID &^ builtinFlag,
			Flavor:  flavor,
			Type:    t,
		}
		if q.Builtin {
			q.Name = BuiltinName(q.ID)
		} else {
			name, err := c.name(q.ID)
			if err != nil {
				return nil, fmt.Errorf("qualifier name: %w", err)
			}
			q.Name = name
		}

		valOff := off + qualifierHeaderSize
		vsize := t.OnDiskSize()
		if valOff+vsize > end {
			return nil, dataErrf(c.data, off, ErrTruncated, "no room for the value of qualifier %s", q.Name)
		}
		v, err := c.slotValue(t, valOff)
		if err != nil {
			return nil, fmt.Errorf("qualifier %s: %w", q.Name, err)
		}
		q.Value = v
		result = append(result, q)
		off = valOff + vsize
	}
	return result, nil
}

// mergeQualifiers overrides inherited qualifiers with same-named own ones and
// appends the rest.
func mergeQualifiers(inherited, own []Qualifier) []Qualifier {
	result := append([]Qualifier(nil), inherited...)
	for _, q := range own {
		replaced := false
		for i := range result {
			if result[i].Name == q.Name {
				result[i] = q
				replaced = true
				break
			}
		}
		if !replaced {
			result = append(result, q)
		}
	}
	return result
}
