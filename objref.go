package cimrepo

import (
	"fmt"
)

// ObjectReference is a reference record stored under an IR_..\R_ key. Each
// field is a UTF-16LE string.
type ObjectReference struct {
	Namespace    Extents
	ClassName    Extents
	PropertyName Extents
	ReferredPath Extents
}

var objectReferenceFields = [...]string{"namespace", "class name", "property name", "referred path"}

// DecodeObjectReference decodes four character-count-prefixed strings.
func DecodeObjectReference(data []byte, ext Extents) (*ObjectReference, error) {
	d := makeByteDecoder(data)
	ref := &ObjectReference{}
	dst := [...]*Extents{&ref.Namespace, &ref.ClassName, &ref.PropertyName, &ref.ReferredPath}
	for i, p := range dst {
		chars, err := d.Uint32()
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", objectReferenceFields[i], err)
		}
		start := d.Off()
		if uint64(chars)*2 > uint64(d.Remaining()) {
			return nil, dataErrf(data, start-4, ErrTruncated, "reference %s of %d characters overruns record", objectReferenceFields[i], chars)
		}
		n := int(chars) * 2
		_ = d.Skip(n)
		if *p, err = Project(ext, uint64(start), uint64(n)); err != nil {
			return nil, err
		}
	}
	return ref, nil
}

// MaterializeUTF16 reads and decodes a UTF-16LE field.
func (h *Heap) MaterializeUTF16(ext Extents) (string, error) {
	b, err := h.Materialize(ext)
	if err != nil {
		return "", err
	}
	s, err := decodeUTF16(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return s, nil
}

// MaterializeString reads an ASCII blob string.
func (h *Heap) MaterializeString(v Value) (string, error) {
	if v.Kind != ExtentsValue {
		return "", nil
	}
	b, err := h.Materialize(v.Extents)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
