package cimrepo

import (
	"fmt"
	"strings"
)

// Instance flags, two bits per property.
const (
	instanceNotInitialized = 1
	instanceUsesDefault    = 2
)

const instanceClassNameSize = 4 + 1

type ValueState uint8

const (
	ValueSet ValueState = iota
	ValueUsesDefault
	ValueNotInitialized
)

func (s ValueState) String() string {
	switch s {
	case ValueSet:
		return "set"
	case ValueUsesDefault:
		return "default"
	case ValueNotInitialized:
		return "not initialized"
	default:
		return fmt.Sprintf("ValueState(%d)", int(s))
	}
}

type InstanceValue struct {
	Property *Property
	State    ValueState
	Value    Value
}

// Instance is a decoded instance of a user class. Values follow the order of
// Class.Properties.
type Instance struct {
	Namespace string
	Key       string
	Location  RecordLocation

	Class  *ClassDefinition
	Header RecordHeader
	Values []InstanceValue
}

func (inst *Instance) Value(name string) (InstanceValue, bool) {
	for _, v := range inst.Values {
		if v.Property != nil && strings.EqualFold(v.Property.Name, name) {
			return v, true
		}
	}
	return InstanceValue{}, false
}

// DecodeInstance decodes an instance record of class. Values that use the
// class default share the class's default extents and read nothing from the
// instance.
func DecodeInstance(data []byte, ext Extents, class *ClassDefinition, legacy bool) (*Instance, error) {
	d := makeByteDecoder(data)
	h, err := readRecordHeader(&d, ext, digestFor(legacy), class.Name)
	if err != nil {
		return nil, err
	}
	if err := d.Skip(instanceClassNameSize); err != nil {
		return nil, err
	}

	n := len(class.Properties)
	bitmap, err := d.Raw(bitmapBytes(n))
	if err != nil {
		return nil, fmt.Errorf("%s: property flags: %w", class.Name, err)
	}
	tableStart := d.Off()
	tableSize := class.SlotTableSize()
	if err := d.Skip(tableSize); err != nil {
		return nil, fmt.Errorf("%s: slot table: %w", class.Name, err)
	}
	blob, err := readDataBlob(&d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", class.Name, err)
	}
	c := recordCtx{data, ext, blob}

	inst := &Instance{Class: class, Header: h, Values: make([]InstanceValue, n)}
	for i := range class.Properties {
		p := &class.Properties[i]
		iv := &inst.Values[i]
		iv.Property = p
		switch flags := twoBitFlag(bitmap, i); {
		case flags&instanceNotInitialized != 0:
			iv.State = ValueNotInitialized
		case flags&instanceUsesDefault != 0:
			iv.State = ValueUsesDefault
			iv.Value = p.Default
		default:
			end := uint64(p.OffsetInClass) + uint64(p.Type.OnDiskSize())
			if end > uint64(tableSize) {
				return nil, dataErrf(data, tableStart, ErrTruncated, "%s.%s slot at 0x%x outside slot table of %d bytes", class.Name, p.Name, p.OffsetInClass, tableSize)
			}
			v, err := c.slotValue(p.Type, tableStart+int(p.OffsetInClass))
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", class.Name, p.Name, err)
			}
			iv.Value = v
		}
	}
	return inst, nil
}
