package cimrepo

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

const (
	propHeaderSize = 4 + 2 + 4 + 4 + 4
	propMetaSize   = 4 + 4
)

// Default value flags, two bits per property.
const (
	defaultNoValue   = 1
	defaultInherited = 2
)

type Property struct {
	Name          string
	Builtin       bool
	NameID        uint32 // builtin id, or the name offset in the data blob
	Type          CIMType
	Index         uint16
	OffsetInClass uint32
	Level         uint32
	Qualifiers    []Qualifier
	Default       Value
}

// ClassDefinition is a class merged with its whole superclass chain.
// BaseClasses lists the root class first and the immediate parent last.
type ClassDefinition struct {
	Name        string
	SuperClass  string
	BaseClasses []string
	Timestamp   uint64
	Qualifiers  []Qualifier
	Properties  []Property

	Extents       Extents
	DefaultValues Extents
}

// ClassLoader returns the merged definition of a class by name.
type ClassLoader func(name string) (*ClassDefinition, error)

// derive starts the definition of a direct subclass of c.
func (c *ClassDefinition) derive() *ClassDefinition {
	return &ClassDefinition{
		SuperClass:  c.Name,
		BaseClasses: append(slices.Clone(c.BaseClasses), c.Name),
		Qualifiers:  slices.Clone(c.Qualifiers),
		Properties:  slices.Clone(c.Properties),
	}
}

// SlotTableSize is the size of the fixed slot table of instance records.
func (c *ClassDefinition) SlotTableSize() int {
	var n int
	for _, p := range c.Properties {
		n += p.Type.OnDiskSize()
	}
	return n
}

// Property finds a property by name, ignoring case like WMI does.
func (c *ClassDefinition) Property(name string) (*Property, bool) {
	for i := range c.Properties {
		if strings.EqualFold(c.Properties[i].Name, name) {
			return &c.Properties[i], true
		}
	}
	return nil, false
}

func (c *ClassDefinition) Qualifier(name string) (*Qualifier, bool) {
	for i := range c.Qualifiers {
		if strings.EqualFold(c.Qualifiers[i].Name, name) {
			return &c.Qualifiers[i], true
		}
	}
	return nil, false
}

// DecodeClass decodes a class definition record. When the class has a
// superclass, loader is called for it and the result is used as the base of
// the returned definition; the loaded definition is not modified.
func DecodeClass(data []byte, ext Extents, loader ClassLoader) (*ClassDefinition, error) {
	d := makeByteDecoder(data)
	superLen, err := d.Uint32()
	if err != nil {
		return nil, err
	}

	def := &ClassDefinition{}
	if superLen > 0 {
		if uint64(superLen)*2 > uint64(d.Remaining()) {
			return nil, dataErrf(data, 0, ErrTruncated, "superclass name of %d characters", superLen)
		}
		raw, _ := d.Raw(int(superLen) * 2)
		superName, err := decodeUTF16(raw)
		if err != nil {
			return nil, dataErrf(data, 4, ErrDecode, "superclass name: %v", err)
		}
		if loader == nil {
			return nil, fmt.Errorf("%w: superclass %s cannot be loaded", ErrDecode, superName)
		}
		base, err := loader(superName)
		if err != nil {
			return nil, fmt.Errorf("%w: superclass %s: %w", ErrDecode, superName, err)
		}
		def = base.derive()
		def.SuperClass = superName
	}

	if def.Timestamp, err = d.Uint64(); err != nil {
		return nil, err
	}
	propDataStart := d.Off()
	propDataSize, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if uint64(propDataStart)+4+uint64(propDataSize) > uint64(len(data)) {
		return nil, dataErrf(data, propDataStart, ErrTruncated, "property data of %d bytes overruns record", propDataSize)
	}

	if _, err := d.Uint8(); err != nil {
		return nil, err
	}
	classNameOff, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	defaultSize, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	// Lengths below 4 consume just the prefix, as everywhere in this decoder.
	if err := d.SizedSkip(); err != nil {
		return nil, fmt.Errorf("superclass record: %w", err)
	}

	qualStart := d.Off()
	if err := d.SizedSkip(); err != nil {
		return nil, fmt.Errorf("class qualifiers: %w", err)
	}
	qualSize := d.Off() - qualStart

	propCount, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if uint64(propCount)*propMetaSize > uint64(d.Remaining()) {
		return nil, dataErrf(data, d.Off()-4, ErrTruncated, "%d property entries do not fit", propCount)
	}
	metas, _ := d.Raw(int(propCount) * propMetaSize)

	defStart := d.Off()
	if err := d.Skip(int(defaultSize)); err != nil {
		return nil, fmt.Errorf("default values: %w", err)
	}
	dataSize, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	blob, err := makeWindow(data, d.Off(), int(dataSize&blobSizeMask))
	if err != nil {
		return nil, err
	}
	c := recordCtx{data, ext, blob}

	if def.Name, err = c.name(classNameOff); err != nil {
		return nil, fmt.Errorf("class name: %w", err)
	}
	if qualSize > 4 {
		own, err := c.parseQualifiers(qualStart+4, qualSize-4)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}
		def.Qualifiers = mergeQualifiers(def.Qualifiers, own)
	}

	md := makeByteDecoder(metas)
	for i := range int(propCount) {
		nameOff, _ := md.Uint32()
		hdrOff, _ := md.Uint32()
		p, err := c.parseProperty(nameOff, hdrOff)
		if err != nil {
			return nil, fmt.Errorf("%s: property %d: %w", def.Name, i, err)
		}
		def.mergeProperty(p)
	}
	slices.SortStableFunc(def.Properties, func(a, b Property) int {
		return cmp.Compare(a.Index, b.Index)
	})

	if defaultSize > 0 {
		if err := c.applyDefaults(def.Properties, defStart, int(defaultSize)); err != nil {
			return nil, fmt.Errorf("%s: default values: %w", def.Name, err)
		}
	}
	if def.DefaultValues, err = c.project(defStart, int(defaultSize)); err != nil {
		return nil, err
	}
	def.Extents = ext
	return def, nil
}

func (c recordCtx) parseProperty(nameOff, hdrOff uint32) (Property, error) {
	start, err := c.blob.Abs(uint64(hdrOff), propHeaderSize)
	if err != nil {
		return Property{}, err
	}
	d := makeByteDecoder(c.data[start : start+propHeaderSize])
	typ, _ := d.Uint32()
	index, _ := d.Uint16()
	offset, _ := d.Uint32()
	level, _ := d.Uint32()
	qualSize, _ := d.Uint32()

	p := Property{
		Type:          CIMType(typ),
		Index:         index,
		OffsetInClass: offset,
		Level:         level,
		Builtin:       nameOff&builtinFlag != 0,
		NameID:        nameOff &^ builtinFlag,
	}
	if !p.Type.Known() {
		return p, dataErrf(c.data, start, ErrUnknownType, "property type 0x%x", typ)
	}
	if p.Builtin {
		p.Name = BuiltinName(p.NameID)
	} else if p.Name, err = c.name(p.NameID); err != nil {
		return p, fmt.Errorf("name: %w", err)
	}
	if qualSize > 4 {
		if p.Qualifiers, err = c.parseQualifiers(start+propHeaderSize, int(qualSize)-4); err != nil {
			return p, fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return p, nil
}

// mergeProperty replaces the property with the same index, keeping its
// default value, or appends p.
func (c *ClassDefinition) mergeProperty(p Property) {
	for i := range c.Properties {
		if c.Properties[i].Index == p.Index {
			p.Default = c.Properties[i].Default
			c.Properties[i] = p
			return
		}
	}
	c.Properties = append(c.Properties, p)
}

// applyDefaults reads the default value blob: a two-bit flag per property,
// followed by a slot table laid out like that of instances.
func (c recordCtx) applyDefaults(props []Property, start, size int) error {
	bm := bitmapBytes(len(props))
	if bm > size || start+size > len(c.data) {
		return dataErrf(c.data, start, ErrTruncated, "default value blob of %d bytes cannot hold flags for %d properties", size, len(props))
	}
	bitmap := c.data[start : start+bm]
	slots := start + bm
	for i := range props {
		if twoBitFlag(bitmap, i)&(defaultNoValue|defaultInherited) != 0 {
			continue
		}
		p := &props[i]
		vsize := p.Type.OnDiskSize()
		if uint64(bm)+uint64(p.OffsetInClass)+uint64(vsize) > uint64(size) {
			return dataErrf(c.data, start, ErrTruncated, "default of %s at 0x%x outside blob", p.Name, p.OffsetInClass)
		}
		v, err := c.slotValue(p.Type, slots+int(p.OffsetInClass))
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		p.Default = v
	}
	return nil
}
