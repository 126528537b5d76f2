package cimtest

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// UTF16 encodes s as UTF-16LE without a byte order mark.
func UTF16(s string) []byte {
	return must(utf16le.NewEncoder().Bytes([]byte(s)))
}

// Name is the index key form of name: the uppercase hex MD5 (legacy) or
// SHA-256 of its uppercased UTF-16LE encoding.
func Name(legacy bool, name string) string {
	data := UTF16(strings.ToUpper(name))
	var sum []byte
	if legacy {
		h := md5.Sum(data)
		sum = h[:]
	} else {
		h := sha256.Sum256(data)
		sum = h[:]
	}
	return strings.ToUpper(hex.EncodeToString(sum))
}

// Marker is the record type marker of class: Name in UTF-16LE.
func Marker(legacy bool, class string) []byte {
	return UTF16(Name(legacy, class))
}

// Buf appends little-endian values.
type Buf struct {
	B []byte
}

func (b *Buf) Len() int { return len(b.B) }

func (b *Buf) U8(v uint8) *Buf {
	b.B = append(b.B, v)
	return b
}

func (b *Buf) U16(v uint16) *Buf {
	b.B = binary.LittleEndian.AppendUint16(b.B, v)
	return b
}

func (b *Buf) U32(v uint32) *Buf {
	b.B = binary.LittleEndian.AppendUint32(b.B, v)
	return b
}

func (b *Buf) U64(v uint64) *Buf {
	b.B = binary.LittleEndian.AppendUint64(b.B, v)
	return b
}

func (b *Buf) Bytes(v []byte) *Buf {
	b.B = append(b.B, v...)
	return b
}

func (b *Buf) Zeros(n int) *Buf {
	b.B = append(b.B, make([]byte, n)...)
	return b
}

// PutU32 overwrites the u32 at off.
func (b *Buf) PutU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(b.B[off:], v)
}

// Blob is the trailing data blob of a record. Offset zero is reserved, so
// the blob starts with a padding byte and every returned offset is non-zero.
type Blob struct {
	Buf
}

func NewBlob() *Blob {
	b := &Blob{}
	b.U8(0)
	return b
}

// String appends a zero flag byte, the ASCII text and a NUL.
func (b *Blob) String(s string) uint32 {
	off := uint32(b.Len())
	b.U8(0).Bytes([]byte(s)).U8(0)
	return off
}

// Sized appends a u32 length followed by data.
func (b *Blob) Sized(data []byte) uint32 {
	off := uint32(b.Len())
	b.U32(uint32(len(data))).Bytes(data)
	return off
}

// Strings appends the strings, then a count and their offsets, and returns
// the offset of the count.
func (b *Blob) Strings(ss ...string) uint32 {
	offs := make([]uint32, len(ss))
	for i, s := range ss {
		offs[i] = b.String(s)
	}
	off := uint32(b.Len())
	b.U32(uint32(len(ss)))
	for _, o := range offs {
		b.U32(o)
	}
	return off
}

// Header appends the type marker of class, both timestamps and a placeholder
// for the remaining size word. It returns the offset of that word.
func Header(b *Buf, legacy bool, class string, ts1, ts2 uint64) int {
	b.Bytes(Marker(legacy, class)).U64(ts1).U64(ts2)
	off := b.Len()
	b.U32(0)
	return off
}

// Tail appends the two empty skipped blocks and the sized blob, then fills
// in the remaining size word at remOff.
func Tail(b *Buf, remOff int, blob *Blob) []byte {
	b.U32(4).U8(1)
	b.U32(uint32(blob.Len())).Bytes(blob.B)
	b.PutU32(remOff, uint32(b.Len()-remOff))
	return b.B
}

// FixedRecord is an instance of a system class laid out as a gap, a table of
// contents of slots and the data blob.
type FixedRecord struct {
	Legacy     bool
	Class      string
	Timestamp1 uint64
	Timestamp2 uint64
	Gap        int
	TOC        Buf
	Blob       *Blob
}

func NewFixedRecord(legacy bool, class string, gap int) *FixedRecord {
	return &FixedRecord{Legacy: legacy, Class: class, Gap: gap, Blob: NewBlob()}
}

func (r *FixedRecord) Bytes() []byte {
	var b Buf
	rem := Header(&b, r.Legacy, r.Class, r.Timestamp1, r.Timestamp2)
	b.Zeros(r.Gap).Bytes(r.TOC.B)
	return Tail(&b, rem, r.Blob)
}

// Flag values of the two-bit per-property maps of instances and defaults.
const (
	FlagSet            = 0
	FlagNotInitialized = 1
	FlagDefault        = 2
)

func bitmap(flags []byte) []byte {
	bm := make([]byte, (len(flags)*2+7)/8)
	for i, f := range flags {
		bm[i/4] |= (f & 3) << (2 * (i % 4))
	}
	return bm
}

// InstanceRecord is an instance of a user class. Slots must already be laid
// out at each property's offset in the class.
type InstanceRecord struct {
	Legacy     bool
	Class      string
	Timestamp1 uint64
	Timestamp2 uint64
	Flags      []byte
	Slots      Buf
	Blob       *Blob
}

func NewInstanceRecord(legacy bool, class string, props int) *InstanceRecord {
	return &InstanceRecord{Legacy: legacy, Class: class, Flags: make([]byte, props), Blob: NewBlob()}
}

func (r *InstanceRecord) Bytes() []byte {
	var b Buf
	rem := Header(&b, r.Legacy, r.Class, r.Timestamp1, r.Timestamp2)
	b.Zeros(5).Bytes(bitmap(r.Flags)).Bytes(r.Slots.B)
	return Tail(&b, rem, r.Blob)
}

// NamespaceRecord builds a __namespace instance holding name.
func NamespaceRecord(legacy bool, name string) []byte {
	var b Buf
	rem := Header(&b, legacy, "__namespace", 0, 0)
	blob := NewBlob()
	off := blob.String(name)
	b.Zeros(6).U32(off).U32(4).U8(0)
	b.U32(uint32(blob.Len())).Bytes(blob.B)
	b.PutU32(rem, uint32(b.Len()-rem))
	return b.B
}

// ReferenceRecord builds an object reference of four UTF-16 strings.
func ReferenceRecord(namespace, class, property, path string) []byte {
	var b Buf
	for _, s := range []string{namespace, class, property, path} {
		b.U32(uint32(len(s))).Bytes(UTF16(s))
	}
	return b.B
}

// Qualifier is a qualifier of a class or property. Inline values go in
// Value as raw slot bytes; string values set Text instead.
type Qualifier struct {
	Builtin uint32
	Name    string
	Flavor  uint8
	Type    uint32
	Value   []byte
	Text    string
}

// Property is a property of a class record. Default is the raw slot for
// inline types, DefaultText the text of string defaults. DefaultFlag is one
// of the Flag constants.
type Property struct {
	Name        string
	Builtin     uint32
	Type        uint32
	Index       uint16
	Offset      uint32
	Level       uint32
	Qualifiers  []Qualifier
	DefaultFlag byte
	Default     []byte
	DefaultText string
}

// ClassRecord is a class definition record.
type ClassRecord struct {
	Name       string
	SuperClass string
	Timestamp  uint64
	Qualifiers []Qualifier
	Properties []Property

	// SlotTableSize is the size of the default slot table; it is computed
	// from the properties when zero.
	SlotTableSize int

	// DefaultFlags is indexed by the merged property order. Properties
	// supply it when nil.
	DefaultFlags []byte
}

const cimArrayFlag = 0x2000

func slotSize(t uint32) int {
	if t&cimArrayFlag != 0 {
		return 4
	}
	switch t {
	case 16, 17:
		return 1
	case 2, 11, 18:
		return 2
	case 5, 20, 21:
		return 8
	default:
		return 4
	}
}

func isTextType(t uint32) bool {
	switch t {
	case 8, 0x65, 0x66:
		return true
	}
	return false
}

func (q Qualifier) append(b *Buf, blob *Blob) {
	id := q.Builtin | 0x80000000
	if q.Builtin == 0 {
		id = blob.String(q.Name)
	}
	b.U32(id).U8(q.Flavor).U32(q.Type)
	if isTextType(q.Type) {
		b.U32(blob.String(q.Text))
	} else {
		v := make([]byte, slotSize(q.Type))
		copy(v, q.Value)
		b.Bytes(v)
	}
}

func (r *ClassRecord) Bytes() []byte {
	blob := NewBlob()
	nameOff := blob.String(r.Name)

	type meta struct{ name, hdr uint32 }
	metas := make([]meta, len(r.Properties))
	for i, p := range r.Properties {
		if p.Builtin != 0 {
			metas[i].name = p.Builtin | 0x80000000
		} else {
			metas[i].name = blob.String(p.Name)
		}
		var quals Buf
		for _, q := range p.Qualifiers {
			q.append(&quals, blob)
		}
		metas[i].hdr = uint32(blob.Len())
		blob.U32(p.Type).U16(p.Index).U32(p.Offset).U32(p.Level).U32(uint32(quals.Len() + 4)).Bytes(quals.B)
	}

	var classQuals Buf
	for _, q := range r.Qualifiers {
		q.append(&classQuals, blob)
	}

	tableSize := r.SlotTableSize
	if tableSize == 0 {
		for _, p := range r.Properties {
			tableSize = max(tableSize, int(p.Offset)+slotSize(p.Type))
		}
	}
	flags := r.DefaultFlags
	if flags == nil {
		flags = make([]byte, len(r.Properties))
		for i, p := range r.Properties {
			flags[i] = p.DefaultFlag
		}
	}
	slots := make([]byte, tableSize)
	for _, p := range r.Properties {
		switch {
		case p.DefaultText != "":
			binary.LittleEndian.PutUint32(slots[p.Offset:], blob.String(p.DefaultText))
		case p.Default != nil:
			copy(slots[p.Offset:], p.Default)
		}
	}
	var defaults Buf
	defaults.Bytes(bitmap(flags)).Bytes(slots)

	var b Buf
	if r.SuperClass != "" {
		b.U32(uint32(len(r.SuperClass))).Bytes(UTF16(r.SuperClass))
	} else {
		b.U32(0)
	}
	b.U64(r.Timestamp)
	b.U32(0)
	b.U8(0).U32(nameOff).U32(uint32(defaults.Len()))
	b.U32(4)
	b.U32(uint32(classQuals.Len() + 4)).Bytes(classQuals.B)
	b.U32(uint32(len(metas)))
	for _, m := range metas {
		b.U32(m.name).U32(m.hdr)
	}
	b.Bytes(defaults.B)
	b.U32(uint32(blob.Len())).Bytes(blob.B)
	return b.B
}
