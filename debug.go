package cimrepo

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

type DumpFlags uint64

const (
	DumpHeaders = DumpFlags(1 << iota)
	DumpValues
	DumpExtents
	DumpQualifiers
	DumpDefaults

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep     = "  "
	notAssigned    = "Not Assigned"
	dumpTimeLayout = "01/02/2006 15:04:05"
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// DumpObject renders a consumer, filter or binding record.
func (r *Repository) DumpObject(obj *Object, f DumpFlags) string {
	var buf strings.Builder
	r.dumpObject(&buf, obj, f)
	return buf.String()
}

func (r *Repository) dumpObject(w *strings.Builder, obj *Object, f DumpFlags) {
	if f.Contains(DumpHeaders) {
		fmt.Fprintln(w, rpadf('=', "==== %s ", obj.Schema.TypeName))
		fmt.Fprintf(w, "[%s]: (%v)\n", obj.ID, obj.Location)
		r.dumpHeader(w, obj.Header)
	}
	if !f.Contains(DumpValues) {
		return
	}
	for i, field := range obj.Schema.Fields {
		v := obj.Values[i]
		fmt.Fprintf(w, "%s: %s", field.Name, r.formatField(field, v))
		if f.Contains(DumpExtents) && v.IsSet() {
			fmt.Fprintf(w, " %s", formatExtents(v))
		}
		w.WriteByte('\n')
	}
}

// DumpInstance renders an instance with one line per property.
func (r *Repository) DumpInstance(inst *Instance, f DumpFlags) string {
	var buf strings.Builder
	w := &buf
	if f.Contains(DumpHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s\\%s [%s] (%v)\n", inst.Namespace, inst.Class.Name, SegmentID(trimLocation(inst.Key)), inst.Location)
		r.dumpHeader(w, inst.Header)
	}
	if f.Contains(DumpValues) {
		for _, iv := range inst.Values {
			p := iv.Property
			fmt.Fprintf(w, "%s (%v): ", p.Name, p.Type)
			switch iv.State {
			case ValueNotInitialized:
				w.WriteString(notAssigned)
			case ValueUsesDefault:
				fmt.Fprintf(w, "%s (default)", r.FormatValue(p.Type, iv.Value))
			default:
				w.WriteString(r.FormatValue(p.Type, iv.Value))
			}
			if f.Contains(DumpExtents) && iv.Value.IsSet() {
				fmt.Fprintf(w, " %s", formatExtents(iv.Value))
			}
			w.WriteByte('\n')
		}
	}
	return buf.String()
}

// DumpClass renders a class definition, its qualifiers and properties.
func (r *Repository) DumpClass(def *ClassDefinition, f DumpFlags) string {
	var buf strings.Builder
	w := &buf
	if f.Contains(DumpHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "Class: %s\n", def.Name)
		if def.SuperClass != "" {
			fmt.Fprintf(w, "SuperClass: %s\n", def.SuperClass)
			fmt.Fprintf(w, "BaseClasses: %s\n", strings.Join(def.BaseClasses, " -> "))
		}
		fmt.Fprintf(w, "Timestamp: %s\n", formatFileTime(def.Timestamp))
		if f.Contains(DumpExtents) {
			fmt.Fprintf(w, "Extents: %v\n", def.Extents)
		}
	}
	if f.Contains(DumpQualifiers) {
		r.dumpQualifiers(w, "", def.Qualifiers)
	}
	if !f.Contains(DumpValues) {
		return buf.String()
	}
	for _, p := range def.Properties {
		fmt.Fprintln(w, dumpSep2)
		fmt.Fprintf(w, "Property: %s\n", p.Name)
		fmt.Fprintf(w, "%sType: %v\n", indentStep, p.Type)
		fmt.Fprintf(w, "%sIndex: %d, Offset: 0x%x, Level: %d\n", indentStep, p.Index, p.OffsetInClass, p.Level)
		if f.Contains(DumpDefaults) {
			fmt.Fprintf(w, "%sDefault: %s\n", indentStep, r.FormatValue(p.Type, p.Default))
		}
		if f.Contains(DumpQualifiers) {
			r.dumpQualifiers(w, indentStep, p.Qualifiers)
		}
	}
	return buf.String()
}

func (r *Repository) dumpQualifiers(w *strings.Builder, indent string, quals []Qualifier) {
	for _, q := range quals {
		fmt.Fprintf(w, "%sQualifier: %s (%v) = %s\n", indent, q.Name, q.Type, r.FormatValue(q.Type, q.Value))
	}
}

func (r *Repository) dumpHeader(w *strings.Builder, h RecordHeader) {
	fmt.Fprintf(w, "Date1: %s\n", formatFileTime(h.Timestamp1))
	fmt.Fprintf(w, "Date2: %s\n", formatFileTime(h.Timestamp2))
}

func trimLocation(key string) string {
	if path, _, err := ParseLocationKey(key); err == nil {
		return path
	}
	return key
}

func formatFileTime(ft uint64) string {
	if ft == 0 {
		return notAssigned
	}
	return FileTime(ft).Format(dumpTimeLayout)
}

func formatExtents(v Value) string {
	if v.Kind == ArrayValue {
		parts := make([]string, len(v.Elements))
		for i, e := range v.Elements {
			parts[i] = fmt.Sprint(e)
		}
		return "@[" + strings.Join(parts, " ") + "]"
	}
	return fmt.Sprintf("@%v", v.Extents)
}

func (r *Repository) formatField(f FieldSpec, v Value) string {
	if !v.IsSet() {
		return notAssigned
	}
	switch f.Kind {
	case FieldBool:
		return formatBool(v.Bool())
	case FieldU16, FieldU32, FieldU64:
		return strconv.FormatUint(v.Scalar, 10)
	case FieldI32:
		return strconv.FormatInt(int64(Int32(v)), 10)
	case FieldString:
		return r.materializeText(v.Extents)
	case FieldBytes:
		b, err := r.heap.Materialize(v.Extents)
		if err != nil {
			return errText(err)
		}
		if len(b) >= 4 {
			if s, ok := FormatSID(b[4:]); ok {
				return s
			}
		}
		return hex.EncodeToString(b)
	case FieldStringArray:
		return r.formatArray(v, r.materializeText)
	default:
		return fmt.Sprintf("<%v>", f.Kind)
	}
}

// FormatValue renders a class, qualifier or instance value of type t.
func (r *Repository) FormatValue(t CIMType, v Value) string {
	if !v.IsSet() {
		return notAssigned
	}
	if v.Kind == ArrayValue {
		base := t.Base()
		return r.formatArray(v, func(e Extents) string {
			return r.formatScalar(base, e)
		})
	}
	return r.formatScalar(t.Base(), v.Extents)
}

func (r *Repository) formatArray(v Value, elem func(Extents) string) string {
	parts := make([]string, len(v.Elements))
	for i, e := range v.Elements {
		parts[i] = elem(e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (r *Repository) materializeText(ext Extents) string {
	b, err := r.heap.Materialize(ext)
	if err != nil {
		return errText(err)
	}
	return string(b)
}

func (r *Repository) formatScalar(t CIMType, ext Extents) string {
	if t.IsStringLike() {
		return r.materializeText(ext)
	}
	b, err := r.heap.Materialize(ext)
	if err != nil {
		return errText(err)
	}
	return FormatScalar(t, b)
}

// FormatScalar renders the raw little-endian bytes of an inline value.
func FormatScalar(t CIMType, b []byte) string {
	n := len(b)
	switch t.Base() {
	case CIMSInt8:
		if n >= 1 {
			return strconv.Itoa(int(int8(b[0])))
		}
	case CIMUInt8:
		if n >= 1 {
			return strconv.Itoa(int(b[0]))
		}
	case CIMSInt16:
		if n >= 2 {
			return strconv.Itoa(int(int16(binary.LittleEndian.Uint16(b))))
		}
	case CIMUInt16:
		if n >= 2 {
			return strconv.Itoa(int(binary.LittleEndian.Uint16(b)))
		}
	case CIMSInt32:
		if n >= 4 {
			return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b))), 10)
		}
	case CIMUInt32:
		if n >= 4 {
			return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(b)), 10)
		}
	case CIMSInt64:
		if n >= 8 {
			return strconv.FormatInt(int64(binary.LittleEndian.Uint64(b)), 10)
		}
	case CIMUInt64:
		if n >= 8 {
			return strconv.FormatUint(binary.LittleEndian.Uint64(b), 10)
		}
	case CIMReal32:
		if n >= 4 {
			return strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 'g', -1, 32)
		}
	case CIMReal64:
		if n >= 8 {
			return strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)), 'g', -1, 64)
		}
	case CIMBoolean:
		if n >= 2 {
			return formatBool(binary.LittleEndian.Uint16(b) != 0)
		}
	case CIMChar16:
		if n >= 2 {
			return strconv.QuoteRune(rune(utf16.Decode([]uint16{binary.LittleEndian.Uint16(b)})[0]))
		}
	}
	return hex.EncodeToString(b)
}

func formatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

func errText(err error) string {
	return "** ERROR: " + err.Error()
}

// FormatSID renders a binary security identifier as S-R-A-S1-S2...
func FormatSID(b []byte) (string, bool) {
	if len(b) < 8 {
		return "", false
	}
	count := int(b[1])
	if len(b) < 8+4*count {
		return "", false
	}
	var auth uint64
	for _, c := range b[2:8] {
		auth = auth<<8 | uint64(c)
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "S-%d-%d", b[0], auth)
	for i := range count {
		fmt.Fprintf(&buf, "-%d", binary.LittleEndian.Uint32(b[8+4*i:]))
	}
	return buf.String(), true
}

func rpadf(pad rune, format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	return rpad(s, 80, pad)
}
