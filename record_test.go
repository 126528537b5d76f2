package cimrepo

import (
	"bytes"
	"errors"
	"testing"

	"github.com/andreyvit/cimrepo/internal/cimtest"
)

func whole(data []byte) Extents {
	return Extents{{0, uint64(len(data))}}
}

func readValue(t testing.TB, data []byte, v Value) string {
	t.Helper()
	if v.Kind != ExtentsValue {
		t.Fatalf("value kind = %v, wanted extents", v.Kind)
	}
	return string(must(Materialize(bytes.NewReader(data), v.Extents)))
}

func TestDecodeRecord_EventFilter(t *testing.T) {
	forBothLayouts(t, func(t *testing.T, legacy bool) {
		data := objectRecord(legacy, EventFilterSchema, map[string]any{
			"Name":           "EvilFilter",
			"CreatorSID":     localSystemSID,
			"Query":          "SELECT * FROM __TimerEvent",
			"EventNamespace": `root\cimv2`,
			"EventAccess":    3,
		})
		rec := must(DecodeRecord(data, whole(data), EventFilterSchema, legacy))

		if rec.Header.Timestamp1 != testFileTime {
			t.Errorf("Timestamp1 = %d", rec.Header.Timestamp1)
		}
		if m := must(Materialize(bytes.NewReader(data), rec.Header.Marker)); !bytes.Equal(m, cimtest.Marker(legacy, EventFilterClass)) {
			t.Errorf("marker = %x", m)
		}
		if s := readValue(t, data, rec.Value("Name")); s != "EvilFilter" {
			t.Errorf("Name = %q", s)
		}
		if s := readValue(t, data, rec.Value("Query")); s != "SELECT * FROM __TimerEvent" {
			t.Errorf("Query = %q", s)
		}
		if v := rec.Value("QueryLanguage"); v.IsSet() {
			t.Errorf("QueryLanguage = %v, wanted unset", v)
		}
		sid := readValue(t, data, rec.Value("CreatorSID"))
		if want := string(append(u32le(uint32(len(localSystemSID))), localSystemSID...)); sid != want {
			t.Errorf("CreatorSID = %x, wanted %x", sid, want)
		}
		if v := rec.Value("EventAccess"); v.Kind != ScalarValue || v.Scalar != 3 {
			t.Errorf("EventAccess = %v", v)
		}
		if v := rec.Value("NoSuchField"); v.IsSet() {
			t.Errorf("unknown field = %v", v)
		}
	})
}

func TestDecodeRecord_StringArray(t *testing.T) {
	data := objectRecord(false, SMTPConsumerSchema, map[string]any{
		"Name":         "Mail",
		"HeaderFields": []string{"X-A: 1", "X-B: 2"},
	})
	rec := must(DecodeRecord(data, whole(data), SMTPConsumerSchema, false))
	v := rec.Value("HeaderFields")
	if v.Kind != ArrayValue || len(v.Elements) != 2 {
		t.Fatalf("HeaderFields = %v", v)
	}
	for i, want := range []string{"X-A: 1", "X-B: 2"} {
		if s := string(must(Materialize(bytes.NewReader(data), v.Elements[i]))); s != want {
			t.Errorf("HeaderFields[%d] = %q, wanted %q", i, s, want)
		}
	}
}

func TestDecodeRecord_Errors(t *testing.T) {
	filter := objectRecord(false, EventFilterSchema, map[string]any{"Name": "f"})

	badFlag := cimtest.NewFixedRecord(false, EventFilterClass, EventFilterSchema.Gap)
	off := uint32(badFlag.Blob.Len())
	badFlag.Blob.U8(1).Bytes([]byte("f")).U8(0)
	badFlag.TOC.U32(off).Zeros(EventFilterSchema.TocSize() - 4)

	outside := cimtest.NewFixedRecord(false, EventFilterClass, EventFilterSchema.Gap)
	outside.TOC.U32(0x1000).Zeros(EventFilterSchema.TocSize() - 4)

	tests := []struct {
		name   string
		data   []byte
		legacy bool
		want   error
	}{
		{"short", filter[:10], false, ErrTruncated},
		{"cut", filter[:len(filter)-3], false, ErrTruncated},
		{"other class", objectRecord(false, BindingSchema, nil), false, ErrTypeMismatch},
		{"other digest", filter, true, ErrTypeMismatch},
		{"string flag", badFlag.Bytes(), false, ErrDecode},
		{"string outside blob", outside.Bytes(), false, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord(tt.data, whole(tt.data), EventFilterSchema, tt.legacy)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, wanted %v", err, tt.want)
			}
		})
	}
}

func TestDetectConsumer(t *testing.T) {
	forBothLayouts(t, func(t *testing.T, legacy bool) {
		for _, s := range ConsumerSchemas {
			got, ok := DetectConsumer(objectRecord(legacy, s, nil), legacy)
			if !ok || got != s {
				t.Errorf("DetectConsumer(%s) = %v, %v", s.TypeName, got, ok)
			}
		}
		if s, ok := DetectConsumer(objectRecord(legacy, EventFilterSchema, nil), legacy); ok {
			t.Errorf("DetectConsumer(filter) = %s", s.TypeName)
		}
	})
}

func TestConsumerSchema(t *testing.T) {
	if s, ok := ConsumerSchema("commandlineeventconsumer"); !ok || s != CommandLineConsumerSchema {
		t.Fatalf("ConsumerSchema = %v, %v", s, ok)
	}
	if _, ok := ConsumerSchema("CustomConsumer"); ok {
		t.Fatalf("ConsumerSchema(CustomConsumer) found a schema")
	}
}

func TestFieldKindAndInt32(t *testing.T) {
	if s := FieldU32.String(); s != "uint32" {
		t.Errorf("FieldU32 = %q", s)
	}
	if s := FieldKind(99).String(); s != "FieldKind(99)" {
		t.Errorf("FieldKind(99) = %q", s)
	}
	if v := Int32(scalarValue(0xFFFFFFFE)); v != -2 {
		t.Errorf("Int32 = %d, wanted -2", v)
	}
}
