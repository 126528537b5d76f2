package cimrepo

import (
	"bytes"
	"errors"
	"testing"

	"github.com/andreyvit/cimrepo/internal/cimtest"
)

func TestDecodeObjectReference(t *testing.T) {
	data := cimtest.ReferenceRecord(`ROOT\subscription`, "__FilterToConsumerBinding", "Consumer", `CommandLineEventConsumer.Name="Evil"`)
	ref := must(DecodeObjectReference(data, whole(data)))

	str := func(ext Extents) string {
		return must(decodeUTF16(must(Materialize(bytes.NewReader(data), ext))))
	}
	if s := str(ref.Namespace); s != `ROOT\subscription` {
		t.Errorf("Namespace = %q", s)
	}
	if s := str(ref.ClassName); s != "__FilterToConsumerBinding" {
		t.Errorf("ClassName = %q", s)
	}
	if s := str(ref.PropertyName); s != "Consumer" {
		t.Errorf("PropertyName = %q", s)
	}
	if s := str(ref.ReferredPath); s != `CommandLineEventConsumer.Name="Evil"` {
		t.Errorf("ReferredPath = %q", s)
	}

	// Fields can be empty and a record can end exactly after the last one.
	data = cimtest.ReferenceRecord("", "", "", "")
	ref = must(DecodeObjectReference(data, whole(data)))
	if ref.ReferredPath.Len() != 0 {
		t.Errorf("empty path = %v", ref.ReferredPath)
	}
}

func TestDecodeObjectReference_Truncated(t *testing.T) {
	data := cimtest.ReferenceRecord("ns", "class", "prop", "path")
	for _, n := range []int{0, 2, 10, len(data) - 1} {
		if _, err := DecodeObjectReference(data[:n], whole(data[:n])); !errors.Is(err, ErrTruncated) {
			t.Errorf("DecodeObjectReference(%d of %d bytes) err = %v, wanted ErrTruncated", n, len(data), err)
		}
	}
}

func TestHeap_MaterializeStrings(t *testing.T) {
	var objs cimtest.Objects
	rec := cimtest.ReferenceRecord("ns", "Class", "Prop", "Path")
	loc := objs.Add(rec)
	h := newTestHeap(t, &objs)

	r := must(h.ReadRecord(heapLoc(loc)))
	ref := must(DecodeObjectReference(r.Data, r.Extents))
	if s := must(h.MaterializeUTF16(ref.PropertyName)); s != "Prop" {
		t.Fatalf("MaterializeUTF16 = %q", s)
	}
	if s := must(h.MaterializeString(extentsValue(ref.ClassName))); s != string(cimtest.UTF16("Class")) {
		t.Fatalf("MaterializeString = %q", s)
	}
	if s := must(h.MaterializeString(Value{})); s != "" {
		t.Fatalf("MaterializeString(unset) = %q", s)
	}
}
