package cimrepo

import (
	"log/slog"
	"testing"
)

func TestCutLast(t *testing.T) {
	a, b, ok := cutLast("a.b.c", '.')
	if !ok || a != "a.b" || b != "c" {
		t.Fatalf("cutLast = (%q, %q, %v), wanted (\"a.b\", \"c\", true)", a, b, ok)
	}

	a, b, ok = cutLast("abc", '.')
	if ok || a != "abc" || b != "" {
		t.Fatalf("cutLast(no sep) = (%q, %q, %v), wanted (\"abc\", \"\", false)", a, b, ok)
	}
}

func TestParseUint32(t *testing.T) {
	if v, ok := parseUint32("4294967295"); !ok || v != 0xFFFFFFFF {
		t.Fatalf("parseUint32(max) = %d, %v", v, ok)
	}
	for _, s := range []string{"", "-1", "4294967296", "1a"} {
		if _, ok := parseUint32(s); ok {
			t.Errorf("parseUint32(%q) succeeded, wanted failure", s)
		}
	}
}

func TestRpad(t *testing.T) {
	if got := rpad("abc", 5, '.'); got != "abc.." {
		t.Fatalf("rpad = %q, wanted %q", got, "abc..")
	}
	if got := rpad("abc", 1, '.'); got != "abc" {
		t.Fatalf("rpad = %q, wanted %q", got, "abc")
	}
	if got := rpadf('=', "== %s ", "X"); len(got) != 80 || got[:5] != "== X " {
		t.Fatalf("rpadf = %q", got)
	}
}

func TestLocAttr(t *testing.T) {
	a := locAttr("loc", RecordLocation{1, 2, 3})
	if a.Key != "loc" || a.Value.Kind() != slog.KindString || a.Value.String() != "1.2.3" {
		t.Fatalf("locAttr = %v", a)
	}
}
