package cimrepo

import (
	"testing"

	"github.com/andreyvit/cimrepo/internal/cimtest"
)

func TestDigest_SelfTest(t *testing.T) {
	for _, d := range []Digest{MD5, SHA256} {
		if err := d.SelfTest(); err != nil {
			t.Errorf("%v: %v", d, err)
		}
	}
}

func TestDigest_Name(t *testing.T) {
	tests := []struct {
		d    Digest
		name string
		want string
	}{
		{MD5, "__namespace", "E5844D1645B0B6E6F2AF610EB14BFC34"},
		{SHA256, "ROOT", "E8C4F9926E52E9240C37C4E59745CEB61A67A77C9F6692EA4295A97E0AF583C5"},
		{SHA256, "root", "E8C4F9926E52E9240C37C4E59745CEB61A67A77C9F6692EA4295A97E0AF583C5"},
	}
	for _, tt := range tests {
		if got := tt.d.Name(tt.name); got != tt.want {
			t.Errorf("%v.Name(%q) = %s, wanted %s", tt.d, tt.name, got, tt.want)
		}
		if got := cimtest.Name(tt.d == MD5, tt.name); got != tt.want {
			t.Errorf("cimtest.Name(%q) = %s, wanted %s", tt.name, got, tt.want)
		}
	}
}

func TestDigest_Sizes(t *testing.T) {
	if MD5.HexLen() != 32 || MD5.MarkerLen() != 64 {
		t.Errorf("MD5 HexLen, MarkerLen = %d, %d", MD5.HexLen(), MD5.MarkerLen())
	}
	if SHA256.HexLen() != 64 || SHA256.MarkerLen() != 128 {
		t.Errorf("SHA256 HexLen, MarkerLen = %d, %d", SHA256.HexLen(), SHA256.MarkerLen())
	}
	if digestFor(true) != MD5 || digestFor(false) != SHA256 {
		t.Errorf("digestFor is wrong")
	}
}

func TestDigest_MatchMarker(t *testing.T) {
	rec := append(SHA256.Marker("__EventFilter"), 1, 2, 3)
	if !SHA256.MatchMarker(rec, "__eventfilter") {
		t.Fatalf("MatchMarker(own marker) = false")
	}
	if SHA256.MatchMarker(rec, "__FilterToConsumerBinding") {
		t.Fatalf("MatchMarker(other class) = true")
	}
	if SHA256.MatchMarker(rec[:10], "__EventFilter") {
		t.Fatalf("MatchMarker(short record) = true")
	}

	// Hex digits in lowercase still match.
	lower := encodeUTF16("e5844d1645b0b6e6f2af610eb14bfc34")
	if !MD5.MatchMarker(lower, NamespaceClass) {
		t.Fatalf("MatchMarker(lowercase) = false")
	}
}

func TestUTF16RoundTrip(t *testing.T) {
	b := encodeUTF16(`ROOT\subscription ü`)
	deepEqual(t, b, cimtest.UTF16(`ROOT\subscription ü`))
	if s := must(decodeUTF16(b)); s != `ROOT\subscription ü` {
		t.Fatalf("decodeUTF16 = %q", s)
	}
}
