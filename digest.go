package cimrepo

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Digest is the hash used to turn names into index key segments and record
// type markers. Legacy (XP era) repositories use MD5, current ones SHA-256.
type Digest int

const (
	SHA256 Digest = iota
	MD5
)

const selfTestRounds = 0x100

var (
	md5SelfTest    = "6f0772d09deff2741021659a736efabc"
	sha256SelfTest = "19c94628cab98c5a7f14e8e620078dc369d3385b2cc9e16adcfbefbdc0633205"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func digestFor(legacy bool) Digest {
	if legacy {
		return MD5
	}
	return SHA256
}

func (d Digest) String() string {
	switch d {
	case MD5:
		return "MD5"
	case SHA256:
		return "SHA-256"
	default:
		return fmt.Sprintf("Digest(%d)", int(d))
	}
}

func (d Digest) Size() int {
	if d == MD5 {
		return md5.Size
	}
	return sha256.Size
}

// HexLen is the number of hex characters in a digest string, which is also
// the number of UTF-16 characters in a record type marker.
func (d Digest) HexLen() int {
	return d.Size() * 2
}

// MarkerLen is the on-disk size of a record type marker in bytes.
func (d Digest) MarkerLen() int {
	return d.HexLen() * 2
}

func (d Digest) Sum(data []byte) []byte {
	if d == MD5 {
		h := md5.Sum(data)
		return h[:]
	}
	h := sha256.Sum256(data)
	return h[:]
}

// Name hashes the upper-cased UTF-16LE form of name and returns it as
// uppercase hex, which is the form used in index keys.
func (d Digest) Name(name string) string {
	return strings.ToUpper(hex.EncodeToString(d.Sum(encodeUTF16(strings.ToUpper(name)))))
}

// Marker is Name encoded as UTF-16LE, as stored at the start of records.
func (d Digest) Marker(name string) []byte {
	return encodeUTF16(d.Name(name))
}

// MatchMarker compares a record's leading bytes with the marker of typeName,
// ignoring the case of hex digits.
func (d Digest) MatchMarker(rec []byte, typeName string) bool {
	n := d.MarkerLen()
	if len(rec) < n {
		return false
	}
	return bytes.EqualFold(rec[:n], d.Marker(typeName))
}

func (d Digest) chained(rounds int) []byte {
	size := d.Size()
	buf := make([]byte, rounds*size)
	for i := range rounds {
		copy(buf[i*size:], d.Sum(buf[:i]))
	}
	return d.Sum(buf)
}

// SelfTest verifies the digest primitive against a fixed chained vector.
func (d Digest) SelfTest() error {
	want := sha256SelfTest
	if d == MD5 {
		want = md5SelfTest
	}
	if got := hex.EncodeToString(d.chained(selfTestRounds)); got != want {
		return fmt.Errorf("%v self-test failed: got %s, wanted %s", d, got, want)
	}
	return nil
}

func encodeUTF16(s string) []byte {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		panic(fmt.Errorf("utf-16 encoding of %q: %w", s, err))
	}
	return b
}

func decodeUTF16(b []byte) (string, error) {
	s, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(s), nil
}
