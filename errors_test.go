package cimrepo

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDataError_ErrorAndUnwrap(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := dataErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %T, wanted *DataError", err)
		}
		if !errors.Is(err, inner) {
			t.Fatalf("errors.Is(err, inner) = false, wanted true")
		}
		s := err.Error()
		if !strings.Contains(s, "oops at 0x1") || !strings.Contains(s, "inner") || !strings.Contains(s, "(2) aabb") {
			t.Fatalf("err.Error() = %q, wanted message with oops/inner/(2)", s)
		}
	})

	t.Run("large data includes prefix+suffix", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = byte(i)
		}
		err := dataErrf(data, 0, nil, "oops")
		s := err.Error()
		if !strings.Contains(s, "(200)") || !strings.Contains(s, "...") {
			t.Fatalf("err.Error() = %q, wanted message with (200) and ...", s)
		}
	})
}

func TestLocationError(t *testing.T) {
	loc := RecordLocation{LogicalPage: 5, RecordID: 2, Size: 100}
	err := locErrf("", loc, ErrNotFound, "page %d is not mapped", 5)
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound(%v) = false", err)
	}
	if s := err.Error(); s != "5.2.100: page 5 is not mapped: not found" {
		t.Fatalf("Error() = %q", s)
	}

	err = fmt.Errorf("wrapped: %w", locErrf(`NS_A\CI_B.5.2.100`, loc, ErrTruncated, ""))
	var le *LocationError
	if !errors.As(err, &le) || le.Key != `NS_A\CI_B.5.2.100` {
		t.Fatalf("errors.As = %v", le)
	}
	if s := le.Error(); s != `NS_A\CI_B.5.2.100: truncated record` {
		t.Fatalf("Error() = %q", s)
	}
	if IsNotFound(err) {
		t.Fatalf("IsNotFound(truncated) = true")
	}
}
