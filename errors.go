package cimrepo

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIO             = errors.New("repository read failed")
	ErrCorruptMapping = errors.New("corrupt mapping file")
	ErrCorruptIndex   = errors.New("corrupt index page")
	ErrNotFound       = errors.New("not found")
	ErrTruncated      = errors.New("truncated record")
	ErrUnknownType    = errors.New("unknown CIM type")
	ErrTypeMismatch   = errors.New("record type marker mismatch")
	ErrDecode         = errors.New("cannot decode record")

	// ErrIncomplete wraps the failures of index subtrees when a search still
	// produced the keys found elsewhere.
	ErrIncomplete = errors.New("index search incomplete")
)

// DataError describes a problem with a specific byte range of a page or
// record. The data is dumped in the message so that the failing bytes end up
// in the log.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	var buf strings.Builder
	buf.WriteString(e.Msg)
	fmt.Fprintf(&buf, " at 0x%x", e.Off)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	if n <= prefixLen+suffixLen {
		fmt.Fprintf(&buf, ": (%d) %x", n, e.Data)
	} else {
		fmt.Fprintf(&buf, ": (%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	return buf.String()
}

// LocationError names the index key and record location an error relates to.
type LocationError struct {
	Key      string
	Location RecordLocation
	Msg      string
	Err      error
}

func locErrf(key string, loc RecordLocation, err error, format string, args ...any) error {
	return &LocationError{key, loc, fmt.Sprintf(format, args...), err}
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

func (e *LocationError) Error() string {
	var buf strings.Builder
	if e.Key != "" {
		buf.WriteString(e.Key)
	} else {
		buf.WriteString(e.Location.String())
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// IsNotFound reports whether err means that a key or page is simply absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
