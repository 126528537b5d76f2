// Package mmap maps repository files into memory, read-only.
package mmap

import (
	"errors"
	"fmt"
	"os"
)

// ErrUnsupported is returned by Map on platforms without memory mapping.
var ErrUnsupported = errors.New("mmap: not supported on this platform")

type Options uint

const (
	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << iota

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess

	// Prefault is a hint requesting the entire file to be loaded in memory
	// for fastest access. Maps to MAP_POPULATE on Linux.
	Prefault
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Map maps the entire file. An empty file yields a nil slice and no error.
func Map(f *os.File, opt Options) ([]byte, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return nil, nil
	}
	if size > MaxSize {
		return nil, fmt.Errorf("%s: %d bytes exceeds the maximum mapping size", f.Name(), size)
	}
	return mmap(f, int(size), opt)
}

// Unmap releases a slice returned by Map.
func Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return munmap(b)
}
