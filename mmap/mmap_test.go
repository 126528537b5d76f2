package mmap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOptionsHas(t *testing.T) {
	var o Options = RandomAccess | Prefault
	if !o.Has(RandomAccess) || o.Has(SequentialAccess) {
		t.Fatalf("Options.Has returned unexpected results for %v", o)
	}
}

func TestMapAndUnmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Objects.data")
	data := bytes.Repeat([]byte{0xAB, 0xCD}, 4096)
	ensure(os.WriteFile(path, data, 0o644))

	f := must(os.Open(path))
	defer f.Close()

	b, err := Map(f, RandomAccess)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if !bytes.Equal(b, data) {
		t.Fatalf("mapped %d bytes, wanted the %d bytes written", len(b), len(data))
	}
	if err := Unmap(b); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
}

func TestMap_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.btr")
	ensure(os.WriteFile(path, nil, 0o644))

	f := must(os.Open(path))
	defer f.Close()

	b, err := Map(f, 0)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if b != nil {
		t.Fatalf("Map = %d bytes, wanted nil", len(b))
	}
	if err := Unmap(b); err != nil {
		t.Fatalf("Unmap(nil): %v", err)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
