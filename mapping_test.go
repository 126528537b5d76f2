package cimrepo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/andreyvit/cimrepo/internal/cimtest"
)

func TestParseAllocationMap(t *testing.T) {
	forBothLayouts(t, func(t *testing.T, legacy bool) {
		obj := &cimtest.Section{Version: 9, FirstID: 1, PhysicalPages: 4, Pages: []uint32{2, 0xFFFFFFFF, 0x40000003, 7}, Free: []uint32{0, 1, 0xFFFFFFFF}}
		ix := &cimtest.Section{Version: 9, FirstID: 1, PhysicalPages: 2, Pages: []uint32{1, 0}, RootPage: 1}
		m, err := parseAllocationMap(cimtest.MappingFile(legacy, obj, ix), legacy)
		if err != nil {
			t.Fatal(err)
		}
		if m.Version != 9 || m.Legacy != legacy {
			t.Errorf("Version, Legacy = %d, %v", m.Version, m.Legacy)
		}
		if n := m.PageCount(ObjectsSection); n != 4 {
			t.Errorf("PageCount = %d, wanted 4", n)
		}
		for logical, want := range []uint32{2, Unavailable, 3, Unavailable} {
			got, ok := m.PhysicalPage(uint32(logical))
			if got != want || ok != (want != Unavailable) {
				t.Errorf("PhysicalPage(%d) = %d, %v, wanted %d", logical, got, ok, want)
			}
		}
		if _, ok := m.PhysicalPage(4); ok {
			t.Errorf("PhysicalPage past the table is mapped")
		}
		if m.FreeCount(ObjectsSection) != 2 || !m.IsFree(ObjectsSection, 1) || m.IsFree(ObjectsSection, 2) {
			t.Errorf("free list is wrong")
		}
		if p, ok := m.IndexPhysicalPage(0); !ok || p != 1 {
			t.Errorf("IndexPhysicalPage(0) = %d, %v", p, ok)
		}
		root, ok := m.IndexRootPage()
		if legacy {
			if ok {
				t.Errorf("legacy IndexRootPage = %d, wanted none", root)
			}
		} else if !ok || root != 1 {
			t.Errorf("IndexRootPage = %d, %v, wanted 1", root, ok)
		}
		if m.Digest() != digestFor(legacy) {
			t.Errorf("Digest = %v", m.Digest())
		}
	})
}

func TestParseAllocationMap_FirstIDMismatch(t *testing.T) {
	obj := &cimtest.Section{Version: 2, FirstID: 5, PhysicalPages: 2, Pages: []uint32{0, 1}}
	data := cimtest.MappingFile(false, obj, &cimtest.Section{Version: 2, PhysicalPages: 1, Pages: []uint32{0}})
	// Header firstID sits at offset 8; entries keep firstID 5.
	var b cimtest.Buf
	b.B = data
	b.PutU32(8, 6)
	m := must(parseAllocationMap(b.B, false))
	if _, ok := m.PhysicalPage(0); ok {
		t.Fatalf("entry with stale firstID is mapped")
	}
}

func TestParseAllocationMap_Corrupt(t *testing.T) {
	good := cimtest.MappingFile(false, &cimtest.Section{Version: 1, PhysicalPages: 1, Pages: []uint32{0}}, &cimtest.Section{Version: 1, PhysicalPages: 1, Pages: []uint32{0}})
	tests := map[string][]byte{
		"empty":     nil,
		"truncated": good[:len(good)-6],
		"bad start": append([]byte{0xCD, 0xAB, 0, 1}, good[4:]...),
		"bad end":   append(append([]byte{}, good[:len(good)-4]...), 0xBA, 0xDC, 0, 1),
		"huge count": func() []byte {
			b := cimtest.Buf{B: append([]byte{}, good...)}
			b.PutU32(20, 0x10000000)
			return b.B
		}(),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := parseAllocationMap(data, false); !errors.Is(err, ErrCorruptMapping) {
				t.Fatalf("err = %v, wanted ErrCorruptMapping", err)
			}
		})
	}
}

func TestLoadAllocationMap_PicksHighestVersion(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) {
		ensure(os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	sec := func(ver uint32, n int) *cimtest.Section {
		s := &cimtest.Section{Version: ver, FirstID: 1, PhysicalPages: uint32(n)}
		for i := range n {
			s.Pages = append(s.Pages, uint32(i))
		}
		return s
	}
	write("Mapping1.map", cimtest.MappingFile(false, sec(4, 1), sec(4, 1)))
	write("Mapping2.map", cimtest.MappingFile(false, sec(12, 3), sec(12, 1)))
	write("Mapping3.map", []byte("garbage"))

	m := must(LoadAllocationMap(dir, Options{Logger: cimtest.Logger(t)}))
	if m.FileName != "Mapping2.map" || m.Version != 12 || m.PageCount(ObjectsSection) != 3 {
		t.Fatalf("loaded %s v%d with %d pages, wanted Mapping2.map v12 with 3", m.FileName, m.Version, m.PageCount(ObjectsSection))
	}
	if m.Legacy {
		t.Fatalf("Legacy = true without Mapping.ver")
	}
}

func TestLoadAllocationMap_NoneValid(t *testing.T) {
	dir := t.TempDir()
	ensure(os.WriteFile(filepath.Join(dir, "Mapping1.map"), []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0o644))
	if _, err := LoadAllocationMap(dir, Options{}); !errors.Is(err, ErrCorruptMapping) {
		t.Fatalf("err = %v, wanted ErrCorruptMapping", err)
	}
}
