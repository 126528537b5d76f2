package cimrepo

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/andreyvit/cimrepo/internal/cimtest"
)

func newTestIndex(t testing.TB, legacy bool, tree *cimtest.Tree) *Index {
	var data []byte
	ix := &cimtest.Section{Version: 1, FirstID: 1, PhysicalPages: uint32(len(tree.Pages)), RootPage: tree.Root}
	for i, page := range tree.Pages {
		ix.Pages = append(ix.Pages, uint32(i))
		data = append(data, page...)
	}
	obj := &cimtest.Section{Version: 1, FirstID: 1}
	alloc := must(parseAllocationMap(cimtest.MappingFile(legacy, obj, ix), legacy))
	return newIndex(alloc, memPageFile(IndexFileName, data), Options{Logger: cimtest.Logger(t), Verbose: true}.sink())
}

func testIndexKeys(n int) []string {
	var keys []string
	for i := range n {
		keys = append(keys, fmt.Sprintf(`NS_%02d\CD_%02d.%d.1.10`, i%3, i, i))
	}
	slices.Sort(keys)
	return keys
}

func TestParseIndexPage(t *testing.T) {
	keys := []string{`NS_A\CD_B.1.2.3`, `NS_A\CI_B\IL_C.4.5.6`, `NS_Z`}
	page := must(parseIndexPage(cimtest.IndexPage(3, keys, []uint32{10, 11, 12, 13})))
	deepEqual(t, page.Keys, keys)
	deepEqual(t, page.Children, []uint32{10, 11, 12, 13})
	if !page.Header.IsActive(3) || page.Header.IsActive(4) {
		t.Fatalf("IsActive is wrong for %+v", page.Header)
	}
}

func TestParseIndexPage_Corrupt(t *testing.T) {
	good := cimtest.IndexPage(1, []string{`A\B`}, []uint32{0xFFFFFFFF, 0xFFFFFFFF})
	// Header, one skipped u32, two children, one key def.
	keyDefOff := 20 + 4 + 8
	tests := map[string]func(b *cimtest.Buf){
		"huge record count": func(b *cimtest.Buf) { b.PutU32(16, 0x10000) },
		"key def outside table": func(b *cimtest.Buf) {
			b.B[keyDefOff], b.B[keyDefOff+1] = 0x40, 0
		},
		"segment count overrun": func(b *cimtest.Buf) {
			// def table starts after the key def and its u16 length.
			b.B[keyDefOff+4] = 9
		},
	}
	for name, corrupt := range tests {
		t.Run(name, func(t *testing.T) {
			b := &cimtest.Buf{B: append([]byte{}, good...)}
			corrupt(b)
			if _, err := parseIndexPage(b.B); !errors.Is(err, ErrCorruptIndex) {
				t.Fatalf("err = %v, wanted ErrCorruptIndex", err)
			}
		})
	}
}

func TestIndex_Search(t *testing.T) {
	forBothLayouts(t, func(t *testing.T, legacy bool) {
		keys := testIndexKeys(14)
		tree := cimtest.BuildTree(keys, 3, legacy)
		ix := newTestIndex(t, legacy, tree)

		all := must(ix.Search(""))
		deepEqual(t, all, keys)

		var want []string
		for _, k := range keys {
			if k[:6] == `NS_01\` {
				want = append(want, k)
			}
		}
		deepEqual(t, must(ix.Search(`NS_01\`)), want)

		exact := keys[5]
		deepEqual(t, must(ix.Search(exact)), []string{exact})

		if got := must(ix.Search(`NS_99`)); len(got) != 0 {
			t.Fatalf("Search(NS_99) = %v, wanted none", got)
		}
	})
}

func TestIndex_Walk(t *testing.T) {
	keys := testIndexKeys(9)
	ix := newTestIndex(t, false, cimtest.BuildTree(keys, 2, false))
	var got []string
	ensure(ix.Walk(func(key string) error {
		got = append(got, key)
		return nil
	}))
	deepEqual(t, got, keys)

	stop := errors.New("stop")
	var n int
	err := ix.Walk(func(key string) error {
		n++
		if n == 3 {
			return stop
		}
		return nil
	})
	if err != stop || n != 3 {
		t.Fatalf("Walk = %v after %d keys, wanted stop after 3", err, n)
	}
}

func TestIndex_Root(t *testing.T) {
	tree := cimtest.BuildTree(testIndexKeys(3), 4, true)
	ix := newTestIndex(t, true, tree)
	if root := must(ix.Root()); root != 1 {
		t.Fatalf("legacy Root = %d, wanted 1", root)
	}

	tree.Pages[0] = cimtest.DeletedPage(0)
	if _, err := newTestIndex(t, true, tree).Root(); !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("Root without admin page err = %v, wanted ErrCorruptIndex", err)
	}
}

func TestIndex_CorruptLeafIsSkipped(t *testing.T) {
	keys := testIndexKeys(12)
	tree := cimtest.BuildTree(keys, 3, false)
	// Leaves are pages 1..n; break the second one.
	tree.Pages[2] = make([]byte, PageSize)
	copy(tree.Pages[2], "garbage")
	ix := newTestIndex(t, false, tree)

	got, err := ix.Search("")
	if !errors.Is(err, ErrIncomplete) || !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("err = %v, wanted ErrIncomplete wrapping ErrCorruptIndex", err)
	}
	// Leaf one holds keys 0..2, separator 3, leaf two keys 4..6, separator 7.
	want := slices.Concat(keys[:4], keys[7:])
	deepEqual(t, got, want)
}

func TestIndex_DeletedChildIsEmpty(t *testing.T) {
	keys := testIndexKeys(8)
	tree := cimtest.BuildTree(keys, 3, false)
	tree.Pages[1] = cimtest.DeletedPage(1)
	got, err := newTestIndex(t, false, tree).Search("")
	if err != nil {
		t.Fatal(err)
	}
	deepEqual(t, got, keys[3:])
}

func TestIndex_PageReachedTwice(t *testing.T) {
	keys := []string{"a", "b", "c", "m", "x", "y"}
	leaf := uint32(0xFFFFFFFF)
	tree := &cimtest.Tree{Root: 0, Pages: [][]byte{
		cimtest.IndexPage(0, []string{"m"}, []uint32{1, 1}),
		cimtest.IndexPage(1, keys[:3], []uint32{leaf, leaf, leaf, leaf}),
	}}
	got, err := newTestIndex(t, false, tree).Search("")
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("err = %v, wanted ErrIncomplete", err)
	}
	deepEqual(t, got, []string{"a", "b", "c", "m"})
}

func TestComparePrefix(t *testing.T) {
	tests := []struct {
		key, prefix string
		want        int
	}{
		{`NS_A\CD_B`, `NS_A\`, 0},
		{`NS_A`, `NS_A\`, -1},
		{`NS_B`, `NS_A\`, 1},
		{`anything`, "", 0},
	}
	for _, tt := range tests {
		if got := comparePrefix(tt.key, tt.prefix); got != tt.want {
			t.Errorf("comparePrefix(%q, %q) = %d, wanted %d", tt.key, tt.prefix, got, tt.want)
		}
	}
}
