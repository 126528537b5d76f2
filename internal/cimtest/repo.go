package cimtest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const (
	PageSize = 0x2000

	tocCapacity = 32
	tocBytes    = (tocCapacity + 1) * 16

	unavailable = 0xFFFFFFFF
)

// Location is where Objects.Add placed a record.
type Location struct {
	Page     uint32
	RecordID uint32
	Size     uint32
}

func (l Location) String() string {
	return fmt.Sprintf("%d.%d.%d", l.Page, l.RecordID, l.Size)
}

// Objects lays out records in logical heap pages. Every page starts with a
// table of contents; records too large for one page continue at offset zero
// of the following pages.
type Objects struct {
	Pages [][]byte

	cur    int
	cursor int
	count  int
}

func (o *Objects) newPage() {
	o.Pages = append(o.Pages, make([]byte, PageSize))
	o.cur = len(o.Pages) - 1
	o.cursor = tocBytes
	o.count = 0
}

func (o *Objects) Add(data []byte) Location {
	fits := o.cursor+len(data) <= PageSize
	if len(o.Pages) == 0 || o.count == tocCapacity || o.cursor >= PageSize || (!fits && len(data) <= PageSize-tocBytes) {
		o.newPage()
	}
	page := o.Pages[o.cur]
	o.count++
	loc := Location{Page: uint32(o.cur), RecordID: uint32(o.count), Size: uint32(len(data))}
	e := (o.count - 1) * 16
	var b Buf
	b.U32(loc.RecordID).U32(uint32(o.cursor)).U32(loc.Size).U32(0)
	copy(page[e:], b.B)

	n := copy(page[o.cursor:], data)
	o.cursor += n
	for rest := data[n:]; len(rest) > 0; {
		o.Pages = append(o.Pages, make([]byte, PageSize))
		o.cur = len(o.Pages) - 1
		n := copy(o.Pages[o.cur], rest)
		rest = rest[n:]
		o.cursor, o.count = PageSize, tocCapacity
	}
	return loc
}

// IndexPage encodes one active B-tree page. children must hold one more
// entry than keys.
func IndexPage(logical uint32, keys []string, children []uint32) []byte {
	if len(children) != len(keys)+1 {
		panic(fmt.Sprintf("%d keys need %d children, got %d", len(keys), len(keys)+1, len(children)))
	}
	var strs []string
	strIndex := make(map[string]uint16)
	var defs []uint16
	keyDefs := make([]uint16, len(keys))
	for i, key := range keys {
		segs := strings.Split(key, `\`)
		keyDefs[i] = uint16(len(defs))
		defs = append(defs, uint16(len(segs)))
		for _, seg := range segs {
			idx, ok := strIndex[seg]
			if !ok {
				idx = uint16(len(strs))
				strIndex[seg] = idx
				strs = append(strs, seg)
			}
			defs = append(defs, idx)
		}
	}

	var b Buf
	b.U32(0xACCC).U32(logical).U32(0).U32(0).U32(uint32(len(keys)))
	b.Zeros(4 * len(keys))
	for _, c := range children {
		b.U32(c)
	}
	for _, d := range keyDefs {
		b.U16(d)
	}
	b.U16(uint16(len(defs)))
	for _, d := range defs {
		b.U16(d)
	}
	b.U16(uint16(len(strs)))
	var pool Buf
	for _, s := range strs {
		b.U16(uint16(pool.Len()))
		pool.Bytes([]byte(s)).U8(0)
	}
	b.U16(uint16(pool.Len()))
	b.Bytes(pool.B)
	if b.Len() > PageSize {
		panic(fmt.Sprintf("index page %d overflows: %d bytes", logical, b.Len()))
	}
	return pad(b.B)
}

// AdminPage is the legacy index page zero pointing at the root.
func AdminPage(root uint32) []byte {
	var b Buf
	b.U32(0xADDD).U32(0).U32(0).U32(root).U32(0)
	return pad(b.B)
}

func DeletedPage(logical uint32) []byte {
	var b Buf
	b.U32(0xBADD).U32(logical).U32(0).U32(0).U32(0)
	return pad(b.B)
}

func pad(b []byte) []byte {
	page := make([]byte, PageSize)
	copy(page, b)
	return page
}

// Tree is a B-tree built from a sorted key list.
type Tree struct {
	Pages [][]byte
	Root  uint32
}

// BuildTree lays keys out in leaves of at most fanout keys under a single
// root; fanout must be at least 2. Legacy trees keep logical page zero for
// the admin page and mark leaves with child zero, current ones with
// 0xFFFFFFFF.
func BuildTree(keys []string, fanout int, legacy bool) *Tree {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	leaf := uint32(unavailable)
	first := uint32(0)
	if legacy {
		leaf, first = 0, 1
	}
	noChildren := func(n int) []uint32 {
		c := make([]uint32, n+1)
		for i := range c {
			c[i] = leaf
		}
		return c
	}

	t := &Tree{}
	if legacy {
		t.Pages = append(t.Pages, nil)
	}
	if len(keys) <= fanout {
		t.Root = first
		t.Pages = append(t.Pages, IndexPage(first, keys, noChildren(len(keys))))
	} else {
		var sepKeys []string
		var children []uint32
		var leaves [][]string
		for rest := keys; len(rest) > 0; {
			n := min(fanout, len(rest))
			if len(rest)-n == 1 {
				// Every separator needs a non-empty right leaf.
				n--
			}
			leaves = append(leaves, rest[:n])
			rest = rest[n:]
			if len(rest) > 0 {
				sepKeys = append(sepKeys, rest[0])
				rest = rest[1:]
			}
		}
		t.Root = first
		t.Pages = append(t.Pages, nil)
		for i, lk := range leaves {
			logical := first + 1 + uint32(i)
			children = append(children, logical)
			t.Pages = append(t.Pages, IndexPage(logical, lk, noChildren(len(lk))))
		}
		t.Pages[first] = IndexPage(first, sepKeys, children)
	}
	if legacy {
		t.Pages[0] = AdminPage(t.Root)
	}
	return t
}

// Section is one allocation table of a mapping file. Pages maps logical to
// physical page numbers.
type Section struct {
	Version       uint32
	PhysicalPages uint32
	Pages         []uint32
	Free          []uint32
	FirstID       uint32
	RootPage      uint32
}

func (s *Section) append(b *Buf, legacy bool) {
	b.U32(0xABCD).U32(s.Version)
	if !legacy {
		b.U32(s.FirstID).U32(0)
	}
	b.U32(s.PhysicalPages).U32(uint32(len(s.Pages)))
	for i, p := range s.Pages {
		if legacy {
			b.U32(p)
			continue
		}
		var userData uint32
		if i == 0 {
			userData = s.RootPage
		}
		b.U32(p).U32(0).U32(0).U32(userData).U32(s.FirstID).U32(0)
	}
	b.U32(uint32(len(s.Free)))
	for _, p := range s.Free {
		b.U32(p)
	}
	b.U32(0xDCBA)
}

// MappingFile encodes a mapping file with its objects and index sections.
func MappingFile(legacy bool, objects, index *Section) []byte {
	var b Buf
	objects.append(&b, legacy)
	index.append(&b, legacy)
	return b.B
}

// Repo accumulates records and index keys of a synthetic repository.
type Repo struct {
	Legacy  bool
	Objects Objects
	Keys    []string
	Fanout  int

	// Spare adds unreferenced physical pages at the start of Objects.data,
	// so that logical and physical page numbers differ.
	Spare int
}

func NewRepo(legacy bool) *Repo {
	return &Repo{Legacy: legacy, Fanout: 4, Spare: 1}
}

func (r *Repo) Name(s string) string {
	return Name(r.Legacy, s)
}

func (r *Repo) NS(ns string) string {
	return "NS_" + r.Name(ns)
}

// AddKey adds an index key that points at no record.
func (r *Repo) AddKey(key string) {
	r.Keys = append(r.Keys, key)
}

// AddRecord stores data in the heap and indexes it under path, returning
// the full key with its location suffix.
func (r *Repo) AddRecord(path string, data []byte) string {
	loc := r.Objects.Add(data)
	key := path + "." + loc.String()
	r.Keys = append(r.Keys, key)
	return key
}

func (r *Repo) ClassDefPath(ns, class string) string {
	return r.NS(ns) + `\CD_` + r.Name(class)
}

func (r *Repo) InstancePath(ns, class, inst string) string {
	return r.NS(ns) + `\CI_` + r.Name(class) + `\IL_` + r.Name(inst)
}

func (r *Repo) SubclassPath(ns, parent, child string) string {
	return r.NS(ns) + `\CR_` + r.Name(parent) + `\C_` + r.Name(child)
}

func (r *Repo) ReferencePath(ns, class, inst, ref string) string {
	return r.NS(ns) + `\KI_` + r.Name(class) + `\IR_` + r.Name(inst) + `\R_` + r.Name(ref)
}

// AddClass stores a class record in ns.
func (r *Repo) AddClass(ns string, c *ClassRecord) string {
	return r.AddRecord(r.ClassDefPath(ns, c.Name), c.Bytes())
}

// AddNamespace stores the __namespace instance of child under parent.
func (r *Repo) AddNamespace(parent, child string) string {
	return r.AddRecord(r.InstancePath(parent, "__namespace", child), NamespaceRecord(r.Legacy, child))
}

// Write stores Objects.data, index.btr and the mapping files in dir. A stale
// Mapping2.map with a lower version is written next to the real one.
func (r *Repo) Write(t testing.TB, dir string) {
	t.Helper()
	tree := BuildTree(r.Keys, r.Fanout, r.Legacy)

	objSec := &Section{Version: 7, FirstID: 1}
	objData := make([]byte, r.Spare*PageSize)
	for i, page := range r.Objects.Pages {
		objSec.Pages = append(objSec.Pages, uint32(r.Spare+i))
		objData = append(objData, page...)
	}
	for i := range r.Spare {
		objSec.Free = append(objSec.Free, uint32(i))
	}
	objSec.PhysicalPages = uint32(len(objData) / PageSize)

	ixSec := &Section{Version: 7, FirstID: 1, RootPage: tree.Root}
	var ixData []byte
	for i, page := range tree.Pages {
		ixSec.Pages = append(ixSec.Pages, uint32(i))
		ixData = append(ixData, page...)
	}
	ixSec.PhysicalPages = uint32(len(tree.Pages))

	write := func(name string, data []byte) {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("Objects.data", objData)
	write("index.btr", ixData)
	write("Mapping1.map", MappingFile(r.Legacy, objSec, ixSec))

	stale := *objSec
	stale.Version = 3
	stale.Pages = nil
	staleIx := *ixSec
	staleIx.Version = 3
	write("Mapping2.map", MappingFile(r.Legacy, &stale, &staleIx))
	if r.Legacy {
		write("Mapping.ver", []byte{1, 0, 0, 0})
	}
}
