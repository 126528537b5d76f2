package cimrepo

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	indexPageActive  uint32 = 0xACCC
	indexPageDeleted uint32 = 0xBADD
	indexPageAdmin   uint32 = 0xADDD

	indexHeaderSize = 5 * 4
)

// IndexPageHeader starts every page of index.btr.
type IndexPageHeader struct {
	Signature   uint32
	LogicalID   uint32
	Reserved    uint32
	RootPage    uint32 // legacy admin pages only
	RecordCount uint32
}

func (h IndexPageHeader) IsActive(logical uint32) bool {
	return h.Signature == indexPageActive && h.LogicalID == logical && h.RecordCount != 0
}

func (h IndexPageHeader) IsAdmin() bool {
	return h.Signature == indexPageAdmin
}

func (h IndexPageHeader) IsDeleted() bool {
	return h.Signature == indexPageDeleted
}

func parseIndexPageHeader(buf []byte) (IndexPageHeader, error) {
	d := makeByteDecoder(buf)
	var h IndexPageHeader
	var err error
	for _, p := range []*uint32{&h.Signature, &h.LogicalID, &h.Reserved, &h.RootPage, &h.RecordCount} {
		if *p, err = d.Uint32(); err != nil {
			return h, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
		}
	}
	return h, nil
}

// indexPage is a decoded active B-tree page. Children has one more entry
// than Keys; child i leads to keys less than Keys[i].
type indexPage struct {
	Header   IndexPageHeader
	Children []uint32
	Keys     []string
}

// parseIndexPage reconstructs the keys of an active page. Keys are stored as
// lists of segment numbers that point into a shared string pool, and each
// table is checked against the one it indexes into.
func parseIndexPage(buf []byte) (*indexPage, error) {
	h, err := parseIndexPageHeader(buf)
	if err != nil {
		return nil, err
	}
	p := &indexPage{Header: h}
	rc := int(h.RecordCount)
	if rc > len(buf)/4 {
		return nil, dataErrf(buf, 16, ErrCorruptIndex, "record count %d does not fit the page", rc)
	}

	d := makeByteDecoder(buf)
	d.Buf = buf[indexHeaderSize:]
	corrupt := func(err error) error {
		return fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	if err := d.Skip(rc * 4); err != nil {
		return nil, corrupt(err)
	}
	p.Children = make([]uint32, rc+1)
	for i := range p.Children {
		if p.Children[i], err = d.Uint32(); err != nil {
			return nil, corrupt(err)
		}
	}
	keyDefs, err := readUint16s(&d, rc)
	if err != nil {
		return nil, corrupt(err)
	}
	defLen, err := d.Uint16()
	if err != nil {
		return nil, corrupt(err)
	}
	defTable, err := readUint16s(&d, int(defLen))
	if err != nil {
		return nil, corrupt(err)
	}
	strCount, err := d.Uint16()
	if err != nil {
		return nil, corrupt(err)
	}
	strOffsets, err := readUint16s(&d, int(strCount)+1)
	if err != nil {
		return nil, corrupt(err)
	}
	poolStart := d.Off()
	poolEnd := int(strOffsets[strCount])
	if poolEnd > d.Remaining() {
		return nil, dataErrf(buf, poolStart, ErrCorruptIndex, "string pool of %d bytes exceeds the page", poolEnd)
	}
	pool := buf[poolStart : poolStart+poolEnd]

	p.Keys = make([]string, rc)
	var sb strings.Builder
	for i, def := range keyDefs {
		if int(def) >= len(defTable) {
			return nil, dataErrf(buf, poolStart, ErrCorruptIndex, "key %d: definition %d outside table of %d", i, def, defLen)
		}
		count := int(defTable[def])
		if int(def)+count >= len(defTable) {
			return nil, dataErrf(buf, poolStart, ErrCorruptIndex, "key %d: %d segments at %d overrun table of %d", i, count, def, defLen)
		}
		sb.Reset()
		for j := 1; j <= count; j++ {
			seg := defTable[int(def)+j]
			if seg >= strCount {
				return nil, dataErrf(buf, poolStart, ErrCorruptIndex, "key %d: segment %d outside %d strings", i, seg, strCount)
			}
			off := int(strOffsets[seg])
			if off >= len(pool) {
				return nil, dataErrf(buf, poolStart, ErrCorruptIndex, "key %d: string offset 0x%x outside pool", i, off)
			}
			n := bytes.IndexByte(pool[off:], 0)
			if n < 0 {
				return nil, dataErrf(buf, poolStart+off, ErrCorruptIndex, "key %d: unterminated segment", i)
			}
			if j > 1 {
				sb.WriteString(keySep)
			}
			sb.Write(pool[off : off+n])
		}
		p.Keys[i] = sb.String()
	}
	return p, nil
}

func readUint16s(d *byteDecoder, n int) ([]uint16, error) {
	result := make([]uint16, n)
	for i := range result {
		v, err := d.Uint16()
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

// Index is the B-tree path index stored in index.btr.
type Index struct {
	alloc  *AllocationMap
	file   *pageFile
	legacy bool
	log    logSink
}

func newIndex(alloc *AllocationMap, file *pageFile, log logSink) *Index {
	return &Index{alloc: alloc, file: file, legacy: alloc.Legacy, log: log}
}

func (ix *Index) leaf() uint32 {
	if ix.legacy {
		return 0
	}
	return Unavailable
}

// Root returns the logical root page. Legacy repositories store it in the
// admin page at logical page zero.
func (ix *Index) Root() (uint32, error) {
	if !ix.legacy {
		root, ok := ix.alloc.IndexRootPage()
		if !ok {
			return 0, fmt.Errorf("%w: no root page in %s", ErrCorruptIndex, ix.alloc.FileName)
		}
		return root, nil
	}
	phys, ok := ix.alloc.IndexPhysicalPage(0)
	if !ok {
		return 0, fmt.Errorf("%w: admin page is not mapped", ErrCorruptIndex)
	}
	buf, err := ix.file.Page(phys)
	if err != nil {
		return 0, err
	}
	h, err := parseIndexPageHeader(buf)
	if err != nil {
		return 0, err
	}
	if !h.IsAdmin() {
		return 0, dataErrf(buf[:indexHeaderSize], 0, ErrCorruptIndex, "page %d is not an admin page", phys)
	}
	return h.RootPage, nil
}

// readPage returns nil for pages that are unmapped, deleted or admin pages;
// such pages are part of a healthy tree and hold no keys.
func (ix *Index) readPage(logical uint32) (*indexPage, error) {
	if int(logical) >= ix.alloc.PageCount(IndexSection) {
		return nil, fmt.Errorf("%w: logical page %d beyond allocation table of %d", ErrCorruptIndex, logical, ix.alloc.PageCount(IndexSection))
	}
	phys, ok := ix.alloc.IndexPhysicalPage(logical)
	if !ok {
		return nil, nil
	}
	buf, err := ix.file.Page(phys)
	if err != nil {
		return nil, err
	}
	h, err := parseIndexPageHeader(buf)
	if err != nil {
		return nil, err
	}
	if !h.IsActive(logical) {
		if h.IsAdmin() || h.IsDeleted() {
			return nil, nil
		}
		return nil, dataErrf(buf[:indexHeaderSize], 0, ErrCorruptIndex, "page %d (logical %d) is not active", phys, logical)
	}
	return parseIndexPage(buf)
}

// Search returns every key starting with prefix in ascending order. A
// complete key acts as an exact match. Corrupt subtrees are skipped and their
// errors are joined into the returned error alongside the keys found
// elsewhere.
func (ix *Index) Search(prefix string) ([]string, error) {
	w := ix.newWalk(prefix, false)
	var keys []string
	w.emit = func(key string) error {
		keys = append(keys, key)
		return nil
	}
	err := w.run()
	return keys, err
}

// Walk calls fn for every key of the index in ascending order. An error
// returned by fn stops the walk and is returned as is.
func (ix *Index) Walk(fn func(key string) error) error {
	w := ix.newWalk("", true)
	w.emit = fn
	return w.run()
}

type indexWalk struct {
	ix      *Index
	prefix  string
	all     bool
	visited *roaring.Bitmap
	emit    func(key string) error
	errs    []error
}

func (ix *Index) newWalk(prefix string, all bool) *indexWalk {
	return &indexWalk{ix: ix, prefix: prefix, all: all, visited: roaring.New()}
}

func (w *indexWalk) run() error {
	root, err := w.ix.Root()
	if err != nil {
		return err
	}
	if err := w.visit(root); err != nil {
		return err
	}
	if len(w.errs) > 0 {
		return fmt.Errorf("%w: %w", ErrIncomplete, errors.Join(w.errs...))
	}
	return nil
}

func (w *indexWalk) fail(logical uint32, err error) {
	w.ix.log.warn("cimrepo: skipping index subtree", slog.Uint64("page", uint64(logical)), slog.Any("err", err))
	w.errs = append(w.errs, fmt.Errorf("index page %d: %w", logical, err))
}

// visit only returns errors from emit; page failures are collected.
func (w *indexWalk) visit(logical uint32) error {
	if w.visited.Contains(logical) {
		w.fail(logical, fmt.Errorf("%w: page reached twice", ErrCorruptIndex))
		return nil
	}
	w.visited.Add(logical)

	page, err := w.ix.readPage(logical)
	if err != nil {
		w.fail(logical, err)
		return nil
	} else if page == nil {
		return nil
	}
	w.ix.log.debug("cimrepo: index page", slog.Uint64("page", uint64(logical)), slog.Int("keys", len(page.Keys)))

	for i, key := range page.Keys {
		c := 0
		if !w.all {
			c = comparePrefix(key, w.prefix)
		}
		if c < 0 {
			continue
		}
		if err := w.descend(page.Children[i]); err != nil {
			return err
		}
		if c > 0 {
			return nil
		}
		if err := w.emit(key); err != nil {
			return err
		}
	}
	return w.descend(page.Children[len(page.Keys)])
}

func (w *indexWalk) descend(child uint32) error {
	if child == w.ix.leaf() {
		return nil
	}
	return w.visit(child)
}

// comparePrefix compares the first len(prefix) bytes of key with prefix.
func comparePrefix(key, prefix string) int {
	if len(key) > len(prefix) {
		key = key[:len(prefix)]
	}
	return strings.Compare(key, prefix)
}
