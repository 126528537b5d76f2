package cimrepo

import (
	"log/slog"
)

// Heap resolves record locations against Objects.data.
type Heap struct {
	alloc *AllocationMap
	file  *pageFile
	log   logSink
}

// Record is an assembled object heap record. Data is the materialized
// concatenation of Extents.
type Record struct {
	Key      string
	Location RecordLocation
	Extents  Extents
	Data     []byte
}

func newHeap(alloc *AllocationMap, file *pageFile, log logSink) *Heap {
	return &Heap{alloc: alloc, file: file, log: log}
}

// Resolve returns the extents of the record at loc. Records longer than the
// rest of their first page continue at offset zero of the following logical
// pages.
func (h *Heap) Resolve(loc RecordLocation) (Extents, error) {
	if !loc.Valid() {
		return nil, locErrf("", loc, ErrNotFound, "invalid location")
	}
	phys, ok := h.alloc.PhysicalPage(loc.LogicalPage)
	if !ok {
		return nil, locErrf("", loc, ErrNotFound, "logical page %d is not mapped", loc.LogicalPage)
	}
	page, err := h.file.Page(phys)
	if err != nil {
		return nil, locErrf("", loc, err, "")
	}
	entry, ok := findTocEntry(page, loc.RecordID)
	if !ok {
		return nil, locErrf("", loc, ErrNotFound, "record %d not in the table of contents of page %d", loc.RecordID, phys)
	}
	if !entry.Valid() {
		return nil, locErrf("", loc, ErrDecode, "invalid toc entry {offset 0x%x, size %d}", entry.Offset, entry.Size)
	}
	if entry.Size != loc.Size {
		h.log.warn("cimrepo: record size mismatch", locAttr("loc", loc), slog.Uint64("toc_size", uint64(entry.Size)))
	}

	rem := uint64(loc.Size)
	first := min(uint64(PageSize-entry.Offset), rem)
	ext := Extents{{uint64(phys)*PageSize + uint64(entry.Offset), first}}
	rem -= first
	for logical := loc.LogicalPage; rem > 0; {
		logical++
		phys, ok := h.alloc.PhysicalPage(logical)
		if !ok {
			return nil, locErrf("", loc, ErrNotFound, "continuation page %d is not mapped", logical)
		}
		n := min(uint64(PageSize), rem)
		ext = append(ext, Extent{uint64(phys) * PageSize, n})
		rem -= n
	}
	return ext, nil
}

// ReadRecord resolves loc and reads the record bytes.
func (h *Heap) ReadRecord(loc RecordLocation) (*Record, error) {
	ext, err := h.Resolve(loc)
	if err != nil {
		return nil, err
	}
	data, err := Materialize(h.file, ext)
	if err != nil {
		return nil, locErrf("", loc, err, "")
	}
	return &Record{Location: loc, Extents: ext, Data: data}, nil
}

// Materialize reads field extents of this heap.
func (h *Heap) Materialize(ext Extents) ([]byte, error) {
	return Materialize(h.file, ext)
}
