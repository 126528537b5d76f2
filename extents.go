package cimrepo

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Extent is an absolute byte range in Objects.data.
type Extent struct {
	Start  uint64
	Length uint64
}

func (e Extent) End() uint64 {
	return e.Start + e.Length
}

func (e Extent) String() string {
	return fmt.Sprintf("0x%x+%d", e.Start, e.Length)
}

// Extents is the ordered storage of a record or field. The ranges are read as
// one virtual contiguous buffer.
type Extents []Extent

func (ext Extents) Len() uint64 {
	var n uint64
	for _, e := range ext {
		n += e.Length
	}
	return n
}

// Project returns the extents covering [off, off+n) of the concatenation of
// ext, splitting the boundary extents.
func Project(ext Extents, off, n uint64) (Extents, error) {
	total := ext.Len()
	if off > total || n > total-off {
		return nil, fmt.Errorf("%w: range 0x%x+%d outside %d bytes of extents", ErrTruncated, off, n, total)
	}
	var result Extents
	for _, e := range ext {
		if n == 0 {
			break
		}
		if off >= e.Length {
			off -= e.Length
			continue
		}
		take := min(e.Length-off, n)
		result = append(result, Extent{e.Start + off, take})
		n -= take
		off = 0
	}
	return result, nil
}

// Materialize reads the bytes of ext from r.
func Materialize(r io.ReaderAt, ext Extents) ([]byte, error) {
	total := ext.Len()
	if total > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d bytes is too large to materialize", ErrTruncated, total)
	}
	buf := make([]byte, total)
	pos := 0
	for _, e := range ext {
		if e.Start > math.MaxInt64 {
			return nil, fmt.Errorf("%w: extent %v out of range", ErrIO, e)
		}
		n, err := r.ReadAt(buf[pos:pos+int(e.Length)], int64(e.Start))
		if n < int(e.Length) {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("%w: reading %v: %w", ErrIO, e, err)
		}
		pos += n
	}
	return buf, nil
}

// RecordLocation identifies a record within the object heap.
type RecordLocation struct {
	LogicalPage uint32
	RecordID    uint32
	Size        uint32
}

func (loc RecordLocation) Valid() bool {
	return loc.RecordID != 0 && loc.Size != 0
}

func (loc RecordLocation) String() string {
	return fmt.Sprintf("%d.%d.%d", loc.LogicalPage, loc.RecordID, loc.Size)
}

const tocEntrySize = 16

// TocEntry is one entry of the table of contents at the start of every object
// heap page.
type TocEntry struct {
	RecordID uint32
	Offset   uint32
	Size     uint32
	CRC32    uint32
}

func (e TocEntry) IsZero() bool {
	return e == TocEntry{}
}

func (e TocEntry) Valid() bool {
	if e.IsZero() || e.Offset == 0 || e.Size == 0 || e.Offset >= PageSize {
		return false
	}
	return uint64(e.Offset)+uint64(e.Size) <= math.MaxUint32
}

// ParseToc reads the table of contents of a heap page, stopping at the zero
// terminator or at the end of the page.
func ParseToc(page []byte) []TocEntry {
	var toc []TocEntry
	for off := 0; off+tocEntrySize <= len(page); off += tocEntrySize {
		e := TocEntry{
			RecordID: binary.LittleEndian.Uint32(page[off:]),
			Offset:   binary.LittleEndian.Uint32(page[off+4:]),
			Size:     binary.LittleEndian.Uint32(page[off+8:]),
			CRC32:    binary.LittleEndian.Uint32(page[off+12:]),
		}
		if e.IsZero() {
			break
		}
		toc = append(toc, e)
	}
	return toc
}

func findTocEntry(page []byte, recordID uint32) (TocEntry, bool) {
	for _, e := range ParseToc(page) {
		if e.RecordID == recordID {
			return e, true
		}
	}
	return TocEntry{}, false
}
