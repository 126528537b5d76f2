package cimrepo

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// SectionStats describes one allocation table against its file.
type SectionStats struct {
	LogicalPages int
	Unavailable  int
	FreePages    int
	FilePages    int

	// Unreferenced counts physical pages of the file that are neither mapped
	// nor on the free list.
	Unreferenced int
}

type Stats struct {
	Objects SectionStats
	Index   SectionStats

	RecordsRead   uint64
	RecordsFailed uint64
	Searches      uint64
}

// mappedPages returns the set of physical pages a section maps.
func (m *AllocationMap) mappedPages(sec Section) *roaring.Bitmap {
	bm := roaring.New()
	for _, p := range m.sections[sec].pages {
		if p != Unavailable {
			bm.Add(p)
		}
	}
	return bm
}

func (m *AllocationMap) sectionStats(sec Section, filePages int) SectionStats {
	mapped := m.mappedPages(sec)
	s := SectionStats{
		LogicalPages: m.PageCount(sec),
		FreePages:    m.FreeCount(sec),
		FilePages:    filePages,
	}
	for _, p := range m.sections[sec].pages {
		if p == Unavailable {
			s.Unavailable++
		}
	}
	if filePages > 0 {
		used := roaring.Or(mapped, m.sections[sec].free)
		used.RemoveRange(uint64(filePages), uint64(Unavailable)+1)
		s.Unreferenced = filePages - int(used.GetCardinality())
	}
	return s
}

// Stats reports the page usage of both files and the record counters of r.
func (r *Repository) Stats() Stats {
	return Stats{
		Objects:       r.alloc.sectionStats(ObjectsSection, r.objects.PageCount()),
		Index:         r.alloc.sectionStats(IndexSection, r.index.PageCount()),
		RecordsRead:   r.RecordsRead.Load(),
		RecordsFailed: r.RecordsFailed.Load(),
		Searches:      r.Searches.Load(),
	}
}

func (s SectionStats) String() string {
	return fmt.Sprintf("logical = %d, unavailable = %d, free = %d, file_pages = %d, unreferenced = %d", s.LogicalPages, s.Unavailable, s.FreePages, s.FilePages, s.Unreferenced)
}

// Stats summarizes one allocation table without looking at the file.
func (m *AllocationMap) Stats(sec Section) SectionStats {
	return m.sectionStats(sec, 0)
}
