package cimrepo

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
)

// PageSize is the page size of both Objects.data and index.btr.
const PageSize = 0x2000

// Unavailable marks a logical page that has no physical page.
const Unavailable uint32 = 0xFFFFFFFF

const (
	mappingStartSig uint32 = 0xABCD
	mappingEndSig   uint32 = 0xDCBA
	pageIDMask      uint32 = 0x3FFFFFFF

	mappingVersionFile = "Mapping.ver"
	mappingFileCount   = 3

	legacySectionHeaderSize  = 4 * 4
	currentSectionHeaderSize = 6 * 4
	currentEntrySize         = 6 * 4
)

func mappingFileName(i int) string {
	return fmt.Sprintf("Mapping%d.map", i)
}

// Section selects one of the two allocation tables of a mapping file.
type Section int

const (
	ObjectsSection Section = iota
	IndexSection
)

func (s Section) String() string {
	if s == IndexSection {
		return "index"
	}
	return "objects"
}

type allocSection struct {
	version       uint32
	physicalPages uint32
	pages         []uint32
	free          *roaring.Bitmap
	firstUserData uint32
}

// AllocationMap translates logical page ids of Objects.data and index.btr into
// physical page numbers. It is immutable once loaded.
type AllocationMap struct {
	FileName string
	Legacy   bool
	Version  uint32

	sections [2]allocSection
}

// LoadAllocationMap picks the valid Mapping<N>.map with the highest version
// in dir and parses both of its sections.
func LoadAllocationMap(dir string, opt Options) (*AllocationMap, error) {
	log := opt.sink()
	legacy, err := fileExists(filepath.Join(dir, mappingVersionFile))
	if err != nil {
		return nil, err
	}

	var bestName string
	var bestVer uint32
	for i := 1; i <= mappingFileCount; i++ {
		name := mappingFileName(i)
		ver, err := readMappingVersion(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			log.warn("cimrepo: skipping mapping file", slog.String("file", name), slog.Any("err", err))
			continue
		}
		if ver > bestVer {
			bestVer, bestName = ver, name
		}
	}
	if bestName == "" {
		return nil, fmt.Errorf("%w: no valid mapping file in %s", ErrCorruptMapping, dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, bestName))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	m, err := parseAllocationMap(data, legacy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", bestName, err)
	}
	m.FileName = bestName
	log.debug("cimrepo: loaded mapping", slog.String("file", bestName), slog.Uint64("version", uint64(m.Version)), slog.Bool("legacy", legacy), slog.Int("objects", len(m.sections[ObjectsSection].pages)), slog.Int("index", len(m.sections[IndexSection].pages)))
	return m, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	} else if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %w", ErrIO, err)
}

// readMappingVersion returns the version of a mapping file, or zero when its
// header is not valid.
func readMappingVersion(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var buf [8]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return 0, nil
	}
	d := makeByteDecoder(buf[:])
	sig, _ := d.Uint32()
	ver, _ := d.Uint32()
	if sig != mappingStartSig {
		return 0, nil
	}
	return ver, nil
}

func parseAllocationMap(data []byte, legacy bool) (*AllocationMap, error) {
	m := &AllocationMap{Legacy: legacy}
	d := makeByteDecoder(data)
	for _, sec := range []Section{ObjectsSection, IndexSection} {
		s, err := parseAllocSection(&d, legacy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v section: %w", ErrCorruptMapping, sec, err)
		}
		m.sections[sec] = *s
	}
	m.Version = m.sections[ObjectsSection].version
	return m, nil
}

func parseAllocSection(d *byteDecoder, legacy bool) (*allocSection, error) {
	start := d.Off()
	hdrSize := currentSectionHeaderSize
	if legacy {
		hdrSize = legacySectionHeaderSize
	}
	hdr, err := d.Raw(hdrSize)
	if err != nil {
		return nil, err
	}
	h := makeByteDecoder(hdr)
	sig, _ := h.Uint32()
	if sig != mappingStartSig {
		return nil, dataErrf(d.Orig[start:start+hdrSize], 0, nil, "bad start signature 0x%x", sig)
	}
	s := &allocSection{free: roaring.New()}
	s.version, _ = h.Uint32()
	var firstID uint32
	if !legacy {
		firstID, _ = h.Uint32()
		_, _ = h.Uint32()
	}
	s.physicalPages, _ = h.Uint32()
	count, _ := h.Uint32()

	entrySize := 4
	if !legacy {
		entrySize = currentEntrySize
	}
	if uint64(count)*uint64(entrySize) > uint64(d.Remaining()) {
		return nil, dataErrf(hdr, 0, ErrTruncated, "%d entries do not fit", count)
	}

	s.pages = make([]uint32, count)
	for i := range s.pages {
		var page uint32
		if legacy {
			page, _ = d.Uint32()
		} else {
			e, _ := d.Raw(currentEntrySize)
			ed := makeByteDecoder(e)
			page, _ = ed.Uint32()
			_ = ed.Skip(8) // crc, free space
			userData, _ := ed.Uint32()
			entryFirstID, _ := ed.Uint32()
			if entryFirstID != firstID {
				page = Unavailable
			} else if i == 0 {
				s.firstUserData = userData
			}
		}
		s.pages[i] = s.maskPage(page)
	}

	freeCount, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if uint64(freeCount)*4 > uint64(d.Remaining()) {
		return nil, dataErrf(d.Orig, d.Off(), ErrTruncated, "%d free pages do not fit", freeCount)
	}
	for range freeCount {
		v, _ := d.Uint32()
		if v != Unavailable {
			s.free.Add(v & pageIDMask)
		}
	}

	end, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if end != mappingEndSig {
		return nil, dataErrf(d.Orig, d.Off()-4, nil, "bad end signature 0x%x", end)
	}
	return s, nil
}

func (s *allocSection) maskPage(v uint32) uint32 {
	if v == Unavailable {
		return Unavailable
	}
	v &= pageIDMask
	if v >= s.physicalPages {
		return Unavailable
	}
	return v
}

func (s *allocSection) lookup(logical uint32) (uint32, bool) {
	if uint64(logical) >= uint64(len(s.pages)) {
		return Unavailable, false
	}
	p := s.pages[logical]
	return p, p != Unavailable
}

// PhysicalPage translates a logical page of Objects.data.
func (m *AllocationMap) PhysicalPage(logical uint32) (uint32, bool) {
	return m.sections[ObjectsSection].lookup(logical)
}

// IndexPhysicalPage translates a logical page of index.btr.
func (m *AllocationMap) IndexPhysicalPage(logical uint32) (uint32, bool) {
	return m.sections[IndexSection].lookup(logical)
}

// IndexRootPage returns the logical root page of the index. Legacy
// repositories keep it in the admin page of index.btr instead.
func (m *AllocationMap) IndexRootPage() (uint32, bool) {
	if m.Legacy || len(m.sections[IndexSection].pages) == 0 {
		return 0, false
	}
	return m.sections[IndexSection].firstUserData, true
}

// PageCount is the number of logical pages in a section.
func (m *AllocationMap) PageCount(sec Section) int {
	return len(m.sections[sec].pages)
}

// IsFree reports whether a physical page is on the free list of a section.
func (m *AllocationMap) IsFree(sec Section, physical uint32) bool {
	return m.sections[sec].free.Contains(physical)
}

func (m *AllocationMap) FreeCount(sec Section) int {
	return int(m.sections[sec].free.GetCardinality())
}

func (m *AllocationMap) Digest() Digest {
	return digestFor(m.Legacy)
}
