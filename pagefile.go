package cimrepo

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andreyvit/cimrepo/mmap"
)

const (
	ObjectsFileName = "Objects.data"
	IndexFileName   = "index.btr"
)

// pageFile is a read-only repository file made of PageSize pages, either
// memory mapped or read through the file handle.
type pageFile struct {
	name   string
	f      *os.File
	mapped []byte
	size   int64
}

func openPageFile(path string, opt Options) (*pageFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	pf := &pageFile{name: fi.Name(), f: f, size: fi.Size()}
	if !opt.NoMmap {
		pf.mapped, err = mmap.Map(f, mmap.RandomAccess)
		if errors.Is(err, mmap.ErrUnsupported) {
			err = nil
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: mmap %s: %w", ErrIO, pf.name, err)
		}
	}
	return pf, nil
}

// memPageFile serves pages out of an in-memory image.
func memPageFile(name string, data []byte) *pageFile {
	return &pageFile{name: name, mapped: data, size: int64(len(data))}
}

func (pf *pageFile) PageCount() int {
	return int(pf.size / PageSize)
}

func (pf *pageFile) ReadAt(p []byte, off int64) (int, error) {
	if pf.mapped == nil && pf.f != nil {
		return pf.f.ReadAt(p, off)
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(pf.mapped)) {
		return 0, io.EOF
	}
	n := copy(p, pf.mapped[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Page returns physical page n. Mapped files return a view into the mapping,
// which callers must not modify.
func (pf *pageFile) Page(n uint32) ([]byte, error) {
	off := int64(n) * PageSize
	if off+PageSize > pf.size {
		return nil, fmt.Errorf("%w: %s: page %d beyond end of file (%d pages)", ErrIO, pf.name, n, pf.PageCount())
	}
	if pf.mapped != nil {
		return pf.mapped[off : off+PageSize : off+PageSize], nil
	}
	buf := make([]byte, PageSize)
	if _, err := pf.f.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("%w: %s: page %d: %w", ErrIO, pf.name, n, err)
	}
	return buf, nil
}

func (pf *pageFile) Close() error {
	var err error
	if pf.f != nil {
		err = mmap.Unmap(pf.mapped)
		if cerr := pf.f.Close(); err == nil {
			err = cerr
		}
		pf.f = nil
	}
	pf.mapped = nil
	return err
}
