package cimrepo

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
)

// SystemClassNamespace holds the system classes that every namespace
// inherits from.
const SystemClassNamespace = "__SystemClass"

// Repository is an open, read-only WMI repository directory.
type Repository struct {
	Dir string

	opt   Options
	log   logSink
	alloc *AllocationMap
	keys  KeyBuilder

	objects *pageFile
	index   *pageFile
	heap    *Heap
	ix      *Index

	RecordsRead   atomic.Uint64
	RecordsFailed atomic.Uint64
	Searches      atomic.Uint64
}

// Open loads the allocation map of dir and opens Objects.data and index.btr.
func Open(dir string, opt Options) (*Repository, error) {
	opt = opt.withDefaults()
	alloc, err := LoadAllocationMap(dir, opt)
	if err != nil {
		return nil, err
	}
	r := &Repository{
		Dir:   dir,
		opt:   opt,
		log:   opt.sink(),
		alloc: alloc,
		keys:  KeyBuilder{alloc.Digest()},
	}
	r.objects, err = openPageFile(filepath.Join(dir, ObjectsFileName), opt)
	if err != nil {
		return nil, err
	}
	r.index, err = openPageFile(filepath.Join(dir, IndexFileName), opt)
	if err != nil {
		r.objects.Close()
		return nil, err
	}
	r.init()
	r.log.info("cimrepo: opened repository", slog.String("dir", dir), slog.String("mapping", alloc.FileName), slog.Bool("legacy", alloc.Legacy))
	return r, nil
}

// newRepository assembles a repository from already loaded parts.
func newRepository(alloc *AllocationMap, objects, index *pageFile, opt Options) *Repository {
	opt = opt.withDefaults()
	r := &Repository{
		opt:     opt,
		log:     opt.sink(),
		alloc:   alloc,
		keys:    KeyBuilder{alloc.Digest()},
		objects: objects,
		index:   index,
	}
	r.init()
	return r
}

func (r *Repository) init() {
	r.heap = newHeap(r.alloc, r.objects, r.log)
	r.ix = newIndex(r.alloc, r.index, r.log)
}

func (r *Repository) Close() error {
	return errors.Join(r.objects.Close(), r.index.Close())
}

func (r *Repository) Legacy() bool {
	return r.alloc.Legacy
}

func (r *Repository) AllocationMap() *AllocationMap {
	return r.alloc
}

func (r *Repository) Heap() *Heap {
	return r.heap
}

func (r *Repository) Index() *Index {
	return r.ix
}

func (r *Repository) Keys() KeyBuilder {
	return r.keys
}

// search runs an index search. Failed subtrees have already been logged by
// the index, so an incomplete result is returned without an error.
func (r *Repository) search(prefix string) ([]string, error) {
	r.Searches.Add(1)
	keys, err := r.ix.Search(prefix)
	if errors.Is(err, ErrIncomplete) {
		return keys, nil
	}
	return keys, err
}

func (r *Repository) searchLocated(prefix string) ([]LocatedKey, error) {
	keys, err := r.search(prefix)
	if err != nil {
		return nil, err
	}
	result := make([]LocatedKey, 0, len(keys))
	for _, key := range keys {
		path, loc, err := ParseLocationKey(key)
		if err != nil {
			r.log.warn("cimrepo: skipping key", slog.String("key", key), slog.Any("err", err))
			continue
		}
		result = append(result, LocatedKey{key, path, loc})
	}
	return result, nil
}

// readKey reads the record a located key points at.
func (r *Repository) readKey(k LocatedKey) (*Record, error) {
	rec, err := r.heap.ReadRecord(k.Location)
	if err != nil {
		var le *LocationError
		if errors.As(err, &le) && le.Key == "" {
			le.Key = k.Key
		}
		return nil, err
	}
	r.RecordsRead.Add(1)
	rec.Key = k.Key
	return rec, nil
}

// skip logs a record that a listing leaves out.
func (r *Repository) skip(k LocatedKey, err error) {
	r.RecordsFailed.Add(1)
	r.log.warn("cimrepo: skipping record", slog.String("key", k.Key), locAttr("loc", k.Location), slog.Any("err", err))
}

func (r *Repository) String() string {
	return fmt.Sprintf("%s (%s, version %d)", r.Dir, r.alloc.Digest(), r.alloc.Version)
}
