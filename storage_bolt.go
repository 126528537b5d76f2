package cimrepo

import (
	"bytes"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

// Export buckets, one per record family.
const (
	NamespacesBucket = "namespaces"
	ClassesBucket    = "classes"
	InstancesBucket  = "instances"
	ConsumersBucket  = "consumers"
	FiltersBucket    = "filters"
	BindingsBucket   = "bindings"
	MetaBucket       = "meta"
)

var exportBuckets = []string{NamespacesBucket, ClassesBucket, InstancesBucket, ConsumersBucket, FiltersBucket, BindingsBucket, MetaBucket}

// ErrBucketNotFound is returned when reading a bucket that the export does
// not contain.
var ErrBucketNotFound = errors.New("bucket not found")

// exportStore is the bbolt database that decoded records are exported to.
type exportStore struct {
	bdb *bbolt.DB
}

func openExportStore(path string, readOnly bool) (*exportStore, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	bopt.ReadOnly = readOnly
	if !readOnly {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	bdb, err := bbolt.Open(path, 0o666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	s := &exportStore{bdb: bdb}
	if !readOnly {
		err := bdb.Update(func(btx *bbolt.Tx) error {
			for _, name := range exportBuckets {
				if _, err := btx.CreateBucketIfNotExists(unsafeBytesFromString(name)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			bdb.Close()
			return nil, fmt.Errorf("export: %w", err)
		}
	}
	return s, nil
}

func (s *exportStore) Close() error {
	return s.bdb.Close()
}

type exportEntry struct {
	bucket string
	key    string
	value  []byte
}

// putAll writes entries in one transaction.
func (s *exportStore) putAll(entries []exportEntry) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		for _, e := range entries {
			b := btx.Bucket(unsafeBytesFromString(e.bucket))
			if b == nil {
				return fmt.Errorf("%w: %s", ErrBucketNotFound, e.bucket)
			}
			if err := b.Put([]byte(e.key), e.value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *exportStore) get(bucket, key string) ([]byte, error) {
	var result []byte
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(bucket))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		if v := b.Get(unsafeBytesFromString(key)); v != nil {
			result = bytes.Clone(v)
		}
		return nil
	})
	return result, err
}

// forEach calls fn for every key of bucket starting with prefix, in key
// order. The value is only valid during the call.
func (s *exportStore) forEach(bucket, prefix string, fn func(k, v []byte) error) error {
	return s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(bucket))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		p := []byte(prefix)
		c := b.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *exportStore) keyCount(bucket string) int {
	var n int
	_ = s.bdb.View(func(btx *bbolt.Tx) error {
		if b := btx.Bucket(unsafeBytesFromString(bucket)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
