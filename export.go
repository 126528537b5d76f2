package cimrepo

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ExportedField is one decoded value in its display form.
type ExportedField struct {
	Name    string `msgpack:"n"`
	Type    string `msgpack:"t"`
	State   string `msgpack:"s,omitempty"`
	Value   string `msgpack:"v"`
	Extents string `msgpack:"x,omitempty"`
}

// ExportedRecord is the export form of a namespace, class, instance or
// system object.
type ExportedRecord struct {
	Namespace   string          `msgpack:"ns"`
	Class       string          `msgpack:"class"`
	Key         string          `msgpack:"key,omitempty"`
	Location    string          `msgpack:"loc,omitempty"`
	Date1       uint64          `msgpack:"d1,omitempty"`
	Date2       uint64          `msgpack:"d2,omitempty"`
	SuperClass  string          `msgpack:"super,omitempty"`
	BaseClasses []string        `msgpack:"bases,omitempty"`
	Fields      []ExportedField `msgpack:"fields,omitempty"`
}

// ExportMeta describes the repository an export was made from.
type ExportMeta struct {
	Dir        string    `msgpack:"dir"`
	Mapping    string    `msgpack:"mapping"`
	Version    uint32    `msgpack:"version"`
	Legacy     bool      `msgpack:"legacy"`
	Namespaces int       `msgpack:"namespaces"`
	Time       time.Time `msgpack:"time"`
}

const exportMetaKey = "repository"

// ExportSummary counts what an export wrote.
type ExportSummary struct {
	Namespaces int
	Classes    int
	Instances  int
	Consumers  int
	Filters    int
	Bindings   int
}

type exportCounters struct {
	classes, instances, consumers, filters, bindings atomic.Int64
}

// Export decodes every namespace of the repository into a bbolt database at
// path. Namespaces are decoded concurrently, at most ExportConcurrency at a
// time; records that fail to decode are logged and skipped. When classes is
// not empty, instances of those classes are exported as well.
func (r *Repository) Export(path string, classes ...string) (*ExportSummary, error) {
	store, err := openExportStore(path, false)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	namespaces, err := r.Namespaces()
	if err != nil {
		return nil, err
	}

	var counts exportCounters
	g, ctx := errgroup.WithContext(r.opt.Context)
	g.SetLimit(r.opt.ExportConcurrency)
	for _, ns := range namespaces {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries, err := r.exportNamespace(ctx, ns, classes, &counts)
			if err != nil {
				return fmt.Errorf("%s: %w", ns.Name, err)
			}
			return store.putAll(entries)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	meta, err := encodeExportValue(&ExportMeta{
		Dir:        r.Dir,
		Mapping:    r.alloc.FileName,
		Version:    r.alloc.Version,
		Legacy:     r.alloc.Legacy,
		Namespaces: len(namespaces),
		Time:       time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := store.putAll([]exportEntry{{MetaBucket, exportMetaKey, meta}}); err != nil {
		return nil, err
	}

	sum := &ExportSummary{
		Namespaces: len(namespaces),
		Classes:    int(counts.classes.Load()),
		Instances:  int(counts.instances.Load()),
		Consumers:  int(counts.consumers.Load()),
		Filters:    int(counts.filters.Load()),
		Bindings:   int(counts.bindings.Load()),
	}
	r.log.info("cimrepo: export finished", slog.String("path", path), slog.Int("namespaces", sum.Namespaces), slog.Int("classes", sum.Classes), slog.Int("consumers", sum.Consumers), slog.Int("filters", sum.Filters), slog.Int("bindings", sum.Bindings))
	return sum, nil
}

func (r *Repository) exportNamespace(ctx context.Context, ns Namespace, classes []string, counts *exportCounters) ([]exportEntry, error) {
	var entries []exportEntry
	add := func(bucket, key string, rec *ExportedRecord) error {
		v, err := encodeExportValue(rec)
		if err != nil {
			return err
		}
		if key != "" {
			key = ns.Name + keySep + key
		} else {
			key = ns.Name
		}
		entries = append(entries, exportEntry{bucket, key, v})
		return nil
	}

	if err := add(NamespacesBucket, "", &ExportedRecord{Namespace: ns.Name, Class: NamespaceClass, Key: ns.Key, Location: locString(ns.Location)}); err != nil {
		return nil, err
	}

	defs, err := r.ClassDefinitions(ns.Name)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := add(ClassesBucket, def.Name, r.exportClass(ns.Name, def)); err != nil {
			return nil, err
		}
		counts.classes.Add(1)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, class := range classes {
		insts, err := r.Instances(ns.Name, class)
		if err != nil {
			return nil, err
		}
		for _, inst := range insts {
			if err := add(InstancesBucket, inst.Class.Name+keySep+SegmentID(trimLocation(inst.Key)), r.exportInstance(inst)); err != nil {
				return nil, err
			}
			counts.instances.Add(1)
		}
	}

	families := []struct {
		bucket string
		list   func(string) ([]*Object, error)
		count  *atomic.Int64
	}{
		{ConsumersBucket, func(ns string) ([]*Object, error) { return r.Consumers(ns, "") }, &counts.consumers},
		{FiltersBucket, r.Filters, &counts.filters},
		{BindingsBucket, r.Bindings, &counts.bindings},
	}
	for _, fam := range families {
		objs, err := fam.list(ns.Name)
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			if err := add(fam.bucket, obj.Schema.TypeName+keySep+obj.ID, r.exportObject(obj)); err != nil {
				return nil, err
			}
			fam.count.Add(1)
		}
	}
	return entries, nil
}

func (r *Repository) exportClass(ns string, def *ClassDefinition) *ExportedRecord {
	rec := &ExportedRecord{
		Namespace:   ns,
		Class:       def.Name,
		Date1:       def.Timestamp,
		SuperClass:  def.SuperClass,
		BaseClasses: def.BaseClasses,
	}
	for _, p := range def.Properties {
		rec.Fields = append(rec.Fields, ExportedField{
			Name:  p.Name,
			Type:  p.Type.String(),
			Value: r.FormatValue(p.Type, p.Default),
		})
	}
	return rec
}

func (r *Repository) exportInstance(inst *Instance) *ExportedRecord {
	rec := &ExportedRecord{
		Namespace: inst.Namespace,
		Class:     inst.Class.Name,
		Key:       inst.Key,
		Location:  locString(inst.Location),
		Date1:     inst.Header.Timestamp1,
		Date2:     inst.Header.Timestamp2,
	}
	for _, iv := range inst.Values {
		f := ExportedField{Name: iv.Property.Name, Type: iv.Property.Type.String(), State: iv.State.String()}
		if iv.Value.IsSet() {
			f.Value = r.FormatValue(iv.Property.Type, iv.Value)
			f.Extents = formatExtents(iv.Value)
		}
		rec.Fields = append(rec.Fields, f)
	}
	return rec
}

func (r *Repository) exportObject(obj *Object) *ExportedRecord {
	rec := &ExportedRecord{
		Namespace: obj.Namespace,
		Class:     obj.Schema.TypeName,
		Key:       obj.Key,
		Location:  locString(obj.Location),
		Date1:     obj.Header.Timestamp1,
		Date2:     obj.Header.Timestamp2,
	}
	for i, field := range obj.Schema.Fields {
		v := obj.Values[i]
		f := ExportedField{Name: field.Name, Type: field.Kind.String(), Value: r.formatField(field, v)}
		if v.IsSet() {
			f.Extents = formatExtents(v)
		}
		rec.Fields = append(rec.Fields, f)
	}
	return rec
}

func locString(loc RecordLocation) string {
	if !loc.Valid() {
		return ""
	}
	return loc.String()
}

// Export is a read-only view of a database written by Repository.Export.
type Export struct {
	store *exportStore
}

func OpenExport(path string) (*Export, error) {
	store, err := openExportStore(path, true)
	if err != nil {
		return nil, err
	}
	return &Export{store}, nil
}

func (e *Export) Close() error {
	return e.store.Close()
}

func (e *Export) Meta() (*ExportMeta, error) {
	v, err := e.store.get(MetaBucket, exportMetaKey)
	if err != nil {
		return nil, err
	} else if v == nil {
		return nil, fmt.Errorf("%w: export metadata", ErrNotFound)
	}
	var meta ExportMeta
	if err := decodeExportValue(v, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Records returns the records of bucket whose key starts with prefix,
// verifying the checksum of each.
func (e *Export) Records(bucket, prefix string) ([]*ExportedRecord, error) {
	var result []*ExportedRecord
	err := e.store.forEach(bucket, prefix, func(k, v []byte) error {
		rec := &ExportedRecord{}
		if err := decodeExportValue(v, rec); err != nil {
			return fmt.Errorf("%s %q: %w", bucket, k, err)
		}
		result = append(result, rec)
		return nil
	})
	return result, err
}

func (e *Export) Count(bucket string) int {
	return e.store.keyCount(bucket)
}

// Checksum returns the content checksum of a record, or zero if it is absent.
func (e *Export) Checksum(bucket, key string) (uint64, error) {
	v, err := e.store.get(bucket, key)
	if err != nil {
		return 0, err
	}
	return valueChecksum(v), nil
}
