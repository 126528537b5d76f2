package cimrepo

import (
	"fmt"
	"log/slog"
)

const namespaceRecordGap = 6

// Namespace is a namespace found under its parent's __namespace instances.
type Namespace struct {
	Name     string // full path, like ROOT\subscription
	Key      string
	Location RecordLocation
}

// DecodeNamespaceName returns the short name held by a __namespace instance.
func DecodeNamespaceName(data []byte, ext Extents, legacy bool) (string, error) {
	d := makeByteDecoder(data)
	if _, err := readRecordHeader(&d, ext, digestFor(legacy), NamespaceClass); err != nil {
		return "", err
	}
	if err := d.Skip(namespaceRecordGap); err != nil {
		return "", err
	}
	nameOff, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if err := d.SizedSkip(); err != nil {
		return "", err
	}
	if err := d.Skip(1); err != nil {
		return "", err
	}
	size, err := d.Uint32()
	if err != nil {
		return "", err
	}
	blob, err := makeWindow(data, d.Off(), int(size&blobSizeMask))
	if err != nil {
		return "", err
	}
	c := recordCtx{data, ext, blob}
	name, err := c.name(nameOff)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", dataErrf(data, blob.base+int(nameOff), ErrDecode, "empty namespace name")
	}
	return name, nil
}

// Namespaces enumerates all namespaces breadth first starting at ROOT. ROOT
// itself is the first element and has no location. Children that cannot be
// decoded are logged and skipped.
func (r *Repository) Namespaces() ([]Namespace, error) {
	result := []Namespace{{Name: RootNamespace}}
	seen := map[string]bool{r.keys.ID(RootNamespace): true}
	for i := 0; i < len(result); i++ {
		parent := result[i].Name
		keys, err := r.searchLocated(r.keys.Instances(parent, NamespaceClass))
		if err != nil {
			return result, err
		}
		for _, k := range keys {
			rec, err := r.heap.ReadRecord(k.Location)
			if err != nil {
				r.log.warn("cimrepo: skipping namespace", slog.String("key", k.Key), slog.Any("err", err))
				continue
			}
			name, err := DecodeNamespaceName(rec.Data, rec.Extents, r.alloc.Legacy)
			if err != nil {
				r.log.warn("cimrepo: skipping namespace", slog.String("key", k.Key), slog.Any("err", err))
				continue
			}
			full := parent + keySep + name
			id := r.keys.ID(full)
			if seen[id] {
				continue
			}
			seen[id] = true
			result = append(result, Namespace{Name: full, Key: k.Key, Location: k.Location})
		}
	}
	r.log.debug("cimrepo: namespaces", slog.Int("count", len(result)))
	return result, nil
}

func (ns Namespace) String() string {
	if ns.Location.Valid() {
		return fmt.Sprintf("%s (%v)", ns.Name, ns.Location)
	}
	return ns.Name
}
