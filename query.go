package cimrepo

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Object is a record of one of the fixed-layout system classes (consumers,
// filters and bindings) together with where it was found.
type Object struct {
	*DecodedRecord
	Namespace string
	Key       string
	ID        string
	Location  RecordLocation
}

// classResolver loads class definitions of one namespace, following
// superclasses. Definitions are memoized by class id for the duration of one
// query.
type classResolver struct {
	r      *Repository
	ns     string
	memo   map[string]*ClassDefinition
	active map[string]bool
}

func (r *Repository) newClassResolver(ns string) *classResolver {
	return &classResolver{r: r, ns: ns, memo: make(map[string]*ClassDefinition), active: make(map[string]bool)}
}

func (cr *classResolver) load(name string) (*ClassDefinition, error) {
	id := cr.r.keys.ID(name)
	if def := cr.memo[id]; def != nil {
		return def, nil
	}
	k, err := cr.find(id)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", name, err)
	}
	return cr.loadKey(id, k)
}

func (cr *classResolver) loadKey(id string, k LocatedKey) (*ClassDefinition, error) {
	if def := cr.memo[id]; def != nil {
		return def, nil
	}
	if cr.active[id] {
		return nil, locErrf(k.Key, k.Location, ErrDecode, "superclass cycle")
	}
	cr.active[id] = true
	defer delete(cr.active, id)

	rec, err := cr.r.readKey(k)
	if err != nil {
		return nil, err
	}
	def, err := DecodeClass(rec.Data, rec.Extents, cr.load)
	if err != nil {
		return nil, locErrf(k.Key, k.Location, err, "")
	}
	cr.memo[id] = def
	return def, nil
}

// find locates a class definition in the resolver's namespace, then among the
// system classes.
func (cr *classResolver) find(id string) (LocatedKey, error) {
	namespaces := []string{cr.ns}
	if !strings.EqualFold(cr.ns, SystemClassNamespace) {
		namespaces = append(namespaces, SystemClassNamespace)
	}
	for _, ns := range namespaces {
		keys, err := cr.r.searchLocated(cr.r.keys.ClassDefByID(ns, id))
		if err != nil {
			return LocatedKey{}, err
		}
		if len(keys) > 0 {
			return keys[0], nil
		}
	}
	return LocatedKey{}, ErrNotFound
}

// ClassDefinition returns the definition of class in ns merged with all its
// superclasses. A missing class is reported with ErrNotFound.
func (r *Repository) ClassDefinition(ns, class string) (*ClassDefinition, error) {
	return r.newClassResolver(ns).load(class)
}

// ClassDefinitions decodes every class defined in ns. Classes that fail to
// decode are logged and left out.
func (r *Repository) ClassDefinitions(ns string) ([]*ClassDefinition, error) {
	keys, err := r.searchLocated(r.keys.ClassDefs(ns))
	if err != nil {
		return nil, err
	}
	cr := r.newClassResolver(ns)
	var result []*ClassDefinition
	for _, k := range keys {
		def, err := cr.loadKey(k.ID(), k)
		if err != nil {
			r.skip(k, err)
			continue
		}
		result = append(result, def)
	}
	return result, nil
}

// Instances decodes all instances of class in ns. A class that does not exist
// has no instances.
func (r *Repository) Instances(ns, class string) ([]*Instance, error) {
	def, err := r.ClassDefinition(ns, class)
	if IsNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	keys, err := r.searchLocated(r.keys.Instances(ns, class))
	if err != nil {
		return nil, err
	}
	var result []*Instance
	for _, k := range keys {
		inst, err := r.decodeInstance(ns, def, k)
		if err != nil {
			r.skip(k, err)
			continue
		}
		result = append(result, inst)
	}
	return result, nil
}

// Instance decodes a single named instance.
func (r *Repository) Instance(ns, class, name string) (*Instance, error) {
	def, err := r.ClassDefinition(ns, class)
	if err != nil {
		return nil, err
	}
	k, err := r.findOne(r.keys.Instance(ns, class, name))
	if err != nil {
		return nil, fmt.Errorf("%s.%s=%q: %w", ns, class, name, err)
	}
	return r.decodeInstance(ns, def, k)
}

// InstancesInAllNamespaces looks for instances of class in every namespace.
func (r *Repository) InstancesInAllNamespaces(class string) ([]*Instance, error) {
	namespaces, err := r.Namespaces()
	if err != nil {
		return nil, err
	}
	var result []*Instance
	for _, ns := range namespaces {
		insts, err := r.Instances(ns.Name, class)
		if err != nil {
			return result, fmt.Errorf("%s: %w", ns.Name, err)
		}
		result = append(result, insts...)
	}
	return result, nil
}

func (r *Repository) decodeInstance(ns string, def *ClassDefinition, k LocatedKey) (*Instance, error) {
	rec, err := r.readKey(k)
	if err != nil {
		return nil, err
	}
	inst, err := DecodeInstance(rec.Data, rec.Extents, def, r.alloc.Legacy)
	if err != nil {
		return nil, locErrf(k.Key, k.Location, err, "")
	}
	inst.Namespace, inst.Key, inst.Location = ns, k.Key, k.Location
	return inst, nil
}

func (r *Repository) findOne(prefix string) (LocatedKey, error) {
	keys, err := r.searchLocated(prefix)
	if err != nil {
		return LocatedKey{}, err
	}
	if len(keys) == 0 {
		return LocatedKey{}, ErrNotFound
	}
	if len(keys) > 1 {
		r.log.debug("cimrepo: prefix matches several keys", slog.String("prefix", prefix), slog.Int("count", len(keys)))
	}
	return keys[0], nil
}

func (r *Repository) decodeObject(ns string, k LocatedKey, schema *Schema) (*Object, error) {
	rec, err := r.readKey(k)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		var ok bool
		if schema, ok = DetectConsumer(rec.Data, r.alloc.Legacy); !ok {
			return nil, locErrf(k.Key, k.Location, ErrTypeMismatch, "not a known consumer class")
		}
	}
	dr, err := DecodeRecord(rec.Data, rec.Extents, schema, r.alloc.Legacy)
	if err != nil {
		return nil, locErrf(k.Key, k.Location, err, "")
	}
	return &Object{DecodedRecord: dr, Namespace: ns, Key: k.Key, ID: k.ID(), Location: k.Location}, nil
}

func (r *Repository) decodeObjects(ns string, keys []LocatedKey, schema *Schema) []*Object {
	var result []*Object
	for _, k := range keys {
		obj, err := r.decodeObject(ns, k, schema)
		if err != nil {
			r.skip(k, err)
			continue
		}
		result = append(result, obj)
	}
	return result
}

// Consumers decodes the event consumers of ns. With an empty typ, instances
// of every subclass of __EventConsumer are returned, and those of classes
// without a known layout are left out.
func (r *Repository) Consumers(ns, typ string) ([]*Object, error) {
	if typ != "" {
		schema, ok := ConsumerSchema(typ)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported consumer type %s", ErrDecode, typ)
		}
		keys, err := r.searchLocated(r.keys.Instances(ns, schema.TypeName))
		if err != nil {
			return nil, err
		}
		return r.decodeObjects(ns, keys, schema), nil
	}

	subclasses, err := r.search(r.keys.Subclasses(ns, EventConsumerClass))
	if err != nil {
		return nil, err
	}
	var result []*Object
	for _, sub := range subclasses {
		id := SegmentID(sub)
		keys, err := r.searchLocated(r.keys.InstancesByID(ns, id))
		if err != nil {
			return result, err
		}
		for _, k := range keys {
			obj, err := r.decodeObject(ns, k, nil)
			if errors.Is(err, ErrTypeMismatch) {
				r.log.debug("cimrepo: consumer of unknown class", slog.String("key", k.Key))
				continue
			} else if err != nil {
				r.skip(k, err)
				continue
			}
			result = append(result, obj)
		}
	}
	slices.SortStableFunc(result, func(a, b *Object) int {
		return strings.Compare(a.Key, b.Key)
	})
	return slices.CompactFunc(result, func(a, b *Object) bool { return a.Key == b.Key }), nil
}

// Consumer decodes the named consumer of type typ.
func (r *Repository) Consumer(ns, typ, name string) (*Object, error) {
	schema, ok := ConsumerSchema(typ)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported consumer type %s", ErrDecode, typ)
	}
	k, err := r.findOne(r.keys.Instance(ns, schema.TypeName, name))
	if err != nil {
		return nil, fmt.Errorf("%s.%s=%q: %w", ns, typ, name, err)
	}
	return r.decodeObject(ns, k, schema)
}

func (r *Repository) Filters(ns string) ([]*Object, error) {
	keys, err := r.searchLocated(r.keys.Instances(ns, EventFilterClass))
	if err != nil {
		return nil, err
	}
	return r.decodeObjects(ns, keys, EventFilterSchema), nil
}

func (r *Repository) Filter(ns, name string) (*Object, error) {
	k, err := r.findOne(r.keys.Instance(ns, EventFilterClass, name))
	if err != nil {
		return nil, fmt.Errorf("%s.%s=%q: %w", ns, EventFilterClass, name, err)
	}
	return r.decodeObject(ns, k, EventFilterSchema)
}

func (r *Repository) Bindings(ns string) ([]*Object, error) {
	keys, err := r.searchLocated(r.keys.Instances(ns, BindingClass))
	if err != nil {
		return nil, err
	}
	return r.decodeObjects(ns, keys, BindingSchema), nil
}

// ConsumerBindings follows the references of a consumer instance to the
// bindings that point at it. instanceID is the hashed instance segment, as in
// Object.ID.
func (r *Repository) ConsumerBindings(ns, typ, instanceID string) ([]*Object, error) {
	refs, err := r.searchLocated(r.keys.InstanceReferences(ns, typ, instanceID))
	if err != nil {
		return nil, err
	}
	var result []*Object
	for _, k := range refs {
		path, err := r.referredPath(k)
		if err != nil {
			r.skip(k, err)
			continue
		}
		keys, err := r.searchLocated(path)
		if err != nil {
			return result, err
		}
		if len(keys) != 1 {
			r.log.warn("cimrepo: reference does not resolve to one binding", slog.String("key", k.Key), slog.String("path", path), slog.Int("matches", len(keys)))
			continue
		}
		obj, err := r.decodeObject(ns, keys[0], BindingSchema)
		if err != nil {
			r.skip(keys[0], err)
			continue
		}
		result = append(result, obj)
	}
	return result, nil
}

func (r *Repository) referredPath(k LocatedKey) (string, error) {
	rec, err := r.readKey(k)
	if err != nil {
		return "", err
	}
	ref, err := DecodeObjectReference(rec.Data, rec.Extents)
	if err != nil {
		return "", err
	}
	path, err := r.heap.MaterializeUTF16(ref.ReferredPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("%w: empty referred path", ErrDecode)
	}
	return path, nil
}

// IndexKeys returns every key of the index in ascending order.
func (r *Repository) IndexKeys() ([]string, error) {
	var keys []string
	err := r.ix.Walk(func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if errors.Is(err, ErrIncomplete) {
		err = nil
	}
	return keys, err
}
