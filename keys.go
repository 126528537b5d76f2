package cimrepo

import (
	"fmt"
	"strings"
)

// Index key segment prefixes.
const (
	PrefixNamespace     = "NS_"
	PrefixClassRef      = "CR_"
	PrefixInstance      = "CI_"
	PrefixKeyedInstance = "KI_"
	PrefixInstanceName  = "IL_"
	PrefixReference     = "IR_"
	PrefixReferenceName = "R_"
	PrefixSubclass      = "C_"
	PrefixClassDef      = "CD_"

	keySep = `\`
)

// Well-known system classes and namespaces.
const (
	RootNamespace      = "ROOT"
	NamespaceClass     = "__namespace"
	EventConsumerClass = "__EventConsumer"
	EventFilterClass   = "__EventFilter"
	BindingClass       = "__FilterToConsumerBinding"
)

// KeyBuilder produces index search keys. Names are hashed with the digest of
// the repository format; methods taking "id" arguments expect an already
// hashed segment, as found in keys returned by Search.
type KeyBuilder struct {
	Digest Digest
}

func (kb KeyBuilder) ID(name string) string {
	return kb.Digest.Name(name)
}

func join(segs ...string) string {
	return strings.Join(segs, keySep)
}

// Namespace: NS_<ns>
func (kb KeyBuilder) Namespace(ns string) string {
	return PrefixNamespace + kb.ID(ns)
}

// ClassDefs: NS_<ns>\CD_
func (kb KeyBuilder) ClassDefs(ns string) string {
	return join(kb.Namespace(ns), PrefixClassDef)
}

// ClassDef: NS_<ns>\CD_<class>.
func (kb KeyBuilder) ClassDef(ns, class string) string {
	return kb.ClassDefByID(ns, kb.ID(class))
}

func (kb KeyBuilder) ClassDefByID(ns, classID string) string {
	return join(kb.Namespace(ns), PrefixClassDef+classID) + "."
}

// Subclasses: NS_<ns>\CR_<class>\C_
func (kb KeyBuilder) Subclasses(ns, class string) string {
	return join(kb.Namespace(ns), PrefixClassRef+kb.ID(class), PrefixSubclass)
}

// Instances: NS_<ns>\CI_<class>\IL_
func (kb KeyBuilder) Instances(ns, class string) string {
	return kb.InstancesByID(ns, kb.ID(class))
}

func (kb KeyBuilder) InstancesByID(ns, classID string) string {
	return join(kb.Namespace(ns), PrefixInstance+classID, PrefixInstanceName)
}

// Instance: NS_<ns>\CI_<class>\IL_<instance>.
func (kb KeyBuilder) Instance(ns, class, instance string) string {
	return kb.Instances(ns, class) + kb.ID(instance) + "."
}

// References: NS_<ns>\KI_<class>\IR_
func (kb KeyBuilder) References(ns, class string) string {
	return join(kb.Namespace(ns), PrefixKeyedInstance+kb.ID(class), PrefixReference)
}

// InstanceReferences: NS_<ns>\KI_<class>\IR_<instance>\R_
func (kb KeyBuilder) InstanceReferences(ns, class, instanceID string) string {
	return join(kb.Namespace(ns), PrefixKeyedInstance+kb.ID(class), PrefixReference+instanceID, PrefixReferenceName)
}

// ParseLocationKey splits a leaf key of the form <path>.<page>.<record>.<size>.
func ParseLocationKey(key string) (string, RecordLocation, error) {
	var vals [3]uint32
	rest := key
	for i := 2; i >= 0; i-- {
		var s string
		var ok bool
		rest, s, ok = cutLast(rest, '.')
		if !ok {
			return "", RecordLocation{}, fmt.Errorf("%w: key %q has no location suffix", ErrDecode, key)
		}
		vals[i], ok = parseUint32(s)
		if !ok {
			return "", RecordLocation{}, fmt.Errorf("%w: key %q has invalid location component %q", ErrDecode, key, s)
		}
	}
	return rest, RecordLocation{LogicalPage: vals[0], RecordID: vals[1], Size: vals[2]}, nil
}

// SegmentID returns the hashed part of the last key segment, e.g. the
// instance id of NS_..\CI_..\IL_<id>.
func SegmentID(path string) string {
	_, last, ok := cutLast(path, '\\')
	if !ok {
		last = path
	}
	_, id, ok := strings.Cut(last, "_")
	if !ok {
		return last
	}
	return id
}

// LocatedKey is an index key with its decoded location suffix.
type LocatedKey struct {
	Key      string
	Path     string
	Location RecordLocation
}

func (k LocatedKey) ID() string {
	return SegmentID(k.Path)
}
