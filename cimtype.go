package cimrepo

import (
	"fmt"
)

// CIMType is a property or qualifier type code, possibly with the array and
// by-reference flags set.
type CIMType uint32

const (
	CIMEmpty     CIMType = 0
	CIMSInt16    CIMType = 2
	CIMSInt32    CIMType = 3
	CIMReal32    CIMType = 4
	CIMReal64    CIMType = 5
	CIMString    CIMType = 8
	CIMBoolean   CIMType = 11
	CIMObject    CIMType = 13
	CIMSInt8     CIMType = 16
	CIMUInt8     CIMType = 17
	CIMUInt16    CIMType = 18
	CIMUInt32    CIMType = 19
	CIMSInt64    CIMType = 20
	CIMUInt64    CIMType = 21
	CIMDateTime  CIMType = 0x65
	CIMReference CIMType = 0x66
	CIMChar16    CIMType = 0x67
	CIMIllegal   CIMType = 0xFFF

	CIMArrayFlag CIMType = 0x2000
	CIMByRefFlag CIMType = 0x4000

	cimBaseMask CIMType = CIMArrayFlag - 1
)

type cimTypeInfo struct {
	Size   int
	Inline bool
	Name   string
}

var cimTypes = map[CIMType]cimTypeInfo{
	CIMEmpty:     {0, true, "CIM_EMPTY"},
	CIMSInt16:    {2, true, "CIM_SINT16"},
	CIMSInt32:    {4, true, "CIM_SINT32"},
	CIMReal32:    {4, true, "CIM_REAL32"},
	CIMReal64:    {8, true, "CIM_REAL64"},
	CIMString:    {4, false, "CIM_STRING"},
	CIMBoolean:   {2, true, "CIM_BOOLEAN"},
	CIMObject:    {4, false, "CIM_OBJECT"},
	CIMSInt8:     {1, true, "CIM_SINT8"},
	CIMUInt8:     {1, true, "CIM_UINT8"},
	CIMUInt16:    {2, true, "CIM_UINT16"},
	CIMUInt32:    {4, true, "CIM_UINT32"},
	CIMSInt64:    {8, true, "CIM_SINT64"},
	CIMUInt64:    {8, true, "CIM_UINT64"},
	CIMDateTime:  {4, false, "CIM_DATETIME"},
	CIMReference: {4, false, "CIM_REFERENCE"},
	CIMChar16:    {4, true, "CIM_CHAR16"},
	CIMIllegal:   {0, true, "CIM_ILLEGAL"},
}

func (t CIMType) Base() CIMType {
	return t & cimBaseMask
}

func (t CIMType) IsArray() bool {
	return t&CIMArrayFlag != 0
}

func (t CIMType) info() (cimTypeInfo, error) {
	info, ok := cimTypes[t.Base()]
	if !ok {
		return cimTypeInfo{}, fmt.Errorf("%w 0x%x", ErrUnknownType, uint32(t))
	}
	return info, nil
}

// Known reports whether the base type is in the type table.
func (t CIMType) Known() bool {
	_, ok := cimTypes[t.Base()]
	return ok
}

// OnDiskSize is the size of the type's slot: a 4-byte offset for arrays,
// the value size otherwise.
func (t CIMType) OnDiskSize() int {
	if t.IsArray() {
		return 4
	}
	return cimTypes[t.Base()].Size
}

// IsInline reports whether values of t are stored in their slot rather than
// in the data blob.
func (t CIMType) IsInline() bool {
	return !t.IsArray() && cimTypes[t.Base()].Inline
}

// IsStringLike reports types stored as NUL-terminated strings.
func (t CIMType) IsStringLike() bool {
	switch t.Base() {
	case CIMString, CIMDateTime, CIMReference:
		return true
	}
	return false
}

func (t CIMType) String() string {
	info, ok := cimTypes[t.Base()]
	if !ok {
		return fmt.Sprintf("CIMType(0x%x)", uint32(t))
	}
	if t.IsArray() {
		return info.Name + "[]"
	}
	return info.Name
}

// Builtin qualifier and property name ids.
const (
	BuiltinPrimaryKey uint32 = 0x1
	BuiltinRead       uint32 = 0x3
	BuiltinWrite      uint32 = 0x4
	BuiltinVolatile   uint32 = 0x5
	BuiltinProvider   uint32 = 0x6
	BuiltinDynamic    uint32 = 0x7
	BuiltinType       uint32 = 0xA

	builtinFlag uint32 = 0x80000000
)

var builtinNames = map[uint32]string{
	BuiltinPrimaryKey: "PrimaryKey",
	BuiltinRead:       "Read",
	BuiltinWrite:      "Write",
	BuiltinVolatile:   "Volatile",
	BuiltinProvider:   "Provider",
	BuiltinDynamic:    "Dynamic",
	BuiltinType:       "Type",
}

// BuiltinName returns the well-known name for id, with or without the
// builtin flag.
func BuiltinName(id uint32) string {
	id &^= builtinFlag
	if name, ok := builtinNames[id]; ok {
		return name
	}
	return fmt.Sprintf("builtin(0x%x)", id)
}
