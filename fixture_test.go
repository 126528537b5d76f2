package cimrepo

import (
	"encoding/binary"
	"encoding/hex"
	"reflect"
	"strings"
	"testing"

	"github.com/andreyvit/cimrepo/internal/cimtest"
)

// 2024-01-01 00:00:00 UTC as a FILETIME.
const testFileTime uint64 = 133485408000000000

const (
	testSubscription = `ROOT\subscription`
	testCimv2        = `ROOT\cimv2`
	testSecurity     = `ROOT\cimv2\Security`
)

// localSystemSID is S-1-5-18.
var localSystemSID = x("01 01 000000000005 12000000")

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func x(data string) []byte {
	data = strings.ReplaceAll(data, " ", "")
	return must(hex.DecodeString(data))
}

func u16le(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

func u32le(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

// objectRecord lays out a record of a fixed-layout class. vals holds
// string, []byte, bool, int or []string values by field name; missing
// fields are left unset.
func objectRecord(legacy bool, schema *Schema, vals map[string]any) []byte {
	r := cimtest.NewFixedRecord(legacy, schema.TypeName, schema.Gap)
	r.Timestamp1 = testFileTime
	for _, f := range schema.Fields {
		v := vals[f.Name]
		switch f.Kind {
		case FieldString:
			if s, ok := v.(string); ok {
				r.TOC.U32(r.Blob.String(s))
			} else {
				r.TOC.U32(0)
			}
		case FieldBytes:
			if b, ok := v.([]byte); ok {
				r.TOC.U32(r.Blob.Sized(b))
			} else {
				r.TOC.U32(0)
			}
		case FieldStringArray:
			if ss, ok := v.([]string); ok {
				r.TOC.U32(r.Blob.Strings(ss...))
			} else {
				r.TOC.U32(0)
			}
		case FieldBool:
			var w uint16
			if b, _ := v.(bool); b {
				w = 0xFFFF
			}
			r.TOC.U16(w)
		case FieldU16:
			n, _ := v.(int)
			r.TOC.U16(uint16(n))
		case FieldU32, FieldI32:
			n, _ := v.(int)
			r.TOC.U32(uint32(n))
		case FieldU64:
			n, _ := v.(int)
			r.TOC.U64(uint64(n))
		}
	}
	return r.Bytes()
}

const (
	cimString  = uint32(CIMString)
	cimBoolean = uint32(CIMBoolean)
	cimUInt32  = uint32(CIMUInt32)
)

// Class hierarchy of the test repository: __Base lives among the system
// classes, CIM_Setting derives from it and Demo_Setting from CIM_Setting.
func baseClass() *cimtest.ClassRecord {
	return &cimtest.ClassRecord{Name: "__Base", Timestamp: testFileTime}
}

func settingClass() *cimtest.ClassRecord {
	return &cimtest.ClassRecord{
		Name:       "CIM_Setting",
		SuperClass: "__Base",
		Timestamp:  testFileTime,
		Qualifiers: []cimtest.Qualifier{
			{Name: "abstract", Type: cimBoolean, Value: u16le(0xFFFF)},
		},
		Properties: []cimtest.Property{
			{
				Name: "Caption", Type: cimString, Index: 0, Offset: 0, DefaultText: "none",
				Qualifiers: []cimtest.Qualifier{{Builtin: BuiltinRead, Type: cimBoolean, Value: u16le(0xFFFF)}},
			},
			{Name: "Enabled", Type: cimBoolean, Index: 1, Offset: 4, Default: u16le(0xFFFF)},
		},
	}
}

func demoClass() *cimtest.ClassRecord {
	return &cimtest.ClassRecord{
		Name:       "Demo_Setting",
		SuperClass: "CIM_Setting",
		Timestamp:  testFileTime,
		Qualifiers: []cimtest.Qualifier{
			{Name: "abstract", Type: cimBoolean, Value: u16le(0)},
			{Name: "description", Type: cimString, Text: "Demo"},
		},
		Properties: []cimtest.Property{
			{Name: "Enabled", Type: cimBoolean, Index: 1, Offset: 4, Qualifiers: []cimtest.Qualifier{{Builtin: BuiltinWrite, Type: cimBoolean, Value: u16le(0xFFFF)}}},
			{Name: "Count", Type: cimUInt32, Index: 2, Offset: 6, Default: u32le(7)},
		},
		SlotTableSize: 10,
		DefaultFlags:  []byte{cimtest.FlagDefault, cimtest.FlagDefault, cimtest.FlagSet},
	}
}

// demoInstance builds an instance of Demo_Setting. An empty caption is left
// not initialized, a negative count uses the class default and a nil enabled
// uses the default as well.
func demoInstance(legacy bool, caption string, enabled *bool, count int) []byte {
	r := cimtest.NewInstanceRecord(legacy, "Demo_Setting", 3)
	r.Timestamp1, r.Timestamp2 = testFileTime, testFileTime
	if caption == "" {
		r.Flags[0] = cimtest.FlagNotInitialized
		r.Slots.U32(0)
	} else {
		r.Slots.U32(r.Blob.String(caption))
	}
	switch {
	case enabled == nil:
		r.Flags[1] = cimtest.FlagDefault
		r.Slots.U16(0)
	case *enabled:
		r.Slots.U16(0xFFFF)
	default:
		r.Slots.U16(0)
	}
	if count < 0 {
		r.Flags[2] = cimtest.FlagDefault
		r.Slots.U32(0)
	} else {
		r.Slots.U32(uint32(count))
	}
	return r.Bytes()
}

type testRepo struct {
	*cimtest.Repo
	Dir string

	ScriptText  string
	BindingPath string
}

// buildTestRepo writes a repository with three nested namespaces, a small
// class hierarchy with two instances, and a permanent event subscription:
// two consumers, a filter and the binding between them.
func buildTestRepo(t testing.TB, legacy bool) *testRepo {
	tr := &testRepo{Repo: cimtest.NewRepo(legacy), Dir: t.TempDir()}
	r := tr.Repo

	r.AddNamespace(RootNamespace, "subscription")
	r.AddNamespace(RootNamespace, "cimv2")
	r.AddNamespace(testCimv2, "Security")

	r.AddClass(SystemClassNamespace, baseClass())
	r.AddClass(testCimv2, settingClass())
	r.AddClass(testCimv2, demoClass())

	off := false
	r.AddRecord(r.InstancePath(testCimv2, "Demo_Setting", "one"), demoInstance(legacy, "first", nil, 42))
	r.AddRecord(r.InstancePath(testCimv2, "Demo_Setting", "two"), demoInstance(legacy, "", &off, -1))

	for _, class := range []string{"CommandLineEventConsumer", "ActiveScriptEventConsumer", "CustomConsumer"} {
		r.AddKey(r.SubclassPath(testSubscription, EventConsumerClass, class))
	}
	r.AddRecord(r.InstancePath(testSubscription, "CommandLineEventConsumer", "Evil"), objectRecord(legacy, CommandLineConsumerSchema, map[string]any{
		"CreatorSID":          localSystemSID,
		"Name":                "Evil",
		"ExecutablePath":      `C:\evil.exe`,
		"CommandLineTemplate": "evil.exe -x",
		"CreateNewConsole":    true,
		"Priority":            32,
		"KillTimeout":         30,
	}))

	// The script is longer than a page, so its record spans heap pages.
	tr.ScriptText = strings.Repeat("WScript.Echo 1\n", 700)
	r.AddRecord(r.InstancePath(testSubscription, "ActiveScriptEventConsumer", "Script"), objectRecord(legacy, ActiveScriptConsumerSchema, map[string]any{
		"Name":            "Script",
		"ScriptingEngine": "VBScript",
		"ScriptText":      tr.ScriptText,
	}))

	custom := cimtest.NewFixedRecord(legacy, "CustomConsumer", 7)
	custom.TOC.U32(custom.Blob.String("Odd"))
	r.AddRecord(r.InstancePath(testSubscription, "CustomConsumer", "Odd"), custom.Bytes())

	r.AddRecord(r.InstancePath(testSubscription, EventFilterClass, "EvilFilter"), objectRecord(legacy, EventFilterSchema, map[string]any{
		"Name":           "EvilFilter",
		"CreatorSID":     localSystemSID,
		"QueryLanguage":  "WQL",
		"Query":          "SELECT * FROM __InstanceModificationEvent WITHIN 60",
		"EventNamespace": `root\cimv2`,
	}))

	tr.BindingPath = r.InstancePath(testSubscription, BindingClass, "binding1")
	r.AddRecord(tr.BindingPath, objectRecord(legacy, BindingSchema, map[string]any{
		"Filter":                  `__EventFilter.Name="EvilFilter"`,
		"Consumer":                `CommandLineEventConsumer.Name="Evil"`,
		"MaintainSecurityContext": true,
		"CreatorSID":              localSystemSID,
	}))
	r.AddRecord(r.ReferencePath(testSubscription, "CommandLineEventConsumer", "Evil", "ref1"),
		cimtest.ReferenceRecord(testSubscription, BindingClass, "Consumer", tr.BindingPath))

	r.Write(t, tr.Dir)
	return tr
}

func openTestRepo(t testing.TB, legacy bool) (*Repository, *testRepo) {
	t.Helper()
	tr := buildTestRepo(t, legacy)
	repo, err := Open(tr.Dir, Options{Logger: cimtest.Logger(t), Verbose: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Error(err)
		}
	})
	return repo, tr
}

// forBothFormats runs fn against a current and a legacy repository.
func forBothFormats(t *testing.T, fn func(t *testing.T, repo *Repository, tr *testRepo)) {
	for _, legacy := range []bool{false, true} {
		name := "current"
		if legacy {
			name = "legacy"
		}
		t.Run(name, func(t *testing.T) {
			repo, tr := openTestRepo(t, legacy)
			fn(t, repo, tr)
		})
	}
}

// forBothLayouts runs fn for the current and the legacy on-disk layout.
func forBothLayouts(t *testing.T, fn func(t *testing.T, legacy bool)) {
	for _, legacy := range []bool{false, true} {
		name := "current"
		if legacy {
			name = "legacy"
		}
		t.Run(name, func(t *testing.T) { fn(t, legacy) })
	}
}
