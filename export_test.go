package cimrepo

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRepository_Export(t *testing.T) {
	forBothFormats(t, func(t *testing.T, repo *Repository, tr *testRepo) {
		path := filepath.Join(t.TempDir(), "export.db")
		sum := must(repo.Export(path, "Demo_Setting"))
		deepEqual(t, *sum, ExportSummary{Namespaces: 4, Classes: 2, Instances: 2, Consumers: 2, Filters: 1, Bindings: 1})

		exp := must(OpenExport(path))
		defer exp.Close()

		meta := must(exp.Meta())
		if meta.Mapping != "Mapping1.map" || meta.Version != 7 || meta.Legacy != tr.Legacy || meta.Namespaces != 4 || meta.Dir != tr.Dir {
			t.Errorf("meta = %+v", meta)
		}
		for bucket, want := range map[string]int{NamespacesBucket: 4, ClassesBucket: 2, InstancesBucket: 2, ConsumersBucket: 2, FiltersBucket: 1, BindingsBucket: 1} {
			if n := exp.Count(bucket); n != want {
				t.Errorf("Count(%s) = %d, wanted %d", bucket, n, want)
			}
		}

		consumers := must(exp.Records(ConsumersBucket, testSubscription+keySep))
		if len(consumers) != 2 || consumers[1].Class != "CommandLineEventConsumer" {
			t.Fatalf("consumers = %+v", consumers)
		}
		evil := consumers[1]
		fields := make(map[string]ExportedField)
		for _, f := range evil.Fields {
			fields[f.Name] = f
		}
		if f := fields["Name"]; f.Value != "Evil" || f.Type != "string" || f.Extents == "" {
			t.Errorf("Name = %+v", f)
		}
		if f := fields["CreatorSID"]; f.Value != "S-1-5-18" {
			t.Errorf("CreatorSID = %+v", f)
		}
		if f := fields["MachineName"]; f.Value != notAssigned || f.Extents != "" {
			t.Errorf("MachineName = %+v", f)
		}
		if evil.Location == "" || evil.Date1 != testFileTime {
			t.Errorf("evil = %+v", evil)
		}

		classes := must(exp.Records(ClassesBucket, testCimv2+keySep+"Demo"))
		if len(classes) != 1 || classes[0].SuperClass != "CIM_Setting" || len(classes[0].Fields) != 3 {
			t.Fatalf("classes = %+v", classes)
		}
		deepEqual(t, classes[0].BaseClasses, []string{"__Base", "CIM_Setting"})

		insts := must(exp.Records(InstancesBucket, ""))
		if len(insts) != 2 {
			t.Fatalf("instances = %+v", insts)
		}
		for _, inst := range insts {
			if inst.Namespace != testCimv2 || len(inst.Fields) != 3 {
				t.Errorf("instance = %+v", inst)
			}
		}

		key := testCimv2 + keySep + "Demo_Setting" + keySep + tr.Name("one")
		if c, err := exp.Checksum(InstancesBucket, key); err != nil || c == 0 {
			t.Errorf("Checksum(%s) = %x, %v", key, c, err)
		}
		if c := must(exp.Checksum(InstancesBucket, "missing")); c != 0 {
			t.Errorf("Checksum(missing) = %x", c)
		}
		if _, err := exp.Records("nope", ""); !errors.Is(err, ErrBucketNotFound) {
			t.Errorf("Records(nope) err = %v, wanted ErrBucketNotFound", err)
		}
	})
}

func TestRepository_Export_NoInstances(t *testing.T) {
	repo, _ := openTestRepo(t, false)
	path := filepath.Join(t.TempDir(), "export.db")
	sum := must(repo.Export(path))
	if sum.Instances != 0 || sum.Classes != 2 {
		t.Fatalf("summary = %+v", sum)
	}

	// Exporting again into the same file replaces the records.
	sum = must(repo.Export(path, "Demo_Setting"))
	exp := must(OpenExport(path))
	defer exp.Close()
	if n := exp.Count(InstancesBucket); n != 2 || sum.Instances != 2 {
		t.Fatalf("Count(instances) = %d, summary %+v", n, sum)
	}
}

func TestOpenExport_Missing(t *testing.T) {
	if _, err := OpenExport(filepath.Join(t.TempDir(), "none.db")); err == nil {
		t.Fatalf("OpenExport(missing) succeeded")
	}
}
