package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andreyvit/cimrepo"
)

type session struct {
	repo   *cimrepo.Repository
	out    io.Writer
	prompt io.Writer
}

type command struct {
	name  string
	usage string
	hint  string
	run   func(s *session, args []string) error
}

var commands = []*command{
	{"--help", "--help", "Print help.", (*session).help},
	{"--quit", "--quit", "Quit.", nil},
	{"--namespaceinstance", "--namespaceinstance", "Get all the namespaces defined in the repository.", (*session).namespaces},
	{"--instance", "--instance [namespacename] classname [classinstancename]", "Get the instances of a class, in one namespace or in all of them.", (*session).instances},
	{"--consumerinstance", "--consumerinstance namespacename [consumertype] [consumerinstancename]", "Get the consumer instances in the specified namespace by type and name.", (*session).consumers},
	{"--filterinstance", "--filterinstance namespacename [filterinstancename]", "Get the filter instances in the specified namespace by name.", (*session).filters},
	{"--bindinginstance", "--bindinginstance namespacename", "Get all binding instances defined in the specified namespace.", (*session).bindings},
	{"--classdef", "--classdef [namespacename] [classname]", "Get the class definitions in the specified namespace, or in all of them.", (*session).classdefs},
	{"--index", "--index", "Print all the keys in index.btr.", (*session).index},
	{"--export", "--export path [classname...]", "Export all namespaces into a bbolt database.", (*session).export},
	{"--stats", "--stats", "Print page allocation statistics.", (*session).stats},
}

func lookupCommand(name string) *command {
	for _, c := range commands {
		if strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

func (s *session) loop(sc *bufio.Scanner) {
	for {
		fmt.Fprint(s.prompt, "Command > ")
		if !sc.Scan() {
			return
		}
		args, err := splitArgs(sc.Text())
		if err != nil {
			fmt.Fprintf(s.prompt, "** %v\n", err)
			continue
		}
		if len(args) == 0 {
			return
		}
		if !s.execute(args) {
			return
		}
	}
}

// execute runs one command line and reports whether to keep going.
func (s *session) execute(args []string) bool {
	if s.out != s.prompt {
		fmt.Fprintf(s.out, "Command > %s\n", strings.Join(args, " "))
	}
	c := lookupCommand(args[0])
	if c == nil {
		fmt.Fprintf(s.out, "** unknown command %s, try --help\n", args[0])
		return true
	}
	if c.run == nil {
		return false
	}
	if err := c.run(s, args[1:]); err != nil {
		fmt.Fprintf(s.out, "** %s: %v\n", c.name, err)
	}
	return true
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *session) help(args []string) error {
	s.printf("cimrepo commands:\n")
	for _, c := range commands {
		s.printf("%s\n  Hint: %s\n", c.usage, c.hint)
	}
	return nil
}

func (s *session) namespaces(args []string) error {
	nss, err := s.repo.Namespaces()
	if err != nil {
		return err
	}
	s.printf("==== Namespaces ====\n")
	for _, ns := range nss {
		s.printf("%v\n", ns)
	}
	return nil
}

func (s *session) instances(args []string) error {
	var insts []*cimrepo.Instance
	var err error
	switch len(args) {
	case 1:
		insts, err = s.repo.InstancesInAllNamespaces(args[0])
	case 2:
		insts, err = s.repo.Instances(args[0], args[1])
	case 3:
		var inst *cimrepo.Instance
		inst, err = s.repo.Instance(args[0], args[1], args[2])
		if inst != nil {
			insts = append(insts, inst)
		}
	default:
		return errUsage("--instance")
	}
	if err != nil && !cimrepo.IsNotFound(err) {
		return err
	}
	if len(insts) == 0 {
		s.printf("no instances found\n")
	}
	for _, inst := range insts {
		s.printf("%s", s.repo.DumpInstance(inst, cimrepo.DumpAll&^cimrepo.DumpExtents))
	}
	return nil
}

func (s *session) consumers(args []string) error {
	var objs []*cimrepo.Object
	var err error
	switch len(args) {
	case 1:
		objs, err = s.repo.Consumers(args[0], "")
	case 2:
		objs, err = s.repo.Consumers(args[0], args[1])
	case 3:
		var obj *cimrepo.Object
		obj, err = s.repo.Consumer(args[0], args[1], args[2])
		if obj != nil {
			objs = append(objs, obj)
		}
	default:
		return errUsage("--consumerinstance")
	}
	if err != nil && !cimrepo.IsNotFound(err) {
		return err
	}
	if len(args) > 1 {
		s.printf("==== %s in namespace %s ====\n", args[1], args[0])
	} else {
		s.printf("==== Consumers in namespace %s ====\n", args[0])
	}
	for _, obj := range objs {
		s.printf("%s", s.repo.DumpObject(obj, cimrepo.DumpAll&^cimrepo.DumpExtents))
		bindings, err := s.repo.ConsumerBindings(args[0], obj.Schema.TypeName, obj.ID)
		if err != nil {
			s.printf("** bindings: %v\n", err)
			continue
		}
		for _, b := range bindings {
			s.printf("Binding: [%s] (%v)\n", b.ID, b.Location)
		}
	}
	s.printf("%s\n", strings.Repeat("=", 77))
	return nil
}

func (s *session) filters(args []string) error {
	var objs []*cimrepo.Object
	var err error
	switch len(args) {
	case 1:
		objs, err = s.repo.Filters(args[0])
	case 2:
		var obj *cimrepo.Object
		obj, err = s.repo.Filter(args[0], args[1])
		if obj != nil {
			objs = append(objs, obj)
		}
	default:
		return errUsage("--filterinstance")
	}
	if err != nil && !cimrepo.IsNotFound(err) {
		return err
	}
	s.printf("==== Filters in namespace %s ====\n", args[0])
	for _, obj := range objs {
		s.printf("%s", s.repo.DumpObject(obj, cimrepo.DumpAll&^cimrepo.DumpExtents))
	}
	return nil
}

func (s *session) bindings(args []string) error {
	if len(args) != 1 {
		return errUsage("--bindinginstance")
	}
	objs, err := s.repo.Bindings(args[0])
	if err != nil {
		return err
	}
	s.printf("==== Bindings in namespace %s ====\n", args[0])
	for _, obj := range objs {
		s.printf("%s", s.repo.DumpObject(obj, cimrepo.DumpAll&^cimrepo.DumpExtents))
	}
	return nil
}

func (s *session) classdefs(args []string) error {
	const flags = cimrepo.DumpAll &^ cimrepo.DumpExtents
	switch len(args) {
	case 0:
		nss, err := s.repo.Namespaces()
		if err != nil {
			return err
		}
		for _, ns := range nss {
			if err := s.classdefs([]string{ns.Name}); err != nil {
				return err
			}
		}
		return nil
	case 1:
		defs, err := s.repo.ClassDefinitions(args[0])
		if err != nil {
			return err
		}
		s.printf("==== Classes in namespace %s ====\n", args[0])
		for _, def := range defs {
			s.printf("%s", s.repo.DumpClass(def, flags))
		}
		return nil
	case 2:
		def, err := s.repo.ClassDefinition(args[0], args[1])
		if cimrepo.IsNotFound(err) {
			s.printf("class %s not found in %s\n", args[1], args[0])
			return nil
		} else if err != nil {
			return err
		}
		s.printf("%s", s.repo.DumpClass(def, flags))
		return nil
	default:
		return errUsage("--classdef")
	}
}

func (s *session) index(args []string) error {
	keys, err := s.repo.IndexKeys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		s.printf("%s\n", key)
	}
	s.printf("%d keys\n", len(keys))
	return nil
}

func (s *session) export(args []string) error {
	if len(args) < 1 {
		return errUsage("--export")
	}
	sum, err := s.repo.Export(args[0], args[1:]...)
	if err != nil {
		return err
	}
	s.printf("exported %d namespaces, %d classes, %d instances, %d consumers, %d filters, %d bindings to %s\n", sum.Namespaces, sum.Classes, sum.Instances, sum.Consumers, sum.Filters, sum.Bindings, args[0])
	return nil
}

func (s *session) stats(args []string) error {
	st := s.repo.Stats()
	s.printf("objects: %v\n", st.Objects)
	s.printf("index: %v\n", st.Index)
	s.printf("records: read = %d, failed = %d, searches = %d\n", st.RecordsRead, st.RecordsFailed, st.Searches)
	return nil
}

func errUsage(name string) error {
	return fmt.Errorf("usage: %s", lookupCommand(name).usage)
}

var errUnterminatedQuote = errors.New("unterminated quote")

// splitArgs splits a command line on whitespace. Double quotes group words;
// backslashes are kept as is, since namespace names contain them.
func splitArgs(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inArg, quoted := false, false
	for _, c := range line {
		switch {
		case c == '"':
			quoted = !quoted
			inArg = true
		case !quoted && (c == ' ' || c == '\t'):
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(c)
			inArg = true
		}
	}
	if quoted {
		return nil, errUnterminatedQuote
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
