package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/andreyvit/cimrepo"
)

const (
	exitMD5SelfTest    = 1
	exitSHA256SelfTest = 2
	exitUsage          = 3
	exitOpen           = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if err := cimrepo.MD5.SelfTest(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitMD5SelfTest
	}
	if err := cimrepo.SHA256.SelfTest(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitSHA256SelfTest
	}

	fs := flag.NewFlagSet("cimrepo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("p", "", "repository `directory` holding Objects.data, index.btr and the mapping files")
	logPath := fs.String("o", "", "append output to this UTF-16 log `file`")
	verbose := fs.Bool("v", false, "verbose logging")
	noMmap := fs.Bool("nommap", false, "read pages instead of mapping the files")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *dir == "" {
		fmt.Fprintln(stderr, "Usage: cimrepo -p <repository dir> [-o <output log>] [-v]")
		return exitUsage
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	repo, err := cimrepo.Open(*dir, cimrepo.Options{Logger: logger, Verbose: *verbose, NoMmap: *noMmap})
	if err != nil {
		fmt.Fprintf(stderr, "cimrepo: %v\n", err)
		return exitOpen
	}
	defer repo.Close()

	var out io.Writer = stdout
	if *logPath != "" {
		rl, err := cimrepo.OpenReportLog(*logPath, stdout)
		if err != nil {
			fmt.Fprintf(stderr, "cimrepo: %v\n", err)
			return exitOpen
		}
		defer rl.Close()
		out = rl
	}

	s := &session{repo: repo, out: out, prompt: stdout}
	s.loop(bufio.NewScanner(stdin))
	return 0
}
