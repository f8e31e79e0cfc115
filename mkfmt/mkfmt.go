// Mostly copied from Go's src/cmd/gofmt:
// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mozbuild/makeparse/makefile"
)

var (
	// main operation modes
	list                = flag.Bool("l", false, "list files whose formatting differs from mkfmt's")
	overwriteSourceFile = flag.Bool("w", false, "write result to (source) file")
	writeToStdout       = flag.Bool("o", false, "write result to stdout")
	doDiff              = flag.Bool("d", false, "display diffs instead of rewriting files")
	stripConditionals   = flag.Bool("s", false, "remove conditional branches decided by -D definitions")
	evaluateIfeq        = flag.Bool("ifeq", false, "with -s, evaluate ifeq conditions that are not provably deterministic")
	substFile           = flag.String("subst", "", "substitute @name@ markers with name=value pairs read from `file`")
	onMissing           = flag.String("onmissing", "preserve", "missing @name@ policy: preserve, remove, mark, or error")

	definitions defineFlags
)

func init() {
	flag.Var(&definitions, "D", "define NAME=VALUE for conditional evaluation (may be repeated)")
}

var (
	exitCode = 0
)

// defineFlags accumulates repeated -D NAME=VALUE arguments.
type defineFlags map[string]string

func (d *defineFlags) String() string {
	var parts []string
	for name, value := range *d {
		parts = append(parts, name+"="+value)
	}
	return strings.Join(parts, " ")
}

func (d *defineFlags) Set(arg string) error {
	name, value := arg, ""
	if eq := strings.IndexByte(arg, '='); eq >= 0 {
		name, value = arg[:eq], arg[eq+1:]
	}
	if name == "" {
		return fmt.Errorf("invalid definition %q", arg)
	}
	if *d == nil {
		*d = make(map[string]string)
	}
	(*d)[name] = value
	return nil
}

// readSubstitutions loads name=value pairs, one per line.  Blank lines and
// #-comments are skipped.
func readSubstitutions(path string) (map[string]string, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string)
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%s:%d: expected name=value, got %q", path, i+1, line)
		}
		values[line[:eq]] = line[eq+1:]
	}
	return values, nil
}

func report(err error) {
	fmt.Fprintln(os.Stderr, err)
	exitCode = 2
}

func usage() {
	usageViolation("")
}

func usageViolation(violation string) {
	fmt.Fprintln(os.Stderr, violation)
	fmt.Fprintln(os.Stderr, "usage: mkfmt [flags] [path ...]")
	flag.PrintDefaults()
	os.Exit(2)
}

func processFile(filename string, out io.Writer) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	return processReader(filename, f, out)
}

func processReader(filename string, in io.Reader, out io.Writer) error {
	src, err := ioutil.ReadAll(in)
	if err != nil {
		return err
	}

	m := makefile.FromText(string(src), filename)

	if *substFile != "" {
		values, err := readSubstitutions(*substFile)
		if err != nil {
			return err
		}
		opts := makefile.SubstitutionOptions{
			OnMissing: func(name string) {
				fmt.Fprintf(os.Stderr, "%s: no value for @%s@\n", filename, name)
			},
		}
		switch *onMissing {
		case "preserve":
			opts.Action = makefile.PreserveMissing
		case "remove":
			opts.Action = makefile.RemoveMissing
		case "mark":
			opts.Action = makefile.MarkMissing
		case "error":
			opts.Action = makefile.ErrorOnMissing
		default:
			usageViolation(fmt.Sprintf("invalid -onmissing value %q", *onMissing))
		}
		if err := m.PerformSubstitutions(values, opts); err != nil {
			return err
		}
	}

	collection, errs := m.Statements()
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, err)
		}
		return fmt.Errorf("%d parsing errors", len(errs))
	}

	if *stripConditionals {
		collection = collection.StripFalseConditionals(
			makefile.NewEnvironmentVariables(definitions), *evaluateIfeq)
	}

	res := []byte(collection.Text())

	if !bytes.Equal(src, res) {
		// formatting has changed
		if *list {
			fmt.Fprintln(out, filename)
		}
		if *overwriteSourceFile {
			err = ioutil.WriteFile(filename, res, 0644)
			if err != nil {
				return err
			}
		}
		if *doDiff {
			data, err := diff(src, res)
			if err != nil {
				return fmt.Errorf("computing diff: %s", err)
			}
			fmt.Printf("diff %s mkfmt/%s\n", filename, filename)
			out.Write(data)
		}
	}

	if !*list && !*overwriteSourceFile && !*doDiff {
		_, err = out.Write(res)
	}

	return err
}

func walkDir(path string) {
	visitFile := func(path string, f os.FileInfo, err error) error {
		if err == nil && (f.Name() == "Makefile" || f.Name() == "Makefile.in") {
			err = processFile(path, os.Stdout)
		}
		if err != nil {
			report(err)
		}
		return nil
	}

	filepath.Walk(path, visitFile)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if !*writeToStdout && !*overwriteSourceFile && !*doDiff && !*list {
		usageViolation("one of -d, -l, -o, or -w is required")
	}

	if flag.NArg() == 0 {
		// file to parse is stdin
		if *overwriteSourceFile {
			fmt.Fprintln(os.Stderr, "error: cannot use -w with standard input")
			os.Exit(2)
		}
		if err := processReader("<standard input>", os.Stdin, os.Stdout); err != nil {
			report(err)
		}
		return
	}

	for i := 0; i < flag.NArg(); i++ {
		path := flag.Arg(i)
		switch dir, err := os.Stat(path); {
		case err != nil:
			report(err)
		case dir.IsDir():
			walkDir(path)
		default:
			if err := processFile(path, os.Stdout); err != nil {
				report(err)
			}
		}
	}

	os.Exit(exitCode)
}

func diff(b1, b2 []byte) (data []byte, err error) {
	f1, err := ioutil.TempFile("", "mkfmt")
	if err != nil {
		return
	}
	defer os.Remove(f1.Name())
	defer f1.Close()

	f2, err := ioutil.TempFile("", "mkfmt")
	if err != nil {
		return
	}
	defer os.Remove(f2.Name())
	defer f2.Close()

	f1.Write(b1)
	f2.Write(b2)

	data, err = exec.Command("diff", "-u", f1.Name(), f2.Name()).CombinedOutput()
	if len(data) > 0 {
		// diff exits with a non-zero status when the files don't match.
		// Ignore that failure as long as we get output.
		err = nil
	}
	return

}
