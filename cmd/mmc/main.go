// mmc compiles a multimethod manifest and reports on its dispatch tables.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/multimethod/audit"
	"github.com/chazu/multimethod/dispatch"
	"github.com/chazu/multimethod/gowrap"
	"github.com/chazu/multimethod/hierarchy"
	"github.com/chazu/multimethod/manifest"
	"github.com/chazu/multimethod/snapshot"
)

type resolveFlags []string

func (r *resolveFlags) String() string     { return strings.Join(*r, " ") }
func (r *resolveFlags) Set(v string) error { *r = append(*r, v); return nil }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mmc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	verbose := fs.Int("v", 0, "Log verbosity (0 quiet, 1 info, 2 debug)")
	dump := fs.Bool("dump", false, "Print every dispatch cell")
	problems := fs.Bool("problems", false, "Print only ambiguous and not-implemented cells")
	auditDB := fs.String("audit", "", "Record the compile in this SQLite database")
	fingerprint := fs.Bool("fingerprint", false, "Print the snapshot fingerprint")
	exportPath := fs.String("export", "", "Write the snapshot as CBOR to this file")
	diffPath := fs.String("diff", "", "Compare the snapshot with a CBOR export")
	genDir := fs.String("gen", "", "Generate typeid registration for the Go package in this directory")
	genPkg := fs.String("pkg", "", "Package clause of the generated file (with -gen)")
	genNS := fs.String("ns", "", "Class namespace of the generated registrations (with -gen)")
	out := fs.String("o", "", "Output file for -gen (default stdout)")
	strict := fs.Bool("strict", false, "Exit non-zero if any cell is ambiguous")
	var resolves resolveFlags
	fs.Var(&resolves, "resolve", "Explain one call, as fn:Class,Class (repeatable)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: mmc [options] [manifest.toml|manifest.yaml]\n\n")
		fmt.Fprintf(stderr, "Compiles a multimethod manifest. Without a path, the nearest\n")
		fmt.Fprintf(stderr, "multimethod.toml or multimethod.yaml is used.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  mmc -problems                     # Report dispatch gaps\n")
		fmt.Fprintf(stderr, "  mmc -resolve meet:Dog,Cat zoo.toml # Explain one call\n")
		fmt.Fprintf(stderr, "  mmc -audit audit.db -fingerprint   # Record and fingerprint\n")
		fmt.Fprintf(stderr, "  mmc -gen ./shapes -o reg.go        # Generate Go registration\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	commonlog.Configure(*verbose, nil)

	if *genDir != "" {
		if err := generate(*genDir, *genPkg, *genNS, *out, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	m, err := loadManifest(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	rt := dispatch.NewRuntime()
	var sinks []dispatch.Sink
	sinks = append(sinks, audit.NewLogSink())
	var db *audit.SQLiteSink
	if *auditDB != "" {
		db, err = audit.OpenSQLite(*auditDB)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer db.Close()
		sinks = append(sinks, db)
	}
	rt.SetSink(dispatch.MultiSink(sinks))

	bindings, err := manifest.Apply(rt, m, manifest.Constant)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	report, err := rt.Compile()
	if err != nil {
		fmt.Fprintf(stderr, "Compile failed: %v\n", err)
		return 1
	}
	if db != nil {
		if err := db.Err(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	snap := rt.Snapshot()

	if *dump || *problems {
		if err := audit.WriteDump(stdout, snap, audit.DumpOptions{Problems: *problems}); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintln(stdout, highlight(stdout, report.String(), report.AmbiguousCells > 0))
	}

	for _, arg := range resolves {
		if err := explain(stdout, rt, m, bindings, arg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	if *fingerprint {
		fp, err := snapshot.FingerprintSnapshot(snap)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, fp)
	}

	doc := snapshot.Export(snap)
	if *diffPath != "" {
		data, err := os.ReadFile(*diffPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading %s: %v\n", *diffPath, err)
			return 1
		}
		before, err := snapshot.Unmarshal(data)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		for _, c := range snapshot.Diff(before, doc) {
			fmt.Fprintln(stdout, c)
		}
	}
	if *exportPath != "" {
		data, err := snapshot.Marshal(doc)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if err := os.WriteFile(*exportPath, data, 0644); err != nil {
			fmt.Fprintf(stderr, "Error writing %s: %v\n", *exportPath, err)
			return 1
		}
	}

	if *strict && report.AmbiguousCells > 0 {
		return 1
	}
	return 0
}

func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("no %s found from %s", strings.Join(manifest.DefaultNames, ", "), wd)
	}
	return m, nil
}

// explain handles one -resolve argument of the form fn:A,B.
func explain(w io.Writer, rt *dispatch.Runtime, m *manifest.Manifest, b *manifest.Bindings, arg string) error {
	name, list, ok := strings.Cut(arg, ":")
	if !ok || name == "" {
		return fmt.Errorf("bad -resolve %q: want fn:Class,Class", arg)
	}
	var types []hierarchy.TypeID
	if list != "" {
		for _, ref := range strings.Split(list, ",") {
			ref = strings.TrimSpace(ref)
			id, ok := b.Class(ref)
			if !ok {
				id, ok = b.Class(manifest.Qualify(m.Namespace, ref))
			}
			if !ok {
				return fmt.Errorf("%w: class %q", manifest.ErrUnknownName, ref)
			}
			types = append(types, id)
		}
	}

	text, err := rt.Snapshot().Explain(name, types...)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, text)

	// Explain has already shown why an unselected cell has no result.
	res, err := rt.Resolve(name, types...)
	if errors.Is(err, dispatch.ErrAmbiguousCall) || errors.Is(err, dispatch.ErrNotImplementedCall) {
		return nil
	}
	if err != nil {
		return err
	}
	v, err := res.Invoke()
	if errors.Is(err, dispatch.ErrNotImplementedCall) {
		fmt.Fprintf(w, "  => %v\n", err)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  => %v\n", v)
	return nil
}

func generate(dir, pkg, ns, out string, stdout io.Writer) error {
	model, err := gowrap.Introspect(dir, ".")
	if err != nil {
		return err
	}
	code, err := gowrap.GenerateRegistration(model, gowrap.GenOptions{Package: pkg, Namespace: ns})
	if err != nil {
		return err
	}
	if out == "" {
		_, err = io.Copy(stdout, bytes.NewReader(code))
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	return os.WriteFile(out, code, 0644)
}

// highlight colours s red on a terminal when bad is set.
func highlight(w io.Writer, s string, bad bool) string {
	f, ok := w.(*os.File)
	if !bad || !ok {
		return s
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return s
	}
	return "\x1b[31m" + s + "\x1b[0m"
}
