// cmd/ajj is the template engine's command-line front end: render a
// template to stdout, dump its compiled bytecode, or run a live-reloading
// dev server over it.
//
// Grounded on the teacher's cmd/sentra/main.go (a flat command dispatch
// table keyed by os.Args[1], a VERSION const, alias resolution before
// dispatch) narrowed to the three subcommands this engine actually needs.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"ajj/internal/ajjjson"
	"ajj/internal/compiler"
	"ajj/internal/devserver"
	"ajj/internal/engine"
	"ajj/internal/gc"
	"ajj/internal/optimizer"
	"ajj/internal/vfs"
)

const VERSION = "0.1.0"

var commandAliases = map[string]string{
	"r": "render",
	"d": "dump",
	"s": "serve",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}
	rest := args[1:]

	switch cmd {
	case "--help", "-h", "help":
		showUsage()
	case "--version", "-v", "version":
		fmt.Printf("ajj %s\n", VERSION)
	case "render":
		if err := runRender(rest); err != nil {
			log.Fatalf("render: %v", err)
		}
	case "dump":
		if err := runDump(rest); err != nil {
			log.Fatalf("dump: %v", err)
		}
	case "serve":
		if err := runServe(rest); err != nil {
			log.Fatalf("serve: %v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "ajj: unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`ajj - a Jinja2-style template engine

Usage:
  ajj render <template> [--root dir] [--data file.json] [--stats]
  ajj dump <template> [--root dir]
  ajj serve <root-dir> [--addr :8080]

Aliases: r=render, d=dump, s=serve`)
}

// runRender loads template through a root-directory VFS, renders it to
// stdout, and optionally reports render-time stats the way the teacher's
// --production/--fast flags report build stats.
func runRender(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: ajj render <template> [--root dir] [--data file.json] [--stats]")
	}
	tmplPath, rest := args[0], args[1:]
	root := "."
	dataPath := ""
	stats := false
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--root":
			i++
			root = rest[i]
		case "--data":
			i++
			dataPath = rest[i]
		case "--stats":
			stats = true
		}
	}

	eng := engine.New(engine.WithVFS(vfs.NewLocal(root)))
	var renderOpts []engine.RenderOption
	if dataPath != "" {
		raw, err := os.ReadFile(dataPath)
		if err != nil {
			return fmt.Errorf("reading data file: %w", err)
		}
		scope := gc.NewRootScope()
		data, err := ajjjson.Decode(scope, string(raw), dataPath)
		if err != nil {
			return fmt.Errorf("parsing data file: %w", err)
		}
		renderOpts = append(renderOpts, engine.WithUpvalue("data", data))
	}

	sink := engine.NewBufferSink()
	start := time.Now()
	if err := eng.RenderFile(sink, tmplPath, renderOpts...); err != nil {
		return err
	}
	elapsed := time.Since(start)

	out, err := sink.Content()
	if err != nil {
		return err
	}
	fmt.Print(out)

	if stats {
		colorize := isatty.IsTerminal(os.Stderr.Fd())
		label := "rendered in"
		if colorize {
			label = "\x1b[2m" + label + "\x1b[0m"
		}
		fmt.Fprintf(os.Stderr, "\n%s %s (%s)\n", label, elapsed, humanize.Bytes(uint64(len(out))))
	}
	return nil
}

// runDump compiles template (without resolving its extends chain) and
// prints bytecode.Program.Disassemble for Main plus every block/macro.
func runDump(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: ajj dump <template> [--root dir]")
	}
	tmplPath, rest := args[0], args[1:]
	root := "."
	for i := 0; i < len(rest); i++ {
		if rest[i] == "--root" {
			i++
			root = rest[i]
		}
	}

	full := filepath.Join(root, tmplPath)
	src, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("reading %s: %w", full, err)
	}
	tmpl, err := compiler.CompileSource(string(src), tmplPath)
	if err != nil {
		return err
	}
	optMain, err := optimizer.Optimize(tmpl.Main)
	if err != nil {
		return err
	}
	fmt.Print(optMain.Disassemble())
	for name, prog := range tmpl.Blocks {
		opt, err := optimizer.Optimize(prog)
		if err != nil {
			return fmt.Errorf("block %s: %w", name, err)
		}
		fmt.Print(opt.Disassemble())
	}
	for name, prog := range tmpl.Macros {
		opt, err := optimizer.Optimize(prog)
		if err != nil {
			return fmt.Errorf("macro %s: %w", name, err)
		}
		fmt.Print(opt.Disassemble())
	}
	return nil
}

// runServe mounts every *.html/*.jinja file under root behind a dev HTTP
// server with a live-reload WebSocket channel (internal/devserver).
func runServe(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: ajj serve <root-dir> [--addr :8080]")
	}
	root, rest := args[0], args[1:]
	addr := ":8080"
	for i := 0; i < len(rest); i++ {
		if rest[i] == "--addr" {
			i++
			addr = rest[i]
		}
	}

	localVFS := vfs.NewLocal(root)
	eng := engine.New(engine.WithVFS(localVFS))

	var paths []string
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".html") || strings.HasSuffix(path, ".jinja") {
			rel, err := filepath.Rel(root, path)
			if err == nil {
				paths = append(paths, rel)
			}
		}
		return nil
	})

	ds := devserver.New(eng, localVFS, paths)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ds.ServeWS)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" {
			name = "index.html"
		}
		sink := engine.NewBufferSink()
		if err := eng.RenderFile(sink, name); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out, _ := sink.Content()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, out)
	})

	go ds.Watch()
	defer ds.Stop()

	fmt.Printf("ajj serve: listening on %s, watching %d template(s) under %s\n", addr, len(paths), root)
	return http.ListenAndServe(addr, mux)
}
