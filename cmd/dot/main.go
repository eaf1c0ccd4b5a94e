package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dangdungcntt/go-dot"
	"github.com/davecgh/go-spew/spew"
	"gopkg.in/yaml.v3"
)

const usage = `usage: dot [flags] [template]

Compiles a template read from the file argument (or stdin) and renders it
with the data file. Data files are YAML or JSON.

`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("dot: %v\n", err)
	}
}

type config struct {
	configPath string
	dataPath   string
	strip      bool
	delims     string
	source     bool
	debug      bool
	template   string
}

func parseFlags(args []string, ew io.Writer) (*config, error) {
	fset := flag.NewFlagSet("dot", flag.ContinueOnError)
	fset.SetOutput(ew)
	fset.Usage = func() {
		fmt.Fprint(ew, usage)
		fset.PrintDefaults()
	}
	cfg := &config{}
	fset.StringVar(&cfg.configPath, "config", "", "YAML options file")
	fset.StringVar(&cfg.dataPath, "data", "", "YAML or JSON data file")
	fset.BoolVar(&cfg.strip, "strip", false, "strip whitespace and comments")
	fset.StringVar(&cfg.delims, "delims", "", `delimiters as "start,end"`)
	fset.BoolVar(&cfg.source, "source", false, "print the compiled program instead of rendering")
	fset.BoolVar(&cfg.debug, "debug", false, "dump data and dependencies to stderr")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	switch fset.NArg() {
	case 0:
	case 1:
		cfg.template = fset.Arg(0)
	default:
		return nil, fmt.Errorf("expected at most one template, got %d", fset.NArg())
	}
	return cfg, nil
}

func run(args []string, r io.Reader, w io.Writer, ew io.Writer) error {
	cfg, err := parseFlags(args, ew)
	if err != nil {
		return err
	}

	opts := dot.DefaultOptions()
	if cfg.configPath != "" {
		dir, file := filepath.Split(cfg.configPath)
		if dir == "" {
			dir = "."
		}
		if opts, err = dot.LoadOptions(os.DirFS(dir), file); err != nil {
			return err
		}
	}
	if cfg.strip {
		opts.Strip = true
	}
	if cfg.delims != "" {
		start, end, ok := strings.Cut(cfg.delims, ",")
		if !ok || start == "" || end == "" {
			return fmt.Errorf("invalid -delims %q", cfg.delims)
		}
		opts.Delimiters = dot.Delimiters{Start: start, End: end}
	}

	src, err := readTemplate(cfg.template, r)
	if err != nil {
		return err
	}
	data, err := readData(cfg.dataPath)
	if err != nil {
		return err
	}

	t, err := dot.Compile(src, &opts)
	if err != nil {
		return err
	}
	if cfg.debug {
		spew.Fdump(ew, data)
		spew.Fdump(ew, t.Dependencies())
	}
	if cfg.source {
		_, err = io.WriteString(w, t.Source())
		return err
	}
	return t.Execute(w, data)
}

func readTemplate(path string, r io.Reader) (string, error) {
	var (
		raw []byte
		err error
	)
	if path == "" || path == "-" {
		raw, err = io.ReadAll(r)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return string(raw), nil
}

func readData(path string) (any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	var data any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse data %s: %w", path, err)
	}
	return data, nil
}
