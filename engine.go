package dot

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

var (
	ValidFileExtensions = []string{".dot", ".tmpl", ".html"}
	DefinitionExtension = ".def"
)

// Engine holds loaded files.
type Engine struct {
	dirPrefix       string
	fs              fs.FS
	parsedFiles     map[string]*ParsedFile
	debugTemplates  map[string]string
	templates       map[string]*Template
	definitions     *Store
	lastCompileTime int64
	mu              sync.RWMutex
	cache           *ristretto.Cache
	// Options are used for every template the engine compiles.
	Options Options
}

// NewEngine creates a new engine pointing to a directory with files.
func NewEngine(dir string) *Engine {
	return NewEngineFS(os.DirFS(dir))
}

// NewEngineFS creates a new engine pointing to a filesystem.
// When using embed.Fs, pass the embedded folder as prefix.
func NewEngineFS(fs fs.FS, prefix ...string) *Engine {
	var dirPrefix string
	if len(prefix) > 0 {
		dirPrefix = prefix[0]
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,     // number of keys to track frequency of
		MaxCost:     1 << 10, // compiled templates kept for RenderString
		BufferItems: 64,      // number of keys per Get buffer
	})
	if err != nil {
		panic(err)
	}
	return &Engine{
		dirPrefix:       dirPrefix,
		fs:              fs,
		parsedFiles:     map[string]*ParsedFile{},
		debugTemplates:  map[string]string{},
		templates:       map[string]*Template{},
		definitions:     NewStore(),
		lastCompileTime: -1,
		cache:           cache,
		Options:         DefaultOptions(),
	}
}

// Load reads all template and definition files from the fs.
// It will only recompile if the files have been modified since last compile.
func (e *Engine) Load() error {
	e.mu.Lock()
	defer func() {
		e.lastCompileTime = time.Now().UnixMilli()
		e.mu.Unlock()
	}()

	needCompile := false

	err := fs.WalkDir(e.fs, ".", func(path string, info fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != DefinitionExtension && !slices.Contains(ValidFileExtensions, ext) {
			return nil
		}

		stats, err := info.Info()
		if err != nil {
			return err
		}

		if e.lastCompileTime >= 0 && stats.ModTime().UnixMilli() <= e.lastCompileTime {
			return nil
		}

		needCompile = true

		raw, err := fs.ReadFile(e.fs, path)
		if err != nil {
			return err
		}
		parsedFile := e.parseFile(path, string(raw))
		e.parsedFiles[path] = parsedFile
		return nil
	})
	if err != nil {
		return err
	}

	if !needCompile {
		return nil
	}

	defs := NewStore()
	if e.Options.Definitions != nil {
		defs = e.Options.Definitions.Clone()
	}
	paths := make([]string, 0, len(e.parsedFiles))
	for path := range e.parsedFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := e.parsedFiles[path].register(defs, e.argName()); err != nil {
			return err
		}
	}

	templates := map[string]*Template{}
	debugTemplates := map[string]string{}
	for _, path := range paths {
		f := e.parsedFiles[path]
		if f.Definition {
			continue
		}
		if _, ok := templates[f.Name]; ok {
			return fmt.Errorf(`[%s] duplicate template name "%s"`, f.Path, f.Name)
		}
		if err := f.checkReferences(defs); err != nil {
			return err
		}
		// inline definitions stay local to the file that declares them
		opts := e.Options
		opts.Definitions = defs.Clone()
		t, err := f.ToTemplate(opts)
		if err != nil {
			return err
		}
		templates[f.Name] = t
		debugTemplates[f.Name] = t.Source()
	}

	e.definitions = defs
	e.templates = templates
	e.debugTemplates = debugTemplates
	e.cache.Clear()
	return nil
}

// Render executes the template identified by entry (e.g., "pages/home") into writer with data.
func (e *Engine) Render(w io.Writer, entry string, data any) error {
	entry = normalizeName(entry)
	e.mu.RLock()
	tmpl, ok := e.templates[entry]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("template %s not loaded", entry)
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("[%s] %w", entry, err)
	}
	return nil
}

// RenderString compiles source with the engine options and loaded
// definitions and renders it. Compiled sources are cached.
func (e *Engine) RenderString(source string, data any) (string, error) {
	if v, ok := e.cache.Get(source); ok {
		return v.(*Template).Render(data)
	}
	e.mu.RLock()
	opts := e.Options
	opts.Definitions = e.definitions.Clone()
	e.mu.RUnlock()

	t, err := Compile(source, &opts)
	if err != nil {
		return "", err
	}
	e.cache.Set(source, t, 1)
	return t.Render(data)
}

// GetDebugTemplates returns a map of all loaded templates and their assembled program.
func (e *Engine) GetDebugTemplates() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.debugTemplates
}

// Templates lists the loaded template names.
func (e *Engine) Templates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) argName() string {
	if e.Options.ArgName == "" {
		return DefaultArgName
	}
	return e.Options.ArgName
}

// parseFile records what a file declares and references.
func (e *Engine) parseFile(path string, raw string) *ParsedFile {
	p := &ParsedFile{
		Name:       e.nameFromPath(path),
		Path:       path,
		Raw:        raw,
		Definition: strings.EqualFold(filepath.Ext(path), DefinitionExtension),
		Defines:    map[string]struct{}{},
		References: map[string]struct{}{},
		ParsedAt:   time.Now().UnixMilli(),
	}
	if p.Definition {
		// definitions are referenced by file name only
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	delims := e.Options.Delimiters
	if delims.Start == "" || delims.End == "" {
		delims = DefaultDelimiters
	}
	pat := patternsFor(delims.escape())
	for _, m := range pat.define.FindAllStringSubmatch(raw, -1) {
		p.Defines[strings.TrimPrefix(m[1], "def.")] = struct{}{}
	}
	for _, m := range pat.resolve.FindAllStringSubmatch(raw, -1) {
		p.References[m[2]] = struct{}{}
	}
	return p
}

// nameFromPath converts a filesystem path to a template name, relative to engine dir.
func (e *Engine) nameFromPath(path string) string {
	rel, err := filepath.Rel(e.dirPrefix, path)
	if err != nil {
		return filepath.Base(path)
	}
	// normalize separators and drop extension
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return normalizeName(rel)
}

// normalizeName: remove quotes/spaces and extensions, normalize slashes
func normalizeName(n string) string {
	n = strings.TrimSpace(n)
	n = strings.Trim(n, `"' `)
	// remove ext if present
	n = strings.TrimSuffix(n, filepath.Ext(n))
	n = filepath.ToSlash(n)
	return n
}
