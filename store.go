package dot

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type defKind int

const (
	defText     defKind = iota // inlined at every reference
	defTemplate                // compiled once, called at render time
	defFunc                    // caller supplied Go function
	defExpr                    // value-style inline definition
)

func (k defKind) String() string {
	switch k {
	case defText:
		return "text"
	case defTemplate:
		return "template"
	case defFunc:
		return "func"
	case defExpr:
		return "expression"
	}
	return "unknown"
}

// DefinitionFunc is a definition implemented in Go. Its result is printed
// like an interpolated value.
type DefinitionFunc func(arg any) (any, error)

// Definition is a named reusable fragment.
type Definition struct {
	Name    string
	ArgName string
	Body    string

	kind defKind
	fn   DefinitionFunc
	expr *expression
	bind binding

	compiled  *Template
	compiling bool
}

// Kind reports how references to the definition are resolved.
func (d *Definition) Kind() string { return d.kind.String() }

// Store holds the definitions shared by one or more compilations.
type Store struct {
	mu   sync.Mutex
	done *sync.Cond
	defs map[string]*Definition
}

// NewStore returns an empty definition store.
func NewStore() *Store {
	s := &Store{defs: map[string]*Definition{}}
	s.done = sync.NewCond(&s.mu)
	return s
}

// AddText registers plain template text that is substituted at every
// reference. The configured argument name is rebound when a reference
// passes a parameter. It reports whether the name was new.
func (s *Store) AddText(name, text string) bool {
	return s.add(&Definition{Name: name, Body: text, kind: defText})
}

// AddTemplate registers a sub-template compiled on first reference and
// called with its argument bound to argName.
func (s *Store) AddTemplate(name, argName, body string) (bool, error) {
	b, err := parseBinding(argName)
	if err != nil {
		return false, errors.Wrapf(err, "definition %q", name)
	}
	return s.add(&Definition{Name: name, ArgName: argName, Body: body, kind: defTemplate, bind: b}), nil
}

// AddFunc registers a Go function as a definition.
func (s *Store) AddFunc(name string, fn DefinitionFunc) bool {
	return s.add(&Definition{Name: name, kind: defFunc, fn: fn})
}

func (s *Store) addExpr(name, argName string, e *expression) (bool, error) {
	b, err := parseBinding(argName)
	if err != nil {
		return false, errors.Wrapf(err, "definition %q", name)
	}
	return s.add(&Definition{Name: name, ArgName: argName, Body: e.src, kind: defExpr, expr: e, bind: b}), nil
}

func (s *Store) add(d *Definition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[d.Name]; ok {
		return false
	}
	s.defs[d.Name] = d
	return true
}

// Lookup returns the definition registered under name.
func (s *Store) Lookup(name string) (*Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	return d, ok
}

// Names lists registered definitions in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone copies the registrations without their compiled forms.
func (s *Store) Clone() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := NewStore()
	for name, d := range s.defs {
		cp := *d
		cp.compiled = nil
		cp.compiling = false
		c.defs[name] = &cp
	}
	return c
}

// beginCompile claims the compile step of a template definition. It
// returns false when the definition is already compiled or being compiled.
func (s *Store) beginCompile(d *Definition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.kind != defTemplate || d.compiled != nil || d.compiling {
		return false
	}
	d.compiling = true
	return true
}

func (s *Store) endCompile(d *Definition, t *Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.compiling = false
	d.compiled = t
	s.done.Broadcast()
}

func (s *Store) template(d *Definition) *Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return d.compiled
}

// awaitTemplate is template for render time: a definition another
// compilation is still building is waited for.
func (s *Store) awaitTemplate(d *Definition) *Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d.compiling {
		s.done.Wait()
	}
	return d.compiled
}
