package dot

import (
	"fmt"
	"sort"
)

type ParsedFile struct {
	Name string
	// Path is the file path inside the engine filesystem
	Path string
	// Raw is the raw file content
	Raw string
	// Definition is set for .def files, which are registered as template definitions
	Definition bool
	// Defines is the set of definitions declared inline with ##
	Defines map[string]struct{}
	// References is the set of definition names referenced with #def
	References map[string]struct{}
	// ParsedAt is the time when the file was parsed in unix milliseconds
	ParsedAt int64
}

// referencedNames returns the referenced definitions in sorted order.
func (p *ParsedFile) referencedNames() []string {
	names := make([]string, 0, len(p.References))
	for name := range p.References {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// register adds a definition file to store.
func (p *ParsedFile) register(store *Store, argName string) error {
	if !p.Definition {
		return nil
	}
	added, err := store.AddTemplate(p.Name, argName, p.Raw)
	if err != nil {
		return fmt.Errorf("[%s] %w", p.Path, err)
	}
	if !added {
		return fmt.Errorf(`[%s] duplicate definition "%s"`, p.Path, p.Name)
	}
	return nil
}

// checkReferences reports the first referenced definition that neither the
// store nor the file itself provides.
func (p *ParsedFile) checkReferences(store *Store) error {
	for _, name := range p.referencedNames() {
		if _, ok := store.Lookup(name); ok {
			continue
		}
		if _, ok := p.Defines[name]; ok {
			continue
		}
		return fmt.Errorf(`[%s] definition "%s" not found`, p.Name, name)
	}
	return nil
}

// ToTemplate compiles a template file with opts.
func (p *ParsedFile) ToTemplate(opts Options) (*Template, error) {
	t, err := Compile(p.Raw, &opts)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", p.Name, err)
	}
	return t, nil
}
