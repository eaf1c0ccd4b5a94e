package dot

import (
	"bytes"
	"io"
	"sync"

	"github.com/oxtoacart/bpool"
	"github.com/pkg/errors"
)

var bufPool = bpool.NewBufferPool(64)

// Template is a compiled template. It is immutable and safe for concurrent
// use; every render owns its output buffer and temporaries.
type Template struct {
	source string
	arg    binding
	nodes  []node
	slots  int
	table  *table
	deps   []string

	listingOnce sync.Once
	listing     string
}

// Compile compiles source. A nil opts uses DefaultOptions. Definitions
// declared inline are registered into opts.Definitions when one is given.
func Compile(source string, opts *Options) (*Template, error) {
	ctx, err := newCompileContext(opts.withDefaults())
	if err != nil {
		return nil, err
	}
	return ctx.build(source)
}

// MustCompile is like Compile but panics on error.
func MustCompile(source string, opts *Options) *Template {
	t, err := Compile(source, opts)
	if err != nil {
		panic(err)
	}
	return t
}

// Render expands the template with data.
func (t *Template) Render(data any) (string, error) {
	buf := bufPool.Get()
	defer bufPool.Put(buf)
	if err := t.renderTo(buf, data, 0); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Execute writes the expanded template to w. Nothing is written when
// rendering fails.
func (t *Template) Execute(w io.Writer, data any) error {
	buf := bufPool.Get()
	defer bufPool.Put(buf)
	if err := t.renderTo(buf, data, 0); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (t *Template) renderTo(out *bytes.Buffer, data any, depth int) error {
	if depth > maxCallDepth {
		return errors.Errorf("definition calls nest deeper than %d levels", maxCallDepth)
	}
	fr := &frame{
		t:     t,
		out:   out,
		scope: scope{},
		slots: make([]any, t.slots),
		data:  data,
		depth: depth,
	}
	if err := t.arg.assign(fr.scope, data); err != nil {
		return err
	}
	return renderAll(fr, t.nodes)
}

// Dependencies lists the encoders and "def."-prefixed definitions the
// template references, sorted.
func (t *Template) Dependencies() []string {
	return append([]string(nil), t.deps...)
}

// Template returns the text the template was compiled from.
func (t *Template) Template() string { return t.source }

// Source prints the assembled program.
func (t *Template) Source() string {
	t.listingOnce.Do(func() {
		l := &listing{arg: t.arg.String()}
		l.line("func(%s) string {", t.arg)
		l.indent++
		l.line("out := \"\"")
		if len(t.deps) > 0 {
			l.line("table := lookup(%q)", t.deps)
		}
		if t.slots > 0 {
			l.line("slot := [%d]any{}", t.slots)
		}
		l.indent--
		l.block(t.nodes)
		l.indent++
		l.line("return out")
		l.indent--
		l.line("}")
		t.listing = l.buf.String()
	})
	return t.listing
}
