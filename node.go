package dot

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// maxCallDepth bounds nested definition calls during one render.
const maxCallDepth = 256

// frame is the per-invocation state of a render call.
type frame struct {
	t     *Template
	out   *bytes.Buffer
	scope scope
	slots []any
	data  any
	depth int
}

// arg returns the current value of the argument name, or the raw
// argument when the template destructures it.
func (fr *frame) arg() any {
	if fr.t.arg.destructures() {
		return fr.data
	}
	return fr.scope[fr.t.arg.name]
}

type node interface {
	render(fr *frame) error
	dump(l *listing)
}

func renderAll(fr *frame, nodes []node) error {
	for _, n := range nodes {
		if err := n.render(fr); err != nil {
			return err
		}
	}
	return nil
}

// block markers, only present between the rewrite passes and the tree builder

type condMarker struct {
	cond       *expression
	elseBranch bool
}

type loopClose struct{}

type scopeClose struct{}

type textNode string

func (n textNode) render(fr *frame) error {
	fr.out.WriteString(string(n))
	return nil
}

func (n textNode) dump(l *listing) {
	l.line("out += %s", strconv.Quote(string(n)))
}

type interpNode struct {
	e    *expression
	bind *binding
}

func (n *interpNode) render(fr *frame) error {
	if n.bind == nil {
		v, err := n.e.eval(fr.scope)
		if err != nil {
			return err
		}
		fr.out.WriteString(stringify(v))
		return nil
	}
	names := n.bind.names()
	saved := fr.scope.save(names)
	defer fr.scope.restore(names, saved)
	if err := n.bind.assign(fr.scope, fr.arg()); err != nil {
		return err
	}
	v, err := n.e.eval(fr.scope)
	if err != nil {
		return err
	}
	fr.out.WriteString(stringify(v))
	return nil
}

func (n *interpNode) dump(l *listing) {
	if n.bind != nil {
		l.line("{ const %s = %s; out += string(%s) }", n.bind, l.arg, n.e)
		return
	}
	l.line("out += string(%s)", n.e)
}

type typedNode struct {
	e    *expression
	want string
	slot int
}

func (n *typedNode) render(fr *frame) error {
	v, err := n.e.eval(fr.scope)
	if err != nil {
		return err
	}
	fr.slots[n.slot] = v
	if got := typeName(v); got != n.want {
		return errors.Wrapf(&TypeAssertionError{Expected: n.want, Actual: got}, "%s", n.e)
	}
	fr.out.WriteString(stringify(fr.slots[n.slot]))
	return nil
}

func (n *typedNode) dump(l *listing) {
	l.line("slot[%d] = %s; assert %s(slot[%d]); out += string(slot[%d])", n.slot, n.e, n.want, n.slot, n.slot)
}

type encodeNode struct {
	name string
	e    *expression
}

func (n *encodeNode) render(fr *frame) error {
	v, err := n.e.eval(fr.scope)
	if err != nil {
		return err
	}
	s, err := fr.t.table.encoders[n.name].Encode(v)
	if err != nil {
		return errors.Wrapf(err, "encoder %q", n.name)
	}
	fr.out.WriteString(s)
	return nil
}

func (n *encodeNode) dump(l *listing) {
	l.line("out += table[%s](%s)", strconv.Quote(n.name), n.e)
}

type rawNode struct {
	src   string
	stmts []*statement
}

func (n *rawNode) render(fr *frame) error {
	for _, st := range n.stmts {
		if err := st.exec(fr.scope); err != nil {
			return err
		}
	}
	return nil
}

func (n *rawNode) dump(l *listing) {
	for _, st := range n.stmts {
		l.line("%s", st.src)
	}
}

type callNode struct {
	name string
	arg  *expression
}

func (n *callNode) render(fr *frame) error {
	arg := fr.arg()
	if n.arg != nil {
		var err error
		if arg, err = n.arg.eval(fr.scope); err != nil {
			return err
		}
	}
	d := fr.t.table.defs[n.name]
	switch d.kind {
	case defTemplate:
		t := fr.t.table.store.awaitTemplate(d)
		if t == nil {
			return errors.Errorf("definition %q is not compiled", n.name)
		}
		return errors.Wrapf(t.renderTo(fr.out, arg, fr.depth+1), "definition %q", n.name)
	case defFunc:
		v, err := d.fn(arg)
		if err != nil {
			return errors.Wrapf(err, "definition %q", n.name)
		}
		fr.out.WriteString(stringify(v))
		return nil
	case defExpr:
		sc := scope{}
		if err := d.bind.assign(sc, arg); err != nil {
			return err
		}
		v, err := d.expr.eval(sc)
		if err != nil {
			return errors.Wrapf(err, "definition %q", n.name)
		}
		fr.out.WriteString(stringify(v))
		return nil
	default:
		return errors.Errorf("definition %q cannot be called", n.name)
	}
}

func (n *callNode) dump(l *listing) {
	arg := l.arg
	if n.arg != nil {
		arg = n.arg.String()
	}
	l.line("out += table.def.%s(%s)", n.name, arg)
}

type condBranch struct {
	cond *expression // nil for else
	body []node
}

type ifNode struct {
	branches []*condBranch
}

func (n *ifNode) render(fr *frame) error {
	for _, br := range n.branches {
		if br.cond != nil {
			v, err := br.cond.eval(fr.scope)
			if err != nil {
				return err
			}
			if !truthy(v) {
				continue
			}
		}
		return renderAll(fr, br.body)
	}
	return nil
}

func (n *ifNode) dump(l *listing) {
	for i, br := range n.branches {
		switch {
		case i == 0:
			l.line("if %s {", br.cond)
		case br.cond != nil:
			l.line("} else if %s {", br.cond)
		default:
			l.line("} else {")
		}
		l.block(br.body)
	}
	l.line("}")
}

type eachNode struct {
	src     *expression
	mapping bool
	item    string
	index   string
	slot    int
	body    []node
}

// loopState lives in the loop's slot: the collection and the outer
// bindings shadowed by the loop names.
type loopState struct {
	coll  any
	names []string
	saved []savedBinding
}

func (n *eachNode) render(fr *frame) error {
	coll, err := n.src.eval(fr.scope)
	if err != nil {
		return err
	}
	names := []string{n.item}
	if n.index != "" {
		names = append(names, n.index)
	}
	st := &loopState{coll: coll, names: names, saved: fr.scope.save(names)}
	fr.slots[n.slot] = st
	defer fr.scope.restore(st.names, st.saved)

	return each(st.coll, n.mapping, func(key, item any) error {
		fr.scope[n.item] = item
		if n.index != "" {
			fr.scope[n.index] = key
		}
		return renderAll(fr, n.body)
	})
}

func (n *eachNode) dump(l *listing) {
	vars := n.item
	if n.index != "" {
		vars = n.index + ", " + n.item
	}
	if n.mapping {
		l.line("for %s in entries(slot[%d] = %s) {", vars, n.slot, n.src)
	} else {
		l.line("for %s in slot[%d] = %s {", vars, n.slot, n.src)
	}
	l.block(n.body)
	l.line("}")
}

// scopeNode rebinds the argument name for the body of a text definition.
type scopeNode struct {
	bind binding
	arg  *expression
	body []node
}

func (n *scopeNode) render(fr *frame) error {
	v, err := n.arg.eval(fr.scope)
	if err != nil {
		return err
	}
	names := n.bind.names()
	saved := fr.scope.save(names)
	defer fr.scope.restore(names, saved)
	if err := n.bind.assign(fr.scope, v); err != nil {
		return err
	}
	return renderAll(fr, n.body)
}

func (n *scopeNode) dump(l *listing) {
	l.line("{ const %s = %s", n.bind, n.arg)
	l.block(n.body)
	l.line("}")
}

// listing prints an assembled program.
type listing struct {
	buf    strings.Builder
	indent int
	arg    string
}

func (l *listing) line(format string, args ...any) {
	l.buf.WriteString(strings.Repeat("  ", l.indent))
	fmt.Fprintf(&l.buf, format, args...)
	l.buf.WriteByte('\n')
}

func (l *listing) block(nodes []node) {
	l.indent++
	for _, n := range nodes {
		n.dump(l)
	}
	l.indent--
}
