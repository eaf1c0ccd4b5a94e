package dot

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// table is the resolved dependency table of one template.
type table struct {
	encoders map[string]Encoder
	defs     map[string]*Definition
	store    *Store
}

// compiledEncoder is an EncoderSource whose expression was compiled once
// while assembling.
type compiledEncoder struct {
	e *expression
}

func (c compiledEncoder) Encode(v any) (string, error) { return runEncoderSource(c.e, v) }

// build runs the rewrite passes over src and assembles the result.
func (ctx *CompileContext) build(src string) (*Template, error) {
	if strings.Contains(src, placeholderMark) {
		return nil, syntaxErrorf("", "template contains a NUL byte")
	}
	if strings.Contains(src, lineMark) {
		return nil, syntaxErrorf("", "template contains a record separator byte (0x1e)")
	}
	t := src
	for _, rule := range rules {
		var err error
		if t, err = rule(ctx, t); err != nil {
			return nil, err
		}
	}
	t = strings.ReplaceAll(t, lineMark, "")

	nodes, err := ctx.buildTree(t)
	if err != nil {
		return nil, err
	}
	tbl, err := ctx.assemble()
	if err != nil {
		return nil, err
	}
	return &Template{
		source: src,
		arg:    ctx.arg,
		nodes:  nodes,
		slots:  ctx.slots,
		table:  tbl,
		deps:   ctx.Dependencies.sorted(),
	}, nil
}

type openBlock struct {
	owner any // *ifNode, *eachNode or *scopeNode
	body  *[]node
}

type treeBuilder struct {
	root  []node
	stack []*openBlock
}

func (b *treeBuilder) target() *[]node {
	if len(b.stack) == 0 {
		return &b.root
	}
	return b.stack[len(b.stack)-1].body
}

func (b *treeBuilder) top() any {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1].owner
}

func (b *treeBuilder) text(s string) {
	if s == "" {
		return
	}
	dst := b.target()
	if n := len(*dst); n > 0 {
		if prev, ok := (*dst)[n-1].(textNode); ok {
			(*dst)[n-1] = prev + textNode(s)
			return
		}
	}
	*dst = append(*dst, textNode(s))
}

func (b *treeBuilder) add(n node) {
	dst := b.target()
	*dst = append(*dst, n)
}

func (b *treeBuilder) push(owner node, body *[]node) {
	b.add(owner)
	b.stack = append(b.stack, &openBlock{owner: owner, body: body})
}

func (b *treeBuilder) pop() { b.stack = b.stack[:len(b.stack)-1] }

// buildTree turns the rewritten text into nodes, pairing block markers.
func (ctx *CompileContext) buildTree(t string) ([]node, error) {
	var b treeBuilder
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(t, -1) {
		b.text(t[last:loc[0]])
		last = loc[1]
		idx, err := strconv.Atoi(t[loc[2]:loc[3]])
		if err != nil || idx >= len(ctx.nodes) {
			return nil, syntaxErrorf("", "corrupt placeholder %q", t[loc[0]:loc[1]])
		}
		if err := b.place(ctx.nodes[idx]); err != nil {
			return nil, err
		}
	}
	b.text(t[last:])

	if len(b.stack) > 0 {
		switch b.top().(type) {
		case *ifNode:
			return nil, syntaxErrorf("", "unclosed conditional")
		case *eachNode:
			return nil, syntaxErrorf("", "unclosed loop")
		default:
			return nil, syntaxErrorf("", "unclosed definition scope")
		}
	}
	return b.root, nil
}

func (b *treeBuilder) place(item any) error {
	switch n := item.(type) {
	case condMarker:
		return b.condition(n)
	case loopClose:
		if _, ok := b.top().(*eachNode); !ok {
			return syntaxErrorf("", "loop close without an open loop")
		}
		b.pop()
	case scopeClose:
		if _, ok := b.top().(*scopeNode); !ok {
			return syntaxErrorf("", "definition scope closed out of order")
		}
		b.pop()
	case *eachNode:
		b.push(n, &n.body)
	case *scopeNode:
		b.push(n, &n.body)
	case node:
		b.add(n)
	default:
		return errors.Errorf("unexpected node %T", item)
	}
	return nil
}

func (b *treeBuilder) condition(mk condMarker) error {
	if !mk.elseBranch {
		if mk.cond != nil {
			n := &ifNode{branches: []*condBranch{{cond: mk.cond}}}
			b.push(n, &n.branches[0].body)
			return nil
		}
		if _, ok := b.top().(*ifNode); !ok {
			return syntaxErrorf("", "conditional close without an open conditional")
		}
		b.pop()
		return nil
	}

	n, ok := b.top().(*ifNode)
	if !ok {
		return syntaxErrorf("", "else branch without an open conditional")
	}
	if n.branches[len(n.branches)-1].cond == nil {
		return syntaxErrorf("", "branch after else")
	}
	br := &condBranch{cond: mk.cond}
	n.branches = append(n.branches, br)
	b.stack[len(b.stack)-1].body = &br.body
	return nil
}

// assemble resolves every recorded dependency.
func (ctx *CompileContext) assemble() (*table, error) {
	tbl := &table{
		encoders: map[string]Encoder{},
		defs:     map[string]*Definition{},
		store:    ctx.Definitions,
	}
	for _, dep := range ctx.Dependencies.sorted() {
		if name, ok := strings.CutPrefix(dep, "def."); ok {
			d, found := ctx.Definitions.Lookup(name)
			if !found || d.kind == defText {
				return nil, &UnresolvedReferenceError{Kind: "definition", Name: name}
			}
			tbl.defs[name] = d
			continue
		}

		enc, ok := ctx.Encoders[dep]
		if !ok || enc == nil {
			return nil, &UnresolvedReferenceError{Kind: "encoder", Name: dep}
		}
		switch e := enc.(type) {
		case EncoderSource:
			prog, err := e.compile()
			if err != nil {
				return nil, errors.Wrapf(err, "encoder %q", dep)
			}
			tbl.encoders[dep] = compiledEncoder{e: prog}
		case compiledEncoder, builtinEncoder:
			tbl.encoders[dep] = e
		default:
			if ctx.SelfContained {
				return nil, &EncoderShapeError{Name: dep}
			}
			tbl.encoders[dep] = enc
		}
	}
	return tbl, nil
}
