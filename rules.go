package dot

import (
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const (
	bolPattern = `(?:\r\n|\r|\n|\x1e|^)?[\t ]*`
	eolPattern = `[\t ]*(?:\r\n|\r|\n|\x1e|$)`
	// directive bodies never cross an already rewritten directive
	bodyChar = `[^\x00]`
)

// maxResolveDepth bounds recursive text definition substitution.
const maxResolveDepth = 64

var (
	stripTrailing = regexp.MustCompile(`[\t ]+(\r|\n)`)
	stripLeading  = regexp.MustCompile(`(\r|\n)[\t ]+`)
	stripBreaks   = regexp.MustCompile(`\r|\n|\t|/\*[\s\S]*?\*/`)
	indentRe      = regexp.MustCompile(`[\t ]*`)
	placeholderRe = regexp.MustCompile(`\x00(\d+)\x00`)
)

// patterns are the directive expressions for one delimiter pair.
type patterns struct {
	define      *regexp.Regexp
	resolve     *regexp.Regexp
	iterate     *regexp.Regexp
	conditional *regexp.Regexp
	interpolate *regexp.Regexp
	typed       *regexp.Regexp
	encode      *regexp.Regexp
	spaces      *regexp.Regexp
	evaluate    *regexp.Regexp
}

var patternCache sync.Map // [2]string -> *patterns

func patternsFor(start, end string) *patterns {
	key := [2]string{start, end}
	if p, ok := patternCache.Load(key); ok {
		return p.(*patterns)
	}
	p := &patterns{
		define:      regexp.MustCompile(`(?:` + bolPattern + `)?` + start + `##\s*([\w.$]+)\s*(?::\s*(\{\s*` + bodyChar + `+?\s*\}|\w+?))?[ ]*(:|=)(?:` + eolPattern + `)?(` + bodyChar + `+?)#` + end + `\s*`),
		resolve:     regexp.MustCompile(`(` + bolPattern + `)?` + start + `#\s*def(?:\.|\[['"])([\w$]+)(?:['"]\])?\s*(?::\s*(` + bodyChar + `+?\}?))?\s*` + end + `(` + eolPattern + `)?`),
		iterate:     regexp.MustCompile(`(` + bolPattern + `)?` + start + `(~+)\s*(?:` + end + `|(` + bodyChar + `+?)\s*:\s*([\w$]+)\s*(?::\s*([\w$]+))?\s*` + end + `)(` + eolPattern + `)?`),
		conditional: regexp.MustCompile(`(` + bolPattern + `)?` + start + `\?(\?)?\s*(` + bodyChar + `*?)\s*` + end + `(` + eolPattern + `)?`),
		interpolate: regexp.MustCompile(start + `(?::\s*(\{` + bodyChar + `+?\}|\w+?)\s*)?=(` + bodyChar + `+?)` + end),
		typed:       regexp.MustCompile(start + `%([nsb])=(` + bodyChar + `+?)` + end),
		encode:      regexp.MustCompile(start + `([a-z_$]+[\w$]*)?!(` + bodyChar + `+?)` + end),
		spaces:      regexp.MustCompile(`\s*` + start + `-` + end + `\s*`),
		evaluate:    regexp.MustCompile(start + `(` + bodyChar + `+?\}*)` + end),
	}
	actual, _ := patternCache.LoadOrStore(key, p)
	return actual.(*patterns)
}

// syntaxRule is one rewrite pass. Passes run in order, each consuming the
// output of the previous one.
type syntaxRule func(ctx *CompileContext, t string) (string, error)

var rules []syntaxRule

// assigned in init: compiling a definition runs the passes recursively
func init() {
	rules = []syntaxRule{
		inlineDefinitions,
		resolveDefinitions,
		stripTemplate,
		iterate,
		conditional,
		interpolate,
		typeInterpolate,
		encode,
		removeSpaces,
		evaluate,
	}
}

// replaceAll is ReplaceAllStringFunc with submatches, the match offset and
// error propagation.
func replaceAll(re *regexp.Regexp, src string, fn func(m []string, at int) (string, error)) (string, error) {
	locs := re.FindAllStringSubmatchIndex(src, -1)
	if locs == nil {
		return src, nil
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = src[loc[2*i]:loc[2*i+1]]
			}
		}
		rep, err := fn(m, loc[0])
		if err != nil {
			return "", err
		}
		b.WriteString(src[last:loc[0]])
		b.WriteString(rep)
		last = loc[1]
	}
	b.WriteString(src[last:])
	return b.String(), nil
}

func isBreak(c byte) bool {
	return c == '\r' || c == '\n' || c == lineMark[0]
}

// atLineStart reports whether a directive whose leading whitespace lead
// starts at offset at of s begins its line.
func atLineStart(lead string, at int, s string) bool {
	if at == 0 || strings.ContainsAny(lead, "\r\n"+lineMark) {
		return true
	}
	return isBreak(s[at-1])
}

func lineEnd(trail string) string {
	if trail == "" {
		return ""
	}
	return lineMark
}

func inlineDefinitions(ctx *CompileContext, t string) (string, error) {
	return replaceAll(ctx.patterns.define, t, func(m []string, _ int) (string, error) {
		name, argSpec, assign, tmpl := strings.TrimPrefix(m[1], "def."), m[2], m[3], m[4]
		if _, ok := ctx.Definitions.Lookup(name); ok {
			return "", nil
		}
		if assign == ":" {
			if argSpec == "" {
				argSpec = ctx.ArgName
			}
			if _, err := ctx.Definitions.AddTemplate(name, argSpec, tmpl); err != nil {
				return "", &SyntaxError{Directive: m[0], Msg: "invalid definition", Err: err}
			}
			return "", nil
		}
		if argSpec != "" {
			return "", syntaxErrorf(m[0], "unexpected arguments")
		}
		e, err := mustExpression(m[0], tmpl)
		if err != nil {
			return "", err
		}
		// a constant string is template text
		if v, err := e.eval(scope{}); err == nil {
			if s, ok := v.(string); ok {
				ctx.Definitions.AddText(name, s)
				return "", nil
			}
		}
		if _, err := ctx.Definitions.addExpr(name, ctx.ArgName, e); err != nil {
			return "", &SyntaxError{Directive: m[0], Msg: "invalid definition", Err: err}
		}
		return "", nil
	})
}

func resolveDefinitions(ctx *CompileContext, t string) (string, error) {
	if ctx.depth > maxResolveDepth {
		return "", syntaxErrorf("", "definitions nest deeper than %d levels", maxResolveDepth)
	}
	return replaceAll(ctx.patterns.resolve, t, func(m []string, at int) (string, error) {
		lead, name, param, trail := m[1], m[2], m[3], m[4]
		if atLineStart(lead, at, t) {
			lead = indentRe.ReplaceAllString(lead, "")
		}

		var arg *expression
		if param != "" {
			var err error
			if arg, err = mustExpression(m[0], param); err != nil {
				return "", err
			}
		}

		d, ok := ctx.Definitions.Lookup(name)
		if ok && d.kind == defText {
			if strings.ContainsAny(d.Body, placeholderMark+lineMark) {
				return "", syntaxErrorf(m[0], "definition %q contains a control byte", name)
			}
			ctx.depth++
			text, err := resolveDefinitions(ctx, d.Body)
			ctx.depth--
			if err != nil {
				return "", errors.Wrapf(err, "definition %q", name)
			}
			if arg != nil {
				text = ctx.placeholder(&scopeNode{bind: ctx.arg, arg: arg}) + text + ctx.placeholder(scopeClose{})
			}
			return lead + text + lineEnd(trail), nil
		}

		dep := "def." + name
		if !ctx.Dependencies.has(dep) {
			ctx.Dependencies.add(dep)
			if ok && ctx.Definitions.beginCompile(d) {
				if err := compileDefinition(ctx, d); err != nil {
					return "", err
				}
			} else if ok {
				if compiled := ctx.Definitions.template(d); compiled != nil {
					ctx.Dependencies.merge(compiled.deps)
				}
			}
		}
		return lead + ctx.placeholder(&callNode{name: name, arg: arg}) + lineEnd(trail), nil
	})
}

// compileDefinition builds a template definition with the same pipeline.
func compileDefinition(ctx *CompileContext, d *Definition) error {
	child := ctx.nest(d.bind)
	t, err := child.build(d.Body)
	ctx.Definitions.endCompile(d, t)
	if err != nil {
		return errors.Wrapf(err, "definition %q", d.Name)
	}
	ctx.Dependencies.merge(t.deps)
	return nil
}

func stripTemplate(ctx *CompileContext, t string) (string, error) {
	if !ctx.Strip {
		return t, nil
	}
	t = strings.TrimSpace(t)
	t = stripTrailing.ReplaceAllString(t, "\n")
	t = stripLeading.ReplaceAllString(t, "")
	return stripBreaks.ReplaceAllString(t, ""), nil
}

func iterate(ctx *CompileContext, t string) (string, error) {
	return replaceAll(ctx.patterns.iterate, t, func(m []string, at int) (string, error) {
		lead, loop, src, item, index, trail := m[1], m[2], m[3], m[4], m[5], m[6]
		start := atLineStart(lead, at, t)
		if loop != "~" && loop != "~~" {
			return "", syntaxErrorf(m[0], "unsupported loop marker %q", loop)
		}
		if src == "" {
			if start {
				lead = ""
			}
			return lead + ctx.placeholder(loopClose{}) + lineEnd(trail), nil
		}
		e, err := mustExpression(m[0], src)
		if err != nil {
			return "", err
		}
		if start {
			lead = indentRe.ReplaceAllString(lead, "")
		}
		n := &eachNode{
			src:     e,
			mapping: loop == "~~",
			item:    item,
			index:   index,
			slot:    ctx.allocSlot(),
		}
		return lead + ctx.placeholder(n) + lineEnd(trail), nil
	})
}

func conditional(ctx *CompileContext, t string) (string, error) {
	return replaceAll(ctx.patterns.conditional, t, func(m []string, at int) (string, error) {
		lead, elseCase, code, trail := m[1], m[2] != "", m[3], m[4]
		start := atLineStart(lead, at, t)
		mk := condMarker{elseBranch: elseCase}
		if code != "" {
			cond, err := mustExpression(m[0], code)
			if err != nil {
				return "", err
			}
			mk.cond = cond
		}
		switch {
		case start && mk.cond != nil && elseCase:
			lead = indentRe.ReplaceAllString(lead, "")
		case start:
			lead = ""
		}
		return lead + ctx.placeholder(mk) + lineEnd(trail), nil
	})
}

func interpolate(ctx *CompileContext, t string) (string, error) {
	return replaceAll(ctx.patterns.interpolate, t, func(m []string, _ int) (string, error) {
		e, err := mustExpression(m[0], m[2])
		if err != nil {
			return "", err
		}
		n := &interpNode{e: e}
		if m[1] != "" {
			b, err := parseBinding(m[1])
			if err != nil {
				return "", &SyntaxError{Directive: m[0], Msg: "invalid binding", Err: err}
			}
			n.bind = &b
		}
		return ctx.placeholder(n), nil
	})
}

var typeNames = map[string]string{"n": kindNumber, "s": kindString, "b": kindBoolean}

func typeInterpolate(ctx *CompileContext, t string) (string, error) {
	return replaceAll(ctx.patterns.typed, t, func(m []string, _ int) (string, error) {
		e, err := mustExpression(m[0], m[2])
		if err != nil {
			return "", err
		}
		return ctx.placeholder(&typedNode{e: e, want: typeNames[m[1]], slot: ctx.allocSlot()}), nil
	})
}

func encode(ctx *CompileContext, t string) (string, error) {
	return replaceAll(ctx.patterns.encode, t, func(m []string, _ int) (string, error) {
		e, err := mustExpression(m[0], m[2])
		if err != nil {
			return "", err
		}
		ctx.Dependencies.add(m[1])
		return ctx.placeholder(&encodeNode{name: m[1], e: e}), nil
	})
}

func removeSpaces(ctx *CompileContext, t string) (string, error) {
	return ctx.patterns.spaces.ReplaceAllString(t, ""), nil
}

func evaluate(ctx *CompileContext, t string) (string, error) {
	return replaceAll(ctx.patterns.evaluate, t, func(m []string, _ int) (string, error) {
		stmts, err := compileStatements(m[1])
		if err != nil {
			return "", &SyntaxError{Directive: m[0], Msg: "invalid statement", Err: err}
		}
		if len(stmts) == 0 {
			return "", nil
		}
		return ctx.placeholder(&rawNode{src: strings.TrimSpace(m[1]), stmts: stmts}), nil
	})
}
