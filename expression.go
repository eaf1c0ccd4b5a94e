package dot

import (
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"
)

// scope holds the names visible to expressions during one render call.
type scope map[string]any

type savedBinding struct {
	val any
	ok  bool
}

func (sc scope) save(names []string) []savedBinding {
	out := make([]savedBinding, len(names))
	for i, name := range names {
		out[i].val, out[i].ok = sc[name]
	}
	return out
}

func (sc scope) restore(names []string, saved []savedBinding) {
	for i, name := range names {
		if saved[i].ok {
			sc[name] = saved[i].val
			continue
		}
		delete(sc, name)
	}
}

// expression is a compiled directive expression.
type expression struct {
	src  string
	prog *vm.Program
}

func compileExpression(src string) (*expression, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, errors.New("empty expression")
	}
	prog, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return &expression{src: src, prog: prog}, nil
}

// mustExpression compiles src and reports failures as a SyntaxError for directive.
func mustExpression(directive, src string) (*expression, error) {
	e, err := compileExpression(src)
	if err != nil {
		return nil, &SyntaxError{Directive: directive, Msg: "invalid expression", Err: err}
	}
	return e, nil
}

func (e *expression) eval(sc scope) (any, error) {
	out, err := expr.Run(e.prog, map[string]any(sc))
	if err != nil {
		return nil, errors.Wrapf(err, "evaluate %q", e.src)
	}
	return out, nil
}

func (e *expression) String() string { return e.src }

var identRe = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)

// binding is an argument spec: a single name or a {a, b} destructuring.
type binding struct {
	name   string
	fields []string
}

func parseBinding(spec string) (binding, error) {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "{") && strings.HasSuffix(spec, "}") {
		var b binding
		for _, f := range strings.Split(spec[1:len(spec)-1], ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if !identRe.MatchString(f) {
				return binding{}, errors.Errorf("invalid field %q in %q", f, spec)
			}
			b.fields = append(b.fields, f)
		}
		if len(b.fields) == 0 {
			return binding{}, errors.Errorf("empty destructuring %q", spec)
		}
		return b, nil
	}
	if !identRe.MatchString(spec) {
		return binding{}, errors.Errorf("invalid argument name %q", spec)
	}
	return binding{name: spec}, nil
}

func (b binding) names() []string {
	if b.name != "" {
		return []string{b.name}
	}
	return b.fields
}

func (b binding) destructures() bool { return b.name == "" }

func (b binding) assign(sc scope, v any) error {
	if b.name != "" {
		sc[b.name] = v
		return nil
	}
	for _, f := range b.fields {
		val, err := member(v, f)
		if err != nil {
			return errors.Wrap(err, "destructure argument")
		}
		sc[f] = val
	}
	return nil
}

func (b binding) String() string {
	if b.name != "" {
		return b.name
	}
	return "{" + strings.Join(b.fields, ", ") + "}"
}
