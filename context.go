package dot

import (
	"sort"
	"strconv"
)

// CompileContext is threaded through every pass of one compilation.
type CompileContext struct {
	Options
	// escaped delimiters
	start, end string
	patterns   *patterns
	arg        binding

	// Dependencies holds the encoders and "def."-prefixed definitions
	// referenced by the compilation.
	Dependencies dependencySet

	// nodes are referenced from the rewritten text by placeholder
	nodes []any
	// slots counts the temporaries allocated for typed values and loops
	slots int
	// nested is set while compiling a definition body
	nested bool
	// depth of text definition resolution
	depth int
}

func newCompileContext(opts Options) (*CompileContext, error) {
	arg, err := parseBinding(opts.ArgName)
	if err != nil {
		return nil, &SyntaxError{Msg: "invalid argument name", Err: err}
	}
	start, end := opts.Delimiters.escape()
	return &CompileContext{
		Options:      opts,
		start:        start,
		end:          end,
		patterns:     patternsFor(start, end),
		arg:          arg,
		Dependencies: dependencySet{},
	}, nil
}

// nest returns the context a definition body is compiled with. It shares
// the options and the store but owns its dependencies, nodes and slots.
func (ctx *CompileContext) nest(arg binding) *CompileContext {
	return &CompileContext{
		Options:      ctx.Options,
		start:        ctx.start,
		end:          ctx.end,
		patterns:     ctx.patterns,
		arg:          arg,
		Dependencies: dependencySet{},
		nested:       true,
	}
}

const (
	placeholderMark = "\x00"
	// lineMark stands in for a line end swallowed by a block directive so
	// that the next directive still sees the start of a line.
	lineMark = "\x1e"
)

// placeholder stores n and returns the text that refers to it.
func (ctx *CompileContext) placeholder(n any) string {
	ctx.nodes = append(ctx.nodes, n)
	return placeholderMark + strconv.Itoa(len(ctx.nodes)-1) + placeholderMark
}

func (ctx *CompileContext) allocSlot() int {
	ctx.slots++
	return ctx.slots - 1
}

type dependencySet map[string]struct{}

func (s dependencySet) add(name string) { s[name] = struct{}{} }

func (s dependencySet) has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s dependencySet) merge(names []string) {
	for _, name := range names {
		s.add(name)
	}
}

func (s dependencySet) sorted() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
