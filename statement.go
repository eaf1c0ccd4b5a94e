package dot

import (
	"strings"

	"github.com/pkg/errors"
)

// statement is one entry of a raw code block:
//
//	[var|let|const] name = expr
//	target.field = expr
//	target[key] = expr
//	expr
type statement struct {
	src   string
	name  string      // plain identifier target
	base  *expression // member target object
	field string      // member target, dotted form
	key   *expression // member target, indexed form
	value *expression
}

var declKeywords = []string{"var ", "let ", "const "}

func compileStatements(code string) ([]*statement, error) {
	parts, err := splitStatements(code)
	if err != nil {
		return nil, err
	}
	var out []*statement
	for _, part := range parts {
		st, err := compileStatement(part)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func compileStatement(src string) (*statement, error) {
	st := &statement{src: src}
	eq := findAssign(src)
	if eq < 0 {
		v, err := compileExpression(src)
		if err != nil {
			return nil, err
		}
		st.value = v
		return st, nil
	}

	lhs := strings.TrimSpace(src[:eq])
	rhs := strings.TrimSpace(src[eq+1:])
	if lhs == "" {
		return nil, errors.Errorf("missing assignment target in %q", src)
	}
	if op := lhs[len(lhs)-1]; strings.IndexByte("+-*/", op) >= 0 {
		lhs = strings.TrimSpace(lhs[:len(lhs)-1])
		rhs = lhs + " " + string(op) + " (" + rhs + ")"
	}
	declared := false
	for _, kw := range declKeywords {
		if strings.HasPrefix(lhs, kw) {
			lhs = strings.TrimSpace(lhs[len(kw):])
			declared = true
			break
		}
	}

	value, err := compileExpression(rhs)
	if err != nil {
		return nil, err
	}
	st.value = value

	if identRe.MatchString(lhs) {
		st.name = lhs
		return st, nil
	}
	if declared {
		return nil, errors.Errorf("invalid declaration target %q", lhs)
	}

	if strings.HasSuffix(lhs, "]") {
		open := matchingOpen(lhs)
		if open <= 0 {
			return nil, errors.Errorf("invalid assignment target %q", lhs)
		}
		if st.base, err = compileExpression(lhs[:open]); err != nil {
			return nil, err
		}
		st.key, err = compileExpression(lhs[open+1 : len(lhs)-1])
		return st, err
	}
	dot := strings.LastIndexByte(lhs, '.')
	if dot <= 0 || !identRe.MatchString(lhs[dot+1:]) {
		return nil, errors.Errorf("invalid assignment target %q", lhs)
	}
	st.field = lhs[dot+1:]
	st.base, err = compileExpression(lhs[:dot])
	return st, err
}

func (st *statement) exec(sc scope) error {
	val, err := st.value.eval(sc)
	if err != nil {
		return err
	}
	switch {
	case st.name != "":
		sc[st.name] = val
		return nil
	case st.base == nil:
		return nil
	}
	target, err := st.base.eval(sc)
	if err != nil {
		return err
	}
	var key any = st.field
	if st.key != nil {
		if key, err = st.key.eval(sc); err != nil {
			return err
		}
	}
	return errors.Wrapf(setMember(target, key, val), "assign %q", st.src)
}

// splitStatements splits on top-level ';' and line breaks.
func splitStatements(code string) ([]string, error) {
	var (
		out   []string
		depth int
		quote byte
		start int
	)
	flush := func(end int) {
		if s := strings.TrimSpace(code[start:end]); s != "" {
			out = append(out, s)
		}
		start = end + 1
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return nil, errors.Errorf("unbalanced %q in %q", c, code)
			}
		case ';', '\n', '\r':
			if depth == 0 {
				flush(i)
			}
		}
	}
	if quote != 0 || depth != 0 {
		return nil, errors.Errorf("unterminated statement %q", code)
	}
	flush(len(code))
	return out, nil
}

// findAssign returns the index of the top-level assignment '=' or -1.
func findAssign(s string) int {
	var (
		depth int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '=':
			if depth != 0 || i == 0 {
				continue
			}
			if i+1 < len(s) && (s[i+1] == '=' || s[i+1] == '>') {
				i++
				continue
			}
			if strings.IndexByte("=!<>", s[i-1]) >= 0 {
				continue
			}
			return i
		}
	}
	return -1
}

// matchingOpen finds the '[' matching the trailing ']' of s.
func matchingOpen(s string) int {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ']':
			depth++
		case '[':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
