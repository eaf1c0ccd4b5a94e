package dot

import "fmt"

// SyntaxError reports a malformed directive.
type SyntaxError struct {
	Directive string
	Msg       string
	Err       error
}

func (e *SyntaxError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Directive == "" {
		return "syntax error: " + msg
	}
	return fmt.Sprintf("syntax error in %q: %s", e.Directive, msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// UnresolvedReferenceError reports an encoder or definition that is not registered.
type UnresolvedReferenceError struct {
	Kind string // "encoder" or "definition"
	Name string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unknown %s %q: not found", e.Kind, e.Name)
}

// EncoderShapeError is returned when an encoder has to be inlined but is an
// opaque Go function.
type EncoderShapeError struct {
	Name string
}

func (e *EncoderShapeError) Error() string {
	return fmt.Sprintf("encoder %q is a Go function and cannot be inlined, supply it as an EncoderSource", e.Name)
}

// TypeAssertionError is raised at render time by typed interpolation.
type TypeAssertionError struct {
	Expected string
	Actual   string
}

func (e *TypeAssertionError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

func syntaxErrorf(directive, format string, args ...any) error {
	return &SyntaxError{Directive: directive, Msg: fmt.Sprintf(format, args...)}
}
