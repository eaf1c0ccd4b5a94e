package dot

import (
	"encoding/json"
	"net/url"
	"regexp"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
)

// Encoder transforms a value into output text for `name!expr` directives.
type Encoder interface {
	Encode(v any) (string, error)
}

// EncoderFunc is an opaque Go encoder. It cannot be inlined into a
// self-contained template.
type EncoderFunc func(v any) (string, error)

func (f EncoderFunc) Encode(v any) (string, error) { return f(v) }

// EncoderSource is an encoder written as an expression over `it`, for
// example `upper(it)`. It is compiled when a template first needs it.
type EncoderSource string

func (s EncoderSource) Encode(v any) (string, error) {
	e, err := s.compile()
	if err != nil {
		return "", err
	}
	return runEncoderSource(e, v)
}

func (s EncoderSource) compile() (*expression, error) {
	return compileExpression(string(s))
}

func runEncoderSource(e *expression, v any) (string, error) {
	out, err := e.eval(scope{"it": v})
	if err != nil {
		return "", err
	}
	return stringify(out), nil
}

var (
	htmlEntityRe = regexp.MustCompile(`&(?:#?\w+;)?|[<>"'/]`)
	htmlEntities = map[string]string{
		"&": "&#38;",
		"<": "&#60;",
		">": "&#62;",
		`"`: "&#34;",
		"'": "&#39;",
		"/": "&#47;",
	}
)

// EncodeHTML escapes markup characters. Existing entities are left as they
// are. Non-string values pass through stringified.
func EncodeHTML(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return stringify(v), nil
	}
	return htmlEntityRe.ReplaceAllStringFunc(s, func(m string) string {
		if r, ok := htmlEntities[m]; ok {
			return r
		}
		return m
	}), nil
}

// EncodeURL query-escapes the stringified value.
func EncodeURL(v any) (string, error) {
	return url.QueryEscape(stringify(v)), nil
}

// EncodeJSON marshals the value.
func EncodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "json encoder")
	}
	return string(raw), nil
}

var (
	sanitizeOnce   sync.Once
	sanitizePolicy *bluemonday.Policy
)

// EncodeSanitized keeps user generated markup but strips anything unsafe.
func EncodeSanitized(v any) (string, error) {
	sanitizeOnce.Do(func() {
		sanitizePolicy = bluemonday.UGCPolicy()
	})
	return sanitizePolicy.Sanitize(stringify(v)), nil
}

// builtinEncoder is one of the encoders shipped with the package. Unlike
// an EncoderFunc it may be used by self-contained templates.
type builtinEncoder struct {
	name string
	fn   EncoderFunc
}

func (b builtinEncoder) Encode(v any) (string, error) { return b.fn(v) }

var builtinEncoders = map[string]EncoderFunc{
	"html":     EncodeHTML,
	"url":      EncodeURL,
	"json":     EncodeJSON,
	"sanitize": EncodeSanitized,
}

// BuiltinEncoder returns the named built-in encoder.
func BuiltinEncoder(name string) (Encoder, bool) {
	fn, ok := builtinEncoders[name]
	if !ok {
		return nil, false
	}
	return builtinEncoder{name: name, fn: fn}, true
}

// DefaultEncoders returns the registry used when Options.Encoders is nil:
// the unnamed encoder escapes HTML.
func DefaultEncoders() map[string]Encoder {
	html, _ := BuiltinEncoder("html")
	return map[string]Encoder{"": html}
}
