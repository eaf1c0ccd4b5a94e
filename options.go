package dot

import (
	"io/fs"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Delimiters are the literal open and close markers of a directive.
type Delimiters struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// DefaultDelimiters are "{{" and "}}".
var DefaultDelimiters = Delimiters{Start: "{{", End: "}}"}

// escape turns both markers into regexp-safe literals.
func (d Delimiters) escape() (start, end string) {
	return regexp.QuoteMeta(d.Start), regexp.QuoteMeta(d.End)
}

// Options configure a compilation. Zero fields take their defaults.
type Options struct {
	// ArgName is the name the render argument is bound to. A "{a, b}" spec
	// destructures the argument into its fields instead.
	ArgName    string
	Delimiters Delimiters
	// Strip removes line breaks, indentation and /* */ comments.
	Strip bool
	// Encoders maps encoder names to encoders; "" is the default encoder.
	Encoders map[string]Encoder
	// Definitions is the store inline definitions are registered into and
	// references are resolved from. A fresh store is used when nil.
	Definitions *Store
	// SelfContained requires every referenced encoder to be inlinable.
	SelfContained bool
}

// DefaultArgName is the argument name used when Options.ArgName is empty.
const DefaultArgName = "it"

// DefaultOptions returns the options Compile uses for a nil *Options.
func DefaultOptions() Options {
	return Options{
		ArgName:    DefaultArgName,
		Delimiters: DefaultDelimiters,
		Encoders:   DefaultEncoders(),
	}
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.ArgName == "" {
		out.ArgName = DefaultArgName
	}
	if out.Delimiters.Start == "" || out.Delimiters.End == "" {
		out.Delimiters = DefaultDelimiters
	}
	if out.Encoders == nil {
		out.Encoders = DefaultEncoders()
	}
	if out.Definitions == nil {
		out.Definitions = NewStore()
	}
	return out
}

type definitionDoc struct {
	ArgName string `yaml:"argName"`
	Body    string `yaml:"body"`
	Text    string `yaml:"text"`
}

type optionsDoc struct {
	ArgName       string                   `yaml:"argName"`
	Delimiters    *Delimiters              `yaml:"delimiters"`
	Strip         bool                     `yaml:"strip"`
	SelfContained bool                     `yaml:"selfContained"`
	Encoders      map[string]string        `yaml:"encoders"`
	Builtins      []string                 `yaml:"builtins"`
	Definitions   map[string]definitionDoc `yaml:"definitions"`
}

// LoadOptions reads options from a YAML document in fsys.
//
//	argName: it
//	delimiters: {start: "<%", end: "%>"}
//	strip: true
//	builtins: [url, json]
//	encoders:
//	  upper: upper(it)
//	definitions:
//	  title: {argName: page, body: "<h1>{{=page.title}}</h1>"}
//	  footer: {text: "<footer>{{=it.year}}</footer>"}
func LoadOptions(fsys fs.FS, path string) (Options, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return Options{}, errors.Wrapf(err, "dot: read %s", path)
	}
	return ParseOptions(data)
}

// ParseOptions decodes a YAML options document.
func ParseOptions(data []byte) (Options, error) {
	var doc optionsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Options{}, errors.Wrap(err, "dot: parse options")
	}

	opts := DefaultOptions()
	if doc.ArgName != "" {
		opts.ArgName = doc.ArgName
	}
	if doc.Delimiters != nil {
		if doc.Delimiters.Start == "" || doc.Delimiters.End == "" {
			return Options{}, errors.New("dot: delimiters need both start and end")
		}
		opts.Delimiters = *doc.Delimiters
	}
	opts.Strip = doc.Strip
	opts.SelfContained = doc.SelfContained

	for _, name := range doc.Builtins {
		name = strings.TrimSpace(name)
		enc, ok := BuiltinEncoder(name)
		if !ok {
			return Options{}, &UnresolvedReferenceError{Kind: "encoder", Name: name}
		}
		opts.Encoders[name] = enc
	}
	for name, src := range doc.Encoders {
		if _, err := EncoderSource(src).compile(); err != nil {
			return Options{}, errors.Wrapf(err, "dot: encoder %q", name)
		}
		opts.Encoders[name] = EncoderSource(src)
	}

	opts.Definitions = NewStore()
	for name, def := range doc.Definitions {
		switch {
		case def.Text != "":
			opts.Definitions.AddText(name, def.Text)
		default:
			argName := def.ArgName
			if argName == "" {
				argName = opts.ArgName
			}
			if _, err := opts.Definitions.AddTemplate(name, argName, def.Body); err != nil {
				return Options{}, errors.Wrap(err, "dot")
			}
		}
	}
	return opts, nil
}
