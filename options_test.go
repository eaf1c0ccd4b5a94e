package dot

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestOptions_WithDefaults(t *testing.T) {
	var nilOpts *Options
	got := nilOpts.withDefaults()
	require.Equal(t, DefaultArgName, got.ArgName)
	require.Equal(t, DefaultDelimiters, got.Delimiters)
	require.Contains(t, got.Encoders, "")
	require.NotNil(t, got.Definitions)

	store := NewStore()
	got = (&Options{ArgName: "data", Delimiters: Delimiters{Start: "<%"}, Definitions: store}).withDefaults()
	require.Equal(t, "data", got.ArgName)
	require.Equal(t, DefaultDelimiters, got.Delimiters, "a half set pair falls back")
	require.Same(t, store, got.Definitions)
}

const optionsYAML = `
argName: page
delimiters: {start: "<%", end: "%>"}
strip: true
selfContained: true
builtins: [url, " json "]
encoders:
  upper: upper(it)
definitions:
  title: {argName: t, body: "<h1><%=t%></h1>"}
  footer: {text: "<footer><%=page.year%></footer>"}
  plain: {body: "<%=page.name%>"}
`

func TestLoadOptions(t *testing.T) {
	fsys := fstest.MapFS{"conf/dot.yaml": {Data: []byte(optionsYAML)}}
	opts, err := LoadOptions(fsys, "conf/dot.yaml")
	require.NoError(t, err)

	require.Equal(t, "page", opts.ArgName)
	require.Equal(t, Delimiters{Start: "<%", End: "%>"}, opts.Delimiters)
	require.True(t, opts.Strip)
	require.True(t, opts.SelfContained)
	require.ElementsMatch(t, []string{"", "url", "json", "upper"}, keys(opts.Encoders))
	require.Equal(t, EncoderSource("upper(it)"), opts.Encoders["upper"])
	require.Equal(t, []string{"footer", "plain", "title"}, opts.Definitions.Names())

	title, _ := opts.Definitions.Lookup("title")
	require.Equal(t, "template", title.Kind())
	require.Equal(t, "t", title.ArgName)
	plain, _ := opts.Definitions.Lookup("plain")
	require.Equal(t, "page", plain.ArgName)
	footer, _ := opts.Definitions.Lookup("footer")
	require.Equal(t, "text", footer.Kind())

	tmpl, err := Compile("<%#def.title:page.name%>\n<%upper!page.name%> <%url!page.q%><%#def.footer%>", &opts)
	require.NoError(t, err)
	out, err := tmpl.Render(map[string]any{"name": "doc", "q": "a b", "year": 2024})
	require.NoError(t, err)
	require.Equal(t, "<h1>doc</h1>DOC a+b<footer>2024</footer>", out)
}

func keys(m map[string]Encoder) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestLoadOptions_Errors(t *testing.T) {
	_, err := LoadOptions(fstest.MapFS{}, "missing.yaml")
	require.ErrorContains(t, err, "dot: read missing.yaml")

	_, err = ParseOptions([]byte("builtins: [rot13]"))
	var refErr *UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	require.Equal(t, "encoder", refErr.Kind)
	require.Equal(t, "rot13", refErr.Name)

	_, err = ParseOptions([]byte("encoders: {bad: 'upper(it'}"))
	require.ErrorContains(t, err, `dot: encoder "bad"`)

	_, err = ParseOptions([]byte("delimiters: {start: '<%'}"))
	require.ErrorContains(t, err, "both start and end")

	_, err = ParseOptions([]byte("definitions: {x: {argName: '{}', body: y}}"))
	require.Error(t, err)

	_, err = ParseOptions([]byte("strip: [oops"))
	require.ErrorContains(t, err, "dot: parse options")
}
