package dot_test

import (
	"testing"

	"github.com/dangdungcntt/go-dot"
	"github.com/stretchr/testify/require"
)

func testDef(t *testing.T, src string, store *dot.Store) {
	t.Helper()
	tmpl, err := dot.Compile(src, &dot.Options{Definitions: store})
	require.NoError(t, err)
	for _, c := range []struct {
		data map[string]any
		want string
	}{
		{map[string]any{"foo": "http"}, "<div>http</div>"},
		{map[string]any{"foo": "http://abc.com"}, "<div>http://abc.com</div>"},
		{map[string]any{}, "<div></div>"},
	} {
		out, err := tmpl.Render(c.data)
		require.NoError(t, err)
		require.Equal(t, c.want, out)
	}
}

func TestDefines_WithoutParameters(t *testing.T) {
	testDef(t, "{{##tmp:it:<div>{{=it.foo}}</div>#}}{{#def.tmp}}", nil)

	store := dot.NewStore()
	store.AddText("tmp", "<div>{{=it.foo}}</div>")
	testDef(t, "{{#def.tmp}}", store)
	testDef(t, "{{#def['tmp']}}", store)

	store = dot.NewStore()
	store.AddText("tmp", "<div>{{=it.a}}+{{=it.b}}</div>")
	require.Equal(t, "<div>1+2</div>", render(t, "{{#def.tmp:it.foo}}", &dot.Options{Definitions: store},
		map[string]any{"foo": map[string]any{"a": 1, "b": 2}}))
}

func TestDefines_WithParameters(t *testing.T) {
	testDef(t, "{{##tmp:{foo}:<div>{{=foo}}</div>#}}{{ var bar = it }}{{# def.tmp:bar }}", nil)

	testDef(t, "{{## tmp :data:{{=data.openTag}}{{=data.foo}}{{=data.closeTag}}#}}\n"+
		"{{# def.tmp:{\n"+
		"   foo: it.foo,\n"+
		"   openTag: \"<div>\",\n"+
		"   closeTag: \"</div>\"\n"+
		"} }}", nil)

	require.Equal(t, "3", render(t, "{{## sum=it.a + it.b#}}{{#def.sum:it}}", nil, map[string]any{"a": 1, "b": 2}))
	require.Equal(t, "123", render(t, "{{## tmp:foo:{{~foo:x}}{{=x}}{{~}}#}}{{# def.tmp:[1,2,3] }}", nil, nil))
}

func TestDefines_ParameterPaths(t *testing.T) {
	compileParam := func(param string) *dot.Template {
		return dot.MustCompile("{{##tmp:input:<div>{{=input.foo}}</div>#}}{{#def.tmp:"+param+"}}", nil)
	}

	for _, c := range []struct {
		param string
		data  any
		want  string
	}{
		{"it.bar", map[string]any{"bar": map[string]any{"foo": "B"}}, "<div>B</div>"},
		{"it['bar']", map[string]any{"bar": map[string]any{"foo": "C"}}, "<div>C</div>"},
		{"it['bar baz']", map[string]any{"bar baz": map[string]any{"foo": "D"}}, "<div>D</div>"},
		{"it[1]", []any{"not this", map[string]any{"foo": "E"}, "not this"}, "<div>E</div>"},
		{"it['bar baz'].qux[1]", map[string]any{"bar baz": map[string]any{"qux": []any{"not this", map[string]any{"foo": "F"}}}}, "<div>F</div>"},
	} {
		tmpl := compileParam(c.param)
		out, err := tmpl.Render(c.data)
		require.NoError(t, err, c.param)
		require.Equal(t, c.want, out, c.param)

		// a missing path segment fails while rendering, not while compiling
		_, err = tmpl.Render(map[string]any{})
		require.Error(t, err, c.param)
	}

	tmpl := compileParam("it")
	out, err := tmpl.Render(map[string]any{"foo": "A"})
	require.NoError(t, err)
	require.Equal(t, "<div>A</div>", out)
	out, err = tmpl.Render(map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "<div></div>", out)
}

func TestDefines_DestructuredParameter(t *testing.T) {
	tmpl := dot.MustCompile("{{##tmpl:{foo}:<div>{{=foo}}</div>#}}{{#def.tmpl:it.bar}}", nil)
	out, err := tmpl.Render(map[string]any{"bar": map[string]any{"foo": "B"}})
	require.NoError(t, err)
	require.Equal(t, "<div>B</div>", out)

	_, err = tmpl.Render(map[string]any{})
	require.ErrorContains(t, err, `cannot read "foo"`)
}

func TestDefines_FirstRegistrationWins(t *testing.T) {
	out := render(t, "{{##a:<b>first</b>#}}{{##a:<b>second</b>#}}{{#def.a}}", nil, nil)
	require.Equal(t, "<b>first</b>", out)

	store := dot.NewStore()
	store.AddText("a", "seeded")
	require.Equal(t, "seeded", render(t, "{{##a:inline#}}{{#def.a}}", &dot.Options{Definitions: store}, nil))
	require.Equal(t, "seeded", render(t, "{{##def.a:inline#}}{{#def.a}}", &dot.Options{Definitions: store}, nil))
}

func TestDefines_TextRebinding(t *testing.T) {
	store := dot.NewStore()
	store.AddText("item", "<b>{{=it}}</b>")
	store.AddText("pair", "{{=it}}-{{=item}}")
	opts := &dot.Options{Definitions: store}

	require.Equal(t, "<b>x</b>x", render(t, "{{#def.item:it.name}}{{=it.name}}", opts, map[string]any{"name": "x"}))
	// only the argument name is rebound, other identifiers keep their value
	require.Equal(t, "P-I", render(t, "{{ var item = 'I' }}{{#def.pair:'P'}}", opts, nil))
}

func TestDefines_NestedText(t *testing.T) {
	store := dot.NewStore()
	store.AddText("outer", "[{{#def.inner}}]")
	store.AddText("inner", "{{=it.v}}")
	require.Equal(t, "[7]", render(t, "{{#def.outer}}", &dot.Options{Definitions: store}, map[string]any{"v": 7}))

	store.AddText("self", "{{#def.self}}")
	_, err := dot.Compile("{{#def.self}}", &dot.Options{Definitions: store})
	var syntaxErr *dot.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
}

func TestDefines_Recursive(t *testing.T) {
	src := "{{##list:n:{{=n.v}}{{?n.next}},{{#def.list:n.next}}{{?}}#}}{{#def.list:it}}"
	data := map[string]any{"v": 1, "next": map[string]any{"v": 2, "next": map[string]any{"v": 3}}}
	require.Equal(t, "1,2,3", render(t, src, nil, data))

	tmpl := dot.MustCompile("{{##loop:x:{{#def.loop:x}}#}}{{#def.loop}}", nil)
	_, err := tmpl.Render(nil)
	require.ErrorContains(t, err, "deeper than")
}

func TestDefines_Unknown(t *testing.T) {
	tmpl, err := dot.Compile("{{#def.missing}}", nil)
	var refErr *dot.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	require.Equal(t, "definition", refErr.Kind)
	require.Equal(t, "missing", refErr.Name)
	require.Nil(t, tmpl)
}

func TestDefines_Func(t *testing.T) {
	store := dot.NewStore()
	store.AddFunc("shout", func(arg any) (any, error) {
		return arg.(string) + "!", nil
	})
	require.Equal(t, "hey!", render(t, "{{#def.shout:it.word}}", &dot.Options{Definitions: store}, map[string]any{"word": "hey"}))
}

func TestDefines_SharedStore(t *testing.T) {
	store := dot.NewStore()
	ok, err := store.AddTemplate("greet", "name", "Hi {{!name}}")
	require.NoError(t, err)
	require.True(t, ok)

	opts := &dot.Options{Definitions: store}
	a := dot.MustCompile("{{#def.greet:it.a}}", opts)
	b := dot.MustCompile("<p>{{#def.greet:it.b}}</p>", opts)

	out, err := a.Render(map[string]any{"a": "<Ann>"})
	require.NoError(t, err)
	require.Equal(t, "Hi &#60;Ann&#62;", out)
	out, err = b.Render(map[string]any{"b": "Bob"})
	require.NoError(t, err)
	require.Equal(t, "<p>Hi Bob</p>", out)

	require.Equal(t, []string{"", "def.greet"}, a.Dependencies())
	require.Equal(t, a.Dependencies(), b.Dependencies())

	// inline definitions land in the caller's store
	dot.MustCompile("{{##late:x#}}", opts)
	_, found := store.Lookup("late")
	require.True(t, found)
	require.Equal(t, []string{"greet", "late"}, store.Names())
}
