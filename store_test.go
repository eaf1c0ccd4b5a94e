package dot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_FirstWins(t *testing.T) {
	s := NewStore()
	require.True(t, s.AddText("a", "one"))
	require.False(t, s.AddText("a", "two"))
	require.False(t, s.AddFunc("a", func(any) (any, error) { return nil, nil }))
	ok, err := s.AddTemplate("a", "it", "three")
	require.NoError(t, err)
	require.False(t, ok)

	d, found := s.Lookup("a")
	require.True(t, found)
	require.Equal(t, "one", d.Body)
	require.Equal(t, "text", d.Kind())

	_, err = s.AddTemplate("b", "{}", "x")
	require.Error(t, err)
	_, found = s.Lookup("b")
	require.False(t, found)
}

func TestStore_Clone(t *testing.T) {
	s := NewStore()
	_, err := s.AddTemplate("page", "p", "{{=p}}")
	require.NoError(t, err)
	_, err = Compile("{{#def.page:1}}", &Options{Definitions: s})
	require.NoError(t, err)
	orig, _ := s.Lookup("page")
	require.NotNil(t, s.template(orig))

	c := s.Clone()
	c.AddText("extra", "x")
	require.Equal(t, []string{"page"}, s.Names())
	require.Equal(t, []string{"extra", "page"}, c.Names())

	cp, _ := c.Lookup("page")
	require.NotSame(t, orig, cp)
	require.Nil(t, c.template(cp))
	require.Equal(t, "template", cp.Kind())
}

func TestStore_CompilesOnce(t *testing.T) {
	s := NewStore()
	_, err := s.AddTemplate("card", "c", "<i>{{=c}}</i>")
	require.NoError(t, err)
	d, _ := s.Lookup("card")

	opts := &Options{Definitions: s}
	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tmpl, err := Compile("{{#def.card:it}}", opts)
			if err == nil {
				_, err = tmpl.Render("x")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	first := s.template(d)
	require.NotNil(t, first)
	_, err = Compile("{{#def.card:2}}", opts)
	require.NoError(t, err)
	require.Same(t, first, s.template(d))
}

func TestStore_BeginCompile(t *testing.T) {
	s := NewStore()
	s.AddText("txt", "x")
	_, err := s.AddTemplate("tpl", "it", "y")
	require.NoError(t, err)

	txt, _ := s.Lookup("txt")
	require.False(t, s.beginCompile(txt))

	tpl, _ := s.Lookup("tpl")
	require.True(t, s.beginCompile(tpl))
	require.False(t, s.beginCompile(tpl), "already compiling")
	s.endCompile(tpl, nil)
	require.True(t, s.beginCompile(tpl), "a failed compile can be retried")
	s.endCompile(tpl, &Template{})
	require.False(t, s.beginCompile(tpl))
}
