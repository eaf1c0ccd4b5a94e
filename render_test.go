package dot_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dangdungcntt/go-dot"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestHTMLRender_Gin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := loadEngine(t, viewsFS())
	h := dot.NewHTMLRender(e)
	greeting := dot.MustCompile("<p>{{!it.name}}</p>", nil)

	r := gin.New()
	r.HTMLRender = h
	r.GET("/about", func(c *gin.Context) {
		c.HTML(http.StatusOK, "pages/about", gin.H{"who": "<you>"})
	})
	r.GET("/view", func(c *gin.Context) {
		h.HTML(c, dot.NewView("pages/about", map[string]any{"who": "view"}, http.StatusCreated))
	})
	r.GET("/inline", func(c *gin.Context) {
		c.Render(http.StatusAccepted, dot.HTML(greeting, gin.H{"name": "Tom & Jerry"}))
	})

	for _, c := range []struct {
		path   string
		status int
		body   string
	}{
		{"/about", http.StatusOK, "<em><you></em>"},
		{"/view", http.StatusCreated, "<em>view</em>"},
		{"/inline", http.StatusAccepted, "<p>Tom &#38; Jerry</p>"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, c.path, nil))
		require.Equal(t, c.status, w.Code, c.path)
		require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"), c.path)
		require.Equal(t, c.body, w.Body.String(), c.path)
	}
}

func TestTemplateRender(t *testing.T) {
	e := loadEngine(t, viewsFS())
	h := dot.NewHTMLRender(e)

	w := httptest.NewRecorder()
	w.Header().Set("Content-Type", "text/plain")
	require.NoError(t, h.Instance("pages/about", map[string]any{"who": 1}).Render(w))
	require.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	require.Equal(t, "<em>1</em>", w.Body.String())

	w = httptest.NewRecorder()
	require.EqualError(t, h.Instance("missing", nil).Render(w), "render missing: template missing not loaded")
	require.Zero(t, w.Body.Len())

	w = httptest.NewRecorder()
	err := dot.HTML(dot.MustCompile("{{%n=it}}", nil), "x").Render(w)
	var typeErr *dot.TypeAssertionError
	require.ErrorAs(t, err, &typeErr)
	require.ErrorContains(t, err, "render inline template")
	require.Zero(t, w.Body.Len())
}

func TestNewView(t *testing.T) {
	require.Equal(t, dot.View{Name: "pages/home", Data: 1, Status: http.StatusOK}, dot.NewView("pages/home", 1))
	require.Equal(t, http.StatusNotFound, dot.NewView("x", nil, http.StatusNotFound).Status)
}
