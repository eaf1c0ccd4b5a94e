package dot

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/pkg/errors"
)

var htmlContentType = []string{"text/html; charset=utf-8"}

// View is a loaded template together with its data and response status.
type View struct {
	Name   string
	Data   any
	Status int
}

// NewView returns a View; status defaults to 200.
func NewView(name string, data any, status ...int) View {
	v := View{Name: name, Data: data, Status: http.StatusOK}
	if len(status) > 0 {
		v.Status = status[0]
	}
	return v
}

var _ render.HTMLRender = (*HTMLRender)(nil)

// HTMLRender lets gin render templates loaded by an Engine:
//
//	router.HTMLRender = dot.NewHTMLRender(engine)
type HTMLRender struct {
	e *Engine
}

func NewHTMLRender(e *Engine) *HTMLRender {
	return &HTMLRender{e: e}
}

// Instance is called by gin for c.HTML.
func (h *HTMLRender) Instance(name string, data any) render.Render {
	return &TemplateRender{
		name: name,
		exec: func(w io.Writer) error { return h.e.Render(w, name, data) },
	}
}

// HTML renders v on c.
func (h *HTMLRender) HTML(c *gin.Context, v View) {
	status := v.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.Render(status, h.Instance(v.Name, v.Data))
}

// HTML renders a compiled template as a gin response, for templates that
// are not loaded through an Engine:
//
//	c.Render(http.StatusOK, dot.HTML(tmpl, data))
func HTML(t *Template, data any) render.Render {
	return &TemplateRender{
		name: "inline template",
		exec: func(w io.Writer) error { return t.Execute(w, data) },
	}
}

// TemplateRender is the render.Render of one template execution. The body
// is buffered by the template, so a failed render writes headers only.
type TemplateRender struct {
	name string
	exec func(w io.Writer) error
}

func (r *TemplateRender) Render(w http.ResponseWriter) error {
	r.WriteContentType(w)
	return errors.Wrapf(r.exec(w), "render %s", r.name)
}

func (r *TemplateRender) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if len(header["Content-Type"]) == 0 {
		header["Content-Type"] = htmlContentType
	}
}
