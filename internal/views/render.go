package views

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"lower": strings.ToLower,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "N/A"
		}
		return t.Format("Jan 2, 2006 15:04")
	},
	"alerts": func(n *int) string {
		if n == nil {
			return "-"
		}
		return fmt.Sprint(*n)
	},
}

// Page is the data of a full dashboard page.
type Page struct {
	Tabs   []Tab
	Active Tab
	Email  string
	Notice string
	Body   any
}

// LoginPage is the data of the sign-in form.
type LoginPage struct {
	Email string
	Error string
}

// Renderer executes the embedded page templates.
type Renderer struct {
	pages map[string]*template.Template
	login *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("views: parse layout: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{"placeholder", "overview", "monitored-urls", "topics", "reports", "workflows"} {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("views: clone layout: %w", err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("views: parse %s: %w", name, err)
		}
		r.pages[name] = clone
	}

	r.login, err = template.New("login.html").Funcs(funcs).ParseFS(templateFS, "templates/login.html")
	if err != nil {
		return nil, fmt.Errorf("views: parse login: %w", err)
	}
	return r, nil
}

// Render writes the page of tab t.
func (r *Renderer) Render(w io.Writer, t Tab, in Input) error {
	body := Model(t, in)
	name := t.Slug
	if _, ok := body.(Placeholder); ok {
		name = "placeholder"
	}
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("views: no template for %q", name)
	}
	return tmpl.ExecuteTemplate(w, "layout", Page{
		Tabs:   Tabs,
		Active: t,
		Email:  in.Email,
		Notice: in.Notice,
		Body:   body,
	})
}

// RenderLogin writes the sign-in page.
func (r *Renderer) RenderLogin(w io.Writer, p LoginPage) error {
	return r.login.Execute(w, p)
}
