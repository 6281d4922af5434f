// Package pages holds the project's server-rendered pages.
package pages

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/shashiranjanraj/kashvi-ssr/app/hello"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/app"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/loadctx"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/render"
)

var layout = template.Must(template.New("pages").Funcs(render.Funcs).Parse(`
{{define "head"}}<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>{{.Title}}</title></head><body>{{end}}
{{define "foot"}}</body></html>{{end}}

{{define "home"}}{{template "head" .}}<main>
<h1>{{.Title}}</h1>
<section>{{suspense "greeting"}}</section>
<section>{{suspense "visits"}}</section>
</main>{{template "foot" .}}{{end}}

{{define "about"}}{{template "head" .}}<main>
<h1>{{.Title}}</h1>
<p>Streamed to browsers, complete for crawlers.</p>
</main>{{template "foot" .}}{{end}}
`))

type view struct {
	Title string
}

// GreetingDelay simulates a slow data source behind the greeting boundary.
var GreetingDelay = 150 * time.Millisecond

// Provider is the load context every request gets.
func Provider() loadctx.Context {
	return loadctx.Context{SayHello: hello.SayHello}
}

// Register mounts the pages and the load context on a.
func Register(a *app.Application) *app.Application {
	return a.
		LoadContext(Provider).
		Page("/", "home", Home).
		Page("/about", "about", About)
}

// Home streams a greeting from the load context and the session visit count.
func Home(_ *http.Request, lc *loadctx.Context) (render.Document, int, error) {
	visits := 1
	if n, ok := lc.Session.Get("visits"); ok {
		// Values round-trip through JSON in the store.
		switch v := n.(type) {
		case int:
			visits = v + 1
		case float64:
			visits = int(v) + 1
		}
	}
	lc.Session.Set("visits", visits)

	doc := render.Document{
		Shell: render.TemplateShell(layout, "home", view{Title: "Kashvi SSR"}),
		Boundaries: []render.Boundary{
			{
				ID:       "greeting",
				Fallback: "<p>Loading greeting…</p>",
				Resolve: func(ctx context.Context) (template.HTML, error) {
					select {
					case <-time.After(GreetingDelay):
					case <-ctx.Done():
						return "", ctx.Err()
					}
					return template.HTML("<p>" + template.HTMLEscapeString(lc.SayHello()) + "</p>"), nil
				},
			},
			{
				ID:       "visits",
				Fallback: "<p>…</p>",
				Resolve: func(context.Context) (template.HTML, error) {
					return template.HTML(fmt.Sprintf("<p>Visit #%d</p>", visits)), nil
				},
			},
		},
	}
	return doc, http.StatusOK, nil
}

// About has no deferred content.
func About(*http.Request, *loadctx.Context) (render.Document, int, error) {
	return render.Document{
		Shell: render.TemplateShell(layout, "about", view{Title: "About"}),
	}, http.StatusOK, nil
}
