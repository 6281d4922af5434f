package app_test

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kashvi-ssr/internal/server"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/app"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/loadctx"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/logger"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/render"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/router"
)

func greetPage(_ *http.Request, lc *loadctx.Context) (render.Document, int, error) {
	return render.Document{
		Shell: func(w io.Writer, suspense render.SuspenseFunc) error {
			_, err := io.WriteString(w, "<html><body>"+string(suspense("hi"))+"</body></html>")
			return err
		},
		Boundaries: []render.Boundary{{
			ID: "hi",
			Resolve: func(context.Context) (template.HTML, error) {
				return template.HTML(lc.SayHello()), nil
			},
		}},
	}, 0, nil
}

func newApp() *app.Application {
	return app.New().
		LoadContext(func() loadctx.Context {
			return loadctx.Context{SayHello: func() string { return "hello there" }}
		}).
		Page("/", "home", greetPage).
		Routes(func(r *router.Router) {
			r.Get("/powered", "powered", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-Powered-By", "Kashvi")
				_, _ = io.WriteString(w, "ok")
			})
			r.Get("/boom", "boom", func(http.ResponseWriter, *http.Request) {
				panic("handler exploded")
			})
		})
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	t.Cleanup(logger.Replace(logger.New(&buf, false)))
	return &buf
}

func do(h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPageGetsLoadContext(t *testing.T) {
	captureLogs(t)
	rec := do(newApp().Handler(), "/", http.Header{"User-Agent": {"Mozilla/5.0"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "hello there")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthcheckIsNotLogged(t *testing.T) {
	logs := captureLogs(t)
	h := newApp().Handler()

	rec := do(h, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	do(h, "/", http.Header{"X-From-Healthcheck": {"1"}, "User-Agent": {"Mozilla/5.0"}})
	assert.NotContains(t, logs.String(), "msg=request")

	do(h, "/", http.Header{"User-Agent": {"Mozilla/5.0"}})
	assert.Equal(t, 1, strings.Count(logs.String(), "msg=request"))
}

func TestPanicIsLoggedOnce(t *testing.T) {
	logs := captureLogs(t)
	rec := do(newApp().Handler(), "/boom", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, strings.Count(logs.String(), "msg=request"))
	assert.Contains(t, logs.String(), "status=500")
}

func TestPoweredByRemoved(t *testing.T) {
	captureLogs(t)
	rec := do(newApp().Handler(), "/powered", nil)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Empty(t, rec.Header().Get("X-Powered-By"))
}

func TestMetricsEndpoint(t *testing.T) {
	captureLogs(t)
	h := newApp().Handler()
	do(h, "/", http.Header{"User-Agent": {"Mozilla/5.0"}})

	rec := do(h, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kashvi_render_total")
}

func TestRouteList(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, newApp().Execute(context.Background(), []string{"route:list"}, &out))

	s := out.String()
	assert.Contains(t, s, "METHOD")
	assert.Regexp(t, `GET\s+/\s+home`, s)
	assert.Regexp(t, `GET\s+/powered\s+powered`, s)
	assert.Regexp(t, `GET\s+/boom\s+boom`, s)
	assert.Regexp(t, `ANY\s+/healthcheck`, s)
	assert.Regexp(t, `ANY\s+/metrics`, s)
}

func TestUnknownCommand(t *testing.T) {
	err := app.New().Execute(context.Background(), []string{"migrate"}, io.Discard)
	assert.ErrorIs(t, err, app.ErrUnknownCommand)
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, app.New().Execute(context.Background(), []string{"help"}, &out))
	assert.Contains(t, out.String(), "cert:check")
}

func TestServeFailsWithoutCertificate(t *testing.T) {
	captureLogs(t)
	// The default certificate paths do not exist under pkg/app.
	err := app.New().Execute(context.Background(), []string{"serve"}, io.Discard)
	assert.ErrorIs(t, err, server.ErrCertificate)

	err = app.New().Execute(context.Background(), []string{"cert:check"}, io.Discard)
	assert.ErrorIs(t, err, server.ErrCertificate)
}
