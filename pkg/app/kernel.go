package app

// pkg/app/kernel.go - builds an http.Handler from the Application config.
// Project code reaches it only through the Application builder methods.

import (
	"io"
	"net/http"
	"time"

	"github.com/shashiranjanraj/kashvi-ssr/config"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/entry"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/loadctx"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/metrics"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/middleware"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/reqid"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/router"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/session"
)

// Handler builds the application's HTTP handler.
func (a *Application) Handler() http.Handler {
	return buildRouter(a).Handler()
}

func buildRouter(a *Application) *router.Router {
	r := router.New()
	skip := middleware.SkipHealthchecks(config.HealthcheckPath(), config.HealthcheckHeader())

	// Global middleware stack (outermost → innermost):
	//  1. Prometheus metrics - outermost for accurate total latency
	//  2. Recovery          - catches panics before they kill the goroutine
	//  3. Request ID        - inject unique ID before anything logs
	//  4. X-Powered-By      - stripped from every response
	//  5. Access log        - one line per request, health checks exempt
	//  6. Rate limiter      - off unless RATE_LIMIT is set
	//  7. Session           - load/create session cookie via Redis
	//  8. Load context      - sayHello + session for the renderer
	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.HidePoweredBy)
	r.Use(middleware.AccessLog(skip))
	r.Use(middleware.RateLimit(config.RateLimit(), time.Minute, skip))
	r.Use(session.Middleware(session.DefaultOptions()))
	r.Use(loadctx.Middleware(a.provider))

	r.HandleFunc(config.HealthcheckPath(), healthcheck)
	r.HandleFunc("/metrics", metrics.Handler())

	opts := a.entryOpts
	if opts.AbortDelay <= 0 {
		opts.AbortDelay = config.AbortDelay()
	}
	d := entry.New(opts)
	for _, p := range a.pages {
		r.Get(p.path, p.name, d.Handler(p.fn).ServeHTTP)
	}

	for _, fn := range a.routesFns {
		fn(r)
	}

	return r
}

func healthcheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}
