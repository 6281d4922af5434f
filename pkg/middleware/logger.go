package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/shashiranjanraj/kashvi-ssr/pkg/logger"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/reqid"
)

// statusWriter captures the status code while keeping the wrapped writer's
// streaming capabilities reachable through Unwrap.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (rw *statusWriter) WriteHeader(code int) {
	if !rw.wrote {
		rw.statusCode = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusWriter) Write(b []byte) (int, error) {
	rw.wrote = true
	return rw.ResponseWriter.Write(b)
}

func (rw *statusWriter) Flush() {
	rw.wrote = true
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// SkipFunc reports whether a request should be left out of the access log.
type SkipFunc func(r *http.Request) bool

// SkipHealthchecks skips requests to path or requests carrying header
// with any non-empty value.
func SkipHealthchecks(path, header string) SkipFunc {
	return func(r *http.Request) bool {
		if r.URL.Path == path {
			return true
		}
		return header != "" && strings.TrimSpace(r.Header.Get(header)) != ""
	}
}

// AccessLog writes one line per request with method, path, status, duration
// and client IP. Requests matched by skip get no line.
//
// The request-scoped logger is injected regardless of skip, so handlers can
// still log through logger.WithCtx.
//
//	r.Use(reqid.Middleware())
//	r.Use(middleware.AccessLog(middleware.SkipHealthchecks("/healthcheck", "x-from-healthcheck")))
func AccessLog(skip SkipFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := logger.L.With("request_id", reqid.FromCtx(r.Context()))
			r = r.WithContext(logger.InjectLogger(r.Context(), reqLog))

			if skip != nil && skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			rw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				// A panicking handler still gets its line; the panic goes on
				// to Recovery.
				rec := recover()
				status := rw.statusCode
				if rec != nil && !rw.wrote {
					status = http.StatusInternalServerError
				}
				reqLog.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"proto", r.Proto,
					"status", status,
					"duration", time.Since(start).String(),
					"ip", r.RemoteAddr,
				)
				if rec != nil {
					panic(rec)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}
