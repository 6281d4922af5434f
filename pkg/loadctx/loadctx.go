// Package loadctx carries the per-request load context: the values the
// server hands to every page render. It is built once per request by
// Middleware and passed explicitly from there on.
package loadctx

import (
	"context"
	"net/http"

	"github.com/shashiranjanraj/kashvi-ssr/pkg/reqid"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/session"
)

// Context is the load context for one request.
type Context struct {
	SayHello  func() string
	Session   *session.Session
	RequestID string
}

// Provider returns the fixed part of the load context. It is called once
// per request.
type Provider func() Context

type ctxKey struct{}

func noGreeting() string { return "" }

// Middleware builds a Context from provider plus the request's session and
// ID, and stores it in the request context. Install it after the session and
// request ID middleware.
func Middleware(provider Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lc := Context{}
			if provider != nil {
				lc = provider()
			}
			if lc.SayHello == nil {
				lc.SayHello = noGreeting
			}
			lc.Session = session.FromCtx(r.Context())
			lc.RequestID = reqid.FromCtx(r.Context())

			next.ServeHTTP(w, r.WithContext(WithValue(r.Context(), &lc)))
		})
	}
}

func WithValue(ctx context.Context, lc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, lc)
}

// FromCtx returns the load context, or an empty one with a fresh session.
func FromCtx(ctx context.Context) *Context {
	if lc, ok := ctx.Value(ctxKey{}).(*Context); ok {
		return lc
	}
	return &Context{
		SayHello: noGreeting,
		Session:  session.FromCtx(ctx),
	}
}
