// Package logger provides the process-wide structured logger built on log/slog.
//
// Handlers never hold a logger of their own; they ask for the one bound to
// the request:
//
//	log := logger.WithCtx(r.Context())
//	log.Warn("render degraded", "status", 500)
//	// → time=... level=WARN msg="render degraded" request_id=... status=500
package logger

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/shashiranjanraj/kashvi-ssr/config"
)

var L *slog.Logger

func init() {
	L = New(os.Stdout, config.IsProduction())
	slog.SetDefault(L)
}

// New builds a logger writing to w. Production gets JSON at INFO, everything
// else human-readable text at DEBUG.
func New(w io.Writer, production bool) *slog.Logger {
	if production {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Replace swaps the base logger and returns a func restoring the previous one.
func Replace(l *slog.Logger) (restore func()) {
	prev := L
	L = l
	slog.SetDefault(l)
	return func() {
		L = prev
		slog.SetDefault(prev)
	}
}

// Tee fans every record of the base logger out to extra handlers as well.
// The returned func detaches them again.
func Tee(extra ...slog.Handler) (restore func()) {
	hs := append([]slog.Handler{L.Handler()}, extra...)
	return Replace(slog.New(NewMultiHandler(hs...)))
}

// StdLog adapts the base logger for APIs that want a *log.Logger, such as
// http.Server.ErrorLog. Lines are logged at WARN.
func StdLog(component string) *log.Logger {
	return slog.NewLogLogger(L.Handler().WithAttrs([]slog.Attr{slog.String("component", component)}), slog.LevelWarn)
}

type ctxKey struct{}

// WithCtx returns the request-scoped logger stored by InjectLogger, or the
// base logger when none is present.
func WithCtx(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return L
}

// InjectLogger stores a request-scoped logger in ctx.
func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

func Info(msg string, args ...any) { L.Info(msg, args...) }

func Warn(msg string, args ...any) { L.Warn(msg, args...) }
