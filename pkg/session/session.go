// Package session provides cookie-identified sessions stored through pkg/cache.
//
//	r.Use(session.Middleware(session.DefaultOptions()))
//
//	sess := session.FromCtx(r.Context())
//	sess.Set("theme", "dark")
//	_ = sess.Save(r.Context(), w) // before the response is flushed
//
// Sessions only persist while pkg/cache has a Redis client; otherwise they
// live for a single request.
//
// A session is safe to read from the boundary goroutines of a streaming
// render, but Save must run before headers are sent.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shashiranjanraj/kashvi-ssr/pkg/cache"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/metrics"
)

const flashPrefix = "_flash_"

// Options configures session behaviour.
type Options struct {
	CookieName string
	TTL        time.Duration
	HTTPOnly   bool
	Secure     bool
	SameSite   http.SameSite
	Path       string
}

// DefaultOptions suits the HTTPS-only server: cookies are always Secure.
func DefaultOptions() Options {
	return Options{
		CookieName: "kashvi_session",
		TTL:        2 * time.Hour,
		HTTPOnly:   true,
		Secure:     true,
		SameSite:   http.SameSiteLaxMode,
		Path:       "/",
	}
}

type ctxKey struct{}

// Session is the per-request session handle.
type Session struct {
	mu      sync.RWMutex
	id      string
	data    map[string]interface{}
	opts    Options
	changed bool
	isNew   bool
}

func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func storeKey(id string) string { return "kashvi:session:" + id }

// New returns an empty, unsaved session.
func New(opts Options) *Session {
	id, _ := newID()
	return &Session{id: id, data: map[string]interface{}{}, opts: opts, isNew: true}
}

// Load fetches the session with id, or a fresh one when the store has none.
func Load(ctx context.Context, id string, opts Options) *Session {
	var data map[string]interface{}
	if id != "" && cache.Get(ctx, storeKey(id), &data) {
		metrics.CacheHits.WithLabelValues("session").Inc()
		return &Session{id: id, data: data, opts: opts}
	}
	metrics.CacheMisses.WithLabelValues("session").Inc()
	return New(opts)
}

func (s *Session) ID() string { return s.id }

// IsNew reports whether the session did not exist in the store.
func (s *Session) IsNew() bool { return s.isNew }

func (s *Session) Set(key string, value interface{}) {
	s.mu.Lock()
	s.data[key] = value
	s.changed = true
	s.mu.Unlock()
}

func (s *Session) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Session) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Flash stores a value that disappears after the next GetFlash.
func (s *Session) Flash(key string, value interface{}) {
	s.Set(flashPrefix+key, value)
}

// GetFlash returns and removes a flash value.
func (s *Session) GetFlash(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[flashPrefix+key]
	if ok {
		delete(s.data, flashPrefix+key)
		s.changed = true
	}
	return v, ok
}

// Save persists a changed session and sets its cookie on w. Without a
// store there is nothing for the cookie to point at, so none is set.
func (s *Session) Save(ctx context.Context, w http.ResponseWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.changed || !cache.Enabled() {
		return nil
	}

	if err := cache.Set(ctx, storeKey(s.id), s.data, s.opts.TTL); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    s.id,
		Path:     s.opts.Path,
		MaxAge:   int(s.opts.TTL.Seconds()),
		HttpOnly: s.opts.HTTPOnly,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	})

	s.changed = false
	s.isNew = false
	return nil
}

// Middleware loads or creates the session and stores it in the request context.
func Middleware(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cookie, err := r.Cookie(opts.CookieName); err == nil {
				id = cookie.Value
			}
			sess := Load(r.Context(), id, opts)
			next.ServeHTTP(w, r.WithContext(WithValue(r.Context(), sess)))
		})
	}
}

func WithValue(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromCtx returns the request's session, or a fresh unsaved one.
func FromCtx(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok {
		return s
	}
	return New(DefaultOptions())
}
