package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kashvi-ssr/pkg/cache"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/session"
)

func withStore(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	cache.Use(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })
	return mr
}

func TestMiddlewareWithoutStoreCreatesSession(t *testing.T) {
	var sess *session.Session
	h := session.Middleware(session.DefaultOptions())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess = session.FromCtx(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "kashvi_session", Value: "stale"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, sess)
	assert.True(t, sess.IsNew())
	assert.NotEqual(t, "stale", sess.ID())
	assert.Len(t, sess.ID(), 64)
}

func TestSaveSetsSecureCookie(t *testing.T) {
	mr := withStore(t)
	sess := session.New(session.DefaultOptions())
	sess.Set("theme", "dark")

	rec := httptest.NewRecorder()
	require.NoError(t, sess.Save(context.Background(), rec))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sess.ID(), cookies[0].Value)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)

	assert.True(t, mr.Exists("kashvi:session:"+sess.ID()))

	// Unchanged sessions don't write again.
	rec = httptest.NewRecorder()
	require.NoError(t, sess.Save(context.Background(), rec))
	assert.Empty(t, rec.Result().Cookies())
}

func TestFlash(t *testing.T) {
	sess := session.New(session.DefaultOptions())
	sess.Flash("notice", "saved")

	v, ok := sess.GetFlash("notice")
	assert.True(t, ok)
	assert.Equal(t, "saved", v)

	_, ok = sess.GetFlash("notice")
	assert.False(t, ok)
}

func TestFromCtxFallback(t *testing.T) {
	s := session.FromCtx(context.Background())
	assert.NotEmpty(t, s.ID())

	str, ok := s.GetString("missing")
	assert.False(t, ok)
	assert.Empty(t, str)
}

func TestSaveWithoutStoreSetsNoCookie(t *testing.T) {
	cache.Use(nil)
	sess := session.New(session.DefaultOptions())
	sess.Set("theme", "dark")

	rec := httptest.NewRecorder()
	require.NoError(t, sess.Save(context.Background(), rec))
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoadRoundTrip(t *testing.T) {
	withStore(t)
	ctx := context.Background()

	first := session.New(session.DefaultOptions())
	first.Set("theme", "dark")
	require.NoError(t, first.Save(ctx, httptest.NewRecorder()))

	again := session.Load(ctx, first.ID(), session.DefaultOptions())
	assert.False(t, again.IsNew())
	assert.Equal(t, first.ID(), again.ID())
	theme, ok := again.GetString("theme")
	assert.True(t, ok)
	assert.Equal(t, "dark", theme)
}
