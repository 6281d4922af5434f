package render_test

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kashvi-ssr/pkg/render"
)

var page = template.Must(template.New("page").Funcs(render.Funcs).Parse(
	`<!DOCTYPE html><html><body><h1>{{.}}</h1>{{suspense "reviews"}}</body></html>`,
))

// recorder notes callback order.
type recorder struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) callbacks(extra func(string)) render.Callbacks {
	hook := func(ev string) {
		r.add(ev)
		if extra != nil {
			extra(ev)
		}
	}
	return render.Callbacks{
		OnShellReady: func() { hook("shell") },
		OnAllReady:   func() { hook("all") },
		OnShellError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			hook("shell-error")
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			hook("error")
		},
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func gated(gate <-chan struct{}, html template.HTML) func(context.Context) (template.HTML, error) {
	return func(ctx context.Context) (template.HTML, error) {
		select {
		case <-gate:
			return html, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func waitDone(t *testing.T, s *render.Stream) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("render did not finish")
	}
}

func TestShellThenBoundaryStreams(t *testing.T) {
	gate := make(chan struct{})
	rec := &recorder{}
	shellReady := make(chan struct{})

	doc := render.Document{
		Shell: render.TemplateShell(page, "page", "Product"),
		Boundaries: []render.Boundary{
			{ID: "reviews", Fallback: "<p>Loading…</p>", Resolve: gated(gate, "<ul><li>Great</li></ul>")},
		},
	}
	s := render.RenderToPipeableStream(context.Background(), doc, rec.callbacks(func(ev string) {
		if ev == "shell" {
			close(shellReady)
		}
	}))

	<-shellReady
	assert.Equal(t, []string{"shell"}, rec.snapshot())

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.Pipe(pw))
	}()

	// First read is the shell with the fallback in place.
	buf := make([]byte, 4096)
	n, err := pr.Read(buf)
	require.NoError(t, err)
	head := string(buf[:n])
	assert.Contains(t, head, "<h1>Product</h1>")
	assert.Contains(t, head, `<div id="B:reviews"><p>Loading…</p></div>`)
	assert.NotContains(t, head, "</body>")

	close(gate)
	rest, err := io.ReadAll(pr)
	require.NoError(t, err)

	out := string(rest)
	assert.Contains(t, out, `<div hidden id="S:reviews"><ul><li>Great</li></ul></div>`)
	assert.Contains(t, out, `$RC("B:reviews","S:reviews")`)
	assert.True(t, strings.HasSuffix(out, "</body></html>"))

	waitDone(t, s)
	assert.Equal(t, []string{"shell", "all"}, rec.snapshot())
}

func TestPipeAfterAllReadyInlines(t *testing.T) {
	rec := &recorder{}
	all := make(chan struct{})
	doc := render.Document{
		Shell: render.TemplateShell(page, "page", "Bot"),
		Boundaries: []render.Boundary{
			{ID: "reviews", Fallback: "<p>Loading…</p>", Resolve: func(context.Context) (template.HTML, error) {
				return "<ul><li>Inline</li></ul>", nil
			}},
		},
	}
	s := render.RenderToPipeableStream(context.Background(), doc, rec.callbacks(func(ev string) {
		if ev == "all" {
			close(all)
		}
	}))
	<-all

	var buf bytes.Buffer
	require.NoError(t, s.Pipe(&buf))

	out := buf.String()
	assert.Contains(t, out, "<h1>Bot</h1><ul><li>Inline</li></ul></body></html>")
	assert.NotContains(t, out, "Loading")
	assert.NotContains(t, out, "$RC")
}

func TestShellErrorRejects(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{}
	s := render.RenderToPipeableStream(context.Background(), render.Document{
		Shell: func(io.Writer, render.SuspenseFunc) error { return boom },
	}, rec.callbacks(nil))

	waitDone(t, s)
	assert.Equal(t, []string{"shell-error"}, rec.snapshot())
	assert.ErrorIs(t, s.Pipe(io.Discard), boom)
}

func TestBoundaryErrorFallsBackToClient(t *testing.T) {
	rec := &recorder{}
	gate := make(chan struct{})
	doc := render.Document{
		Shell: render.TemplateShell(page, "page", "Err"),
		Boundaries: []render.Boundary{
			{ID: "reviews", Fallback: "<p>Loading…</p>", Resolve: func(ctx context.Context) (template.HTML, error) {
				<-gate
				return "", errors.New("reviews backend down")
			}},
		},
	}
	s := render.RenderToPipeableStream(context.Background(), doc, rec.callbacks(nil))

	pr, pw := io.Pipe()
	go func() { pw.CloseWithError(s.Pipe(pw)) }()

	buf := make([]byte, 4096)
	_, err := pr.Read(buf)
	require.NoError(t, err)

	close(gate)
	rest, err := io.ReadAll(pr)
	require.NoError(t, err)

	assert.Contains(t, string(rest), `$RX("B:reviews")`)
	waitDone(t, s)
	assert.Equal(t, []string{"shell", "error", "all"}, rec.snapshot())
}

func TestAbortFailsPendingBoundariesOnce(t *testing.T) {
	rec := &recorder{}
	shellReady := make(chan struct{})
	never := make(chan struct{})
	doc := render.Document{
		Shell: render.TemplateShell(page, "page", "Slow"),
		Boundaries: []render.Boundary{
			{ID: "reviews", Fallback: "<p>Loading…</p>", Resolve: func(context.Context) (template.HTML, error) {
				<-never // ignores cancellation on purpose
				return "", nil
			}},
		},
	}
	s := render.RenderToPipeableStream(context.Background(), doc, rec.callbacks(func(ev string) {
		if ev == "shell" {
			close(shellReady)
		}
	}))
	<-shellReady

	assert.True(t, s.Abort())
	assert.False(t, s.Abort())
	waitDone(t, s)
	close(never)

	var buf bytes.Buffer
	require.NoError(t, s.Pipe(&buf))
	assert.Contains(t, buf.String(), `data-render="client"`)
	assert.True(t, s.Aborted())

	assert.Equal(t, []string{"shell", "error", "all"}, rec.snapshot())
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], render.ErrAborted)
}

func TestAbortBeforeShellIsShellError(t *testing.T) {
	rec := &recorder{}
	block := make(chan struct{})
	s := render.RenderToPipeableStream(context.Background(), render.Document{
		Shell: func(w io.Writer, _ render.SuspenseFunc) error {
			<-block
			_, err := io.WriteString(w, "<html></html>")
			return err
		},
	}, rec.callbacks(nil))

	assert.True(t, s.Abort())
	waitDone(t, s)
	close(block)

	assert.ErrorIs(t, s.Pipe(io.Discard), render.ErrAborted)
	assert.Equal(t, []string{"shell-error"}, rec.snapshot())
}

func TestParentContextCancelAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	shellReady := make(chan struct{})
	rec := &recorder{}
	s := render.RenderToPipeableStream(ctx, render.Document{
		Shell: render.TemplateShell(page, "page", "Gone"),
		Boundaries: []render.Boundary{
			{ID: "reviews", Resolve: gated(make(chan struct{}), "")},
		},
	}, rec.callbacks(func(ev string) {
		if ev == "shell" {
			close(shellReady)
		}
	}))
	<-shellReady

	cancel()
	waitDone(t, s)
	assert.True(t, s.Aborted())
}

func TestCancelledParentAbortsBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 100; i++ {
		rec := &recorder{}
		s := render.RenderToPipeableStream(ctx, render.Document{
			Shell: render.TemplateShell(page, "page", "Gone"),
			Boundaries: []render.Boundary{
				{ID: "reviews", Resolve: gated(make(chan struct{}), "")},
			},
		}, rec.callbacks(nil))
		waitDone(t, s)
		assert.True(t, s.Aborted())
	}
}

func TestErrorCallbackRunsBeforePipeCompletes(t *testing.T) {
	for i := 0; i < 200; i++ {
		var mu sync.Mutex
		failed := false
		s := render.RenderToPipeableStream(context.Background(), render.Document{
			Shell: render.TemplateShell(page, "page", "Shop"),
			Boundaries: []render.Boundary{{
				ID: "reviews",
				Resolve: func(context.Context) (template.HTML, error) {
					time.Sleep(time.Millisecond)
					return "", errors.New("reviews down")
				},
			}},
		}, render.Callbacks{
			OnError: func(error) {
				mu.Lock()
				failed = true
				mu.Unlock()
			},
		})

		var buf bytes.Buffer
		require.NoError(t, s.Pipe(&buf))

		mu.Lock()
		seen := failed
		mu.Unlock()
		require.True(t, seen, "document completed before the error was reported")
	}
}

func TestInvalidBoundaryID(t *testing.T) {
	rec := &recorder{}
	s := render.RenderToPipeableStream(context.Background(), render.Document{
		Shell:      render.TemplateShell(page, "page", "x"),
		Boundaries: []render.Boundary{{ID: `"><script>`}},
	}, rec.callbacks(nil))

	waitDone(t, s)
	assert.Equal(t, []string{"shell-error"}, rec.snapshot())
}

func TestPipeTwice(t *testing.T) {
	s := render.RenderToPipeableStream(context.Background(), render.Document{
		Shell: render.TemplateShell(page, "page", "x"),
	}, render.Callbacks{})

	require.NoError(t, s.Pipe(io.Discard))
	assert.ErrorIs(t, s.Pipe(io.Discard), render.ErrPiped)
}

func TestConcurrencyLimit(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	resolve := func(context.Context) (template.HTML, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return "ok", nil
	}

	var bs []render.Boundary
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		bs = append(bs, render.Boundary{ID: id, Resolve: resolve})
	}
	s := render.RenderToPipeableStream(context.Background(), render.Document{
		Shell:      render.TemplateShell(page, "page", "x"),
		Boundaries: bs,
	}, render.Callbacks{}, render.WithConcurrency(2))

	waitDone(t, s)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}
