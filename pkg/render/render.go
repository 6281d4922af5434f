// Package render streams HTML documents incrementally.
//
// A Document is a synchronous shell plus deferred boundaries. The shell is
// rendered first and reported through OnShellReady; each boundary then
// resolves concurrently and its markup is streamed after the shell as it
// becomes available, swapped into place by a small inline script. Once every
// boundary has settled OnAllReady fires.
//
// Callbacks are serialised and always arrive in lifecycle order:
// OnShellReady (or OnShellError), zero or more OnError, then OnAllReady.
// Callbacks must not block and must not call Abort; calling Pipe from a new
// goroutine is the expected use.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrAborted is reported for work cut short by Abort or by the parent
	// context ending.
	ErrAborted = errors.New("render: aborted")

	// ErrPiped is returned when Pipe is called more than once.
	ErrPiped = errors.New("render: stream already piped")
)

const defaultConcurrency = 8

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Callbacks are the renderer lifecycle notifications. Nil callbacks are skipped.
type Callbacks struct {
	OnShellReady func()
	OnAllReady   func()
	OnShellError func(err error)
	OnError      func(err error)
}

// SuspenseFunc returns the placeholder markup for boundary id.
type SuspenseFunc func(id string) template.HTML

// ShellFunc writes the synchronous skeleton of a document. It calls suspense
// wherever a boundary should appear.
type ShellFunc func(w io.Writer, suspense SuspenseFunc) error

// Boundary is a region of the document that resolves after the shell.
type Boundary struct {
	ID       string
	Fallback template.HTML
	Resolve  func(ctx context.Context) (template.HTML, error)
}

// Document is what gets rendered.
type Document struct {
	Shell      ShellFunc
	Boundaries []Boundary
}

// Option configures a Stream.
type Option func(*Stream)

// WithConcurrency bounds how many boundaries resolve at once.
func WithConcurrency(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.limit = n
		}
	}
}

type settled struct {
	html template.HTML
	err  error
}

// Stream is one in-flight render.
type Stream struct {
	doc   Document
	cb    Callbacks
	limit int

	ctx        context.Context
	cancel     context.CancelFunc
	stopParent func() bool

	ids       []string
	fallbacks map[string]template.HTML

	// cbMu serialises state transitions together with their callbacks.
	cbMu      sync.Mutex
	shellOnce sync.Once

	mu        sync.Mutex
	shell     []byte
	shellErr  error
	results   map[string]settled
	order     []string
	remaining int
	// complete is set once the last boundary's callbacks have run; Pipe
	// writes the tail only after that.
	complete bool

	shellDone chan struct{}
	notify    chan struct{}
	done      chan struct{}
	doneOnce  sync.Once

	aborted atomic.Bool
	piped   atomic.Bool
}

// RenderToPipeableStream starts rendering doc in the background and returns
// immediately. Cancelling ctx aborts the render.
func RenderToPipeableStream(ctx context.Context, doc Document, cb Callbacks, opts ...Option) *Stream {
	s := &Stream{
		doc:       doc,
		cb:        cb,
		limit:     defaultConcurrency,
		fallbacks: make(map[string]template.HTML, len(doc.Boundaries)),
		results:   make(map[string]settled, len(doc.Boundaries)),
		shellDone: make(chan struct{}),
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, b := range doc.Boundaries {
		if _, dup := s.fallbacks[b.ID]; dup {
			continue
		}
		s.fallbacks[b.ID] = b.Fallback
		s.ids = append(s.ids, b.ID)
	}
	s.remaining = len(s.ids)
	s.complete = s.remaining == 0

	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.run()

	// A parent that is already done aborts right away, possibly finishing
	// the stream before stopParent is stored.
	stop := context.AfterFunc(ctx, func() { s.Abort() })
	s.mu.Lock()
	s.stopParent = stop
	s.mu.Unlock()
	select {
	case <-s.done:
		stop()
	default:
	}
	return s
}

// Done is closed once the render has nothing left to produce: every boundary
// has settled, or the shell failed.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Aborted reports whether Abort took effect.
func (s *Stream) Aborted() bool { return s.aborted.Load() }

func (s *Stream) run() {
	var buf bytes.Buffer
	err := s.validate()
	if err == nil {
		err = s.doc.Shell(&buf, s.suspense)
	}
	if err == nil && s.ctx.Err() != nil {
		err = ErrAborted
	}

	s.cbMu.Lock()
	claimed := false
	s.shellOnce.Do(func() {
		claimed = true
		s.mu.Lock()
		if err != nil {
			s.shellErr = err
		} else {
			s.shell = buf.Bytes()
		}
		s.mu.Unlock()
		close(s.shellDone)

		if err != nil {
			if s.cb.OnShellError != nil {
				s.cb.OnShellError(err)
			}
			return
		}
		if s.cb.OnShellReady != nil {
			s.cb.OnShellReady()
		}
		if len(s.ids) == 0 && s.cb.OnAllReady != nil {
			s.cb.OnAllReady()
		}
	})
	s.cbMu.Unlock()

	if !claimed || err != nil || len(s.ids) == 0 {
		s.finish()
		return
	}

	s.resolveAll()
}

func (s *Stream) validate() error {
	if s.doc.Shell == nil {
		return errors.New("render: document has no shell")
	}
	for _, id := range s.ids {
		if !validID.MatchString(id) {
			return fmt.Errorf("render: invalid boundary id %q", id)
		}
	}
	return nil
}

func (s *Stream) resolveAll() {
	var g errgroup.Group
	g.SetLimit(s.limit)

	seen := make(map[string]bool, len(s.ids))
	for _, b := range s.doc.Boundaries {
		if seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		if s.ctx.Err() != nil {
			break
		}

		b := b
		g.Go(func() error {
			if s.ctx.Err() != nil {
				return nil
			}
			var (
				html template.HTML
				err  error
			)
			if b.Resolve != nil {
				html, err = b.Resolve(s.ctx)
			}
			if s.ctx.Err() != nil && s.aborted.Load() {
				err = ErrAborted
			}
			s.settle(b.ID, html, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Stream) suspense(id string) template.HTML {
	if _, ok := s.fallbacks[id]; !ok {
		return ""
	}
	return template.HTML(markerPrefix + id + markerSuffix)
}

// settle records the first outcome for id. Later outcomes are ignored.
func (s *Stream) settle(id string, html template.HTML, err error) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	if _, ok := s.results[id]; ok {
		s.mu.Unlock()
		return
	}
	s.results[id] = settled{html: html, err: err}
	s.order = append(s.order, id)
	s.remaining--
	last := s.remaining == 0
	s.mu.Unlock()

	// Callbacks run before Pipe is woken so that whatever they record is
	// visible by the time the document is complete.
	if err != nil && s.cb.OnError != nil {
		s.cb.OnError(err)
	}
	if !last {
		s.poke()
		return
	}
	if s.cb.OnAllReady != nil {
		s.cb.OnAllReady()
	}
	s.mu.Lock()
	s.complete = true
	s.mu.Unlock()
	s.finish()
}

// Abort stops the render. Boundaries still pending fail with ErrAborted and
// the stream closes; output already written stays. Abort before the shell is
// ready fails the shell instead. Only the first call has any effect, and it
// reports true.
func (s *Stream) Abort() bool {
	select {
	case <-s.done:
		return false
	default:
	}
	if !s.aborted.CompareAndSwap(false, true) {
		return false
	}
	s.cancel()

	s.cbMu.Lock()
	claimed := false
	s.shellOnce.Do(func() {
		claimed = true
		s.mu.Lock()
		s.shellErr = ErrAborted
		s.mu.Unlock()
		close(s.shellDone)
		if s.cb.OnShellError != nil {
			s.cb.OnShellError(ErrAborted)
		}
	})
	s.cbMu.Unlock()

	if claimed {
		s.finish()
		return true
	}

	for _, id := range s.ids {
		s.settle(id, "", ErrAborted)
	}
	return true
}

func (s *Stream) finish() {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		stop := s.stopParent
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.cancel()
		close(s.done)
		s.poke()
	})
}

func (s *Stream) poke() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Pipe writes the document to w: the shell first, then each boundary as it
// settles, then the closing tags. Boundaries already settled when Pipe
// starts are inlined into the shell. When w is an http.Flusher it is flushed
// after every write. Pipe blocks until the document is complete and returns
// the shell error if the shell failed. A write error aborts the render.
func (s *Stream) Pipe(w io.Writer) error {
	if !s.piped.CompareAndSwap(false, true) {
		return ErrPiped
	}
	<-s.shellDone

	s.mu.Lock()
	if s.shellErr != nil {
		err := s.shellErr
		s.mu.Unlock()
		return err
	}
	sent := make(map[string]bool, len(s.ids))
	page := s.substitute(s.shell, sent)
	s.mu.Unlock()

	head, tail := splitTail(page)
	write := func(b []byte) error {
		if len(b) == 0 {
			return nil
		}
		if _, err := w.Write(b); err != nil {
			s.Abort()
			return err
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		return nil
	}

	if err := write(head); err != nil {
		return err
	}

	bootstrapped := false
	for {
		var buf bytes.Buffer

		s.mu.Lock()
		for _, id := range s.order {
			if sent[id] {
				continue
			}
			sent[id] = true
			if !bootstrapped {
				buf.WriteString(bootstrapScript)
				bootstrapped = true
			}
			writeChunk(&buf, id, s.results[id])
		}
		complete := s.complete
		s.mu.Unlock()

		if err := write(buf.Bytes()); err != nil {
			return err
		}
		if complete {
			break
		}
		<-s.notify
	}

	return write(tail)
}
