// Package entry is the server-side entry point for page requests.
//
// Every document request is classified by its User-Agent and rendered with
// one of two strategies:
//
//   - StrategyBot waits for the whole document (all boundaries settled)
//     before releasing the response, so crawlers see complete markup.
//   - StrategyBrowser releases the response as soon as the shell is ready
//     and streams the rest, for the fastest first byte.
//
// Either way the render is aborted after Options.AbortDelay.
package entry

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shashiranjanraj/kashvi-ssr/pkg/botdetect"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/loadctx"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/logger"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/metrics"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/render"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/reqid"
)

// DefaultAbortDelay bounds a single render.
const DefaultAbortDelay = 5 * time.Second

// Strategy selects when a rendered response is flushed.
type Strategy int

const (
	StrategyBrowser Strategy = iota
	StrategyBot
)

func (s Strategy) String() string {
	if s == StrategyBot {
		return "bot"
	}
	return "browser"
}

// Classify picks the strategy for a User-Agent.
func Classify(userAgent string) Strategy {
	if botdetect.IsBot(userAgent) {
		return StrategyBot
	}
	return StrategyBrowser
}

// Outcome is the resolved response of one render. Status may still change
// to 500 after resolution when a streaming error occurs; read it through
// Status.
type Outcome struct {
	strategy Strategy
	header   http.Header
	body     io.ReadCloser
	status   atomic.Int64
	stream   *render.Stream
}

func (o *Outcome) Strategy() Strategy  { return o.strategy }
func (o *Outcome) Header() http.Header { return o.header }
func (o *Outcome) Status() int         { return int(o.status.Load()) }

// Body streams the document. Closing it early aborts the render.
func (o *Outcome) Body() io.ReadCloser { return o.body }

// Done is closed when the render has nothing more to produce.
func (o *Outcome) Done() <-chan struct{} { return o.stream.Done() }

// Options configures a Dispatcher.
type Options struct {
	AbortDelay time.Duration
	// Concurrency bounds how many boundaries of one render resolve at once.
	Concurrency int
	// ErrorHandler writes the response for a failed render. It runs before
	// anything has been written.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

func DefaultOptions() Options {
	return Options{
		AbortDelay:   DefaultAbortDelay,
		Concurrency:  8,
		ErrorHandler: DocumentError,
	}
}

// Dispatcher renders documents with the strategy the request calls for.
type Dispatcher struct {
	opts Options
}

func New(opts Options) *Dispatcher {
	def := DefaultOptions()
	if opts.AbortDelay <= 0 {
		opts.AbortDelay = def.AbortDelay
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.ErrorHandler == nil {
		opts.ErrorHandler = def.ErrorHandler
	}
	return &Dispatcher{opts: opts}
}

// HandleRequest renders doc for r. It blocks until the strategy releases the
// response and returns the Outcome, or returns the shell error. status is
// the tentative status code; header is the header collection of the
// response and receives Content-Type. lc may be nil.
func (d *Dispatcher) HandleRequest(ctx context.Context, r *http.Request, status int, header http.Header, doc render.Document, lc *loadctx.Context) (*Outcome, error) {
	return d.handle(ctx, Classify(r.Header.Get("User-Agent")), status, header, doc, lc)
}

func (d *Dispatcher) handle(ctx context.Context, strategy Strategy, status int, header http.Header, doc render.Document, lc *loadctx.Context) (*Outcome, error) {
	log := logger.WithCtx(ctx).With("strategy", strategy.String())
	if lc != nil && lc.RequestID != "" && reqid.FromCtx(ctx) == "" {
		log = log.With("request_id", lc.RequestID)
	}
	start := time.Now()

	out := &Outcome{strategy: strategy, header: header}
	out.status.Store(int64(status))

	var (
		shellRendered atomic.Bool
		shellErr      error
		resolved      = make(chan struct{})
		rejected      = make(chan struct{})
	)

	release := func() {
		shellRendered.Store(true)
		close(resolved)
	}

	cb := render.Callbacks{
		OnShellError: func(err error) {
			shellErr = err
			close(rejected)
		},
		OnError: func(err error) {
			out.status.Store(http.StatusInternalServerError)
			// Errors before the release reject or end up in the status; only
			// log the ones that hit an already streaming response.
			if shellRendered.Load() {
				log.Error("render stream error", "error", err)
			}
		},
	}
	if strategy == StrategyBot {
		cb.OnAllReady = release
	} else {
		cb.OnShellReady = release
	}

	stream := render.RenderToPipeableStream(ctx, doc, cb, render.WithConcurrency(d.opts.Concurrency))
	out.stream = stream

	timer := time.AfterFunc(d.opts.AbortDelay, func() {
		if stream.Abort() {
			metrics.RenderAborts.WithLabelValues(strategy.String()).Inc()
			log.Warn("render aborted", "after", d.opts.AbortDelay.String())
		}
	})
	go func() {
		<-stream.Done()
		timer.Stop()
	}()

	select {
	case <-rejected:
		return nil, shellErr
	case <-resolved:
	}

	header.Set("Content-Type", "text/html")
	metrics.ObserveFlush(strategy.String(), start)

	pr, pw := io.Pipe()
	out.body = pr
	go func() {
		pw.CloseWithError(stream.Pipe(pw))
	}()

	return out, nil
}
