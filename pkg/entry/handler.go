package entry

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/shashiranjanraj/kashvi-ssr/pkg/loadctx"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/logger"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/metrics"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/render"
)

// TrailerRenderStatus is sent as an HTTP trailer with the final render
// status, which differs from the header status when streaming failed after
// the headers went out.
const TrailerRenderStatus = "X-Render-Status"

// PageFunc builds the document for a request. A zero status means 200.
type PageFunc func(r *http.Request, lc *loadctx.Context) (render.Document, int, error)

// Handler serves page through the dispatcher. The request's session is saved
// once the response is released, before headers are written.
func (d *Dispatcher) Handler(page PageFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lc := loadctx.FromCtx(r.Context())

		doc, status, err := page(r, lc)
		if err != nil {
			d.fail(w, r, err)
			return
		}
		if status == 0 {
			status = http.StatusOK
		}

		out, err := d.HandleRequest(r.Context(), r, status, http.Header{}, doc, lc)
		if err != nil {
			metrics.RecordRender(Classify(r.Header.Get("User-Agent")).String(), "shell_error")
			d.fail(w, r, err)
			return
		}
		body := out.Body()
		defer body.Close()

		// Last chance to set cookies before the status line goes out.
		if lc.Session != nil {
			if err := lc.Session.Save(r.Context(), w); err != nil {
				logger.WithCtx(r.Context()).Warn("session not saved", "error", err)
			}
		}

		h := w.Header()
		for k, v := range out.Header() {
			h[k] = v
		}
		h.Set("Trailer", TrailerRenderStatus)
		w.WriteHeader(out.Status())

		if err := copyFlushing(w, body); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			logger.WithCtx(r.Context()).Debug("render write interrupted", "error", err)
		}

		final := out.Status()
		h.Set(TrailerRenderStatus, strconv.Itoa(final))

		result := "ok"
		if final >= http.StatusInternalServerError {
			result = "degraded"
		}
		metrics.RecordRender(out.Strategy().String(), result)
	})
}

func (d *Dispatcher) fail(w http.ResponseWriter, r *http.Request, err error) {
	logger.WithCtx(r.Context()).Error("render failed", "error", err, "path", r.URL.Path)
	d.opts.ErrorHandler(w, r, err)
}

// copyFlushing copies src to w, flushing after every chunk so streamed
// boundaries reach the client as they are produced.
func copyFlushing(w http.ResponseWriter, src io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

const errorPage = `<!DOCTYPE html><html><head><title>Server Error</title></head>` +
	`<body><h1>Something went wrong</h1><p>Please try again.</p></body></html>`

// DocumentError is the default ErrorHandler: a bare 500 HTML page.
func DocumentError(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, errorPage)
}
