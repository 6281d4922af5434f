package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
)

const (
	markerPrefix = "<!--kashvi:B:"
	markerSuffix = "-->"
)

// bootstrapScript defines the swap helpers used by streamed chunks. It is
// written once, right before the first chunk.
const bootstrapScript = `<script>` +
	`function $RC(b,s){var t=document.getElementById(b),c=document.getElementById(s);` +
	`if(!t||!c)return;c.remove();t.replaceWith.apply(t,Array.from(c.childNodes))}` +
	`function $RX(b){var t=document.getElementById(b);if(t)t.setAttribute("data-render","client")}` +
	`</script>`

// Funcs must be installed on any template that calls {{suspense "id"}} before
// it is parsed. TemplateShell swaps in the real implementation per render.
var Funcs = template.FuncMap{
	"suspense": func(string) template.HTML { return "" },
}

// TemplateShell adapts a parsed template into a ShellFunc. The template is
// cloned per render, so it must never be executed directly.
func TemplateShell(t *template.Template, name string, data any) ShellFunc {
	return func(w io.Writer, suspense SuspenseFunc) error {
		c, err := t.Clone()
		if err != nil {
			return fmt.Errorf("render: clone %s: %w", name, err)
		}
		c.Funcs(template.FuncMap{"suspense": suspense})
		return c.ExecuteTemplate(w, name, data)
	}
}

// substitute replaces boundary markers in shell. Settled boundaries are
// inlined and recorded in sent; pending ones get their fallback.
// Caller holds s.mu.
func (s *Stream) substitute(shell []byte, sent map[string]bool) []byte {
	out := shell
	for _, id := range s.ids {
		marker := []byte(markerPrefix + id + markerSuffix)
		if !bytes.Contains(out, marker) {
			continue
		}

		var repl []byte
		res, ok := s.results[id]
		switch {
		case ok && res.err == nil:
			repl = []byte(res.html)
			sent[id] = true
		case ok:
			repl = []byte(fmt.Sprintf(`<div id="B:%s" data-render="client">%s</div>`, id, s.fallbacks[id]))
			sent[id] = true
		default:
			repl = []byte(fmt.Sprintf(`<div id="B:%s">%s</div>`, id, s.fallbacks[id]))
		}
		out = bytes.ReplaceAll(out, marker, repl)
	}
	return out
}

// writeChunk appends the streamed form of a settled boundary.
func writeChunk(buf *bytes.Buffer, id string, res settled) {
	if res.err != nil {
		fmt.Fprintf(buf, `<script>$RX("B:%s")</script>`, id)
		return
	}
	fmt.Fprintf(buf, `<div hidden id="S:%s">%s</div><script>$RC("B:%s","S:%s")</script>`, id, res.html, id, id)
}

// splitTail splits page before its closing </body> so streamed chunks land
// inside the body.
func splitTail(page []byte) (head, tail []byte) {
	idx := bytes.LastIndex(bytes.ToLower(page), []byte("</body"))
	if idx < 0 {
		return page, nil
	}
	return page[:idx], page[idx:]
}
