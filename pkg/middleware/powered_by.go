package middleware

import "net/http"

// PoweredByHeader names the response header that advertises the framework.
const PoweredByHeader = "X-Powered-By"

// stripWriter drops PoweredByHeader right before headers go out, whoever set it.
type stripWriter struct {
	http.ResponseWriter
	done bool
}

func (s *stripWriter) strip() {
	if !s.done {
		s.ResponseWriter.Header().Del(PoweredByHeader)
		s.done = true
	}
}

func (s *stripWriter) WriteHeader(code int) {
	s.strip()
	s.ResponseWriter.WriteHeader(code)
}

func (s *stripWriter) Write(b []byte) (int, error) {
	s.strip()
	return s.ResponseWriter.Write(b)
}

func (s *stripWriter) Flush() {
	s.strip()
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *stripWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// HidePoweredBy removes X-Powered-By from every response.
func HidePoweredBy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &stripWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		// Handlers that never write still get their headers sent implicitly.
		sw.strip()
	})
}
