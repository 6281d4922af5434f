// Package server owns the HTTPS listener: certificate loading, HTTP/2
// negotiation and graceful shutdown. Application wiring lives in pkg/app.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"

	"github.com/shashiranjanraj/kashvi-ssr/config"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/logger"
)

// ErrCertificate wraps every failure to load the TLS key pair.
var ErrCertificate = errors.New("server: certificate")

const defaultShutdownTimeout = 30 * time.Second

// Options configures the HTTPS server.
type Options struct {
	Addr     string
	KeyFile  string
	CertFile string
	// AllowHTTP1 keeps HTTP/1.1 available next to h2.
	AllowHTTP1      bool
	ShutdownTimeout time.Duration
}

// OptionsFromConfig reads Options from the loaded config.
func OptionsFromConfig() Options {
	return Options{
		Addr:            ":" + config.AppPort(),
		KeyFile:         config.TLSKeyFile(),
		CertFile:        config.TLSCertFile(),
		AllowHTTP1:      config.AllowHTTP1(),
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// LoadCertificate reads a PEM key pair. Relative paths resolve against the
// working directory.
func LoadCertificate(keyFile, certFile string) (tls.Certificate, error) {
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: read key: %w", ErrCertificate, err)
	}
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: read cert: %w", ErrCertificate, err)
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: parse %s: %w", ErrCertificate, certFile, err)
	}
	return cert, nil
}

// Server is a configured, not yet listening HTTPS server.
type Server struct {
	srv  *http.Server
	opts Options
}

// New loads the certificate and builds the server. It never binds a port,
// so a bad certificate fails before any socket is opened.
func New(handler http.Handler, opts Options) (*Server, error) {
	cert, err := LoadCertificate(opts.KeyFile, opts.CertFile)
	if err != nil {
		return nil, err
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	if !opts.AllowHTTP1 {
		handler = requireHTTP2(handler)
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          logger.StdLog("http"),
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}
	if err := http2.ConfigureServer(srv, &http2.Server{}); err != nil {
		return nil, fmt.Errorf("server: http2: %w", err)
	}
	// ConfigureServer always advertises http/1.1 as well.
	if opts.AllowHTTP1 {
		srv.TLSConfig.NextProtos = []string{http2.NextProtoTLS, "http/1.1"}
	} else {
		srv.TLSConfig.NextProtos = []string{http2.NextProtoTLS}
	}

	return &Server{srv: srv, opts: opts}, nil
}

// HTTP exposes the underlying server.
func (s *Server) HTTP() *http.Server { return s.srv }

// ListenAndServe binds Options.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts TLS connections on ln until ctx is done, then shuts down
// gracefully within Options.ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	tlsLn := tls.NewListener(ln, s.srv.TLSConfig)

	logger.Info("server listening",
		"addr", ln.Addr().String(),
		"protocols", s.srv.TLSConfig.NextProtos,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(tlsLn)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// Start builds the server and serves until ctx is done.
func Start(ctx context.Context, handler http.Handler, opts Options) error {
	s, err := New(handler, opts)
	if err != nil {
		return err
	}
	return s.ListenAndServe(ctx)
}

func requireHTTP2(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor < 2 {
			http.Error(w, "HTTP/2 required", http.StatusHTTPVersionNotSupported)
			return
		}
		next.ServeHTTP(w, r)
	})
}
