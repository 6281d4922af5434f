package app

// pkg/app/commands.go - implementations for all CLI sub-commands.
// These are called from Application.Execute and use only framework packages.

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shashiranjanraj/kashvi-ssr/config"
	"github.com/shashiranjanraj/kashvi-ssr/internal/server"
)

// cmdServe boots the HTTPS server using the Application's handler.
func cmdServe(ctx context.Context, a *Application) error {
	return startServer(ctx, a)
}

// cmdRouteList prints all registered routes.
func cmdRouteList(a *Application, out io.Writer) error {
	routes := buildRouter(a).Routes()
	if len(routes) == 0 {
		fmt.Fprintln(out, "No routes registered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "METHOD\tPATH\tNAME")
	fmt.Fprintln(w, "------\t----\t----")
	for _, ri := range routes {
		method := ri.Method
		if method == "*" {
			method = "ANY"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", method, ri.Path, ri.Name)
	}
	return w.Flush()
}

// cmdCertCheck loads the configured key pair the same way serve does and
// prints what it found.
func cmdCertCheck(out io.Writer) error {
	if err := config.Load(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	cert, err := server.LoadCertificate(config.TLSKeyFile(), config.TLSCertFile())
	if err != nil {
		return err
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("%w: %w", server.ErrCertificate, err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "cert\t%s\n", config.TLSCertFile())
	fmt.Fprintf(w, "key\t%s\n", config.TLSKeyFile())
	fmt.Fprintf(w, "subject\t%s\n", leaf.Subject.String())
	fmt.Fprintf(w, "dns names\t%s\n", strings.Join(leaf.DNSNames, ", "))
	fmt.Fprintf(w, "not after\t%s\n", leaf.NotAfter.UTC().Format(time.RFC3339))
	if time.Now().After(leaf.NotAfter) {
		fmt.Fprintln(w, "status\tEXPIRED")
	} else {
		fmt.Fprintln(w, "status\tok")
	}
	return w.Flush()
}
