// Package app provides the Kashvi SSR application runner.
//
// # Minimal usage
//
//	package main
//
//	import (
//	    "github.com/shashiranjanraj/kashvi-ssr/pkg/app"
//	    "github.com/shashiranjanraj/kashvi-ssr/pkg/loadctx"
//	)
//
//	func main() {
//	    app.New().
//	        LoadContext(func() loadctx.Context {
//	            return loadctx.Context{SayHello: func() string { return "hi" }}
//	        }).
//	        Page("/", "home", homePage).
//	        Run()
//	}
//
// Then run it:
//
//	go run . serve
//	go run . route:list
//	go run . cert:check
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shashiranjanraj/kashvi-ssr/pkg/entry"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/loadctx"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/router"
)

// ErrUnknownCommand is returned by Execute for an unrecognised command.
var ErrUnknownCommand = errors.New("unknown command")

type page struct {
	path string
	name string
	fn   entry.PageFunc
}

// ─── Application Builder ──────────────────────────────────────────────────────

// Application is the central configuration object for a Kashvi SSR project.
// Build one with New(), attach pages and routes, then call Run().
type Application struct {
	routesFns []func(*router.Router)
	pages     []page
	provider  loadctx.Provider
	entryOpts entry.Options
}

// New creates a new Application instance with sensible defaults.
func New() *Application {
	return &Application{}
}

// Page mounts a server-rendered page at path. Pages go through the
// bot/browser dispatcher.
func (a *Application) Page(path, name string, fn entry.PageFunc) *Application {
	a.pages = append(a.pages, page{path: path, name: name, fn: fn})
	return a
}

// Routes registers a route-registration callback that will be called when
// the HTTP kernel is built. You may call Routes() multiple times; all
// callbacks are executed in order.
func (a *Application) Routes(fn func(*router.Router)) *Application {
	a.routesFns = append(a.routesFns, fn)
	return a
}

// LoadContext sets the provider of the per-request load context.
func (a *Application) LoadContext(p loadctx.Provider) *Application {
	a.provider = p
	return a
}

// Dispatcher overrides the render dispatcher options. Zero fields fall back
// to config and the package defaults.
func (a *Application) Dispatcher(opts entry.Options) *Application {
	a.entryOpts = opts
	return a
}

// Run reads os.Args and dispatches to the appropriate command. SIGINT and
// SIGTERM stop a running server gracefully.
func (a *Application) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := a.Execute(ctx, os.Args[1:], os.Stdout)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Execute runs one command. With no args it serves.
func (a *Application) Execute(ctx context.Context, args []string, out io.Writer) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve", "start", "run", "s":
		return cmdServe(ctx, a)
	case "route:list", "routes":
		return cmdRouteList(a, out)
	case "cert:check":
		return cmdCertCheck(out)
	case "help", "--help", "-h":
		printHelp(out)
		return nil
	default:
		return fmt.Errorf("%w: %q (run with --help for usage)", ErrUnknownCommand, cmd)
	}
}

// ─── Backward-compat free function ────────────────────────────────────────────

// Run serves an application with no pages. Prefer New().Page(...).Run().
func Run() {
	New().Run()
}

func printHelp(out io.Writer) {
	fmt.Fprint(out, `Kashvi SSR

Usage:
  <program> <command>

Commands:
  serve            Start the HTTPS server  (aliases: start, run)
  route:list       List registered routes
  cert:check       Load the TLS key pair and print the certificate
  help             Show this help

`)
}
