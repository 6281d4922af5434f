package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/kashvi-ssr/app/pages"
	"github.com/shashiranjanraj/kashvi-ssr/config"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/app"
)

var (
	flagKey  string
	flagCert string
	flagPort int
)

// applyFlags pushes explicit flags into config so they beat files and env.
func applyFlags(cmd *cobra.Command, _ []string) error {
	if err := config.Load(); err != nil {
		return err
	}
	if flagKey != "" {
		config.Set("TLS_KEY_FILE", flagKey)
	}
	if flagCert != "" {
		config.Set("TLS_CERT_FILE", flagCert)
	}
	if flagPort != 0 {
		config.Set("APP_PORT", strconv.Itoa(flagPort))
	}
	return nil
}

func application() *app.Application {
	return pages.Register(app.New())
}

// delegate runs one pkg/app command against the project's pages.
func delegate(name string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return application().Execute(cmd.Context(), []string{name}, cmd.OutOrStdout())
	}
}

// kashvi serve - start the HTTPS server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTPS server (HTTP/2 with HTTP/1.1 fallback)",
	RunE:  delegate("serve"),
}

// kashvi run - alias kept for muscle memory.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the HTTPS server (alias: serve)",
	RunE:  delegate("serve"),
}

// kashvi route:list - print all registered routes.
var routeListCmd = &cobra.Command{
	Use:   "route:list",
	Short: "List all registered routes",
	RunE:  delegate("route:list"),
}

// kashvi cert:check - verify the TLS key pair loads.
var certCheckCmd = &cobra.Command{
	Use:   "cert:check",
	Short: "Load the TLS key pair and print the certificate",
	RunE:  delegate("cert:check"),
}

func init() {
	for _, c := range []*cobra.Command{serveCmd, runCmd} {
		c.Flags().IntVar(&flagPort, "port", 0, "listen port (overrides APP_PORT)")
	}
}
