package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "kashvi",
	Short:         "Kashvi SSR: streaming server-side rendering",
	Long:          "Kashvi SSR serves server-rendered pages over HTTP/2 + TLS, complete for crawlers and streamed for browsers.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "", "TLS private key PEM (overrides TLS_KEY_FILE)")
	rootCmd.PersistentFlags().StringVar(&flagCert, "cert", "", "TLS certificate PEM (overrides TLS_CERT_FILE)")
	rootCmd.PersistentPreRunE = applyFlags

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeListCmd)
	rootCmd.AddCommand(certCheckCmd)
}
