// Package main boots the Square metrics exporter.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/square-exporter/internal/config"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "square-exporter",
		Short: "Prometheus exporter for Square payments and refunds",
		Long: `square-exporter polls the Square API for payments and refunds over a
trailing window and month to date, and serves the aggregates on /metrics.

Configuration comes from environment variables (SQUARE_ACCESS_TOKEN,
SQUARE_LOCATION_ID, EXPORTER_PORT, SCRAPE_WINDOW_H, ...) layered over an
optional YAML file given with --config.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file")

	serve := serveCmd(&configPath)
	root.RunE = serve.RunE
	root.AddCommand(serve)
	root.AddCommand(collectCmd(&configPath))
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the exporter version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

// exitCode maps startup misconfiguration to 2 and everything else to 1.
func exitCode(err error) int {
	var ce *config.ConfigError
	if errors.As(err, &ce) {
		return 2
	}
	return 1
}
