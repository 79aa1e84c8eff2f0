// ABOUTME: Entry point for begaia-gateway, the hotel guest messaging server
// ABOUTME: Cobra root command with serve, health and token sub-commands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcelomst/begaia-gateway/internal/config"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                       _
| |__   ___  __ _  __ _ (_) __ _
| '_ \ / _ \/ _' |/ _' || |/ _' |
| |_) |  __/ (_| | (_| || | (_| |
|_.__/ \___|\__, |\__,_||_|\__,_|
            |___/        gateway
`

// configPath holds the --config flag
var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "begaia-gateway",
		Short:         "Multi-channel guest messaging gateway for hotels",
		Long:          "begaia-gateway receives guest messages from web chat, WhatsApp, email and the channel manager,\nruns the reservation dialogue and delivers replies on the originating channel.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $BEGAIA_CONFIG or $XDG_CONFIG_HOME/begaia/gateway.yaml)")

	root.AddCommand(newServeCmd(), newHealthCmd(), newTokenCmd())
	return root
}

// resolveConfigPath returns the --config flag, falling back to the default location
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
