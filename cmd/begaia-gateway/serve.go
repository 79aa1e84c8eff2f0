// ABOUTME: serve sub-command: loads config, prints the banner and runs the gateway
// ABOUTME: Blocks until SIGINT/SIGTERM, then shuts down gracefully

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/marcelomst/begaia-gateway/internal/config"
	"github.com/marcelomst/begaia-gateway/internal/gateway"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()

			cyan := color.New(color.FgCyan)
			gray := color.New(color.FgHiBlack)
			cyan.Print(banner)
			gray.Printf("    version: %s\n\n", version)

			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			logger := setupLogger(cfg.Logging)
			printStartup(path, cfg)

			logger.Info("starting begaia-gateway",
				"config", path,
				"http_addr", cfg.Server.HTTPAddr,
				"guard_backend", cfg.Guard.Backend,
			)

			gw, err := gateway.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating gateway: %w", err)
			}
			return gw.Run(cmd.Context())
		},
	}
}

func printStartup(path string, cfg *config.Config) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	line := func(label, value string) {
		green.Print("    ▶ ")
		fmt.Printf("%-10s %s\n", label+":", value)
	}
	line("Config", path)
	line("HTTP", cfg.Server.HTTPAddr)
	line("Guard", cfg.Guard.Backend)

	green.Print("    ▶ ")
	fmt.Printf("%-10s web channel-manager", "Channels:")
	if cfg.Channels.WhatsApp.Enabled {
		fmt.Print(" whatsapp")
	}
	if cfg.Channels.Email.Enabled {
		fmt.Print(" email")
	}
	fmt.Println()

	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! staff API disabled (auth.jwt_secret not set)")
	}
	if cfg.Events.AMQPURL == "" {
		gray.Println("    · domain events discarded (events.amqp_url not set)")
	}
	fmt.Println()
}
