// ABOUTME: token sub-command minting staff JWTs for the review API
// ABOUTME: Signs with auth.jwt_secret from the config file

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcelomst/begaia-gateway/internal/auth"
	"github.com/marcelomst/begaia-gateway/internal/config"
)

type tokenOptions struct {
	staffID string
	hotelID string
	role    string
	ttl     time.Duration
}

func newTokenCmd() *cobra.Command {
	var opts tokenOptions
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a staff token for the review API",
		Example: "  begaia-gateway token --staff maria --hotel hotel999\n" +
			"  begaia-gateway token --staff ops --role admin --ttl 1h",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			token, err := mintToken(cfg.Auth.JWTSecret, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.staffID, "staff", "", "staff member id (token subject)")
	cmd.Flags().StringVar(&opts.hotelID, "hotel", "", "hotel the token grants access to")
	cmd.Flags().StringVar(&opts.role, "role", auth.RoleStaff, "staff or admin")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("staff")
	return cmd
}

func mintToken(secret string, opts tokenOptions) (string, error) {
	if secret == "" {
		return "", errors.New("auth.jwt_secret is not set in the config")
	}
	switch opts.role {
	case auth.RoleStaff:
		if opts.hotelID == "" {
			return "", errors.New("--hotel is required for staff tokens")
		}
	case auth.RoleAdmin:
	default:
		return "", fmt.Errorf("unknown role %q (want staff or admin)", opts.role)
	}
	if opts.ttl <= 0 {
		return "", errors.New("--ttl must be positive")
	}

	verifier, err := auth.NewJWTVerifier([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}
	token, err := verifier.Generate(auth.StaffContext{
		StaffID: opts.staffID,
		HotelID: opts.hotelID,
		Role:    opts.role,
	}, opts.ttl)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}
