package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pawlog/internal/auth"
	"github.com/dukerupert/pawlog/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		actor string
		pets  []string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if cfg.LocalMode() {
				return errors.New("PAWLOG_JWT_SECRET is not set; the server runs in local mode and needs no token")
			}
			if len(pets) == 0 {
				return errors.New("at least one --pet is required (use --pet '*' for every pet)")
			}

			token, err := auth.NewIssuer(cfg.JWTSecret).Issue(actor, pets, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Identity recorded on writes (required)")
	cmd.Flags().StringSliceVar(&pets, "pet", nil, "Pet the token may access; repeatable, '*' for all")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}
