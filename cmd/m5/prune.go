// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fxg4n/m5/internal/config"
)

// NewPruneCmd creates the prune subcommand.
func NewPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired and invalidated sessions",
		Long: `Delete sessions that are past their expiry. Run it from cron when
the server's background pruner is disabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPrune(cmd.Context(), cfg, cmd, nil)
		},
	}
}

func runPrune(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *backendDeps) error {
	if err := requirePostgres(cfg); err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer b.close()

	svc, err := newService(cfg, b)
	if err != nil {
		return err
	}

	n, err := svc.PruneExpired(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Pruned %d expired session(s)\n", n)
	return nil
}
