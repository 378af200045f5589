// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/fxg4n/m5/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the m5 CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "m5",
		Short: "m5 - identity and session service",
		Long: `m5 registers users, verifies credentials and issues opaque
session tokens over a JSON HTTP API backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPruneCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println("m5 " + versionString())
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.ResolvePath(configFile), cmd.Flags())
}
