// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/fxg4n/m5/internal/config"
	"github.com/fxg4n/m5/internal/store"
)

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

func defaultMigratorFactory(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// migratorFactory is replaced in tests.
var migratorFactory = defaultMigratorFactory

// NewMigrateCmd creates the migrate command and its subcommands. Without a
// subcommand it applies all pending migrations.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(migrateUp),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(migrateUp),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (all of them without steps)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withMigrator(migrateDown),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(migrateStatus),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use this
to recover after a failed migration has been repaired by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(migrateForce),
	})

	return cmd
}

type migrateFunc func(cmd *cobra.Command, m Migrator, args []string) error

func withMigrator(fn migrateFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := requirePostgres(cfg); err != nil {
			return err
		}

		m, err := migratorFactory(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrln("warning: failed to close migrator:", closeErr)
			}
		}()

		return fn(cmd, m, args)
	}
}

func requirePostgres(cfg *config.Config) error {
	if cfg.Store != config.StorePostgres {
		return oops.Code("CONFIG_INVALID").
			With("store", cfg.Store).
			Errorf("this command requires the %s store", config.StorePostgres)
	}
	return nil
}

func migrateUp(cmd *cobra.Command, m Migrator, _ []string) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return err
	}
	v, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Schema is at version %d\n", v)
	return nil
}

func migrateDown(cmd *cobra.Command, m Migrator, args []string) error {
	if len(args) == 0 {
		cmd.Println("Rolling back all migrations...")
		if err := m.Down(); err != nil {
			return err
		}
		cmd.Println("All migrations rolled back")
		return nil
	}

	steps, err := parseVersion(args[0])
	if err != nil {
		return err
	}
	if steps < 1 {
		return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("steps must be at least 1")
	}
	if err := m.Steps(-steps); err != nil {
		return err
	}
	v, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Rolled back %d migration(s), schema is at version %d\n", steps, v)
	return nil
}

func migrateStatus(cmd *cobra.Command, m Migrator, _ []string) error {
	status, err := m.Status()
	if err != nil {
		return err
	}

	state := "clean"
	if status.Dirty {
		state = "dirty"
	}
	cmd.Printf("Version: %d (%s)\n", status.Version, state)
	for _, mig := range status.Applied {
		cmd.Printf("  [x] %s\n", mig.Name)
	}
	for _, mig := range status.Pending {
		cmd.Printf("  [ ] %s\n", mig.Name)
	}
	if len(status.Pending) == 0 {
		cmd.Println("No pending migrations")
	}
	return nil
}

func migrateForce(cmd *cobra.Command, m Migrator, args []string) error {
	v, err := parseVersion(args[0])
	if err != nil {
		return err
	}
	if err := m.Force(v); err != nil {
		return err
	}
	cmd.Printf("Forced schema version to %d\n", v)
	return nil
}

func parseVersion(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("%q is not an integer", s)
	}
	return v, nil
}
