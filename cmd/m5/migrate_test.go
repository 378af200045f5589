// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxg4n/m5/internal/store"
	"github.com/fxg4n/m5/pkg/errutil"
)

type fakeMigrator struct {
	upErr    error
	version  uint
	status   *store.Status
	steps    []int
	forced   []int
	downs    int
	closed   bool
	closeErr error
}

func (f *fakeMigrator) Up() error                    { return f.upErr }
func (f *fakeMigrator) Down() error                  { f.downs++; return nil }
func (f *fakeMigrator) Steps(n int) error            { f.steps = append(f.steps, n); return nil }
func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, false, nil }
func (f *fakeMigrator) Force(v int) error            { f.forced = append(f.forced, v); return nil }
func (f *fakeMigrator) Status() (*store.Status, error) {
	return f.status, nil
}
func (f *fakeMigrator) Close() error { f.closed = true; return f.closeErr }

func useMigrator(t *testing.T, m *fakeMigrator) *string {
	t.Helper()
	var gotURL string
	orig := migratorFactory
	migratorFactory = func(url string) (Migrator, error) {
		gotURL = url
		return m, nil
	}
	t.Cleanup(func() { migratorFactory = orig })
	return &gotURL
}

const testDatabaseURL = "postgres://m5:m5@localhost:5432/m5"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErrCode string
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero", input: "0", wantVersion: 0},
		{name: "negative", input: "-1", wantVersion: -1},
		{name: "surrounding whitespace", input: "  42 ", wantVersion: 42},
		{name: "non-numeric", input: "abc", wantErrCode: "INVALID_VERSION"},
		{name: "float", input: "1.5", wantErrCode: "INVALID_VERSION"},
		{name: "trailing characters", input: "3abc", wantErrCode: "INVALID_VERSION"},
		{name: "empty", input: "", wantErrCode: "INVALID_VERSION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVersion(tt.input)
			if tt.wantErrCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, v)
		})
	}
}

func TestMigrateCmd_Up(t *testing.T) {
	m := &fakeMigrator{version: 3}
	gotURL := useMigrator(t, m)

	out, err := executeRoot(t, "migrate", "--database-url", testDatabaseURL)
	require.NoError(t, err)
	assert.Equal(t, testDatabaseURL, *gotURL)
	assert.Contains(t, out, "Schema is at version 3")
	assert.True(t, m.closed)
}

func TestMigrateCmd_UpFailure(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("lock timeout")}
	useMigrator(t, m)

	_, err := executeRoot(t, "migrate", "up", "--database-url", testDatabaseURL)
	assert.ErrorContains(t, err, "lock timeout")
	assert.True(t, m.closed)
}

func TestMigrateCmd_Down(t *testing.T) {
	t.Run("all", func(t *testing.T) {
		m := &fakeMigrator{}
		useMigrator(t, m)

		out, err := executeRoot(t, "migrate", "down", "--database-url", testDatabaseURL)
		require.NoError(t, err)
		assert.Equal(t, 1, m.downs)
		assert.Contains(t, out, "All migrations rolled back")
	})

	t.Run("steps", func(t *testing.T) {
		m := &fakeMigrator{version: 1}
		useMigrator(t, m)

		out, err := executeRoot(t, "migrate", "down", "2", "--database-url", testDatabaseURL)
		require.NoError(t, err)
		assert.Equal(t, []int{-2}, m.steps)
		assert.Contains(t, out, "schema is at version 1")
	})

	t.Run("zero steps", func(t *testing.T) {
		useMigrator(t, &fakeMigrator{})

		_, err := executeRoot(t, "migrate", "down", "0", "--database-url", testDatabaseURL)
		errutil.AssertErrorCode(t, err, "INVALID_STEPS")
	})
}

func TestMigrateCmd_Status(t *testing.T) {
	m := &fakeMigrator{status: &store.Status{
		Version: 2,
		Applied: []store.Migration{{Version: 1, Name: "000001_users"}, {Version: 2, Name: "000002_sessions"}},
		Pending: []store.Migration{{Version: 3, Name: "000003_audit_logs"}},
	}}
	useMigrator(t, m)

	out, err := executeRoot(t, "migrate", "status", "--database-url", testDatabaseURL)
	require.NoError(t, err)
	assert.Contains(t, out, "Version: 2 (clean)")
	assert.Contains(t, out, "[x] 000002_sessions")
	assert.Contains(t, out, "[ ] 000003_audit_logs")
	assert.NotContains(t, out, "No pending migrations")
}

func TestMigrateCmd_Force(t *testing.T) {
	m := &fakeMigrator{}
	useMigrator(t, m)

	out, err := executeRoot(t, "migrate", "force", "2", "--database-url", testDatabaseURL)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, m.forced)
	assert.Contains(t, out, "Forced schema version to 2")

	_, err = executeRoot(t, "migrate", "force", "two", "--database-url", testDatabaseURL)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}

func TestMigrateCmd_RequiresPostgres(t *testing.T) {
	useMigrator(t, &fakeMigrator{})

	_, err := executeRoot(t, "migrate", "status", "--store", "memory")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestMigrateCmd_MissingDatabaseURL(t *testing.T) {
	useMigrator(t, &fakeMigrator{})

	_, err := executeRoot(t, "migrate")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestMigrateCmd_FactoryError(t *testing.T) {
	orig := migratorFactory
	migratorFactory = func(string) (Migrator, error) { return nil, errors.New("bad url") }
	t.Cleanup(func() { migratorFactory = orig })

	_, err := executeRoot(t, "migrate", "--database-url", testDatabaseURL)
	assert.ErrorContains(t, err, "bad url")
}
