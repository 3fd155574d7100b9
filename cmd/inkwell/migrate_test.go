// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell/inkwell/internal/store"
	"github.com/inkwell/inkwell/pkg/errutil"
)

type fakeSchemaMigrator struct {
	version     uint
	upTo        uint
	upErr       error
	downCalled  bool
	forced      int
	status      *store.MigrationStatus
	closeCalled bool
}

func (m *fakeSchemaMigrator) Up() error {
	if m.upErr != nil {
		return m.upErr
	}
	m.version = m.upTo
	return nil
}

func (m *fakeSchemaMigrator) Down() error {
	m.downCalled = true
	m.version = 0
	return nil
}

func (m *fakeSchemaMigrator) Version() (uint, bool, error) { return m.version, false, nil }

func (m *fakeSchemaMigrator) Force(version int) error {
	m.forced = version
	return nil
}

func (m *fakeSchemaMigrator) Status() (*store.MigrationStatus, error) { return m.status, nil }

func (m *fakeSchemaMigrator) Close() error {
	m.closeCalled = true
	return nil
}

func runMigrate(t *testing.T, m *fakeSchemaMigrator, databaseURL string, args ...string) (string, string, error) {
	t.Helper()
	var gotURL string
	cmd := newMigrateCmdWithDeps(&MigrateDeps{
		MigratorFactory: func(url string) (SchemaMigrator, error) {
			gotURL = url
			return m, nil
		},
		DatabaseURLGetter: func() string { return databaseURL },
	})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), gotURL, err
}

func TestMigrateCommand_Properties(t *testing.T) {
	cmd := NewMigrateCmd()
	assert.Equal(t, "migrate", cmd.Use)
	assert.Contains(t, cmd.Short, "migration")
	assert.Contains(t, cmd.Long, "PostgreSQL")
	assert.NotNil(t, cmd.PersistentFlags().Lookup("database-url"))
}

func TestMigrateCommand_NoDatabaseURL(t *testing.T) {
	_, _, err := runMigrate(t, &fakeSchemaMigrator{}, "")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestMigrateCommand_UpAppliesPending(t *testing.T) {
	m := &fakeSchemaMigrator{version: 1, upTo: 2}
	out, url, err := runMigrate(t, m, "postgres://env/db", "up")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", url)
	assert.Contains(t, out, "Migrated from version 1 to 2")
	assert.True(t, m.closeCalled)
}

func TestMigrateCommand_DefaultRunsUp(t *testing.T) {
	m := &fakeSchemaMigrator{version: 2, upTo: 2}
	out, _, err := runMigrate(t, m, "postgres://env/db")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
}

func TestMigrateCommand_FlagOverridesEnvironment(t *testing.T) {
	m := &fakeSchemaMigrator{upTo: 2}
	_, url, err := runMigrate(t, m, "postgres://env/db", "up", "--database-url", "postgres://flag/db")
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", url)
}

func TestMigrateCommand_UpFailure(t *testing.T) {
	m := &fakeSchemaMigrator{upErr: errors.New("boom")}
	_, _, err := runMigrate(t, m, "postgres://env/db", "up")
	require.Error(t, err)
	assert.True(t, m.closeCalled, "migrator closed after failure")
}

func TestMigrateCommand_Down(t *testing.T) {
	m := &fakeSchemaMigrator{version: 2}
	out, _, err := runMigrate(t, m, "postgres://env/db", "down")
	require.NoError(t, err)
	assert.True(t, m.downCalled)
	assert.Contains(t, out, "rolled back")
}

func TestMigrateCommand_Version(t *testing.T) {
	m := &fakeSchemaMigrator{status: &store.MigrationStatus{
		Current: 1,
		Latest:  2,
		Dirty:   true,
		Pending: []uint{2},
	}}
	out, _, err := runMigrate(t, m, "postgres://env/db", "version")
	require.NoError(t, err)

	assert.Contains(t, out, "Current version: 1")
	assert.Contains(t, out, "Latest version:  2")
	assert.Contains(t, out, "dirty")
	assert.Contains(t, out, "Pending: [2]")
}

func TestMigrateCommand_Force(t *testing.T) {
	m := &fakeSchemaMigrator{}
	out, _, err := runMigrate(t, m, "postgres://env/db", "force", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.forced)
	assert.Contains(t, out, "Forced version 1")
}

func TestMigrateCommand_ForceRejectsNonInteger(t *testing.T) {
	_, _, err := runMigrate(t, &fakeSchemaMigrator{}, "postgres://env/db", "force", "abc")
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}
