package upgrade

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/ysql-upgrade/internal/migrations"
	"github.com/yugabyte/ysql-upgrade/internal/postgres"
	"github.com/yugabyte/ysql-upgrade/internal/postgres/postgrestest"
	"github.com/yugabyte/ysql-upgrade/internal/testutils"
)

func newTestApplier(t *testing.T, fs afero.Fs, store VersionStore) (*Applier, *int) {
	t.Helper()

	registry, err := migrations.NewRegistry(fs, testMigrationsDir)
	require.NoError(t, err)

	applier := NewApplier(registry, store, 50*time.Millisecond, testutils.Logger(t))
	sleeps := new(int)
	applier.sleep = func(_ context.Context, d time.Duration) {
		assert.Equal(t, 100*time.Millisecond, d, "wait is twice the heartbeat interval")
		*sleeps++
	}
	return applier, sleeps
}

func migrationsFs(t *testing.T, names ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range names {
		path := filepath.Join(testMigrationsDir, name)
		require.NoError(t, afero.WriteFile(fs, path, []byte("-- "+name+"\n"), 0o644))
	}
	return fs
}

func TestApplyAdvancesOneStep(t *testing.T) {
	fs := migrationsFs(t, "V1__3979__catalog_version.sql", "V2__4525__tablegroups.sql")
	conn := postgrestest.NewFakeExecutor()
	store := &fakeStore{
		names:    map[postgres.Executor]string{conn: "yugabyte"},
		versions: map[postgres.Executor]migrations.Version{conn: {}},
	}
	applier, sleeps := newTestApplier(t, fs, store)

	db := &DatabaseEntry{Name: "yugabyte", Conn: conn}
	require.NoError(t, applier.Apply(context.Background(), db, false))

	assert.Equal(t, migrations.Version{Major: 1}, db.Version)
	require.Len(t, store.applied, 1)
	assert.Equal(t, "V1__3979__catalog_version.sql", store.applied[0].filename)
	require.Len(t, conn.Executed, 1)
	assert.Equal(t, "-- V1__3979__catalog_version.sql\n", conn.Executed[0])
	assert.Equal(t, 0, *sleeps)
}

func TestApplyWaitsWhenRequested(t *testing.T) {
	fs := migrationsFs(t, "V1__3979__catalog_version.sql")
	conn := postgrestest.NewFakeExecutor()
	store := &fakeStore{
		names:    map[postgres.Executor]string{conn: "yugabyte"},
		versions: map[postgres.Executor]migrations.Version{conn: {}},
	}
	applier, sleeps := newTestApplier(t, fs, store)

	db := &DatabaseEntry{Name: "yugabyte", Conn: conn}
	require.NoError(t, applier.Apply(context.Background(), db, true))
	assert.Equal(t, 1, *sleeps)
}

func TestApplyFailsWithoutAFollowingMigration(t *testing.T) {
	fs := migrationsFs(t, "V1__3979__catalog_version.sql")
	applier, _ := newTestApplier(t, fs, &fakeStore{})

	db := &DatabaseEntry{
		Name:    "yugabyte",
		Conn:    postgrestest.NewFakeExecutor(),
		Version: migrations.Version{Major: 1},
	}
	err := applier.Apply(context.Background(), db, false)
	assert.ErrorContains(t, err, "no migration found following version 1.0")
}

func TestApplyKeepsTheVersionOnRecordFailure(t *testing.T) {
	fs := migrationsFs(t, "V1__3979__catalog_version.sql")
	conn := postgrestest.NewFakeExecutor()
	recordErr := errors.New("connection reset")
	store := &fakeStore{
		names:     map[postgres.Executor]string{conn: "yugabyte"},
		versions:  map[postgres.Executor]migrations.Version{conn: {}},
		recordErr: recordErr,
	}
	applier, _ := newTestApplier(t, fs, store)

	db := &DatabaseEntry{Name: "yugabyte", Conn: conn}
	err := applier.Apply(context.Background(), db, false)
	require.ErrorIs(t, err, recordErr)
	assert.ErrorContains(t, err, `failed to bump the recorded version to 1.0 in database "yugabyte"`)
	assert.Equal(t, migrations.Version{}, db.Version)
}
