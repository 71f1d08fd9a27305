package upgrade

import (
	"context"
	"errors"
	"fmt"
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

const testMigrationsDir = "/share/ysql_migrations"

type fakeConnector struct {
	conns map[string]*postgrestest.FakeExecutor
}

func (c *fakeConnector) Connect(_ context.Context, database string) (postgres.Conn, error) {
	conn, ok := c.conns[database]
	if !ok {
		return nil, fmt.Errorf("unknown database %q", database)
	}
	return conn, nil
}

type appliedRecord struct {
	database string
	version  migrations.Version
	filename string
}

type fakeStore struct {
	names     map[postgres.Executor]string
	versions  map[postgres.Executor]migrations.Version
	applied   []appliedRecord
	recordErr error
}

func (s *fakeStore) DetermineVersion(_ context.Context, conn postgres.Executor) (migrations.Version, error) {
	return s.versions[conn], nil
}

func (s *fakeStore) RecordApplied(_ context.Context, conn postgres.Executor, version migrations.Version, filename string) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.versions[conn] = version
	s.applied = append(s.applied, appliedRecord{
		database: s.names[conn],
		version:  version,
		filename: filename,
	})
	return nil
}

func (s *fakeStore) appliedTo(database string) []migrations.Version {
	var versions []migrations.Version
	for _, record := range s.applied {
		if record.database == database {
			versions = append(versions, record.version)
		}
	}
	return versions
}

type fixture struct {
	fs        afero.Fs
	connector *fakeConnector
	store     *fakeStore
	scheduler *Scheduler
	sleeps    int
}

// newFixture fakes a cluster holding the template databases plus the
// given user databases, each starting at the listed version, with one
// migration script per version in scripts.
func newFixture(t *testing.T, scripts []string, starting map[string]migrations.Version, userDatabases ...string) *fixture {
	t.Helper()

	fs := afero.NewMemMapFs()
	for _, name := range scripts {
		path := filepath.Join(testMigrationsDir, name)
		require.NoError(t, afero.WriteFile(fs, path, []byte("-- "+name+"\n"), 0o644))
	}

	f := &fixture{
		fs:        fs,
		connector: &fakeConnector{conns: make(map[string]*postgrestest.FakeExecutor)},
		store: &fakeStore{
			names:    make(map[postgres.Executor]string),
			versions: make(map[postgres.Executor]migrations.Version),
		},
	}

	var userRows [][]any
	for _, name := range userDatabases {
		userRows = append(userRows, []any{name})
	}

	for name, version := range starting {
		conn := postgrestest.NewFakeExecutor()
		if name == "template1" {
			conn.Respond("FROM pg_database", userRows...)
		}
		f.connector.conns[name] = conn
		f.store.names[conn] = name
		f.store.versions[conn] = version
	}

	f.scheduler = NewScheduler(
		fs,
		testMigrationsDir,
		f.connector,
		f.store,
		50*time.Millisecond,
		testutils.Logger(t),
	)
	f.scheduler.sleep = func(_ context.Context, _ time.Duration) {
		f.sleeps++
	}

	return f
}

var threeScripts = []string{
	"V1__3979__catalog_version.sql",
	"V2__4525__tablegroups.sql",
	"V3__5478__stat_statements.sql",
}

func TestRunAdvancesTheLaggardFirst(t *testing.T) {
	f := newFixture(t, threeScripts, map[string]migrations.Version{
		"template1": {Major: 0},
		"template0": {Major: 1},
		"yugabyte":  {Major: 2},
	}, "yugabyte")

	require.NoError(t, f.scheduler.Run(context.Background()))

	// 3 + 2 + 1 steps in total, every database ending at the latest
	// version, each one stepping through strictly increasing versions.
	assert.Len(t, f.store.applied, 6)
	assert.Equal(t, []migrations.Version{{Major: 1}, {Major: 2}, {Major: 3}}, f.store.appliedTo("template1"))
	assert.Equal(t, []migrations.Version{{Major: 2}, {Major: 3}}, f.store.appliedTo("template0"))
	assert.Equal(t, []migrations.Version{{Major: 3}}, f.store.appliedTo("yugabyte"))

	// One database already had a tracked version at startup, so the
	// propagation wait is unnecessary.
	assert.Equal(t, 0, f.sleeps)

	for name, conn := range f.connector.conns {
		assert.True(t, conn.Closed, "connection to %s should be closed", name)
	}
}

func TestRunWaitsForPropagationExactlyOnce(t *testing.T) {
	f := newFixture(t, threeScripts, map[string]migrations.Version{
		"template1": {},
		"template0": {},
		"yugabyte":  {},
	}, "yugabyte")

	require.NoError(t, f.scheduler.Run(context.Background()))

	assert.Len(t, f.store.applied, 9)
	assert.Equal(t, 1, f.sleeps, "the wait happens once per run, not once per database")
}

func TestRunIsANoOpWhenEverythingIsLatest(t *testing.T) {
	f := newFixture(t, threeScripts, map[string]migrations.Version{
		"template1": {Major: 3},
		"template0": {Major: 3},
		"yugabyte":  {Major: 3},
	}, "yugabyte")

	require.NoError(t, f.scheduler.Run(context.Background()))

	assert.Empty(t, f.store.applied)
	assert.Equal(t, 0, f.sleeps)
}

func TestRunAbortsOnScriptFailure(t *testing.T) {
	f := newFixture(t, threeScripts, map[string]migrations.Version{
		"template1": {},
		"template0": {},
		"yugabyte":  {},
	}, "yugabyte")

	execErr := errors.New("division by zero")
	f.connector.conns["template0"].Fail("V2__4525__tablegroups.sql", execErr)

	err := f.scheduler.Run(context.Background())
	require.ErrorIs(t, err, execErr)
	assert.ErrorContains(t, err, `failed to apply migration "V2__4525__tablegroups.sql" to database "template0"`)

	// The failing database stays at its last recorded version.
	conn := f.connector.conns["template0"]
	assert.Equal(t, migrations.Version{Major: 1}, f.store.versions[conn])

	for name, c := range f.connector.conns {
		assert.True(t, c.Closed, "connection to %s should be closed", name)
	}
}

func TestRunFailsFastOnABadMigrationsDirectory(t *testing.T) {
	f := newFixture(t, threeScripts, map[string]migrations.Version{
		"template1": {},
		"template0": {},
	})
	f.scheduler.migrationsDir = "/nowhere"

	err := f.scheduler.Run(context.Background())
	assert.ErrorContains(t, err, "not found")
	assert.Empty(t, f.store.applied)
}
