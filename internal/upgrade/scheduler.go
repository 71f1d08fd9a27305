package upgrade

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/yugabyte/ysql-upgrade/internal/migrations"
	"github.com/yugabyte/ysql-upgrade/internal/postgres"
)

const (
	bootstrapDatabase = "template1"
	templateDatabase  = "template0"

	// catalogVersionMigrationMajor is the major version of the
	// migration that introduces catalog version tracking. Any database
	// already at or past it proves the rest of the cluster has seen the
	// tracking table, so the propagation wait can be skipped.
	catalogVersionMigrationMajor = 1
)

// Connector opens a dedicated connection to one database.
type Connector interface {
	Connect(ctx context.Context, database string) (postgres.Conn, error)
}

// Scheduler drives a whole-cluster upgrade: it discovers the available
// migrations, establishes every database's starting version, and then
// repeatedly advances the least upgraded database by one step until all
// of them reach the latest version.
type Scheduler struct {
	fs            afero.Fs
	migrationsDir string
	connector     Connector
	store         VersionStore
	heartbeat     time.Duration
	logger        zerolog.Logger
	sleep         func(ctx context.Context, d time.Duration)
}

func NewScheduler(
	fsys afero.Fs,
	migrationsDir string,
	connector Connector,
	store VersionStore,
	heartbeat time.Duration,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		fs:            fsys,
		migrationsDir: migrationsDir,
		connector:     connector,
		store:         store,
		heartbeat:     heartbeat,
		logger: logger.With().
			Str("component", "scheduler").
			Logger(),
		sleep: sleepContext,
	}
}

// Run upgrades every database in the cluster to the latest version
// known to the migrations directory. Any error is fatal to the whole
// run; databases keep whatever version was last durably recorded, so a
// re-invocation resumes from there.
func (s *Scheduler) Run(ctx context.Context) error {
	registry, err := migrations.NewRegistry(s.fs, s.migrationsDir)
	if err != nil {
		return err
	}
	latest := registry.Latest()
	s.logger.Info().
		Stringer("latest_version", latest).
		Int("scripts", registry.Len()).
		Msg("analyzed migration files")

	applier := NewApplier(registry, s.store, s.heartbeat, s.logger)
	applier.sleep = s.sleep

	entries, propagated, err := s.collectDatabases(ctx)
	defer func() {
		closeCtx := context.WithoutCancel(ctx)
		for i := range entries {
			if cerr := entries[i].Conn.Close(closeCtx); cerr != nil {
				s.logger.Warn().
					Err(cerr).
					Str("database", entries[i].Name).
					Msg("failed to close connection")
			}
		}
	}()
	if err != nil {
		return err
	}

	for {
		min := &entries[0]
		for i := range entries {
			if entries[i].Version.Less(min.Version) {
				min = &entries[i]
			}
		}

		if !min.Version.Less(latest) {
			s.logger.Info().
				Stringer("version", min.Version).
				Msg("minimum version is the latest; all databases are up to date")
			return nil
		}

		s.logger.Info().
			Str("database", min.Name).
			Stringer("version", min.Version).
			Msg("advancing the least upgraded database")

		if err := applier.Apply(ctx, min, !propagated); err != nil {
			return err
		}
		propagated = true
	}
}

// collectDatabases connects to every database and determines its
// starting version. The template databases come first: user databases
// may be cloned from them, so they must be correct before anything
// else. All opened connections are returned, even on error, so the
// caller can close them.
func (s *Scheduler) collectDatabases(ctx context.Context) (entries []DatabaseEntry, propagated bool, err error) {
	bootstrap, err := s.connector.Connect(ctx, bootstrapDatabase)
	if err != nil {
		return nil, false, fmt.Errorf("failed to connect to the bootstrap database: %w", err)
	}

	names := []string{bootstrapDatabase, templateDatabase}
	others, err := postgres.ListUserDatabases().Rows(ctx, bootstrap)
	if err != nil {
		_ = bootstrap.Close(ctx)
		return nil, false, fmt.Errorf("failed to list databases: %w", err)
	}
	names = append(names, others...)

	for _, name := range names {
		conn := bootstrap
		if name != bootstrapDatabase {
			if conn, err = s.connector.Connect(ctx, name); err != nil {
				return entries, false, err
			}
		}
		entries = append(entries, DatabaseEntry{Name: name, Conn: conn})

		s.logger.Info().
			Str("database", name).
			Msg("determining the current schema version")

		version, err := s.store.DetermineVersion(ctx, conn)
		if err != nil {
			return entries, false, fmt.Errorf("failed to determine the version of database %q: %w", name, err)
		}
		entries[len(entries)-1].Version = version

		if version.Major >= catalogVersionMigrationMajor {
			propagated = true
		}
	}

	return entries, propagated, nil
}
