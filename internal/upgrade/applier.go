package upgrade

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yugabyte/ysql-upgrade/internal/migrations"
	"github.com/yugabyte/ysql-upgrade/internal/postgres"
)

// VersionStore persists per-database version records.
type VersionStore interface {
	DetermineVersion(ctx context.Context, conn postgres.Executor) (migrations.Version, error)
	RecordApplied(ctx context.Context, conn postgres.Executor, version migrations.Version, filename string) error
}

// DatabaseEntry tracks one database's upgrade progress for the duration
// of a run. Entries are owned exclusively by the Scheduler; Version
// always equals the highest version recorded in that database's
// tracking table.
type DatabaseEntry struct {
	Name    string
	Conn    postgres.Conn
	Version migrations.Version
}

// Applier advances one database by exactly one migration step.
type Applier struct {
	registry  *migrations.Registry
	store     VersionStore
	heartbeat time.Duration
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration)
}

func NewApplier(registry *migrations.Registry, store VersionStore, heartbeat time.Duration, logger zerolog.Logger) *Applier {
	return &Applier{
		registry:  registry,
		store:     store,
		heartbeat: heartbeat,
		logger: logger.With().
			Str("component", "applier").
			Logger(),
		sleep: sleepContext,
	}
}

// Apply runs the next pending migration against db and records the new
// version. The caller must not invoke Apply when db is already at the
// latest registry version. When awaitPropagation is set, Apply blocks
// for twice the heartbeat interval after the script commits so other
// nodes can learn of the new catalog state; the scheduler requests this
// at most once per run.
//
// A failure in reading or executing the script leaves db.Version
// unchanged: the database stays at its last recorded version and the
// run can be restarted from there once the cause is fixed.
func (a *Applier) Apply(ctx context.Context, db *DatabaseEntry, awaitPropagation bool) error {
	script, ok := a.registry.Next(db.Version)
	if !ok {
		return fmt.Errorf("no migration found following version %s", db.Version)
	}

	content, err := a.registry.Read(script)
	if err != nil {
		return err
	}

	a.logger.Info().
		Str("database", db.Name).
		Str("migration", script.Filename).
		Msg("applying migration")

	// The whole script goes out as one simple-protocol request, so it
	// executes inside a single implicit transaction. A script may issue
	// its own BEGIN/COMMIT statements, splitting that into several
	// explicit transactions; nothing here prevents or detects that.
	if _, err := db.Conn.Exec(ctx, string(content)); err != nil {
		if postgres.IsCatalogVersionMismatch(err) {
			a.logger.Warn().
				Str("database", db.Name).
				Str("sqlstate", postgres.SQLState(err)).
				Msg("catalog version mismatch; re-run the upgrade once the cluster has caught up")
		}
		return fmt.Errorf("failed to apply migration %q to database %q: %w", script.Filename, db.Name, err)
	}

	if awaitPropagation {
		// Other nodes cache the catalog version and only learn that
		// version tracking exists through the periodic heartbeat. The
		// sleep is best-effort: a version that still fails to propagate
		// surfaces as a catalog version mismatch, fixed by retrial.
		wait := 2 * a.heartbeat
		a.logger.Info().
			Dur("wait", wait).
			Msg("waiting for the catalog version to propagate")
		a.sleep(ctx, wait)
	}

	if err := a.store.RecordApplied(ctx, db.Conn, script.Version, script.Filename); err != nil {
		return fmt.Errorf("failed to bump the recorded version to %s in database %q: %w", script.Version, db.Name, err)
	}

	db.Version = script.Version
	a.logger.Info().
		Str("database", db.Name).
		Stringer("version", db.Version).
		Msg("migration applied")

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
