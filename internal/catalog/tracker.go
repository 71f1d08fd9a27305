package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/yugabyte/ysql-upgrade/internal/migrations"
	"github.com/yugabyte/ysql-upgrade/internal/postgres"
)

const (
	trackingTable = "pg_yb_migration"

	// Relation oids reserved for pg_yb_migration in the catalog
	// numbering scheme.
	trackingTableOID        = 8027
	trackingTableRowTypeOID = 8028

	// baselineName marks a version row inferred from catalog state
	// rather than recorded by an actually-applied script.
	baselineName = "<baseline>"
)

// systemDML prefixes a statement so it may write to a catalog-owned
// table, which the cluster otherwise restricts to DDL transactions.
// Exec runs the combined text over the simple protocol, so the SET
// LOCAL and the write share one implicit transaction.
func systemDML(query string) string {
	return "SET LOCAL yb_non_ddl_txn_for_sys_tables_allowed TO true;\n" + query
}

func quoteLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Tracker reads and writes per-database version records in the
// pg_yb_migration tracking table.
type Tracker struct {
	logger zerolog.Logger
}

func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		logger: logger.With().
			Str("component", "catalog_tracker").
			Logger(),
	}
}

// EnsureTable creates the tracking table when it is absent. Reports
// whether this call created it.
func (t *Tracker) EnsureTable(ctx context.Context, conn postgres.Executor) (bool, error) {
	exists, err := postgres.SystemTableExists(trackingTable).Row(ctx, conn)
	if err != nil {
		return false, fmt.Errorf("failed to check for the %s table: %w", trackingTable, err)
	}
	if exists {
		t.logger.Info().Msgf("%s table is present", trackingTable)
		return false, nil
	}

	createSQL := fmt.Sprintf(
		"CREATE TABLE pg_catalog.pg_yb_migration ("+
			"  major        int    NOT NULL,"+
			"  minor        int    NOT NULL,"+
			"  name         name   NOT NULL,"+
			"  time_applied bigint"+
			") WITH (table_oid = %d, row_type_oid = %d);",
		trackingTableOID, trackingTableRowTypeOID)
	if _, err := conn.Exec(ctx, createSQL); err != nil {
		return false, fmt.Errorf("failed to create the %s table: %w", trackingTable, err)
	}

	t.logger.Info().Msgf("%s table was created", trackingTable)
	return true, nil
}

// DetermineVersion establishes a database's current schema version and
// makes sure it is recorded in the tracking table. A version already
// recorded wins; otherwise the version is inferred from catalog state
// and persisted as a baseline row. Calling this twice returns the same
// version without inserting a second baseline.
func (t *Tracker) DetermineVersion(ctx context.Context, conn postgres.Executor) (migrations.Version, error) {
	created, err := t.EnsureTable(ctx, conn)
	if err != nil {
		return migrations.Version{}, err
	}

	if !created {
		var version migrations.Version
		row := conn.QueryRow(ctx,
			"SELECT major, minor FROM pg_catalog.pg_yb_migration"+
				"  ORDER BY major DESC, minor DESC"+
				"  LIMIT 1;")
		err := row.Scan(&version.Major, &version.Minor)
		if err == nil {
			t.logger.Info().Stringer("version", version).Msg("version found in tracking table")
			return version, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return migrations.Version{}, fmt.Errorf("failed to read the latest recorded version: %w", err)
		}
		// A pre-existing but empty table falls through to inference.
	}

	major, err := MajorVersionFromCatalogState(ctx, conn)
	if err != nil {
		return migrations.Version{}, err
	}

	insert := fmt.Sprintf(
		"INSERT INTO pg_catalog.pg_yb_migration (major, minor, name, time_applied)"+
			"  VALUES (%d, 0, '%s', NULL);",
		major, baselineName)
	if _, err := conn.Exec(ctx, systemDML(insert)); err != nil {
		return migrations.Version{}, fmt.Errorf("failed to insert the baseline version: %w", err)
	}

	version := migrations.Version{Major: major}
	t.logger.Info().Stringer("version", version).Msg("inserted a baseline version")
	return version, nil
}

// RecordApplied inserts a row marking a migration script as applied.
// Run on the same connection right after the script, it only becomes
// visible once the script's final transaction has committed.
func (t *Tracker) RecordApplied(ctx context.Context, conn postgres.Executor, version migrations.Version, filename string) error {
	insert := fmt.Sprintf(
		"INSERT INTO pg_catalog.pg_yb_migration (major, minor, name, time_applied)"+
			"  VALUES (%d, %d, '%s', ROUND(EXTRACT(EPOCH FROM CURRENT_TIMESTAMP) * 1000));",
		version.Major, version.Minor, quoteLiteral(filename))
	if _, err := conn.Exec(ctx, systemDML(insert)); err != nil {
		return fmt.Errorf("failed to record version %s: %w", version, err)
	}
	return nil
}
