package catalog

import (
	"context"
	"fmt"

	"github.com/yugabyte/ysql-upgrade/internal/postgres"
)

type checkFunc func(ctx context.Context, conn postgres.Executor) (bool, error)

type probe struct {
	feature string
	check   checkFunc
}

// featureProbes lists catalog-evolving features in the order they were
// released. Later features only ever landed on top of earlier ones, so
// the first absent feature identifies a database's historical
// generation unambiguously.
var featureProbes = []probe{
	// V1: pg_yb_catalog_version table, populated.
	{"pg_yb_catalog_version rows", systemTableHasRows("pg_yb_catalog_version")},
	// V2: pg_tablegroup.
	{"pg_tablegroup table", systemTableExists("pg_tablegroup")},
	// V3: pg_stat_statements.
	{"pg_stat_statements table", systemTableExists("pg_stat_statements")},
	// V4: the jsonb path query family.
	{"jsonb_path_query function", functionExists("jsonb_path_query")},
	// V5: yb_getrusage and yb_mem_usage*.
	{"yb_getrusage function", functionExists("yb_getrusage")},
	// V6: yb_servers.
	{"yb_servers function", functionExists("yb_servers")},
	// V7: yb_hash_code.
	{"yb_hash_code function", functionExists("yb_hash_code")},
	// V8: the ybgin access method.
	{"ybginhandler function", functionExists("ybginhandler")},
}

// MajorVersionFromCatalogState infers the major schema version of a
// database with no migration history by probing for known features in
// release order, stopping at the first one that is absent. A database
// predating every probed feature is version 0; that is not an error.
func MajorVersionFromCatalogState(ctx context.Context, conn postgres.Executor) (int, error) {
	major := 0
	for _, p := range featureProbes {
		present, err := p.check(ctx, conn)
		if err != nil {
			return 0, fmt.Errorf("failed to probe for %s: %w", p.feature, err)
		}
		if !present {
			break
		}
		major++
	}
	return major, nil
}

func systemTableExists(name string) checkFunc {
	return func(ctx context.Context, conn postgres.Executor) (bool, error) {
		return postgres.SystemTableExists(name).Row(ctx, conn)
	}
}

func systemTableHasRows(name string) checkFunc {
	return func(ctx context.Context, conn postgres.Executor) (bool, error) {
		exists, err := postgres.SystemTableExists(name).Row(ctx, conn)
		if err != nil || !exists {
			return false, err
		}
		count, err := postgres.SystemTableRowCount(name).Row(ctx, conn)
		if err != nil {
			return false, err
		}
		return count > 0, nil
	}
}

func functionExists(name string) checkFunc {
	return func(ctx context.Context, conn postgres.Executor) (bool, error) {
		return postgres.FunctionExists(name).Row(ctx, conn)
	}
}
