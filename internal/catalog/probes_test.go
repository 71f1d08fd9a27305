package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/ysql-upgrade/internal/catalog"
	"github.com/yugabyte/ysql-upgrade/internal/postgres/postgrestest"
)

// featureGenerations maps each probed catalog object to the major
// version that introduced it.
var (
	tableGenerations = map[string]int{
		"pg_yb_catalog_version": 1,
		"pg_tablegroup":         2,
		"pg_stat_statements":    3,
	}
	functionGenerations = map[string]int{
		"jsonb_path_query": 4,
		"yb_getrusage":     5,
		"yb_servers":       6,
		"yb_hash_code":     7,
		"ybginhandler":     8,
	}
)

// catalogAtGeneration fakes a database whose catalog contains exactly
// the features introduced up to and including generation k.
func catalogAtGeneration(k int) *postgrestest.FakeExecutor {
	present := func(gen int, ok bool) bool { return ok && gen <= k }

	f := postgrestest.NewFakeExecutor()
	f.Handle("FROM pg_class", func(_ string, args []any) ([][]any, error) {
		gen, ok := tableGenerations[postgrestest.NamedArg(args, "relname")]
		return [][]any{{present(gen, ok)}}, nil
	})
	f.Handle("FROM pg_proc", func(_ string, args []any) ([][]any, error) {
		gen, ok := functionGenerations[postgrestest.NamedArg(args, "proname")]
		return [][]any{{present(gen, ok)}}, nil
	})
	f.Respond("FROM pg_yb_catalog_version", []any{int64(1)})
	return f
}

func TestMajorVersionFromCatalogState(t *testing.T) {
	t.Run("counts consecutive features", func(t *testing.T) {
		for k := 0; k <= 8; k++ {
			major, err := catalog.MajorVersionFromCatalogState(context.Background(), catalogAtGeneration(k))
			require.NoError(t, err)
			assert.Equal(t, k, major, "generation %d", k)
		}
	})

	t.Run("stops at the first gap regardless of later features", func(t *testing.T) {
		// pg_tablegroup (V2) is missing while every function probe from
		// V4 onwards would pass.
		f := postgrestest.NewFakeExecutor()
		f.Handle("FROM pg_class", func(_ string, args []any) ([][]any, error) {
			relname := postgrestest.NamedArg(args, "relname")
			return [][]any{{relname == "pg_yb_catalog_version"}}, nil
		})
		f.Respond("FROM pg_yb_catalog_version", []any{int64(5)})
		f.Respond("FROM pg_proc", []any{true})

		major, err := catalog.MajorVersionFromCatalogState(context.Background(), f)
		require.NoError(t, err)
		assert.Equal(t, 1, major)
	})

	t.Run("an existing but empty catalog version table does not count", func(t *testing.T) {
		f := postgrestest.NewFakeExecutor()
		f.Handle("FROM pg_class", func(_ string, args []any) ([][]any, error) {
			return [][]any{{postgrestest.NamedArg(args, "relname") == "pg_yb_catalog_version"}}, nil
		})
		f.Respond("FROM pg_yb_catalog_version", []any{int64(0)})

		major, err := catalog.MajorVersionFromCatalogState(context.Background(), f)
		require.NoError(t, err)
		assert.Equal(t, 0, major)
	})

	t.Run("propagates query errors", func(t *testing.T) {
		probeErr := errors.New("connection reset")
		f := postgrestest.NewFakeExecutor()
		f.Fail("FROM pg_class", probeErr)

		_, err := catalog.MajorVersionFromCatalogState(context.Background(), f)
		assert.ErrorIs(t, err, probeErr)
		assert.ErrorContains(t, err, "failed to probe")
	})
}
