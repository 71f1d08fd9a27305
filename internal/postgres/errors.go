package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsCatalogVersionMismatch reports whether err is the SQLSTATE 40001
// error a tserver raises when its cached catalog version is stale. The
// heartbeat-sized propagation wait only reduces the odds of hitting
// this; re-running the upgrade from the last recorded version is the
// recovery path.
//
// PostgreSQL SQLSTATE reference: https://www.postgresql.org/docs/current/errcodes-appendix.html
func IsCatalogVersionMismatch(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.SerializationFailure
}

// SQLState extracts the SQLSTATE code from err, or returns an empty
// string when err is not a PostgreSQL error.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
