package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Executor is the subset of a pgx connection used by this tool. A bare
// Exec of a multi-statement string runs over the simple protocol, so the
// whole script executes inside one implicit transaction unless the
// script issues its own transaction control.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Conn is a dedicated connection to one database. Each database under
// management holds exactly one for the duration of a run.
type Conn interface {
	Executor
	Close(ctx context.Context) error
}

// Query is a single-statement query returning values of type T in its
// first column.
type Query[T any] struct {
	SQL  string
	Args pgx.NamedArgs
}

// Row runs the query and scans the single resulting row.
func (q Query[T]) Row(ctx context.Context, conn Executor) (T, error) {
	var result T
	row := conn.QueryRow(ctx, q.SQL, q.Args)
	if err := row.Scan(&result); err != nil {
		return result, err
	}
	return result, nil
}

// Rows runs the query and scans every resulting row.
func (q Query[T]) Rows(ctx context.Context, conn Executor) ([]T, error) {
	rows, err := conn.Query(ctx, q.SQL, q.Args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []T
	for rows.Next() {
		var result T
		if err := rows.Scan(&result); err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
