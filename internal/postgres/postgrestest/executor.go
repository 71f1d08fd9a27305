// Package postgrestest provides an in-memory postgres.Executor for
// tests that exercise catalog queries without a live cluster.
package postgrestest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// HandlerFunc produces the rows for a matched query. It may mutate
// test state to model statement side effects.
type HandlerFunc func(sql string, args []any) ([][]any, error)

type handler struct {
	substr string
	fn     HandlerFunc
}

// FakeExecutor implements postgres.Executor. Queries are dispatched to
// the first registered handler whose substring occurs in the SQL text.
// Statements without a matching handler succeed silently; queries
// without one fail loudly so tests never pass by accident.
type FakeExecutor struct {
	mu       sync.Mutex
	handlers []handler

	// Executed records every statement passed to Exec, in order.
	Executed []string
	// Closed reports whether Close was called.
	Closed bool
}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{}
}

// Handle registers a handler for queries containing substr.
func (f *FakeExecutor) Handle(substr string, fn HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler{substr: substr, fn: fn})
}

// Respond registers a handler returning fixed rows.
func (f *FakeExecutor) Respond(substr string, rows ...[]any) {
	f.Handle(substr, func(_ string, _ []any) ([][]any, error) {
		return rows, nil
	})
}

// Fail registers a handler returning err.
func (f *FakeExecutor) Fail(substr string, err error) {
	f.Handle(substr, func(_ string, _ []any) ([][]any, error) {
		return nil, err
	})
}

// Dispatch runs the first matching handler directly. It lets one fake
// be layered on top of another.
func (f *FakeExecutor) Dispatch(sql string, args []any) ([][]any, error) {
	fn, ok := f.match(sql)
	if !ok {
		return nil, fmt.Errorf("no handler registered for query: %s", sql)
	}
	return fn(sql, args)
}

func (f *FakeExecutor) match(sql string) (HandlerFunc, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.handlers {
		if strings.Contains(sql, h.substr) {
			return h.fn, true
		}
	}
	return nil, false
}

func (f *FakeExecutor) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	f.Executed = append(f.Executed, sql)
	f.mu.Unlock()

	if fn, ok := f.match(sql); ok {
		if _, err := fn(sql, args); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.CommandTag{}, nil
}

func (f *FakeExecutor) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	fn, ok := f.match(sql)
	if !ok {
		return nil, fmt.Errorf("no handler registered for query: %s", sql)
	}
	rows, err := fn(sql, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: rows}, nil
}

func (f *FakeExecutor) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	rows, err := f.Query(ctx, sql, args...)
	if err != nil {
		return errRow{err: err}
	}
	return rowFromRows(rows.(*fakeRows))
}

func (f *FakeExecutor) Close(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

type errRow struct {
	err error
}

func (r errRow) Scan(_ ...any) error { return r.err }

func rowFromRows(rows *fakeRows) pgx.Row {
	if len(rows.rows) == 0 {
		return errRow{err: pgx.ErrNoRows}
	}
	return singleRow{values: rows.rows[0]}
}

type singleRow struct {
	values []any
}

func (r singleRow) Scan(dest ...any) error {
	return scanInto(r.values, dest)
}

type fakeRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return scanInto(r.rows[r.idx-1], dest)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx-1], nil
}

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("expected %d scan destinations, got %d", len(values), len(dest))
	}
	for i, value := range values {
		if err := assign(dest[i], value); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, value any) error {
	switch d := dest.(type) {
	case *bool:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("cannot scan %T into *bool", value)
		}
		*d = v
	case *int:
		switch v := value.(type) {
		case int:
			*d = v
		case int64:
			*d = int(v)
		default:
			return fmt.Errorf("cannot scan %T into *int", value)
		}
	case *int64:
		switch v := value.(type) {
		case int:
			*d = int64(v)
		case int64:
			*d = v
		default:
			return fmt.Errorf("cannot scan %T into *int64", value)
		}
	case *string:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into *string", value)
		}
		*d = v
	default:
		return fmt.Errorf("unsupported scan destination %T", dest)
	}
	return nil
}

// NamedArg extracts a named argument from the args a query was invoked
// with, or returns an empty string.
func NamedArg(args []any, name string) string {
	for _, arg := range args {
		named, ok := arg.(pgx.NamedArgs)
		if !ok {
			continue
		}
		if value, ok := named[name].(string); ok {
			return value
		}
	}
	return ""
}
