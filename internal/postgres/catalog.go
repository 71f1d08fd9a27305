package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SystemTableExists reports whether a relation with the given name
// exists in the pg_catalog namespace.
func SystemTableExists(name string) Query[bool] {
	return Query[bool]{
		SQL:  "SELECT COUNT(*) = 1 FROM pg_class WHERE relname = @relname AND relnamespace = 'pg_catalog'::regnamespace;",
		Args: pgx.NamedArgs{"relname": name},
	}
}

// SystemTableRowCount counts the rows of a system table. The table name
// is interpolated directly and must be a fixed catalog identifier, never
// user input.
func SystemTableRowCount(name string) Query[int64] {
	return Query[int64]{
		SQL: fmt.Sprintf("SELECT COUNT(*) FROM %s;", name),
	}
}

// FunctionExists reports whether a function with the given name exists.
func FunctionExists(name string) Query[bool] {
	return Query[bool]{
		SQL:  "SELECT COUNT(*) = 1 FROM pg_proc WHERE proname = @proname;",
		Args: pgx.NamedArgs{"proname": name},
	}
}

// ListUserDatabases returns the names of every database other than the
// two templates.
func ListUserDatabases() Query[string] {
	return Query[string]{
		SQL: "SELECT datname FROM pg_database WHERE datname NOT IN ('template0', 'template1');",
	}
}
