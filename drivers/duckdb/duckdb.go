// Package duckdb wires the DuckDB database/sql driver to the DuckDB
// dialect. DuckDB has no advisory locks and no savepoints.
package duckdb

import (
	"database/sql"
	"fmt"

	"github.com/marcboeker/go-duckdb"

	"github.com/canonical/sqlbind"
)

// DriverName is the database/sql name of the DuckDB driver.
const DriverName = "duckdb"

func init() {
	sqlbind.RegisterDialect(DriverName, duckdb.Driver{}, sqlbind.DuckDB)
}

// Open opens the database file at path, or an in-memory database when path
// is empty.
func Open(path string, opts ...sqlbind.Option) (*sqlbind.DB, error) {
	sqldb, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("cannot open duckdb database: %w", err)
	}
	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("cannot open duckdb database: %w", err)
	}
	opts = append([]sqlbind.Option{sqlbind.WithDialect(sqlbind.DuckDB)}, opts...)
	return sqlbind.NewDB(sqldb, opts...), nil
}
