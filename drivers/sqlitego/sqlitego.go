// Package sqlitego registers the SQLite dialect for the pure Go SQLite
// driver, for builds without cgo. Its connections have no advisory lock
// functions; use package sqlite for those.
package sqlitego

import (
	"database/sql"
	"fmt"

	"modernc.org/sqlite"

	"github.com/canonical/sqlbind"
)

// DriverName is the database/sql name of the pure Go driver.
const DriverName = "sqlite"

func init() {
	sqlbind.RegisterDialect(DriverName, &sqlite.Driver{}, sqlbind.SQLite)
}

// Open opens a database on the pure Go driver. An in-memory database is
// private to its connection, so the pool is limited to one connection for
// ":memory:".
func Open(dsn string, opts ...sqlbind.Option) (*sqlbind.DB, error) {
	sqldb, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open sqlite database: %w", err)
	}
	if dsn == ":memory:" {
		sqldb.SetMaxOpenConns(1)
	}
	return sqlbind.NewDB(sqldb, opts...), nil
}
