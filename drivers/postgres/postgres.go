// Package postgres wires the pgx database/sql driver to the Postgres
// dialect: "$n" placeholders and pg_advisory_lock based locks.
package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/canonical/sqlbind"
)

// DriverName is the database/sql name of the pgx driver.
const DriverName = "pgx"

func init() {
	sqlbind.RegisterDialect(DriverName, stdlib.GetDefaultDriver(), sqlbind.Postgres)
}

// Open opens a pool from a pgx connection string, either a URL or a list of
// key=value settings.
func Open(connString string, opts ...sqlbind.Option) (*sqlbind.DB, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("cannot parse connection string: %w", err)
	}
	sqldb := stdlib.OpenDB(*cfg)
	opts = append([]sqlbind.Option{sqlbind.WithDialect(sqlbind.Postgres)}, opts...)
	return sqlbind.NewDB(sqldb, opts...), nil
}
