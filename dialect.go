// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlbind

import (
	"database/sql/driver"
	"reflect"
	"sync"

	"github.com/canonical/sqlbind/internal/parse"
)

// Dialect holds what differs between database backends.
type Dialect struct {
	Name string
	// Placeholders is the positional marker style of the driver.
	Placeholders parse.Placeholder
	// LockSQL and UnlockSQL take and release a session level advisory lock
	// given its numeric id as the only argument. A dialect without them has
	// no advisory locks.
	LockSQL   string
	UnlockSQL string
}

var (
	SQLite = Dialect{Name: "sqlite"}
	// SQLiteWithLocks is the dialect of SQLite connections that provide the
	// pg_advisory_lock and pg_advisory_unlock functions.
	SQLiteWithLocks = Dialect{
		Name:      "sqlite",
		LockSQL:   "select pg_advisory_lock(?)",
		UnlockSQL: "select pg_advisory_unlock(?)",
	}
	Postgres = Dialect{
		Name:         "postgres",
		Placeholders: parse.Dollar,
		LockSQL:      "select pg_advisory_lock(?)",
		UnlockSQL:    "select pg_advisory_unlock(?)",
	}
	Dqlite = Dialect{Name: "dqlite"}
	DuckDB = Dialect{Name: "duckdb"}
)

// Rebind rewrites the "?" markers of query for the driver.
func (d Dialect) Rebind(query string) string {
	return parse.Rebind(query, d.Placeholders)
}

// SupportsLocks reports whether the dialect has advisory locks.
func (d Dialect) SupportsLocks() bool {
	return d.LockSQL != "" && d.UnlockSQL != ""
}

var dialectsMutex sync.RWMutex

// dialectsByName is indexed by database/sql driver name.
var dialectsByName = map[string]Dialect{
	"sqlite3":  SQLite,
	"postgres": Postgres,
	"pgx":      Postgres,
	"dqlite":   Dqlite,
	"duckdb":   DuckDB,
}

// dialectsByDriver is indexed by the type of the driver.
var dialectsByDriver = map[reflect.Type]Dialect{}

// RegisterDialect associates a dialect with a database/sql driver name and,
// when drv is not nil, with the type of the driver so that NewDB can find it.
func RegisterDialect(name string, drv driver.Driver, d Dialect) {
	dialectsMutex.Lock()
	defer dialectsMutex.Unlock()
	dialectsByName[name] = d
	if drv != nil {
		dialectsByDriver[reflect.TypeOf(drv)] = d
	}
}

// DialectFor returns the dialect registered for a driver name.
func DialectFor(name string) (Dialect, bool) {
	dialectsMutex.RLock()
	defer dialectsMutex.RUnlock()
	d, ok := dialectsByName[name]
	return d, ok
}

func dialectOf(drv driver.Driver) (Dialect, bool) {
	dialectsMutex.RLock()
	defer dialectsMutex.RUnlock()
	d, ok := dialectsByDriver[reflect.TypeOf(drv)]
	return d, ok
}
