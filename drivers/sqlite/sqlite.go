// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package sqlite registers a SQLite driver whose connections provide
// session level advisory locks through the pg_advisory_lock and
// pg_advisory_unlock functions, so that handles on SQLite databases support
// Handle.Lock. The locks are shared by the connections of the process.
package sqlite

import (
	"database/sql"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlbind"
)

// DriverName is the database/sql name of the driver.
const DriverName = "sqlite3_sqlbind"

// Driver is the SQLite driver with advisory lock functions.
type Driver struct {
	*sqlite3.SQLiteDriver
}

func init() {
	drv := &Driver{&sqlite3.SQLiteDriver{ConnectHook: registerLockFuncs}}
	sql.Register(DriverName, drv)
	sqlbind.RegisterDialect(DriverName, drv, sqlbind.SQLiteWithLocks)
	sqlbind.RegisterDialect("sqlite3", &sqlite3.SQLiteDriver{}, sqlbind.SQLite)
}

// Open opens a database on the driver.
func Open(dsn string, opts ...sqlbind.Option) (*sqlbind.DB, error) {
	sqldb, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}
	return sqlbind.NewDB(sqldb, opts...), nil
}

// lockOwner is the connection holding a lock and how many times it took it.
type lockOwner struct {
	conn  *sqlite3.SQLiteConn
	count int
}

// lockTable holds the advisory locks of the process.
type lockTable struct {
	mu     sync.Mutex
	cond   *sync.Cond
	owners map[int64]*lockOwner
}

func newLockTable() *lockTable {
	lt := &lockTable{owners: map[int64]*lockOwner{}}
	lt.cond = sync.NewCond(&lt.mu)
	return lt
}

var locks = newLockTable()

// acquire blocks until conn holds lock id. A connection can take a lock it
// already holds.
func (lt *lockTable) acquire(conn *sqlite3.SQLiteConn, id int64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	for {
		o, ok := lt.owners[id]
		if !ok {
			lt.owners[id] = &lockOwner{conn: conn, count: 1}
			return
		}
		if o.conn == conn {
			o.count++
			return
		}
		lt.cond.Wait()
	}
}

// release gives back one hold of lock id by conn. It returns false if conn
// does not hold the lock.
func (lt *lockTable) release(conn *sqlite3.SQLiteConn, id int64) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	o, ok := lt.owners[id]
	if !ok || o.conn != conn {
		return false
	}
	o.count--
	if o.count == 0 {
		delete(lt.owners, id)
		lt.cond.Broadcast()
	}
	return true
}

func registerLockFuncs(conn *sqlite3.SQLiteConn) error {
	if err := conn.RegisterFunc("pg_advisory_lock", func(id int64) int64 {
		locks.acquire(conn, id)
		return 1
	}, false); err != nil {
		return err
	}
	return conn.RegisterFunc("pg_advisory_unlock", func(id int64) bool {
		return locks.release(conn, id)
	}, false)
}
