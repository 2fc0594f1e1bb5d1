package sqlbind

import (
	"context"
	"database/sql"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// opTable is the outcome of registering the operations of one struct type.
// A failed registration is cached as well so that it is reported on every
// attempt without being redone.
type opTable struct {
	ops []*operation
	err error
}

// opCache holds the operation tables of a Registry, indexed by struct type.
// Each table is built at most once.
type opCache struct {
	tables map[reflect.Type]*opTable
	mutex  sync.RWMutex
}

func newOpCache() *opCache {
	return &opCache{tables: map[reflect.Type]*opTable{}}
}

// get returns the table of t, building it with build if it is not cached.
func (oc *opCache) get(t reflect.Type, build func(reflect.Type) ([]*operation, error)) ([]*operation, error) {
	oc.mutex.RLock()
	table, ok := oc.tables[t]
	oc.mutex.RUnlock()
	if ok {
		return table.ops, table.err
	}

	oc.mutex.Lock()
	defer oc.mutex.Unlock()
	// Check if a table has been inserted by someone else since we last
	// checked.
	if table, ok := oc.tables[t]; ok {
		return table.ops, table.err
	}
	ops, err := build(t)
	if err != nil {
		ops = nil
	}
	oc.tables[t] = &opTable{ops: ops, err: err}
	return ops, err
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a
// sql.Conn.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// stmtCache holds the statements a handle keeps prepared across calls,
// indexed by driver SQL. It belongs to a single handle and is not safe for
// concurrent use.
type stmtCache struct {
	stmts map[string]*sql.Stmt
}

func newStmtCache() *stmtCache {
	return &stmtCache{stmts: map[string]*sql.Stmt{}}
}

// prepare returns the kept statement for query, preparing it on ps first if
// needed.
func (sc *stmtCache) prepare(ctx context.Context, ps prepareSubstrate, query string) (*sql.Stmt, error) {
	if stmt, ok := sc.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := ps.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sc.stmts[query] = stmt
	return stmt, nil
}

// closeAll closes every kept statement and empties the cache.
func (sc *stmtCache) closeAll(logger zerolog.Logger) {
	for query, stmt := range sc.stmts {
		closeLogged(logger, stmt, "cannot close kept statement")
		delete(sc.stmts, query)
	}
}
