// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlbind

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/canonical/sqlbind/internal/marshal"
	"github.com/canonical/sqlbind/internal/parse"
)

var errHandleClosed = fmt.Errorf("%w: handle is closed", ErrTransaction)

var savepointNameRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Handle is a session on a single connection. Statements run in a
// transaction that is started implicitly by the first statement and ended
// with Commit or Rollback. Closing a handle rolls back uncommitted work,
// releases the advisory locks it holds and returns the connection to the
// pool.
//
// A Handle must not be used from more than one goroutine at a time.
type Handle struct {
	// id tells the handles of a DB apart in logs.
	id     string
	db     *DB
	conn   *sql.Conn
	logger zerolog.Logger
	stmts  *stmtCache
	// inTx is set while a transaction is open on the connection.
	inTx bool
	// savepoints lists the savepoints of the open transaction, oldest
	// first.
	savepoints []string
	locks      map[int64]*Lock
	// cursors holds the cursors that still have rows or a statement open.
	cursors map[*cursor]struct{}
	closed  bool
}

func newHandle(db *DB, conn *sql.Conn) *Handle {
	id := uuid.New().String()
	return &Handle{
		id:      id,
		db:      db,
		conn:    conn,
		logger:  db.logger.With().Str("component", "handle").Str("handle", id).Logger(),
		stmts:   newStmtCache(),
		locks:   map[int64]*Lock{},
		cursors: map[*cursor]struct{}{},
	}
}

// ID returns the identifier the handle logs with.
func (h *Handle) ID() string {
	return h.id
}

// PlainConn returns the underlying connection.
func (h *Handle) PlainConn() *sql.Conn {
	return h.conn
}

// InTransaction reports whether a transaction is open.
func (h *Handle) InTransaction() bool {
	return h.inTx
}

func (h *Handle) control(ctx context.Context, stmt string) error {
	if h.closed {
		return errHandleClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := h.conn.ExecContext(ctx, stmt)
	return err
}

// ensureTx starts the implicit transaction if none is open.
func (h *Handle) ensureTx(ctx context.Context) error {
	if h.inTx {
		return nil
	}
	if err := h.control(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("%w: cannot begin: %w", ErrTransaction, err)
	}
	h.inTx = true
	h.logger.Debug().Msg("transaction started")
	return nil
}

// Begin starts a transaction explicitly. It fails if one is already open.
func (h *Handle) Begin(ctx context.Context) error {
	if h.inTx {
		return fmt.Errorf("%w: transaction already in progress", ErrTransaction)
	}
	return h.ensureTx(ctx)
}

// Commit commits the open transaction, if any.
func (h *Handle) Commit(ctx context.Context) error {
	return h.end(ctx, "COMMIT")
}

// Rollback aborts the open transaction, if any.
func (h *Handle) Rollback(ctx context.Context) error {
	return h.end(ctx, "ROLLBACK")
}

func (h *Handle) end(ctx context.Context, stmt string) error {
	if h.closed {
		return errHandleClosed
	}
	if !h.inTx {
		return nil
	}
	// The transaction is over whatever the outcome.
	h.inTx = false
	h.savepoints = nil
	if err := h.control(ctx, stmt); err != nil {
		return fmt.Errorf("%w: %w", ErrTransaction, err)
	}
	h.logger.Debug().Str("statement", stmt).Msg("transaction ended")
	return nil
}

// Savepoint sets a savepoint named SAVEPOINT_<n>, where n is the number of
// savepoints already set in the transaction, and returns its name.
func (h *Handle) Savepoint(ctx context.Context) (string, error) {
	name := "SAVEPOINT_" + strconv.Itoa(len(h.savepoints))
	return name, h.SavepointNamed(ctx, name)
}

// SavepointNamed sets a savepoint with the given name, starting a
// transaction if none is open.
func (h *Handle) SavepointNamed(ctx context.Context, name string) error {
	if !savepointNameRx.MatchString(name) {
		return fmt.Errorf("%w: invalid savepoint name %q", ErrTransaction, name)
	}
	if err := h.ensureTx(ctx); err != nil {
		return err
	}
	if err := h.control(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: cannot set savepoint %s: %w", ErrTransaction, name, err)
	}
	h.savepoints = append(h.savepoints, name)
	h.logger.Debug().Str("savepoint", name).Msg("savepoint set")
	return nil
}

// RollbackToSavepoint undoes the work done since the named savepoint was set.
// The savepoint stays valid and the ones set after it are forgotten.
func (h *Handle) RollbackToSavepoint(ctx context.Context, name string) error {
	i := len(h.savepoints) - 1
	for ; i >= 0; i-- {
		if h.savepoints[i] == name {
			break
		}
	}
	if i < 0 {
		return fmt.Errorf("%w: unknown savepoint %q", ErrTransaction, name)
	}
	if err := h.control(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: cannot roll back to savepoint %s: %w", ErrTransaction, name, err)
	}
	h.savepoints = h.savepoints[:i+1]
	h.logger.Debug().Str("savepoint", name).Msg("rolled back to savepoint")
	return nil
}

// Close closes the iterators still open on the handle, rolls back
// uncommitted work, releases held locks and kept statements, and returns the
// connection to the pool. Closing a closed handle does nothing.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	ctx := context.Background()
	var errs []error
	// Open rows keep the connection busy until they are closed.
	for c := range h.cursors {
		if err := c.close(); err != nil {
			h.logger.Debug().Err(err).Msg("iterator closed with error")
		}
	}
	if h.inTx {
		if err := h.Rollback(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, l := range h.locks {
		if err := l.Release(ctx); err != nil {
			h.logger.Warn().Err(err).Int64("lock", l.id).Msg("cannot release lock")
		}
	}
	h.stmts.closeAll(h.logger)
	h.closed = true
	if err := h.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Exec runs a statement with positional "?" arguments in the current
// transaction and returns the number of rows it affected. Arguments are
// encoded with the codec of their type.
func (h *Handle) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	params, err := h.encodeArgs(args)
	if err != nil {
		return 0, err
	}
	if err := h.ensureTx(ctx); err != nil {
		return 0, err
	}
	res, err := h.conn.ExecContext(ctx, h.db.dialect.Rebind(query), params...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecScript runs the semicolon separated statements of script in order in
// the current transaction. It stops at the first failure.
func (h *Handle) ExecScript(ctx context.Context, script string) error {
	for i, stmt := range parse.SplitScript(script) {
		if _, err := h.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}

// encodeArgs converts positional arguments to driver values.
func (h *Handle) encodeArgs(args []any) ([]any, error) {
	reg := h.db.reg.marshal
	params := make(marshal.Values, len(args))
	for i, arg := range args {
		if arg == nil {
			continue
		}
		t := reflect.TypeOf(arg)
		reg.Register(t)
		if err := reg.Lookup(t).Encode(t, &params, i, reflect.ValueOf(arg)); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// prepare returns a statement for query. Statements that are kept stay
// prepared on the handle until it is closed. The others are owned by the
// caller.
func (h *Handle) prepare(ctx context.Context, query string, keep bool) (stmt *sql.Stmt, owned bool, err error) {
	if h.closed {
		return nil, false, errHandleClosed
	}
	query = h.db.dialect.Rebind(query)
	if keep {
		stmt, err = h.stmts.prepare(ctx, h.conn, query)
		return stmt, false, err
	}
	stmt, err = h.conn.PrepareContext(ctx, query)
	return stmt, true, err
}
