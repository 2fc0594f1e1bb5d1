package sqlbind

import (
	"context"
	"errors"
	"fmt"
)

// Lock is a session level advisory lock held by a handle.
type Lock struct {
	h        *Handle
	id       int64
	released bool
}

// ID returns the number identifying the lock.
func (l *Lock) ID() int64 {
	return l.id
}

// Lock takes the advisory lock identified by id, waiting until it is
// available. The lock is not tied to transactions: it is held until it is
// released or the handle is closed.
func (h *Handle) Lock(ctx context.Context, id int64) (*Lock, error) {
	if h.closed {
		return nil, errHandleClosed
	}
	d := h.db.dialect
	if !d.SupportsLocks() {
		return nil, fmt.Errorf("%w: %s has no advisory locks", ErrLock, d.Name)
	}
	if _, ok := h.locks[id]; ok {
		return nil, fmt.Errorf("%w: lock %d already held by this handle", ErrLock, id)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := h.conn.ExecContext(ctx, d.Rebind(d.LockSQL), id); err != nil {
		return nil, fmt.Errorf("%w: cannot take lock %d: %w", ErrLock, id, err)
	}
	l := &Lock{h: h, id: id}
	h.locks[id] = l
	h.logger.Debug().Int64("lock", id).Msg("lock taken")
	return l, nil
}

// Release gives the lock back. Releasing a lock twice is an error.
func (l *Lock) Release(ctx context.Context) error {
	if l.released {
		return fmt.Errorf("%w: lock %d already released", ErrLock, l.id)
	}
	h := l.h
	if h.closed {
		return errHandleClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	l.released = true
	delete(h.locks, l.id)

	d := h.db.dialect
	var held bool
	if err := h.conn.QueryRowContext(ctx, d.Rebind(d.UnlockSQL), l.id).Scan(&held); err != nil {
		return fmt.Errorf("%w: cannot release lock %d: %w", ErrLock, l.id, err)
	}
	if !held {
		return fmt.Errorf("%w: lock %d was not held", ErrLock, l.id)
	}
	h.logger.Debug().Int64("lock", l.id).Msg("lock released")
	return nil
}

// WithLock runs fn while holding the advisory lock identified by id. The
// lock is released when fn returns, even if it panics.
func (h *Handle) WithLock(ctx context.Context, id int64, fn func(context.Context) error) (err error) {
	l, err := h.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn(ctx)
}
