package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/sqlbind"
	"github.com/canonical/sqlbind/drivers/sqlite"
)

func openDB(t *testing.T) *sqlbind.DB {
	path := filepath.Join(t.TempDir(), "locks.db")
	db, err := sqlite.Open("file:"+path+"?_busy_timeout=5000", sqlbind.WithRegistry(sqlbind.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func newHandle(t *testing.T, db *sqlbind.DB) *sqlbind.Handle {
	h, err := db.Handle(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		h.Close()
	})
	return h
}

// lockAsync takes lock id on h in the background. The returned channel
// yields the outcome.
func lockAsync(h *sqlbind.Handle, id int64) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := h.Lock(context.Background(), id)
		done <- err
	}()
	return done
}

func waitLock(t *testing.T, done <-chan error) {
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for lock")
	}
}

func TestDialect(t *testing.T) {
	db := openDB(t)
	assert.Equal(t, sqlbind.SQLiteWithLocks, db.Dialect())
	assert.True(t, db.Dialect().SupportsLocks())

	d, ok := sqlbind.DialectFor(sqlite.DriverName)
	require.True(t, ok)
	assert.Equal(t, sqlbind.SQLiteWithLocks, d)
}

func TestLockContention(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	h1 := newHandle(t, db)
	h2 := newHandle(t, db)

	l, err := h1.Lock(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), l.ID())

	done := lockAsync(h2, 7)
	select {
	case err := <-done:
		t.Fatalf("lock taken while held elsewhere (err: %v)", err)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, l.Release(ctx))
	waitLock(t, done)
}

func TestLockTwice(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, openDB(t))

	l, err := h.Lock(ctx, 1)
	require.NoError(t, err)
	_, err = h.Lock(ctx, 1)
	assert.ErrorIs(t, err, sqlbind.ErrLock)
	assert.EqualError(t, err, "lock error: lock 1 already held by this handle")

	require.NoError(t, l.Release(ctx))
	err = l.Release(ctx)
	assert.ErrorIs(t, err, sqlbind.ErrLock)
	assert.EqualError(t, err, "lock error: lock 1 already released")

	// The lock can be taken again once released.
	l, err = h.Lock(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))
}

func TestReleaseLockNotHeld(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t, openDB(t))

	l, err := h.Lock(ctx, 3)
	require.NoError(t, err)

	// Unlock behind the handle's back.
	var held bool
	require.NoError(t, h.PlainConn().QueryRowContext(ctx, "select pg_advisory_unlock(?)", 3).Scan(&held))
	assert.True(t, held)

	err = l.Release(ctx)
	assert.ErrorIs(t, err, sqlbind.ErrLock)
	assert.EqualError(t, err, "lock error: lock 3 was not held")
}

func TestCloseReleasesLocks(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	h1 := newHandle(t, db)
	h2 := newHandle(t, db)

	_, err := h1.Lock(ctx, 9)
	require.NoError(t, err)
	require.NoError(t, h1.Close())

	waitLock(t, lockAsync(h2, 9))
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	h1 := newHandle(t, db)
	h2 := newHandle(t, db)

	var ran bool
	err := h1.WithLock(ctx, 5, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	waitLock(t, lockAsync(h2, 5))

	sentinel := assert.AnError
	err = h1.WithLock(ctx, 6, func(context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	waitLock(t, lockAsync(h2, 6))
}
