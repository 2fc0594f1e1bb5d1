// Package dqlite registers database/sql drivers connecting to dqlite
// clusters.
package dqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/canonical/go-dqlite/client"
	"github.com/canonical/go-dqlite/driver"
	"github.com/rs/zerolog"

	"github.com/canonical/sqlbind"
)

// Register registers a driver under name that connects to the cluster
// reachable at the given node addresses. Driver messages are logged to
// logger.
func Register(ctx context.Context, name string, addrs []string, logger zerolog.Logger) error {
	if slices.Contains(sql.Drivers(), name) {
		return fmt.Errorf("cannot register dqlite driver: %q already registered", name)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("cannot register dqlite driver: no node addresses")
	}

	store := client.NewInmemNodeStore()
	nodes := make([]client.NodeInfo, len(addrs))
	for i, addr := range addrs {
		nodes[i] = client.NodeInfo{Address: addr}
	}
	if err := store.Set(ctx, nodes); err != nil {
		return fmt.Errorf("cannot register dqlite driver: %w", err)
	}

	drv, err := driver.New(store, driver.WithLogFunc(logFunc(logger.With().Str("component", "dqlite").Logger())))
	if err != nil {
		return fmt.Errorf("cannot register dqlite driver: %w", err)
	}
	sql.Register(name, drv)
	sqlbind.RegisterDialect(name, drv, sqlbind.Dqlite)
	return nil
}

// logFunc sends dqlite client messages to logger at the matching level.
func logFunc(logger zerolog.Logger) client.LogFunc {
	return func(l client.LogLevel, format string, a ...interface{}) {
		var e *zerolog.Event
		switch l {
		case client.LogDebug:
			e = logger.Debug()
		case client.LogWarn:
			e = logger.Warn()
		case client.LogError:
			e = logger.Error()
		default:
			e = logger.Info()
		}
		e.Msgf(format, a...)
	}
}
