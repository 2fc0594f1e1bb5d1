// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlbind

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/canonical/sqlbind/internal/config"
)

// Config describes how to open a database.
type Config struct {
	// Driver is the database/sql driver name, such as "pgx" or "sqlite3".
	Driver string `env:"database_driver" yaml:"driver"`
	// URL is the data source name handed to the driver.
	URL      string `env:"database_url" yaml:"url"`
	Username string `env:"database_username" yaml:"username"`
	Password string `env:"database_password" yaml:"password"`

	Connection ConnectionConfig `yaml:"connection"`
	Log        LogConfig        `yaml:"log"`
}

// ConnectionConfig sizes the connection pool.
type ConnectionConfig struct {
	MaxTotal int `env:"database_connection_maxTotal" yaml:"maxTotal"`
	MaxIdle  int `env:"database_connection_maxIdle" yaml:"maxIdle"`
	// MinIdle raises MaxIdle when it is larger. database/sql does not keep
	// idle connections open eagerly.
	MinIdle     int           `env:"database_connection_minIdle" yaml:"minIdle"`
	MaxLifetime time.Duration `env:"database_connection_maxLifetime" yaml:"maxLifetime"`
}

func DefaultConfig() Config {
	return Config{
		Connection: ConnectionConfig{
			MaxTotal: 25,
			MaxIdle:  5,
			MinIdle:  5,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig returns the default configuration overlaid with the YAML file
// at path, when path is not empty and the file exists, and then with the
// environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := config.LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := config.LoadFromEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("cannot load config from environment: %w", err)
	}
	return cfg, nil
}

// dataSource returns the URL with the credentials filled in. Only URLs with
// a scheme carry credentials; other data source names are used as they are.
func (cfg Config) dataSource() string {
	if cfg.Username == "" {
		return cfg.URL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Opaque != "" {
		return cfg.URL
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	} else {
		u.User = url.User(cfg.Username)
	}
	return u.String()
}

// Open opens a pool as described by cfg. The dialect is the one registered
// for cfg.Driver unless an option says otherwise. A logger is built from
// cfg.Log unless WithLogger is given.
func Open(cfg Config, opts ...Option) (*DB, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("cannot open database: no driver configured")
	}
	sqldb, err := sql.Open(cfg.Driver, cfg.dataSource())
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	pool := cfg.Connection
	maxIdle := max(pool.MaxIdle, pool.MinIdle)
	if pool.MaxTotal > 0 {
		sqldb.SetMaxOpenConns(pool.MaxTotal)
		maxIdle = min(maxIdle, pool.MaxTotal)
	}
	sqldb.SetMaxIdleConns(maxIdle)
	if pool.MaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(pool.MaxLifetime)
	}

	all := []Option{WithLogger(NewLogger(cfg.Log))}
	if d, ok := DialectFor(cfg.Driver); ok {
		all = append(all, WithDialect(d))
	}
	all = append(all, opts...)
	db := NewDB(sqldb, all...)
	db.logger.Debug().
		Str("driver", cfg.Driver).
		Int("max_total", pool.MaxTotal).
		Int("max_idle", maxIdle).
		Msg("database opened")
	return db, nil
}
