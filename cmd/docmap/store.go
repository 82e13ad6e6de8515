package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/internal/config"
	"github.com/conduit-lang/docmap/pkg/docmap"
	"github.com/conduit-lang/docmap/pkg/store"
)

// openDatastore connects to the configured backend and applies the mapping, criteria and
// decode settings
func openDatastore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*docmap.Datastore, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return docmap.New(st, cfg.DatastoreOptions(logger)...), nil
}

// openStore connects to the configured backend
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "redis":
		return store.NewRedis(store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		})
	case "postgres":
		return openSQL(ctx, "pgx", cfg.Store.SQL.DSN, store.Postgres, logger)
	case "sqlite":
		return openSQL(ctx, "sqlite3", cfg.Store.SQL.DSN, store.SQLite, logger)
	}
	return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
}

func openSQL(ctx context.Context, driver, dsn string, dialect store.Dialect, logger *zap.Logger) (*store.SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}
	if dialect == store.SQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}
	return store.NewSQL(db, dialect, store.WithSQLLogger(logger)), nil
}
