package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/walkthrough/store"
	"github.com/xraph/walkthrough/store/memory"
	"github.com/xraph/walkthrough/store/postgres"
	redisstore "github.com/xraph/walkthrough/store/redis"
	"github.com/xraph/walkthrough/store/sqlite"
)

// redisBacked closes the client the daemon opened for the redis store.
type redisBacked struct {
	*redisstore.Store
	client *goredis.Client
}

func (r *redisBacked) Close() error {
	return errors.Join(r.Store.Close(), r.client.Close())
}

// openStore opens the configured backend. The caller closes it.
func openStore(ctx context.Context, driver, dsn string, logger *slog.Logger) (store.Store, error) {
	switch driver {
	case "", "memory":
		return memory.New(), nil

	case "sqlite":
		if dsn == "" {
			dsn = "walkthrough.db"
		}
		return sqlite.Open(dsn, sqlite.WithLogger(logger))

	case "postgres":
		if dsn == "" {
			return nil, errors.New("postgres store requires a dsn")
		}
		return postgres.New(ctx, dsn, postgres.WithLogger(logger))

	case "redis":
		if dsn == "" {
			dsn = "redis://localhost:6379/0"
		}
		opt, err := goredis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("redis dsn: %w", err)
		}
		client := goredis.NewClient(opt)
		return &redisBacked{
			Store:  redisstore.New(client, redisstore.WithLogger(logger)),
			client: client,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
