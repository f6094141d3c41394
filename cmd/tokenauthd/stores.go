package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/tokenauth/account"
	"github.com/MrEthical07/tokenauth/refresh"
	"github.com/alicebob/miniredis/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// backend bundles the stores selected by configuration.
type backend struct {
	accounts account.Store
	tokens   refresh.Store
	ping     func(context.Context) error
	closers  []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg serverConfig, log logrus.FieldLogger) (*backend, error) {
	switch cfg.Store {
	case storePostgres:
		return openPostgres(ctx, cfg.DatabaseURL)
	case storeRedis:
		return openRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	default:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start in-memory redis: %w", err)
		}
		log.Warn("tokenauthd: using in-memory store, state is lost on exit")
		b, err := openRedis(ctx, mr.Addr(), cfg.RedisPrefix)
		if err != nil {
			mr.Close()
			return nil, err
		}
		b.closers = append([]func() error{func() error { mr.Close(); return nil }}, b.closers...)
		return b, nil
	}
}

func openRedis(ctx context.Context, addr, prefix string) (*backend, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &backend{
		accounts: account.NewRedisStore(client, prefix),
		tokens:   refresh.NewRedisStore(client, prefix),
		ping:     func(ctx context.Context) error { return client.Ping(ctx).Err() },
		closers:  []func() error{client.Close},
	}, nil
}

func openPostgres(ctx context.Context, dsn string) (*backend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	accounts := account.NewSQLStore(db)
	tokens := refresh.NewSQLStore(db)
	if err := accounts.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := tokens.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &backend{
		accounts: accounts,
		tokens:   tokens,
		ping:     db.PingContext,
		closers:  []func() error{db.Close},
	}, nil
}
