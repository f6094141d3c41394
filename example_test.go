package tokenauth_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/account"
	"github.com/MrEthical07/tokenauth/refresh"
	"github.com/redis/go-redis/v9"
)

// ExampleNew demonstrates engine construction with Redis-backed stores.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := tokenauth.DefaultConfig()
	cfg.JWT.SigningKey = []byte("replace-with-32-bytes-of-secret!")
	cfg.JWT.Issuer = "example"

	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithAccountStore(account.NewRedisStore(rdb, "auth")).
		WithRefreshStore(refresh.NewRedisStore(rdb, "auth")).
		Build()
	if err != nil {
		return
	}
	defer engine.Close()
}

// ExampleEngine_Login shows a login call and the public error set.
func ExampleEngine_Login() {
	var engine *tokenauth.Engine
	pair, err := engine.Login(context.Background(), "alice", "password")
	switch {
	case errors.Is(err, tokenauth.ErrAccountLocked):
		fmt.Println("try again later")
	case errors.Is(err, tokenauth.ErrInvalidCredentials):
		fmt.Println("wrong username or password")
	case errors.Is(err, tokenauth.ErrStorageUnavailable):
		fmt.Println("service unavailable")
	case err == nil:
		_ = pair.AccessToken
	}
}

// ExampleEngine_MetricsSnapshot shows how to read in-process metrics counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *tokenauth.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot.Counters[tokenauth.MetricLoginSuccess]
}
