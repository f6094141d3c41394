// Command tokenauth-loadtest drives Authenticate, Refresh and contended
// refresh rotation against Redis (or an in-process miniredis) and prints
// latency percentiles.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/account"
	"github.com/MrEthical07/tokenauth/refresh"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type userState struct {
	username string
	access   string
	refresh  string
	mu       sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		racers      = flag.Int("racers", 32, "goroutines racing one refresh token")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "loadtest", "key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 {
		fmt.Fprintln(os.Stderr, "users, concurrency and ops must be > 0; racers must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := buildEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	states, err := seed(ctx, engine, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) bool {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, ok := engine.Authenticate(ctx, token)
		return ok
	})

	refreshStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) bool {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		pair, err := engine.Refresh(ctx, s.refresh)
		if err != nil {
			return false
		}
		s.access, s.refresh = pair.AccessToken, pair.RefreshToken
		return true
	})

	winners, err := race(ctx, engine, &states[0], *racers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "race failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)
	fmt.Printf("contended refresh: racers=%d winners=%d\n", *racers, winners)
	if winners != 1 {
		fmt.Fprintln(os.Stderr, "expected exactly one refresh winner")
		os.Exit(1)
	}
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildEngine(client redis.UniversalClient, prefix string) (*tokenauth.Engine, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	cfg := tokenauth.DefaultConfig()
	cfg.JWT.SigningKey = key
	cfg.JWT.Issuer = "tokenauth-loadtest"
	// seeding cost is dominated by hashing
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	return tokenauth.New().
		WithConfig(cfg).
		WithAccountStore(account.NewRedisStore(client, prefix)).
		WithRefreshStore(refresh.NewRedisStore(client, prefix)).
		WithLogger(log).
		Build()
}

func seed(ctx context.Context, engine *tokenauth.Engine, n int) ([]userState, error) {
	run := make([]byte, 4)
	if _, err := rand.Read(run); err != nil {
		return nil, err
	}
	suffix := hex.EncodeToString(run)

	states := make([]userState, n)
	for i := range states {
		username := fmt.Sprintf("user-%s-%d", suffix, i)
		pw := "pw-" + username
		if _, err := engine.Register(ctx, username, pw, nil); err != nil {
			return nil, err
		}
		pair, err := engine.Login(ctx, username, pw)
		if err != nil {
			return nil, err
		}
		states[i].username = username
		states[i].access = pair.AccessToken
		states[i].refresh = pair.RefreshToken
	}
	return states, nil
}

// race releases n goroutines on the same refresh token and counts winners.
func race(ctx context.Context, engine *tokenauth.Engine, s *userState, n int) (int64, error) {
	s.mu.Lock()
	token := s.refresh
	s.mu.Unlock()

	var (
		wg      sync.WaitGroup
		winners int64
		mu      sync.Mutex
		other   error
		start   = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Refresh(ctx, token)
			switch {
			case err == nil:
				atomic.AddInt64(&winners, 1)
			case !errors.Is(err, tokenauth.ErrInvalidRefreshToken):
				mu.Lock()
				other = err
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	return winners, other
}

func runPhase(ops, concurrency int, op func(*mrand.Rand) bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				ok := op(r)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
