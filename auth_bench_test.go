package tokenauth

import (
	"context"
	"testing"
)

func BenchmarkAuthenticate(b *testing.B) {
	te := newBenchmarkEngine(b)

	pair, err := te.Login(context.Background(), "alice", "correct-password")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := te.Authenticate(context.Background(), pair.AccessToken); !ok {
			b.Fatal("authenticate failed")
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	te := newBenchmarkEngine(b)

	pair, err := te.Login(context.Background(), "alice", "correct-password")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := te.Refresh(context.Background(), pair.RefreshToken)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		pair = next
	}
}

func BenchmarkLogin(b *testing.B) {
	te := newBenchmarkEngine(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := te.Login(context.Background(), "alice", "correct-password")
		if err != nil {
			b.Fatalf("login failed: %v", err)
		}
		_ = te.Logout(context.Background(), pair.RefreshToken)
	}
}

func newBenchmarkEngine(tb testing.TB) *testEngine {
	tb.Helper()

	cfg := testConfig()
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = false

	te := newTestEngine(tb, cfg)
	te.register(tb, "alice", "correct-password")
	return te
}
