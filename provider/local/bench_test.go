package local_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/password"
	"github.com/MrEthical07/authflow/provider/local"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const benchPassword = "correct-password-123"

func newBenchmarkProvider(tb testing.TB) *local.Provider {
	tb.Helper()

	mr := miniredis.RunT(tb)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tb.Cleanup(func() { _ = rdb.Close() })

	hasher, err := password.NewHasher(password.FastConfig())
	if err != nil {
		tb.Fatalf("argon2 init failed: %v", err)
	}

	cfg := local.DefaultConfig()
	cfg.RequireConfirmation = false
	cfg.MaxSignInFailures = 0

	p, err := local.New(rdb, newTokens(tb), cfg,
		local.WithHasher(hasher),
		local.WithCodeSender(local.NewMemorySender()),
	)
	if err != nil {
		tb.Fatalf("provider init failed: %v", err)
	}
	tb.Cleanup(p.Close)

	if _, err := p.SignUp(context.Background(), "alice@example.com", benchPassword, nil); err != nil {
		tb.Fatalf("sign up failed: %v", err)
	}
	return p
}

func BenchmarkSignIn(b *testing.B) {
	p := newBenchmarkProvider(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.SignIn(ctx, "alice@example.com", benchPassword); err != nil {
			b.Fatalf("sign in failed: %v", err)
		}
		if err := p.SignOut(ctx); err != nil {
			b.Fatalf("sign out failed: %v", err)
		}
	}
}

func BenchmarkFetchSession(b *testing.B) {
	p := newBenchmarkProvider(b)
	ctx := context.Background()
	if _, err := p.SignIn(ctx, "alice@example.com", benchPassword); err != nil {
		b.Fatalf("sign in failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := p.FetchSession(ctx)
		if err != nil || !s.Authenticated() {
			b.Fatalf("fetch session failed: %v", err)
		}
	}
}

func BenchmarkReconcileSessionParallel(b *testing.B) {
	p := newBenchmarkProvider(b)
	ctx := context.Background()
	if _, err := p.SignIn(ctx, "alice@example.com", benchPassword); err != nil {
		b.Fatalf("sign in failed: %v", err)
	}

	ctrl, err := authflow.New().
		WithProvider(p).
		WithLogger(slog.New(slog.DiscardHandler)).
		Build()
	if err != nil {
		b.Fatalf("build failed: %v", err)
	}
	b.Cleanup(ctrl.Close)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if v := ctrl.ReconcileSession(ctx); !v.Protected() {
				b.Errorf("unexpected verdict %s", v)
				return
			}
		}
	})
}
