package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewLimiter(client), mr
}

func TestAllow_WithinLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < RuleMessage.Limit; i++ {
		ok, err := limiter.Allow(ctx, "dev-1", RuleMessage)
		if err != nil {
			t.Fatalf("Allow() #%d error: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected request %d allowed", i+1)
		}
	}
}

func TestAllow_OverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < RuleMessage.Limit; i++ {
		if ok, _ := limiter.Allow(ctx, "dev-1", RuleMessage); !ok {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
	}

	ok, err := limiter.Allow(ctx, "dev-1", RuleMessage)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if ok {
		t.Error("expected request over the limit to be rejected")
	}
}

func TestAllow_WindowReset(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i <= RuleMessage.Limit; i++ {
		limiter.Allow(ctx, "dev-1", RuleMessage)
	}
	mr.FastForward(RuleMessage.Window + time.Second)

	ok, err := limiter.Allow(ctx, "dev-1", RuleMessage)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !ok {
		t.Error("expected allowance after the window expired")
	}
}

func TestAllow_IdentifiersAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i <= RuleMessage.Limit; i++ {
		limiter.Allow(ctx, "noisy", RuleMessage)
	}

	ok, err := limiter.Allow(ctx, "quiet", RuleMessage)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !ok {
		t.Error("expected an unrelated identifier to be unaffected")
	}
}

func TestRemaining(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "dev-1", RuleJoinQueue)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != RuleJoinQueue.Limit {
		t.Errorf("expected full allowance %d, got %d", RuleJoinQueue.Limit, remaining)
	}

	limiter.Allow(ctx, "dev-1", RuleJoinQueue)
	limiter.Allow(ctx, "dev-1", RuleJoinQueue)

	remaining, err = limiter.Remaining(ctx, "dev-1", RuleJoinQueue)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != RuleJoinQueue.Limit-2 {
		t.Errorf("expected remaining %d, got %d", RuleJoinQueue.Limit-2, remaining)
	}
}
