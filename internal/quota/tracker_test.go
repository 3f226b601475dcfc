package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tracker := NewTracker(client)
	tracker.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return tracker, mr
}

func TestFreshIdentity(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	count, err := tracker.Count(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	remaining, err := tracker.Remaining(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != DailyLimit {
		t.Errorf("expected remaining %d, got %d", DailyLimit, remaining)
	}

	allowed, err := tracker.Allowed(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Allowed() error: %v", err)
	}
	if !allowed {
		t.Error("expected fresh identity to be allowed")
	}
}

func TestExhaustion(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 1; i <= DailyLimit; i++ {
		n, err := tracker.Increment(ctx, "dev-1")
		if err != nil {
			t.Fatalf("Increment() #%d error: %v", i, err)
		}
		if n != i {
			t.Errorf("expected count %d, got %d", i, n)
		}
	}

	allowed, err := tracker.Allowed(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Allowed() error: %v", err)
	}
	if allowed {
		t.Error("expected sixth filtered match to be denied")
	}

	remaining, err := tracker.Remaining(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected remaining 0, got %d", remaining)
	}
}

func TestRemaining_FlooredAtZero(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	// Over-increment past the limit; remaining never goes negative.
	for i := 0; i < DailyLimit+3; i++ {
		if _, err := tracker.Increment(ctx, "dev-1"); err != nil {
			t.Fatalf("Increment() error: %v", err)
		}
	}

	remaining, err := tracker.Remaining(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected remaining 0, got %d", remaining)
	}
}

func TestCounterExpiry(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.Increment(ctx, "dev-1"); err != nil {
		t.Fatalf("Increment() error: %v", err)
	}
	mr.FastForward(24*time.Hour + time.Minute)

	count, err := tracker.Count(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected counter expired, got %d", count)
	}
}

func TestDayRollover(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < DailyLimit; i++ {
		if _, err := tracker.Increment(ctx, "dev-1"); err != nil {
			t.Fatalf("Increment() error: %v", err)
		}
	}

	// The next calendar day uses a fresh key even if the old one has not
	// expired yet.
	tracker.now = func() time.Time {
		return time.Date(2025, 6, 16, 0, 5, 0, 0, time.UTC)
	}

	allowed, err := tracker.Allowed(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Allowed() error: %v", err)
	}
	if !allowed {
		t.Error("expected a fresh allowance on the next day")
	}
}

func TestCountersAreIndependent(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.Increment(ctx, "dev-1"); err != nil {
		t.Fatalf("Increment() error: %v", err)
	}

	remaining, err := tracker.Remaining(ctx, "dev-2")
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != DailyLimit {
		t.Errorf("expected dev-2 unaffected, got remaining %d", remaining)
	}
}
