package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, "test-1"), mr
}

func TestTouchAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Touch(ctx, "dev-1"); err != nil {
		t.Fatalf("Touch() error: %v", err)
	}

	state, err := store.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if state == nil {
		t.Fatal("expected state after Touch")
	}
	if state.Status != StatusIdle {
		t.Errorf("expected status %q, got %q", StatusIdle, state.Status)
	}
	if state.Server != "test-1" {
		t.Errorf("expected server test-1, got %q", state.Server)
	}
}

func TestGet_Missing(t *testing.T) {
	store, _ := newTestStore(t)

	state, err := store.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil for missing identity, got %+v", state)
	}
}

func TestTouch_DoesNotResetStatus(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SetQueued(ctx, "dev-1", "male", "female", "Alex"); err != nil {
		t.Fatalf("SetQueued() error: %v", err)
	}
	// A re-register while queued must not lose the queue binding.
	if err := store.Touch(ctx, "dev-1"); err != nil {
		t.Fatalf("Touch() error: %v", err)
	}

	state, err := store.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if state.Status != StatusQueued {
		t.Errorf("expected status preserved, got %q", state.Status)
	}
}

func TestQueuedLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SetQueued(ctx, "dev-1", "female", "any", "Sam"); err != nil {
		t.Fatalf("SetQueued() error: %v", err)
	}

	state, err := store.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if state.Status != StatusQueued {
		t.Errorf("expected status queued, got %q", state.Status)
	}
	if state.Gender != "female" || state.Preference != "any" {
		t.Errorf("unexpected partition: %q/%q", state.Gender, state.Preference)
	}
	if state.Nickname != "Sam" {
		t.Errorf("expected nickname Sam, got %q", state.Nickname)
	}

	if err := store.SetPreference(ctx, "dev-1", "male"); err != nil {
		t.Fatalf("SetPreference() error: %v", err)
	}
	state, _ = store.Get(ctx, "dev-1")
	if state.Preference != "male" {
		t.Errorf("expected preference male, got %q", state.Preference)
	}
}

func TestChattingAndIdle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SetChatting(ctx, "dev-1", "room_1_abc"); err != nil {
		t.Fatalf("SetChatting() error: %v", err)
	}
	state, _ := store.Get(ctx, "dev-1")
	if state.Status != StatusChatting || state.RoomID != "room_1_abc" {
		t.Errorf("unexpected state: %+v", state)
	}

	if err := store.SetIdle(ctx, "dev-1"); err != nil {
		t.Fatalf("SetIdle() error: %v", err)
	}
	state, _ = store.Get(ctx, "dev-1")
	if state.Status != StatusIdle {
		t.Errorf("expected idle, got %q", state.Status)
	}
	if state.RoomID != "" {
		t.Errorf("expected room binding cleared, got %q", state.RoomID)
	}
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Touch(ctx, "dev-1"); err != nil {
		t.Fatalf("Touch() error: %v", err)
	}
	if err := store.Delete(ctx, "dev-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	state, _ := store.Get(ctx, "dev-1")
	if state != nil {
		t.Error("expected state gone after Delete")
	}
}

func TestExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Touch(ctx, "dev-1"); err != nil {
		t.Fatalf("Touch() error: %v", err)
	}
	mr.FastForward(TTL + time.Minute)

	state, err := store.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if state != nil {
		t.Error("expected state expired")
	}
}
