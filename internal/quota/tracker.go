// Package quota enforces the daily cap on filtered (specific-preference)
// matches. Counters live in Redis under a per-calendar-day key:
//
//	Key: limit:<identity>:<YYYY-MM-DD>
//
// The key expires 24h after the first increment, so counters reset by
// natural expiry rather than an explicit job. Only the active side of a
// match (the user whose search produced the pairing) is ever charged.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DailyLimit is the number of filtered matches allowed per day.
	DailyLimit = 5

	keyTTL = 24 * time.Hour
)

// Tracker tracks daily filtered-match counts per identity.
type Tracker struct {
	client *redis.Client
	now    func() time.Time
}

// NewTracker creates a tracker using the provided Redis client.
func NewTracker(client *redis.Client) *Tracker {
	return &Tracker{client: client, now: time.Now}
}

func (t *Tracker) key(identity string) string {
	return fmt.Sprintf("limit:%s:%s", identity, t.now().UTC().Format("2006-01-02"))
}

// Count returns today's filtered-match count for the identity.
func (t *Tracker) Count(ctx context.Context, identity string) (int, error) {
	n, err := t.client.Get(ctx, t.key(identity)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota: get count: %w", err)
	}
	return n, nil
}

// Remaining returns how many filtered matches the identity has left today,
// floored at zero.
func (t *Tracker) Remaining(ctx context.Context, identity string) (int, error) {
	n, err := t.Count(ctx, identity)
	if err != nil {
		return 0, err
	}
	if n >= DailyLimit {
		return 0, nil
	}
	return DailyLimit - n, nil
}

// Allowed reports whether the identity may start another filtered match.
func (t *Tracker) Allowed(ctx context.Context, identity string) (bool, error) {
	remaining, err := t.Remaining(ctx, identity)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// Increment charges one filtered match to the identity and returns the new
// count. The 24h expiry is set on the first increment of the day.
func (t *Tracker) Increment(ctx context.Context, identity string) (int, error) {
	key := t.key(identity)

	n, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("quota: incr: %w", err)
	}
	if n == 1 {
		if err := t.client.Expire(ctx, key, keyTTL).Err(); err != nil {
			return int(n), fmt.Errorf("quota: expire: %w", err)
		}
	}
	return int(n), nil
}
