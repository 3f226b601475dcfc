// Package abuse tracks per-identity report counts and escalates them to
// temporary bans, backed by Redis:
//
//	Key: reports:<identity>  (rolling counter, 7d decay)
//	Key: ban:<identity>      ("banned", 24h TTL)
//
// Banning is a side effect of reporting: the tenth report within the decay
// window flips the identity to banned. There is no explicit ban action in
// the protocol.
package abuse

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ReportsPrefix = "reports:"
	BanPrefix     = "ban:"

	// BanThreshold is the report count at which an identity is banned.
	BanThreshold = 10

	// BanDuration is how long a ban lasts.
	BanDuration = 24 * time.Hour

	// ReportsTTL is the decay window for the report counter, set on the
	// first report so the window does not slide.
	ReportsTTL = 7 * 24 * time.Hour

	banValue = "banned"
)

// Registry manages report counters and ban records in Redis.
type Registry struct {
	client *redis.Client
}

// NewRegistry creates a registry using the provided Redis client.
func NewRegistry(client *redis.Client) *Registry {
	return &Registry{client: client}
}

// Report increments the target's report counter and bans the identity for
// BanDuration once the post-increment count reaches BanThreshold. It
// returns the new report count and whether this report triggered a ban.
func (r *Registry) Report(ctx context.Context, identity string) (count int, banned bool, err error) {
	key := ReportsPrefix + identity

	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("abuse: report incr: %w", err)
	}

	// Fix the decay window at the first report.
	if n == 1 {
		if err := r.client.Expire(ctx, key, ReportsTTL).Err(); err != nil {
			return int(n), false, fmt.Errorf("abuse: report expire: %w", err)
		}
	}

	if n >= BanThreshold {
		if err := r.Ban(ctx, identity); err != nil {
			return int(n), false, err
		}
		log.Printf("[abuse] identity %s banned after %d reports", identity, n)
		return int(n), true, nil
	}

	return int(n), false, nil
}

// Ban marks the identity banned for BanDuration.
func (r *Registry) Ban(ctx context.Context, identity string) error {
	if err := r.client.Set(ctx, BanPrefix+identity, banValue, BanDuration).Err(); err != nil {
		return fmt.Errorf("abuse: ban: %w", err)
	}
	return nil
}

// Unban lifts a ban immediately.
func (r *Registry) Unban(ctx context.Context, identity string) error {
	return r.client.Del(ctx, BanPrefix+identity).Err()
}

// IsBanned reports whether the identity is currently banned. On Redis
// errors it fails open (not banned) so a store outage does not lock every
// user out of matchmaking; the error is still returned for logging.
func (r *Registry) IsBanned(ctx context.Context, identity string) (bool, error) {
	val, err := r.client.Get(ctx, BanPrefix+identity).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == banValue, nil
}

// ReportCount returns the identity's current report count. Zero when the
// counter does not exist or has decayed. Feeds the queue fairness score.
func (r *Registry) ReportCount(ctx context.Context, identity string) (int, error) {
	val, err := r.client.Get(ctx, ReportsPrefix+identity).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}
