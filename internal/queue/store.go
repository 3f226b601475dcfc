// Package queue maintains the gender/preference-keyed waiting lists backed
// by Redis sorted sets:
//
//	Key:    queue:<gender>:<preference>
//	Member: device identity
//	Score:  admission timestamp (ms) + report count * 60000
//
// Lower score is served first, so users who accumulate abuse reports are
// admitted behind clean users who joined at the same time. The score is
// computed once at enqueue time; an entry's position does not shift if the
// user is reported while already waiting.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PenaltyPerReport is the fairness penalty, in milliseconds of
	// effective admission time, added per abuse report.
	PenaltyPerReport = 60_000

	// NicknamePrefix keys the per-identity display name.
	NicknamePrefix = "user:nickname:"

	// NicknameTTL is how long a stored nickname lives without refresh.
	NicknameTTL = 1 * time.Hour
)

// ErrAlreadyQueued is returned by Enqueue when an entry for the same
// (identity, gender, preference) triple already exists.
var ErrAlreadyQueued = errors.New("User already in the queue")

// PenaltySource supplies the abuse report count used to compute the
// fairness score at enqueue time. Implemented by abuse.Registry.
type PenaltySource interface {
	ReportCount(ctx context.Context, identity string) (int, error)
}

// Store manages the waiting-list partitions in Redis.
type Store struct {
	rdb         *redis.Client
	penalties   PenaltySource
	claimScript *redis.Script
	moveScript  *redis.Script
	now         func() time.Time
}

// NewStore creates a queue store. penalties may be nil, in which case no
// fairness penalty is applied (used by tests that don't care about karma).
func NewStore(rdb *redis.Client, penalties PenaltySource) *Store {
	return &Store{
		rdb:         rdb,
		penalties:   penalties,
		claimScript: redis.NewScript(claimLua),
		moveScript:  redis.NewScript(moveLua),
		now:         time.Now,
	}
}

// Enqueue inserts the identity into the (gender, preference) partition.
// Returns ErrAlreadyQueued if an entry is already present under that key.
func (s *Store) Enqueue(ctx context.Context, identity string, g Gender, p Preference) error {
	key := Key(g, p)

	queued, err := s.IsQueued(ctx, identity, g, p)
	if err != nil {
		return err
	}
	if queued {
		return ErrAlreadyQueued
	}

	score := float64(s.now().UnixMilli())
	if s.penalties != nil {
		count, err := s.penalties.ReportCount(ctx, identity)
		if err != nil {
			return fmt.Errorf("queue: report count for %s: %w", identity, err)
		}
		score += float64(count * PenaltyPerReport)
	}

	if err := s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: identity}).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", identity, err)
	}
	return nil
}

// Dequeue removes the identity from the partition. Idempotent; removing an
// absent entry is not an error.
func (s *Store) Dequeue(ctx context.Context, identity string, g Gender, p Preference) error {
	return s.rdb.ZRem(ctx, Key(g, p), identity).Err()
}

// IsQueued reports whether the identity has an entry in the partition.
func (s *Store) IsQueued(ctx context.Context, identity string, g Gender, p Preference) (bool, error) {
	_, err := s.rdb.ZScore(ctx, Key(g, p), identity).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PeekCandidates returns up to limit identities from the partition in
// ascending fairness-score order. Read-only; entries are not claimed.
func (s *Store) PeekCandidates(ctx context.Context, g Gender, p Preference, limit int64) ([]string, error) {
	return s.rdb.ZRange(ctx, Key(g, p), 0, limit-1).Result()
}

// TryClaim atomically removes the identity's entry from the partition if it
// is still present. It returns the entry's score so a caller that loses a
// subsequent race can restore the entry at its original queue position.
// ok is false when the entry was already consumed (or never existed).
func (s *Store) TryClaim(ctx context.Context, identity string, g Gender, p Preference) (score float64, ok bool, err error) {
	res, err := s.claimScript.Run(ctx, s.rdb, []string{Key(g, p)}, identity).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("queue: claim %s: %w", identity, err)
	}

	str, isStr := res.(string)
	if !isStr {
		return 0, false, nil
	}
	if _, err := fmt.Sscanf(str, "%f", &score); err != nil {
		return 0, false, fmt.Errorf("queue: claim %s: bad score %q", identity, str)
	}
	return score, true, nil
}

// Restore re-inserts a previously claimed entry at its original score.
// Used by the match engine to roll back a candidate claim.
func (s *Store) Restore(ctx context.Context, identity string, g Gender, p Preference, score float64) error {
	return s.rdb.ZAdd(ctx, Key(g, p), redis.Z{Score: score, Member: identity}).Err()
}

// ChangePreference atomically moves a queued entry from one preference
// partition to another, preserving its admission score so the user keeps
// their place in line. Returns false if the entry was not queued under the
// old preference (claimed or left in the meantime).
func (s *Store) ChangePreference(ctx context.Context, identity string, g Gender, oldPref, newPref Preference) (bool, error) {
	moved, err := s.moveScript.Run(ctx, s.rdb,
		[]string{Key(g, oldPref), Key(g, newPref)}, identity).Int()
	if err != nil {
		return false, fmt.Errorf("queue: move %s: %w", identity, err)
	}
	return moved == 1, nil
}

// Size returns the number of entries waiting in the partition.
func (s *Store) Size(ctx context.Context, g Gender, p Preference) (int64, error) {
	return s.rdb.ZCard(ctx, Key(g, p)).Result()
}

// SetNickname stores the identity's display name with a 1h TTL.
func (s *Store) SetNickname(ctx context.Context, identity, nickname string) error {
	return s.rdb.Set(ctx, NicknamePrefix+identity, nickname, NicknameTTL).Err()
}

// Nickname returns the stored display name, or fallback if none is set.
func (s *Store) Nickname(ctx context.Context, identity, fallback string) string {
	name, err := s.rdb.Get(ctx, NicknamePrefix+identity).Result()
	if err != nil || name == "" {
		return fallback
	}
	return name
}

// claimLua is the atomic check-and-remove behind TryClaim: it returns the
// member's score and deletes it in one step, or a nil reply when the member
// is already gone. This is the primitive that makes concurrent match
// attempts safe: at most one caller ever sees the score.
const claimLua = `
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score then return false end
redis.call('ZREM', KEYS[1], ARGV[1])
return score
`

// moveLua relocates a member between partitions keeping its score.
const moveLua = `
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], score, ARGV[1])
return 1
`
