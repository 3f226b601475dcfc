// Package presence tracks per-identity session state in Redis so that
// disconnect cleanup and abuse reports can find out what a device was
// doing: whether it sits in a queue partition (and which one), whether it
// is chatting (and in which room), and its display name.
package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Prefix keys all presence hashes.
	Prefix = "presence:"

	// TTL bounds how long presence state survives without refresh.
	TTL = 1 * time.Hour

	// Status values for the presence state machine.
	StatusIdle     = "idle"
	StatusQueued   = "queued"
	StatusChatting = "chatting"
)

// State is an identity's live session state.
type State struct {
	Identity   string `redis:"identity"`
	Status     string `redis:"status"`     // idle | queued | chatting
	Gender     string `redis:"gender"`     // partition of the live queue entry
	Preference string `redis:"preference"` // partition of the live queue entry
	RoomID     string `redis:"room_id"`    // empty unless chatting
	Nickname   string `redis:"nickname"`
	Server     string `redis:"server"` // front-end instance holding the connection
}

// Store manages presence hashes in Redis.
type Store struct {
	client     *redis.Client
	serverName string
}

// NewStore creates a presence store. serverName identifies this front-end
// instance in the stored state.
func NewStore(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Touch creates or refreshes the identity's presence hash as idle.
func (s *Store) Touch(ctx context.Context, identity string) error {
	key := Prefix + identity
	pipe := s.client.Pipeline()
	pipe.HSetNX(ctx, key, "identity", identity)
	pipe.HSetNX(ctx, key, "status", StatusIdle)
	pipe.HSet(ctx, key, "server", s.serverName)
	pipe.Expire(ctx, key, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves an identity's presence state. Returns nil if not found.
func (s *Store) Get(ctx context.Context, identity string) (*State, error) {
	var state State
	if err := s.client.HGetAll(ctx, Prefix+identity).Scan(&state); err != nil {
		return nil, err
	}
	if state.Identity == "" {
		return nil, nil
	}
	return &state, nil
}

// SetQueued records that the identity is waiting in the given partition.
func (s *Store) SetQueued(ctx context.Context, identity, gender, preference, nickname string) error {
	key := Prefix + identity
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"identity", identity,
		"status", StatusQueued,
		"gender", gender,
		"preference", preference,
		"nickname", nickname,
		"server", s.serverName,
	)
	pipe.Expire(ctx, key, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetPreference updates the partition preference of a queued identity.
func (s *Store) SetPreference(ctx context.Context, identity, preference string) error {
	return s.client.HSet(ctx, Prefix+identity, "preference", preference).Err()
}

// SetChatting records that the identity is in the given room.
func (s *Store) SetChatting(ctx context.Context, identity, roomID string) error {
	key := Prefix + identity
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "identity", identity, "status", StatusChatting, "room_id", roomID, "server", s.serverName)
	pipe.Expire(ctx, key, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetIdle resets the identity to idle and clears any room binding.
func (s *Store) SetIdle(ctx context.Context, identity string) error {
	return s.client.HSet(ctx, Prefix+identity, "status", StatusIdle, "room_id", "").Err()
}

// Delete removes the identity's presence state.
func (s *Store) Delete(ctx context.Context, identity string) error {
	return s.client.Del(ctx, Prefix+identity).Err()
}
