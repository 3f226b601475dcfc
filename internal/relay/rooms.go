// Package relay owns ephemeral chat rooms: id allocation, the two-member
// room record in Redis, the per-room state machine, and the event payloads
// relayed between members. Room records are hashes:
//
//	Key: room:<room_id>
//
// with a created -> active -> partner_left lifecycle. partner_left is
// terminal; a room never becomes active again after a member departs.
// Rooms are not deleted on leave; the TTL sweeper reclaims them.
package relay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	RoomPrefix = "room:"

	// IndexKey is a sorted set of room ids scored by creation time,
	// consumed by the sweeper.
	IndexKey = "rooms:index"

	// RoomTTL bounds a room's lifetime regardless of activity.
	RoomTTL = 2 * time.Hour

	StatusCreated     = "created"
	StatusActive      = "active"
	StatusPartnerLeft = "partner_left"
)

// Join result codes returned by Rooms.Join.
const (
	JoinWaiting = 0  // member attached, waiting for the other side
	JoinActive  = 1  // both members present, room is now active
	JoinGuest   = 2  // identity is not a member; attached without effect
	JoinGone    = -1 // room does not exist (expired or never created)
	JoinClosed  = -2 // room already in the terminal state
)

// Room is the stored record of one pairing's chat room.
type Room struct {
	ID        string
	UserA     string
	UserB     string
	Status    string
	CreatedAt int64
}

// Partner returns the other member's identity, or "" for non-members.
func (r *Room) Partner(identity string) string {
	switch identity {
	case r.UserA:
		return r.UserB
	case r.UserB:
		return r.UserA
	}
	return ""
}

// IsMember reports whether the identity is one of the two members.
func (r *Room) IsMember(identity string) bool {
	return identity == r.UserA || identity == r.UserB
}

// NewRoomID allocates a collision-resistant room identifier with a time
// component and a random suffix, so same-millisecond allocations on one
// server never collide.
func NewRoomID() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
	return fmt.Sprintf("room_%d_%s", time.Now().UnixMilli(), suffix)
}

// Rooms manages room records in Redis.
type Rooms struct {
	rdb        *redis.Client
	joinScript *redis.Script
}

// NewRooms creates a room store backed by Redis.
func NewRooms(rdb *redis.Client) *Rooms {
	return &Rooms{
		rdb:        rdb,
		joinScript: redis.NewScript(joinRoomLua),
	}
}

// Create allocates a room id and stores a record with exactly the two
// given members in the created state.
func (r *Rooms) Create(ctx context.Context, userA, userB string) (string, error) {
	roomID := NewRoomID()
	key := RoomPrefix + roomID
	now := time.Now().Unix()

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_a":     userA,
		"user_b":     userB,
		"status":     StatusCreated,
		"created_at": now,
		"joined_a":   "false",
		"joined_b":   "false",
	})
	pipe.Expire(ctx, key, RoomTTL)
	pipe.ZAdd(ctx, IndexKey, redis.Z{Score: float64(now), Member: roomID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("relay: create room: %w", err)
	}
	return roomID, nil
}

// Get retrieves a room record. Returns nil if not found.
func (r *Rooms) Get(ctx context.Context, roomID string) (*Room, error) {
	result, err := r.rdb.HGetAll(ctx, RoomPrefix+roomID).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	createdAt, _ := strconv.ParseInt(result["created_at"], 10, 64)
	return &Room{
		ID:        roomID,
		UserA:     result["user_a"],
		UserB:     result["user_b"],
		Status:    result["status"],
		CreatedAt: createdAt,
	}, nil
}

// Join records the identity's arrival and advances the state machine when
// both members are present. Membership is deliberately not enforced: any
// connection that learns a room id may attach (JoinGuest) without touching
// the joined flags; rooms are ephemeral relays, not access-controlled
// resources.
func (r *Rooms) Join(ctx context.Context, roomID, identity string) (int, error) {
	res, err := r.joinScript.Run(ctx, r.rdb, []string{RoomPrefix + roomID}, identity).Int()
	if err != nil {
		return JoinGone, fmt.Errorf("relay: join room: %w", err)
	}
	return res, nil
}

// MarkPartnerLeft transitions the room to its terminal state. The record
// stays behind so late events hit a closed room instead of a missing key.
func (r *Rooms) MarkPartnerLeft(ctx context.Context, roomID string) error {
	return r.rdb.HSet(ctx, RoomPrefix+roomID, "status", StatusPartnerLeft).Err()
}

// Delete removes a room record and its index entry. Only the sweeper and
// tests call this; the protocol never deletes rooms explicitly.
func (r *Rooms) Delete(ctx context.Context, roomID string) error {
	pipe := r.rdb.Pipeline()
	pipe.Del(ctx, RoomPrefix+roomID)
	pipe.ZRem(ctx, IndexKey, roomID)
	_, err := pipe.Exec(ctx)
	return err
}

// ExpiredBefore returns ids of rooms created at or before the cutoff.
func (r *Rooms) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return r.rdb.ZRangeByScore(ctx, IndexKey, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", cutoff.Unix()),
	}).Result()
}

// ActiveCount returns the number of rooms currently indexed.
func (r *Rooms) ActiveCount(ctx context.Context) (int64, error) {
	return r.rdb.ZCard(ctx, IndexKey).Result()
}

// joinRoomLua marks a member as joined and flips the room to active once
// both flags are set. Non-members fall through without mutating anything.
const joinRoomLua = `
local key = KEYS[1]
local identity = ARGV[1]

local status = redis.call('HGET', key, 'status')
if not status then return -1 end
if status == 'partner_left' then return -2 end

local user_a = redis.call('HGET', key, 'user_a')
local user_b = redis.call('HGET', key, 'user_b')

if identity == user_a then
    redis.call('HSET', key, 'joined_a', 'true')
elseif identity == user_b then
    redis.call('HSET', key, 'joined_b', 'true')
else
    return 2
end

local joined_a = redis.call('HGET', key, 'joined_a')
local joined_b = redis.call('HGET', key, 'joined_b')

if joined_a == 'true' and joined_b == 'true' then
    redis.call('HSET', key, 'status', 'active')
    return 1
end

return 0
`
