// Package protocol defines the WebSocket events exchanged between the
// client and the gateway. Every frame is a JSON object with a "type"
// discriminator carrying the event name; the remaining fields are the
// event payload. Event names and payload field names are part of the
// compatibility contract with deployed clients and must not change.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> Server event types.
const (
	TypeRegisterDevice   = "register_device"
	TypeGetLimit         = "get_limit"
	TypeJoinQueue        = "join_queue"
	TypeLeaveQueue       = "leave_queue"
	TypeChangePreference = "change_preference"
	TypeReportUser       = "report_user"
	TypeJoinRoom         = "join_room"
	TypeSendMessage      = "send_message"
	TypeTyping           = "typing"
	TypeLeaveRoom        = "leave_room"
	TypePing             = "ping"
)

// Server -> Client event types.
const (
	TypeLimitUpdate    = "limit_update"
	TypeMatchFound     = "match_found"
	TypeQueueJoined    = "queue_joined"
	TypeQueueLeft      = "queue_left"
	TypeError          = "error"
	TypeReceiveMessage = "receive_message"
	TypePlatformTyping = "platform_typing"
	TypeUserJoinedRoom = "user_joined_room"
	TypeUserLeftRoom   = "user_left_room"
	TypePong           = "pong"
)

// Envelope holds the event type and the raw JSON for deferred decoding
// into the concrete payload struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

// RegisterDeviceMsg binds the connection to a device identity so the
// server can push events to it out of band.
type RegisterDeviceMsg struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
}

// GetLimitMsg asks for a fresh quota push.
type GetLimitMsg struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
}

// JoinQueueMsg enters the matchmaking queue.
type JoinQueueMsg struct {
	Type       string `json:"type"`
	DeviceID   string `json:"deviceId"`
	Gender     string `json:"gender"`
	Preference string `json:"preference"`
	Nickname   string `json:"nickname"`
}

// LeaveQueueMsg leaves the matchmaking queue.
type LeaveQueueMsg struct {
	Type       string `json:"type"`
	DeviceID   string `json:"deviceId"`
	Gender     string `json:"gender"`
	Preference string `json:"preference"`
}

// ChangePreferenceMsg moves a queued entry to a different preference
// partition without losing its place in line.
type ChangePreferenceMsg struct {
	Type          string `json:"type"`
	DeviceID      string `json:"deviceId"`
	Gender        string `json:"gender"`
	OldPreference string `json:"oldPreference"`
	NewPreference string `json:"newPreference"`
}

// ReportUserMsg reports another user for abuse.
type ReportUserMsg struct {
	Type       string `json:"type"`
	TargetID   string `json:"targetId"`
	ReporterID string `json:"reporterId"`
}

// JoinRoomMsg attaches the connection to a chat room.
type JoinRoomMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// SendMessageMsg sends a chat message into a room.
type SendMessageMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	Message  string `json:"message"`
	SenderID string `json:"senderId"`
}

// TypingMsg relays a typing indicator. No server-side state changes.
type TypingMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// LeaveRoomMsg detaches the connection from a chat room.
type LeaveRoomMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// PingMsg is a client keepalive.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

// LimitUpdateMsg pushes the remaining daily filtered-match quota.
type LimitUpdateMsg struct {
	Type      string `json:"type"`
	Remaining int    `json:"remaining"`
}

// MatchFoundMsg notifies a user that a partner has been found.
type MatchFoundMsg struct {
	Type            string `json:"type"`
	PartnerID       string `json:"partnerId"`
	PartnerNickname string `json:"partnerNickname"`
	RoomID          string `json:"roomId"`
}

// QueueJoinedMsg confirms entry into the queue without an immediate match.
type QueueJoinedMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// QueueLeftMsg confirms the queue entry was removed.
type QueueLeftMsg struct {
	Type string `json:"type"`
}

// ErrorMsg carries a user-visible error message.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ReceiveMessageMsg delivers a partner's chat message with the
// server-side timestamp.
type ReceiveMessageMsg struct {
	Type      string `json:"type"`
	SenderID  string `json:"senderId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// PlatformTypingMsg relays the partner's typing indicator.
type PlatformTypingMsg struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}

// UserJoinedRoomMsg signals the partner joined the room.
type UserJoinedRoomMsg struct {
	Type string `json:"type"`
}

// UserLeftRoomMsg signals the partner left the room.
type UserLeftRoomMsg struct {
	Type string `json:"type"`
}

// PongMsg answers a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client event.
// Returns the event type, the decoded payload struct, and any parse error.
// Server-only and unknown types are rejected.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRegisterDevice:
		var m RegisterDeviceMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGetLimit:
		var m GetLimitMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinQueue:
		var m JoinQueueMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveQueue:
		var m LeaveQueueMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChangePreference:
		var m ChangePreferenceMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReportUser:
		var m ReportUserMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinRoom:
		var m JoinRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveRoom:
		var m LeaveRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage encodes a server event, injecting the type field into
// the payload's JSON object.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
