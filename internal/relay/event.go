package relay

// RoomEvent is the payload published to room.<room_id> subjects for
// real-time delivery between a room's members, possibly across server
// instances. Each subscriber filters out its own events by From.
type RoomEvent struct {
	Type     string `json:"type"`                // "message", "typing", "member_joined", "member_left"
	From     string `json:"from"`                // sender's identity
	Text     string `json:"text,omitempty"`      // for message events
	IsTyping bool   `json:"is_typing,omitempty"` // for typing events
	Ts       int64  `json:"ts,omitempty"`        // server-side unix ms timestamp for messages
}

// Room event type values.
const (
	EventMessage      = "message"
	EventTyping       = "typing"
	EventMemberJoined = "member_joined"
	EventMemberLeft   = "member_left"
)
