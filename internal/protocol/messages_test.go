package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid join_queue message
// ---------------------------------------------------------------------------

func TestParseClientMessage_JoinQueue(t *testing.T) {
	input := []byte(`{"type":"join_queue","deviceId":"dev-123","gender":"male","preference":"female","nickname":"Alex"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoinQueue {
		t.Fatalf("expected type %q, got %q", TypeJoinQueue, msgType)
	}

	jq, ok := msg.(JoinQueueMsg)
	if !ok {
		t.Fatalf("expected JoinQueueMsg, got %T", msg)
	}
	if jq.DeviceID != "dev-123" {
		t.Errorf("expected deviceId %q, got %q", "dev-123", jq.DeviceID)
	}
	if jq.Gender != "male" || jq.Preference != "female" {
		t.Errorf("unexpected gender/preference: %q/%q", jq.Gender, jq.Preference)
	}
	if jq.Nickname != "Alex" {
		t.Errorf("expected nickname %q, got %q", "Alex", jq.Nickname)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid send_message message
// ---------------------------------------------------------------------------

func TestParseClientMessage_SendMessage(t *testing.T) {
	input := []byte(`{"type":"send_message","roomId":"room_1_abc","message":"Hello!","senderId":"dev-123"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSendMessage {
		t.Fatalf("expected type %q, got %q", TypeSendMessage, msgType)
	}

	sm, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("expected SendMessageMsg, got %T", msg)
	}
	if sm.RoomID != "room_1_abc" {
		t.Errorf("expected roomId %q, got %q", "room_1_abc", sm.RoomID)
	}
	if sm.Message != "Hello!" {
		t.Errorf("expected message %q, got %q", "Hello!", sm.Message)
	}
	if sm.SenderID != "dev-123" {
		t.Errorf("expected senderId %q, got %q", "dev-123", sm.SenderID)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a report_user message
// ---------------------------------------------------------------------------

func TestParseClientMessage_ReportUser(t *testing.T) {
	input := []byte(`{"type":"report_user","targetId":"bad-guy","reporterId":"dev-123"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeReportUser {
		t.Fatalf("expected type %q, got %q", TypeReportUser, msgType)
	}

	ru, ok := msg.(ReportUserMsg)
	if !ok {
		t.Fatalf("expected ReportUserMsg, got %T", msg)
	}
	if ru.TargetID != "bad-guy" || ru.ReporterID != "dev-123" {
		t.Errorf("unexpected fields: %+v", ru)
	}
}

// ---------------------------------------------------------------------------
// Test: Rejecting malformed input
// ---------------------------------------------------------------------------

func TestParseClientMessage_MissingType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"deviceId":"dev-123"}`)); err == nil {
		t.Fatal("expected error for missing type field")
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"self_destruct"}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestParseClientMessage_ServerOnlyType(t *testing.T) {
	// Server -> client events must be rejected on the inbound path.
	if _, _, err := ParseClientMessage([]byte(`{"type":"match_found"}`)); err == nil {
		t.Fatal("expected error for server-only type")
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a match_found server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_MatchFound(t *testing.T) {
	payload := MatchFoundMsg{
		PartnerID:       "dev-456",
		PartnerNickname: "Sam",
		RoomID:          "room_1_abc",
	}

	data, err := NewServerMessage(TypeMatchFound, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify the wire field names.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeMatchFound {
		t.Errorf("expected type %q, got %v", TypeMatchFound, result["type"])
	}
	if result["partnerId"] != "dev-456" {
		t.Errorf("expected partnerId %q, got %v", "dev-456", result["partnerId"])
	}
	if result["partnerNickname"] != "Sam" {
		t.Errorf("expected partnerNickname %q, got %v", "Sam", result["partnerNickname"])
	}
	if result["roomId"] != "room_1_abc" {
		t.Errorf("expected roomId %q, got %v", "room_1_abc", result["roomId"])
	}
}

// ---------------------------------------------------------------------------
// Test: Server message type injection overrides payload
// ---------------------------------------------------------------------------

func TestNewServerMessage_TypeInjected(t *testing.T) {
	data, err := NewServerMessage(TypeLimitUpdate, LimitUpdateMsg{Remaining: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeLimitUpdate {
		t.Errorf("expected injected type %q, got %v", TypeLimitUpdate, result["type"])
	}
	if result["remaining"] != float64(3) {
		t.Errorf("expected remaining 3, got %v", result["remaining"])
	}
}
