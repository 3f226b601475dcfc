// Package gateway maps inbound protocol events onto the matchmaking and
// relay components and emits the outbound events. It owns the
// identity-to-connection registry, translates internal error kinds into
// the user-visible messages, and runs disconnect cleanup.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/veilchat/backend/internal/abuse"
	"github.com/veilchat/backend/internal/audit"
	"github.com/veilchat/backend/internal/match"
	"github.com/veilchat/backend/internal/metrics"
	"github.com/veilchat/backend/internal/presence"
	"github.com/veilchat/backend/internal/protocol"
	"github.com/veilchat/backend/internal/queue"
	"github.com/veilchat/backend/internal/quota"
	"github.com/veilchat/backend/internal/ratelimit"
	"github.com/veilchat/backend/internal/relay"
	"github.com/veilchat/backend/internal/ws"
)

// User-visible error messages. The prefixes are part of the client
// contract; deployed clients match on them.
const (
	ErrMsgBanned      = "You have been banned due to multiple reports. Please try again later."
	ErrMsgQuota       = "Daily specific match limit reached."
	ErrMsgRateLimited = "You're doing that too fast. Please slow down."
)

const waitingMessage = "Waiting for a match..."

// Emitter sends an encoded frame to a local connection. Implemented by
// *ws.Server; tests use a recording fake.
type Emitter interface {
	SendMessage(connID string, data []byte) error
}

// Bus fans events out across front-end instances. Implemented by
// *messaging.Client; tests use an in-process fake.
type Bus interface {
	PublishToUser(identity string, data []byte) error
	SubscribeUser(identity string, handler func(data []byte)) error
	UnsubscribeUser(identity string) error
	PublishRoomEvent(roomID string, data []byte) error
	SubscribeRoom(roomID, identity string, handler func(data []byte)) error
	UnsubscribeRoom(identity string) error
}

// Gateway composes the queue, match engine, quota tracker, abuse registry,
// and session relay behind the protocol event surface.
type Gateway struct {
	emitter  Emitter
	bus      Bus
	queue    *queue.Store
	engine   *match.Engine
	quota    *quota.Tracker
	abuse    *abuse.Registry
	rooms    *relay.Rooms
	buffer   *relay.MessageBuffer
	presence *presence.Store
	limiter  *ratelimit.Limiter // optional
	audit    *audit.Store       // optional
	registry *IdentityRegistry
}

// Config bundles the collaborators a Gateway composes. Limiter and Audit
// are optional; a nil Limiter disables throttling and a nil Audit
// disables the Postgres report log.
type Config struct {
	Emitter  Emitter
	Bus      Bus
	Queue    *queue.Store
	Engine   *match.Engine
	Quota    *quota.Tracker
	Abuse    *abuse.Registry
	Rooms    *relay.Rooms
	Buffer   *relay.MessageBuffer
	Presence *presence.Store
	Limiter  *ratelimit.Limiter
	Audit    *audit.Store
}

// New creates a Gateway from its collaborators.
func New(cfg Config) *Gateway {
	return &Gateway{
		emitter:  cfg.Emitter,
		bus:      cfg.Bus,
		queue:    cfg.Queue,
		engine:   cfg.Engine,
		quota:    cfg.Quota,
		abuse:    cfg.Abuse,
		rooms:    cfg.Rooms,
		buffer:   cfg.Buffer,
		presence: cfg.Presence,
		limiter:  cfg.Limiter,
		audit:    cfg.Audit,
		registry: NewIdentityRegistry(),
	}
}

// SetEmitter swaps the frame sink. Supports the initialization pattern
// where the dispatcher and gateway are built before the ws.Server.
func (g *Gateway) SetEmitter(e Emitter) {
	g.emitter = e
}

// Registry exposes the identity registry (used by tests and diagnostics).
func (g *Gateway) Registry() *IdentityRegistry {
	return g.registry
}

// RegisterHandlers wires every inbound protocol event into the dispatcher.
func (g *Gateway) RegisterHandlers(d *ws.MessageDispatcher) {
	d.Register(protocol.TypeRegisterDevice, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.RegisterDeviceMsg); ok {
			g.HandleRegisterDevice(conn.ID, m)
		}
	})
	d.Register(protocol.TypeGetLimit, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.GetLimitMsg); ok {
			g.HandleGetLimit(conn.ID, m)
		}
	})
	d.Register(protocol.TypeJoinQueue, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.JoinQueueMsg); ok {
			g.HandleJoinQueue(conn.ID, m)
		}
	})
	d.Register(protocol.TypeLeaveQueue, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.LeaveQueueMsg); ok {
			g.HandleLeaveQueue(conn.ID, m)
		}
	})
	d.Register(protocol.TypeChangePreference, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.ChangePreferenceMsg); ok {
			g.HandleChangePreference(conn.ID, m)
		}
	})
	d.Register(protocol.TypeReportUser, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.ReportUserMsg); ok {
			g.HandleReportUser(conn.ID, m)
		}
	})
	d.Register(protocol.TypeJoinRoom, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.JoinRoomMsg); ok {
			g.HandleJoinRoom(conn.ID, m)
		}
	})
	d.Register(protocol.TypeSendMessage, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.SendMessageMsg); ok {
			g.HandleSendMessage(conn.ID, m)
		}
	})
	d.Register(protocol.TypeTyping, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.TypingMsg); ok {
			g.HandleTyping(conn.ID, m)
		}
	})
	d.Register(protocol.TypeLeaveRoom, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.LeaveRoomMsg); ok {
			g.HandleLeaveRoom(conn.ID, m)
		}
	})
}

// ---------------------------------------------------------------------------
// Matchmaking events
// ---------------------------------------------------------------------------

// HandleRegisterDevice binds the connection to a device identity,
// subscribes to out-of-band pushes for it, and answers with a quota push.
func (g *Gateway) HandleRegisterDevice(connID string, m protocol.RegisterDeviceMsg) {
	if m.DeviceID == "" {
		g.sendError(connID, "Missing device id.")
		return
	}
	ctx := context.Background()

	g.registry.Bind(m.DeviceID, connID)

	if err := g.presence.Touch(ctx, m.DeviceID); err != nil {
		log.Printf("[gateway] presence touch %s: %v", m.DeviceID, err)
	}

	identity := m.DeviceID
	if err := g.bus.SubscribeUser(identity, func(data []byte) {
		// Deliver out-of-band pushes to wherever the identity is
		// connected right now.
		if cid := g.registry.ConnOf(identity); cid != "" {
			if err := g.emitter.SendMessage(cid, data); err != nil {
				log.Printf("[gateway] push to %s: %v", identity, err)
			}
		}
	}); err != nil {
		log.Printf("[gateway] subscribe user %s: %v", identity, err)
	}

	g.pushLimit(ctx, connID, identity)
	log.Printf("[gateway] conn=%s registered as device %s", connID, identity)
}

// HandleGetLimit answers with a fresh limit_update.
func (g *Gateway) HandleGetLimit(connID string, m protocol.GetLimitMsg) {
	g.pushLimit(context.Background(), connID, m.DeviceID)
}

// HandleJoinQueue runs the ban and quota checks, enqueues the requester,
// and immediately attempts a match.
func (g *Gateway) HandleJoinQueue(connID string, m protocol.JoinQueueMsg) {
	ctx := context.Background()

	gender, err := queue.ParseGender(m.Gender)
	if err != nil {
		g.sendError(connID, "Invalid gender.")
		return
	}
	pref, err := queue.ParsePreference(m.Preference)
	if err != nil {
		g.sendError(connID, "Invalid preference.")
		return
	}

	banned, err := g.abuse.IsBanned(ctx, m.DeviceID)
	if err != nil {
		// Fail open: a store blip must not lock everyone out.
		log.Printf("[gateway] ban check %s: %v", m.DeviceID, err)
	}
	if banned {
		g.sendError(connID, ErrMsgBanned)
		return
	}

	if pref.Filtered() {
		allowed, err := g.quota.Allowed(ctx, m.DeviceID)
		if err != nil {
			g.sendError(connID, "Something went wrong. Please try again.")
			return
		}
		if !allowed {
			metrics.QuotaRejections.Inc()
			g.sendError(connID, ErrMsgQuota)
			g.pushLimit(ctx, connID, m.DeviceID)
			return
		}
	}

	if g.limiter != nil {
		if ok, _ := g.limiter.Allow(ctx, m.DeviceID, ratelimit.RuleJoinQueue); !ok {
			g.sendError(connID, ErrMsgRateLimited)
			return
		}
	}

	nickname := m.Nickname
	if nickname == "" {
		nickname = defaultNickname(m.DeviceID)
	}
	if err := g.queue.SetNickname(ctx, m.DeviceID, nickname); err != nil {
		log.Printf("[gateway] set nickname %s: %v", m.DeviceID, err)
	}

	if err := g.queue.Enqueue(ctx, m.DeviceID, gender, pref); err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			g.sendError(connID, err.Error())
		} else {
			log.Printf("[gateway] enqueue %s: %v", m.DeviceID, err)
			g.sendError(connID, "Something went wrong. Please try again.")
		}
		return
	}

	if err := g.presence.SetQueued(ctx, m.DeviceID, m.Gender, m.Preference, nickname); err != nil {
		log.Printf("[gateway] presence %s: %v", m.DeviceID, err)
	}

	log.Printf("[gateway] device %s (%s) queued as %s looking for %s",
		m.DeviceID, nickname, gender, pref)

	g.attemptMatch(ctx, connID, m.DeviceID, gender, pref)
}

// attemptMatch runs the engine for a freshly queued requester and either
// completes the pairing or confirms the wait.
func (g *Gateway) attemptMatch(ctx context.Context, connID, identity string, gender queue.Gender, pref queue.Preference) {
	start := time.Now()
	pairing, err := g.engine.FindMatch(ctx, identity, gender, pref)
	metrics.MatchSearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("[gateway] match search for %s: %v", identity, err)
		g.sendError(connID, "Something went wrong. Please try again.")
		return
	}

	if pairing == nil {
		g.send(connID, protocol.TypeQueueJoined, protocol.QueueJoinedMsg{Message: waitingMessage})
		return
	}

	g.completeMatch(ctx, connID, pairing, pref)
}

// completeMatch allocates the room, charges the active side's quota, and
// notifies both users. The passive side, who made no request at match
// time, is reached through the identity registry or the bus.
func (g *Gateway) completeMatch(ctx context.Context, connID string, pairing *match.Pairing, activePref queue.Preference) {
	roomID, err := g.rooms.Create(ctx, pairing.Requester, pairing.Partner)
	if err != nil {
		log.Printf("[gateway] create room for %s/%s: %v", pairing.Requester, pairing.Partner, err)
		g.sendError(connID, "Something went wrong. Please try again.")
		return
	}

	// Only the active side is charged: the passive side did not choose
	// this match and may not even have a filtered preference.
	prefLabel := "any"
	if activePref.Filtered() {
		prefLabel = "filtered"
		if _, err := g.quota.Increment(ctx, pairing.Requester); err != nil {
			log.Printf("[gateway] quota charge %s: %v", pairing.Requester, err)
		}
		g.pushLimit(ctx, connID, pairing.Requester)
	}
	metrics.MatchesTotal.WithLabelValues(prefLabel).Inc()

	requesterNickname := g.queue.Nickname(ctx, pairing.Requester, "Stranger")
	partnerNickname := g.queue.Nickname(ctx, pairing.Partner, "Stranger")

	if err := g.presence.SetChatting(ctx, pairing.Requester, roomID); err != nil {
		log.Printf("[gateway] presence %s: %v", pairing.Requester, err)
	}
	if err := g.presence.SetChatting(ctx, pairing.Partner, roomID); err != nil {
		log.Printf("[gateway] presence %s: %v", pairing.Partner, err)
	}

	log.Printf("[gateway] matched %s <-> %s room=%s", pairing.Requester, pairing.Partner, roomID)

	// Active side, synchronously on its own connection.
	g.send(connID, protocol.TypeMatchFound, protocol.MatchFoundMsg{
		PartnerID:       pairing.Partner,
		PartnerNickname: partnerNickname,
		RoomID:          roomID,
	})

	// Passive side, out of band.
	g.sendToIdentity(pairing.Partner, protocol.TypeMatchFound, protocol.MatchFoundMsg{
		PartnerID:       pairing.Requester,
		PartnerNickname: requesterNickname,
		RoomID:          roomID,
	})
}

// HandleLeaveQueue removes the requester's queue entry. Removal is
// idempotent; leaving after being claimed is a no-op.
func (g *Gateway) HandleLeaveQueue(connID string, m protocol.LeaveQueueMsg) {
	ctx := context.Background()

	gender, err := queue.ParseGender(m.Gender)
	if err != nil {
		g.sendError(connID, "Invalid gender.")
		return
	}
	pref, err := queue.ParsePreference(m.Preference)
	if err != nil {
		g.sendError(connID, "Invalid preference.")
		return
	}

	if err := g.queue.Dequeue(ctx, m.DeviceID, gender, pref); err != nil {
		log.Printf("[gateway] dequeue %s: %v", m.DeviceID, err)
	}
	if err := g.presence.SetIdle(ctx, m.DeviceID); err != nil {
		log.Printf("[gateway] presence %s: %v", m.DeviceID, err)
	}

	g.send(connID, protocol.TypeQueueLeft, protocol.QueueLeftMsg{})
}

// HandleChangePreference atomically moves a queued entry to a new
// preference partition, then re-attempts a match under the new terms.
func (g *Gateway) HandleChangePreference(connID string, m protocol.ChangePreferenceMsg) {
	ctx := context.Background()

	gender, err := queue.ParseGender(m.Gender)
	if err != nil {
		g.sendError(connID, "Invalid gender.")
		return
	}
	oldPref, err := queue.ParsePreference(m.OldPreference)
	if err != nil {
		g.sendError(connID, "Invalid preference.")
		return
	}
	newPref, err := queue.ParsePreference(m.NewPreference)
	if err != nil {
		g.sendError(connID, "Invalid preference.")
		return
	}

	if newPref.Filtered() && !oldPref.Filtered() {
		allowed, err := g.quota.Allowed(ctx, m.DeviceID)
		if err != nil {
			g.sendError(connID, "Something went wrong. Please try again.")
			return
		}
		if !allowed {
			g.sendError(connID, ErrMsgQuota)
			g.pushLimit(ctx, connID, m.DeviceID)
			return
		}
	}

	moved, err := g.queue.ChangePreference(ctx, m.DeviceID, gender, oldPref, newPref)
	if err != nil {
		log.Printf("[gateway] move %s: %v", m.DeviceID, err)
		g.sendError(connID, "Something went wrong. Please try again.")
		return
	}
	if !moved {
		// Entry was claimed or left in the meantime; nothing to move.
		g.send(connID, protocol.TypeQueueLeft, protocol.QueueLeftMsg{})
		return
	}

	if err := g.presence.SetPreference(ctx, m.DeviceID, m.NewPreference); err != nil {
		log.Printf("[gateway] presence %s: %v", m.DeviceID, err)
	}

	g.attemptMatch(ctx, connID, m.DeviceID, gender, newPref)
}

// HandleReportUser increments the target's report count, possibly
// triggering a ban, and writes the optional audit record.
func (g *Gateway) HandleReportUser(connID string, m protocol.ReportUserMsg) {
	ctx := context.Background()

	if g.limiter != nil {
		if ok, _ := g.limiter.Allow(ctx, m.ReporterID, ratelimit.RuleReport); !ok {
			g.sendError(connID, ErrMsgRateLimited)
			return
		}
	}

	count, banned, err := g.abuse.Report(ctx, m.TargetID)
	if err != nil {
		log.Printf("[gateway] report %s: %v", m.TargetID, err)
		return
	}

	outcome := "recorded"
	if banned {
		outcome = "ban"
	}
	metrics.ReportsTotal.WithLabelValues(outcome).Inc()
	log.Printf("[gateway] device %s reported by %s (count=%d banned=%v)",
		m.TargetID, m.ReporterID, count, banned)

	if g.audit != nil {
		g.writeAuditRecord(ctx, m, count)
	}
}

// writeAuditRecord persists the report with a snapshot of the reporter's
// current room conversation, when one exists.
func (g *Gateway) writeAuditRecord(ctx context.Context, m protocol.ReportUserMsg, count int) {
	record := &audit.Report{
		ReporterID:  m.ReporterID,
		ReportedID:  m.TargetID,
		ReportCount: count,
	}

	if state, err := g.presence.Get(ctx, m.ReporterID); err == nil && state != nil && state.RoomID != "" {
		record.RoomID = state.RoomID
		for _, msg := range g.buffer.Get(state.RoomID) {
			record.Messages = append(record.Messages, audit.MessageEntry{
				From: msg.From,
				Text: msg.Text,
				Ts:   msg.Ts,
			})
		}
	}

	if err := g.audit.Create(ctx, record); err != nil {
		log.Printf("[gateway] audit record: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Room events
// ---------------------------------------------------------------------------

// HandleJoinRoom attaches the connection to a room's relay stream and
// announces the arrival. Membership is not validated; an unknown or
// closed room is a silent no-op beyond the attach attempt.
func (g *Gateway) HandleJoinRoom(connID string, m protocol.JoinRoomMsg) {
	ctx := context.Background()

	identity := g.registry.IdentityOf(connID)
	if identity == "" {
		g.sendError(connID, "Device not registered.")
		return
	}

	result, err := g.rooms.Join(ctx, m.RoomID, identity)
	if err != nil {
		log.Printf("[gateway] join room %s: %v", m.RoomID, err)
		return
	}
	if result == relay.JoinGone {
		return
	}

	if err := g.bus.SubscribeRoom(m.RoomID, identity, g.roomEventHandler(identity)); err != nil {
		log.Printf("[gateway] subscribe room %s for %s: %v", m.RoomID, identity, err)
		return
	}

	if err := g.presence.SetChatting(ctx, identity, m.RoomID); err != nil {
		log.Printf("[gateway] presence %s: %v", identity, err)
	}

	g.publishRoomEvent(m.RoomID, relay.RoomEvent{Type: relay.EventMemberJoined, From: identity})
	log.Printf("[gateway] device %s joined room %s (state=%d)", identity, m.RoomID, result)
}

// roomEventHandler translates relay events into outbound frames for one
// local member, filtering out the member's own events.
func (g *Gateway) roomEventHandler(identity string) func(data []byte) {
	return func(data []byte) {
		var event relay.RoomEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("[gateway] room event for %s: %v", identity, err)
			return
		}
		if event.From == identity {
			return // don't echo to sender
		}

		connID := g.registry.ConnOf(identity)
		if connID == "" {
			return
		}

		switch event.Type {
		case relay.EventMessage:
			g.send(connID, protocol.TypeReceiveMessage, protocol.ReceiveMessageMsg{
				SenderID:  event.From,
				Message:   event.Text,
				Timestamp: event.Ts,
			})
		case relay.EventTyping:
			g.send(connID, protocol.TypePlatformTyping, protocol.PlatformTypingMsg{
				IsTyping: event.IsTyping,
			})
		case relay.EventMemberJoined:
			g.send(connID, protocol.TypeUserJoinedRoom, protocol.UserJoinedRoomMsg{})
		case relay.EventMemberLeft:
			g.send(connID, protocol.TypeUserLeftRoom, protocol.UserLeftRoomMsg{})
		}
	}
}

// HandleSendMessage validates and relays a chat message to the other room
// member, stamping a server-side timestamp. Relaying into an empty or
// closed room is a silent no-op.
func (g *Gateway) HandleSendMessage(connID string, m protocol.SendMessageMsg) {
	ctx := context.Background()

	if err := relay.ValidateMessage(m.Message); err != nil {
		g.sendError(connID, err.Error())
		return
	}

	if g.limiter != nil {
		if ok, _ := g.limiter.Allow(ctx, m.SenderID, ratelimit.RuleMessage); !ok {
			g.sendError(connID, ErrMsgRateLimited)
			return
		}
	}

	ts := time.Now().UnixMilli()
	g.buffer.Add(m.RoomID, relay.BufferedMessage{From: m.SenderID, Text: m.Message, Ts: ts})

	g.publishRoomEvent(m.RoomID, relay.RoomEvent{
		Type: relay.EventMessage,
		From: m.SenderID,
		Text: m.Message,
		Ts:   ts,
	})
	metrics.MessagesRelayed.Inc()
}

// HandleTyping relays a typing indicator. No state changes.
func (g *Gateway) HandleTyping(connID string, m protocol.TypingMsg) {
	identity := g.registry.IdentityOf(connID)
	if identity == "" {
		return
	}
	g.publishRoomEvent(m.RoomID, relay.RoomEvent{
		Type:     relay.EventTyping,
		From:     identity,
		IsTyping: m.IsTyping,
	})
}

// HandleLeaveRoom detaches the connection from the room, notifies the
// remaining member, and marks the room's terminal state. The room record
// itself is left for the sweeper.
func (g *Gateway) HandleLeaveRoom(connID string, m protocol.LeaveRoomMsg) {
	identity := g.registry.IdentityOf(connID)
	if identity == "" {
		return
	}
	g.leaveRoom(context.Background(), identity, m.RoomID)
}

func (g *Gateway) leaveRoom(ctx context.Context, identity, roomID string) {
	g.publishRoomEvent(roomID, relay.RoomEvent{Type: relay.EventMemberLeft, From: identity})

	if err := g.rooms.MarkPartnerLeft(ctx, roomID); err != nil {
		log.Printf("[gateway] mark room %s: %v", roomID, err)
	}
	if err := g.bus.UnsubscribeRoom(identity); err != nil {
		log.Printf("[gateway] unsubscribe room for %s: %v", identity, err)
	}
	if err := g.presence.SetIdle(ctx, identity); err != nil {
		log.Printf("[gateway] presence %s: %v", identity, err)
	}

	log.Printf("[gateway] device %s left room %s", identity, roomID)
}

// ---------------------------------------------------------------------------
// Disconnect cleanup
// ---------------------------------------------------------------------------

// HandleDisconnect runs when a connection drops for any reason: it removes
// a live queue entry, tears the identity out of any room, and clears the
// bindings. Wired into ws.Server.SetOnDisconnect.
func (g *Gateway) HandleDisconnect(connID string) {
	identity := g.registry.UnbindConn(connID)
	if identity == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := g.bus.UnsubscribeUser(identity); err != nil {
		log.Printf("[gateway] unsubscribe user %s: %v", identity, err)
	}

	state, err := g.presence.Get(ctx, identity)
	if err != nil || state == nil {
		return
	}

	if state.Status == presence.StatusQueued {
		gender, gerr := queue.ParseGender(state.Gender)
		pref, perr := queue.ParsePreference(state.Preference)
		if gerr == nil && perr == nil {
			if err := g.queue.Dequeue(ctx, identity, gender, pref); err != nil {
				log.Printf("[gateway] disconnect dequeue %s: %v", identity, err)
			}
		}
	}

	if state.RoomID != "" {
		g.leaveRoom(ctx, identity, state.RoomID)
	}

	if err := g.presence.Delete(ctx, identity); err != nil {
		log.Printf("[gateway] presence delete %s: %v", identity, err)
	}

	log.Printf("[gateway] disconnect cleanup for device %s (status=%s)", identity, state.Status)
}

// ---------------------------------------------------------------------------
// Outbound helpers
// ---------------------------------------------------------------------------

func (g *Gateway) send(connID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[gateway] build %s: %v", msgType, err)
		return
	}
	if err := g.emitter.SendMessage(connID, data); err != nil {
		log.Printf("[gateway] send %s to conn %s: %v", msgType, connID, err)
	}
}

func (g *Gateway) sendError(connID, message string) {
	g.send(connID, protocol.TypeError, protocol.ErrorMsg{Message: message})
}

// sendToIdentity delivers an event to a device wherever it is connected:
// directly when the connection is local, via the bus otherwise.
func (g *Gateway) sendToIdentity(identity, msgType string, payload interface{}) {
	if connID := g.registry.ConnOf(identity); connID != "" {
		g.send(connID, msgType, payload)
		return
	}

	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[gateway] build %s: %v", msgType, err)
		return
	}
	if err := g.bus.PublishToUser(identity, data); err != nil {
		log.Printf("[gateway] publish %s to %s: %v", msgType, identity, err)
	}
}

func (g *Gateway) pushLimit(ctx context.Context, connID, identity string) {
	remaining, err := g.quota.Remaining(ctx, identity)
	if err != nil {
		log.Printf("[gateway] quota remaining %s: %v", identity, err)
		return
	}
	g.send(connID, protocol.TypeLimitUpdate, protocol.LimitUpdateMsg{Remaining: remaining})
}

func (g *Gateway) publishRoomEvent(roomID string, event relay.RoomEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[gateway] marshal room event: %v", err)
		return
	}
	if err := g.bus.PublishRoomEvent(roomID, data); err != nil {
		log.Printf("[gateway] publish room event %s: %v", roomID, err)
	}
}

func defaultNickname(identity string) string {
	if len(identity) >= 4 {
		return "User#" + identity[:4]
	}
	return "User#" + identity
}
