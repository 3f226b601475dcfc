// Package messaging provides a NATS client wrapper for pub/sub fan-out
// between stateless front-end instances. It carries two kinds of traffic:
// out-of-band pushes to a device identity (user.<identity>) and chat room
// relay events (room.<room_id>).
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject prefixes.
const (
	SubjectUser = "user" // + .<identity>, direct pushes to one device
	SubjectRoom = "room" // + .<room_id>, relay events within a chat room
)

// Client wraps the NATS connection with helper methods for pub/sub.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "veilchat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// PublishToUser publishes a direct event for one device identity. Any
// front-end holding that identity's connection forwards it.
func (c *Client) PublishToUser(identity string, data []byte) error {
	return c.Publish(SubjectUser+"."+identity, data)
}

// SubscribeUser subscribes to out-of-band events for one identity. Called
// when a device registers on this instance; the handler forwards frames to
// the local connection.
func (c *Client) SubscribeUser(identity string, handler func(data []byte)) error {
	subject := SubjectUser + "." + identity
	return c.subscribe(subject, subject, handler)
}

// UnsubscribeUser drops the identity's direct-event subscription.
func (c *Client) UnsubscribeUser(identity string) error {
	return c.unsubscribe(SubjectUser + "." + identity)
}

// PublishRoomEvent publishes a relay event to the room.<roomID> subject.
func (c *Client) PublishRoomEvent(roomID string, data []byte) error {
	return c.Publish(SubjectRoom+"."+roomID, data)
}

// SubscribeRoom subscribes an identity to a room's relay events. The
// subscription is keyed by identity so two local members of the same room
// don't overwrite each other's subscriptions.
func (c *Client) SubscribeRoom(roomID, identity string, handler func(data []byte)) error {
	subject := SubjectRoom + "." + roomID
	return c.subscribe("roomsub:"+identity, subject, handler)
}

// UnsubscribeRoom drops an identity's room subscription.
func (c *Client) UnsubscribeRoom(identity string) error {
	return c.unsubscribe("roomsub:" + identity)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", key, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// subscribe registers a handler under a lookup key, replacing any previous
// subscription held under the same key.
func (c *Client) subscribe(key, subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	if old, ok := c.subs[key]; ok {
		_ = old.Unsubscribe()
	}
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// unsubscribe removes and unsubscribes the subscription under key.
func (c *Client) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("nats: no subscription for %s", key)
	}
	return sub.Unsubscribe()
}
