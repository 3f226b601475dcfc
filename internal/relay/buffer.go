package relay

import "sync"

// MaxBufferMessages is the number of recent messages retained per room,
// snapshotted into abuse-report audit records.
const MaxBufferMessages = 5

// BufferedMessage is a single message held in a room's ring buffer.
type BufferedMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// MessageBuffer keeps the last N messages per room in memory. It is
// goroutine-safe and backed by fixed-size ring buffers.
type MessageBuffer struct {
	mu      sync.RWMutex
	buffers map[string]*ringBuffer // roomID -> ring buffer
}

type ringBuffer struct {
	items []BufferedMessage
	pos   int
	count int
}

// NewMessageBuffer creates an empty MessageBuffer.
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{buffers: make(map[string]*ringBuffer)}
}

// Add appends a message to the room's buffer, overwriting the oldest entry
// once the buffer is full.
func (mb *MessageBuffer) Add(roomID string, msg BufferedMessage) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	rb, ok := mb.buffers[roomID]
	if !ok {
		rb = &ringBuffer{items: make([]BufferedMessage, MaxBufferMessages)}
		mb.buffers[roomID] = rb
	}

	rb.items[rb.pos] = msg
	rb.pos = (rb.pos + 1) % MaxBufferMessages
	if rb.count < MaxBufferMessages {
		rb.count++
	}
}

// Get returns the room's buffered messages in chronological order, oldest
// first. Empty slice if the room has no buffer.
func (mb *MessageBuffer) Get(roomID string) []BufferedMessage {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	rb, ok := mb.buffers[roomID]
	if !ok {
		return []BufferedMessage{}
	}

	result := make([]BufferedMessage, rb.count)
	start := (rb.pos - rb.count + MaxBufferMessages) % MaxBufferMessages
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(start+i)%MaxBufferMessages]
	}
	return result
}

// Remove drops the buffer for a room.
func (mb *MessageBuffer) Remove(roomID string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.buffers, roomID)
}
