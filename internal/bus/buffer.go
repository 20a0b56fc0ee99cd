package bus

import "sync"

// RingBuffer keeps the last size messages.
type RingBuffer struct {
	mu       sync.RWMutex
	size     int
	messages []Message
	index    int
	full     bool
}

func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{
		size:     size,
		messages: make([]Message, size),
	}
}

func (rb *RingBuffer) Add(m Message) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.messages[rb.index] = m
	rb.index = (rb.index + 1) % rb.size
	if rb.index == 0 {
		rb.full = true
	}
}

// Snapshot returns buffered messages oldest first.
func (rb *RingBuffer) Snapshot() []Message {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if !rb.full {
		return append([]Message{}, rb.messages[:rb.index]...)
	}

	out := make([]Message, 0, rb.size)
	out = append(out, rb.messages[rb.index:]...)
	out = append(out, rb.messages[:rb.index]...)
	return out
}

func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.messages = make([]Message, rb.size)
	rb.index = 0
	rb.full = false
}
