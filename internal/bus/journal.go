package bus

import (
	"sync"
	"sync/atomic"
)

// DefaultJournalQueue bounds messages waiting to be journaled.
const DefaultJournalQueue = 1024

// journalWriter appends from its own goroutine so Publish never waits on
// storage. Messages are dropped when the queue is full.
type journalWriter struct {
	journal Journal
	ch      chan Message
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	written atomic.Uint64
	dropped atomic.Uint64
}

func newJournalWriter(j Journal, size int) *journalWriter {
	if size <= 0 {
		size = DefaultJournalQueue
	}
	return &journalWriter{
		journal: j,
		ch:      make(chan Message, size),
		done:    make(chan struct{}),
	}
}

// enqueue reports false when m was dropped.
func (w *journalWriter) enqueue(m Message) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return false
	}
	select {
	case w.ch <- m:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *journalWriter) run(b *Bus) {
	defer close(w.done)
	for m := range w.ch {
		if err := w.journal.Append(m.Timestamp, string(m.Topic), m.Payload); err != nil {
			b.journalError(m, err)
			continue
		}
		w.written.Add(1)
	}
}

// close stops accepting messages and waits for the queue to drain.
func (w *journalWriter) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	<-w.done
}
