package bus

// Tap is a buffered channel that receives a copy of every published message.
// Taps serve asynchronous observers (WebSocket clients, MQTT displays); they are
// outside the synchronous delivery contract and drop messages when full.
type Tap chan Message

const tapBuffer = 64

// Tap registers a new tap.
func (b *Bus) Tap() Tap {
	ch := make(Tap, tapBuffer)
	b.tapMu.Lock()
	b.taps[ch] = struct{}{}
	b.tapMu.Unlock()
	return ch
}

// Untap removes a tap and closes its channel. Unknown taps are ignored.
func (b *Bus) Untap(t Tap) {
	b.tapMu.Lock()
	defer b.tapMu.Unlock()
	if _, ok := b.taps[t]; !ok {
		return
	}
	delete(b.taps, t)
	close(t)
}

// CloseTaps closes every tap. Used at shutdown.
func (b *Bus) CloseTaps() {
	b.tapMu.Lock()
	defer b.tapMu.Unlock()
	for t := range b.taps {
		close(t)
	}
	b.taps = make(map[Tap]struct{})
}

// TapCount returns the number of registered taps.
func (b *Bus) TapCount() int {
	b.tapMu.RLock()
	defer b.tapMu.RUnlock()
	return len(b.taps)
}

func (b *Bus) broadcast(m Message) {
	b.tapMu.RLock()
	defer b.tapMu.RUnlock()

	for t := range b.taps {
		select {
		case t <- m:
		default:
			// slow observer, drop
		}
	}
}
