package lumen

import (
	"sync"
)

// spool is the two-stage holding area between producers and the delivery
// loop: a small accumulation buffer that producers append to, and a pending
// FIFO queue that accumulated events are moved into atomically.
//
// The pending queue only shrinks via commitFront after a confirmed send.
// An event is never in both stages at once: flush moves, it does not copy.
type spool struct {
	bufMu sync.Mutex
	buf   []string

	pendMu  sync.Mutex
	pending []string
}

func newSpool(bufferMax int) *spool {
	return &spool{
		buf: make([]string, 0, bufferMax),
	}
}

// append adds an event to the accumulation buffer and returns the
// post-append buffer length, read atomically with the append.
func (s *spool) append(event string) int {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	s.buf = append(s.buf, event)
	return len(s.buf)
}

// flush moves the entire accumulation buffer, in order, to the back of the
// pending queue. Both locks are held together so no event can be lost
// between the buffer clear and the queue append. Flushing an empty buffer
// is a no-op.
func (s *spool) flush() {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	s.pendMu.Lock()
	defer s.pendMu.Unlock()

	if len(s.buf) == 0 {
		return
	}

	s.pending = append(s.pending, s.buf...)
	s.buf = s.buf[:0]
}

// peekFront returns up to n events from the front of the pending queue
// without removing them. The returned slice is a copy: a concurrent flush
// appending to the back cannot disturb it.
func (s *spool) peekFront(n int) []string {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()

	if n > len(s.pending) {
		n = len(s.pending)
	}
	if n == 0 {
		return nil
	}

	batch := make([]string, n)
	copy(batch, s.pending[:n])
	return batch
}

// commitFront removes the first n events from the pending queue. Called only
// after the payload containing them was confirmed delivered. Producers only
// append to the back, so the front n entries are still the ones peeked.
func (s *spool) commitFront(n int) {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()

	if n > len(s.pending) {
		n = len(s.pending)
	}

	rest := make([]string, len(s.pending)-n)
	copy(rest, s.pending[n:])
	s.pending = rest
}

// pendingLen returns the number of events awaiting delivery.
func (s *spool) pendingLen() int {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	return len(s.pending)
}

// bufferedLen returns the number of not-yet-flushed events.
func (s *spool) bufferedLen() int {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return len(s.buf)
}
