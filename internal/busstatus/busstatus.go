// Package busstatus tracks whether the field bus is active and whether
// its hardware buffer is ready, derived from high-priority control
// frames observed on the bus.
package busstatus

import (
	"sync"

	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

const (
	cmdBusOff        = 0x09
	cmdBusActive     = 0x0A
	cmdBufferFull    = 0x0B
	cmdBufferReady   = 0x0C
	controlBodyIndex = 0
)

// Status is a snapshot of the two tracked booleans.
type Status struct {
	Active      bool
	BufferReady bool
}

// Alive reports whether the bus can currently accept writes.
func (s Status) Alive() bool { return s.Active && s.BufferReady }

// Tracker maintains bus status, starting at (true, true) so that startup
// does not spuriously lock the writer before any status frame is seen.
// It has a single writer: the goroutine feeding it frames via Observe.
type Tracker struct {
	mu     sync.Mutex
	status Status
}

// NewTracker returns a Tracker initialised to (active=true, buffer_ready=true).
func NewTracker() *Tracker {
	return &Tracker{status: Status{Active: true, BufferReady: true}}
}

// Status returns the current snapshot.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Observe ingests a frame arriving from the bus. It mutates state only
// when the frame is high-priority and carries a body, and returns the
// status before and after so callers can react to alive transitions.
func (t *Tracker) Observe(fr protocol.Frame) (prev, cur Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev = t.status

	if fr.Priority() != protocol.PriorityHigh || !fr.HasCommand() {
		return prev, prev
	}

	switch fr.Body()[controlBodyIndex] {
	case cmdBusOff:
		t.status.Active = false
	case cmdBusActive:
		t.status.Active = true
	case cmdBufferFull:
		t.status.BufferReady = false
	case cmdBufferReady:
		t.status.BufferReady = true
	}
	return prev, t.status
}
