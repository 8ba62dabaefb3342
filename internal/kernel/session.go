package kernel

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Session holds the single client session a kernel process serves. The id is
// fixed by the first message received on shell or control, first-seen-wins;
// until then a provisional id stamps boot-time traffic such as the starting
// status. Sessions are not multiplexed within one process.
type Session struct {
	mu    sync.RWMutex
	id    string
	fixed bool
}

// NewSession creates a session with a provisional id.
func NewSession() *Session {
	return &Session{id: uuid.NewString()}
}

// Observe fixes the session id from an incoming message header. Only the
// first non-empty observation takes effect.
func (s *Session) Observe(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fixed {
		return
	}
	s.id = id
	s.fixed = true
}

// ID returns the current session id.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// interrupter tracks the cancellation function of the currently executing
// pipeline unit so interrupt_request can reach it from the control channel.
type interrupter struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// arm installs the cancel function for the execution about to start.
func (i *interrupter) arm(cancel context.CancelFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cancel = cancel
}

// disarm clears the installed cancel function.
func (i *interrupter) disarm() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cancel = nil
}

// interrupt cancels the current execution, if any. Cancellation is
// cooperative; the engine must observe its context.
func (i *interrupter) interrupt() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel == nil {
		return false
	}
	i.cancel()
	return true
}
