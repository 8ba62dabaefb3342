package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/go-jupyter/kernel/internal/protocol"
)

// CommOpenHandler is invoked when a client opens a comm for a subscribed
// target name, with the new session and the open payload.
type CommOpenHandler func(session *CommSession, data json.RawMessage)

// Comms tracks open widget comm sessions by id and dispatches open, message
// and close events to per-target subscribers. Comm traffic is routed outside
// the execution pipeline: widget messages are independent of cell ordering.
type Comms struct {
	logger   *logrus.Logger
	iopub    *IOPub
	mu       sync.RWMutex
	sessions map[string]*CommSession
	targets  map[string]CommOpenHandler
}

// NewComms creates an empty comm manager publishing through iopub.
func NewComms(iopub *IOPub, logger *logrus.Logger) *Comms {
	return &Comms{
		logger:   logger,
		iopub:    iopub,
		sessions: make(map[string]*CommSession),
		targets:  make(map[string]CommOpenHandler),
	}
}

// Subscribe registers a handler for client-initiated opens of a target name.
func (c *Comms) Subscribe(targetName string, handler CommOpenHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets[targetName] = handler
	c.logger.WithField("target", targetName).Debug("Registered comm target")
}

// Open starts a kernel-initiated comm session: a fresh id is registered and a
// comm_open is sent to the client.
func (c *Comms) Open(targetName string, data interface{}, onMessage func(json.RawMessage), onClose func(reason string)) (*CommSession, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal comm_open data: %w", err)
	}

	session := &CommSession{
		id:        uuid.NewString(),
		target:    targetName,
		mgr:       c,
		onMessage: onMessage,
		onClose:   onClose,
	}
	c.mu.Lock()
	c.sessions[session.id] = session
	c.mu.Unlock()

	err = c.iopub.Publish(nil, protocol.MsgTypeCommOpen, &protocol.CommOpen{
		CommID:     session.id,
		TargetName: targetName,
		Data:       payload,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.sessions, session.id)
		c.mu.Unlock()
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"comm_id": session.id,
		"target":  targetName,
	}).Debug("Opened kernel-initiated comm")
	return session, nil
}

// HandleOpen processes a client comm_open. Unknown target names are not
// errors: the message is dropped silently, per protocol. An open reusing an
// id that is already live is dropped too, so the existing session and its
// callbacks stay intact.
func (c *Comms) HandleOpen(ctx context.Context, msg *protocol.Message) {
	content, ok := msg.Content.(*protocol.CommOpen)
	if !ok {
		c.logger.WithField("msg_type", msg.Header.MsgType).Error("comm_open with unexpected content type")
		return
	}

	c.mu.RLock()
	handler, subscribed := c.targets[content.TargetName]
	c.mu.RUnlock()
	if !subscribed {
		c.logger.WithField("target", content.TargetName).Debug("No subscriber for comm target, dropping open")
		return
	}

	session := &CommSession{
		id:     content.CommID,
		target: content.TargetName,
		mgr:    c,
	}
	c.mu.Lock()
	if _, live := c.sessions[session.id]; live {
		c.mu.Unlock()
		c.logger.WithField("comm_id", session.id).Warn("comm_open reusing a live comm id, dropping")
		return
	}
	c.sessions[session.id] = session
	c.mu.Unlock()

	handler(session, content.Data)
}

// HandleMsg processes a client comm_msg. An unknown session id is logged and
// the message dropped; no reply is sent.
func (c *Comms) HandleMsg(ctx context.Context, msg *protocol.Message) {
	content, ok := msg.Content.(*protocol.CommMsg)
	if !ok {
		c.logger.WithField("msg_type", msg.Header.MsgType).Error("comm_msg with unexpected content type")
		return
	}

	c.mu.RLock()
	session, exists := c.sessions[content.CommID]
	c.mu.RUnlock()
	if !exists {
		c.logger.WithField("comm_id", content.CommID).Debug("comm_msg for unknown session, dropping")
		return
	}
	session.deliver(content.Data)
}

// HandleClose processes a client comm_close: the session is removed and its
// close callback runs with a client-closed reason.
func (c *Comms) HandleClose(ctx context.Context, msg *protocol.Message) {
	content, ok := msg.Content.(*protocol.CommClose)
	if !ok {
		c.logger.WithField("msg_type", msg.Header.MsgType).Error("comm_close with unexpected content type")
		return
	}

	c.mu.Lock()
	session, exists := c.sessions[content.CommID]
	delete(c.sessions, content.CommID)
	c.mu.Unlock()
	if !exists {
		c.logger.WithField("comm_id", content.CommID).Debug("comm_close for unknown session, dropping")
		return
	}
	session.closeLocal("closed by client")
}

// Count returns the number of open sessions.
func (c *Comms) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Comms) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

// CommSession is one open widget comm, keyed by its comm id. Close is
// idempotent: a second close performs no I/O and never re-runs the close
// callback.
type CommSession struct {
	id     string
	target string
	mgr    *Comms

	mu        sync.Mutex
	closed    bool
	onMessage func(json.RawMessage)
	onClose   func(reason string)
}

// ID returns the comm id.
func (s *CommSession) ID() string { return s.id }

// Target returns the target name the session was created for.
func (s *CommSession) Target() string { return s.target }

// Valid reports whether the session is still open.
func (s *CommSession) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// OnMessage sets the callback for incoming comm_msg payloads.
func (s *CommSession) OnMessage(fn func(json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// OnClose sets the callback invoked once when the session closes.
func (s *CommSession) OnClose(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// Send sends a comm_msg to the client. Sending on a closed session fails.
func (s *CommSession) Send(data interface{}) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("comm %s is closed", s.id)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal comm_msg data: %w", err)
	}
	return s.mgr.iopub.Publish(nil, protocol.MsgTypeCommMsg, &protocol.CommMsg{
		CommID: s.id,
		Data:   payload,
	})
}

// Close tears the session down from the kernel side, sending a single
// comm_close to the client and invoking the close callback at most once.
func (s *CommSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()

	s.mgr.remove(s.id)
	err := s.mgr.iopub.Publish(nil, protocol.MsgTypeCommClose, &protocol.CommClose{CommID: s.id})
	if onClose != nil {
		onClose("closed by kernel")
	}
	return err
}

// deliver runs the message callback for an incoming payload.
func (s *CommSession) deliver(data json.RawMessage) {
	s.mu.Lock()
	onMessage := s.onMessage
	closed := s.closed
	s.mu.Unlock()
	if closed || onMessage == nil {
		return
	}
	onMessage(data)
}

// closeLocal marks the session closed without sending comm_close, used when
// the client initiated the close.
func (s *CommSession) closeLocal(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()
	if onClose != nil {
		onClose(reason)
	}
}
