package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/sirupsen/logrus"

	"github.com/go-jupyter/kernel/internal/protocol"
)

// PubServer owns the IOPub PUB socket. It is send-only: status, stream and
// display traffic is broadcast to every connected frontend.
type PubServer struct {
	logger *logrus.Logger
	codec  *protocol.Codec
	sock   zmq4.Socket
	sendMu sync.Mutex
}

// NewPubServer creates the IOPub publisher.
func NewPubServer(ctx context.Context, codec *protocol.Codec, logger *logrus.Logger) *PubServer {
	return NewPubServerFrom(zmq4.NewPub(ctx), codec, logger)
}

// NewPubServerFrom creates the publisher on an existing socket. See
// NewRouterServerFrom.
func NewPubServerFrom(sock zmq4.Socket, codec *protocol.Codec, logger *logrus.Logger) *PubServer {
	return &PubServer{
		logger: logger,
		codec:  codec,
		sock:   sock,
	}
}

// Listen binds the socket.
func (s *PubServer) Listen(addr string) error {
	if err := s.sock.Listen(addr); err != nil {
		return fmt.Errorf("failed to bind iopub socket on %s: %w", addr, err)
	}
	s.logger.WithFields(logrus.Fields{
		"channel": "iopub",
		"addr":    addr,
	}).Info("Channel bound")
	return nil
}

// Send encodes and broadcasts one message. Concurrent senders are serialized.
func (s *PubServer) Send(msg *protocol.Message) error {
	frames, err := s.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.Header.MsgType, err)
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return fmt.Errorf("failed to send on iopub: %w", err)
	}
	return nil
}

// Close releases the socket.
func (s *PubServer) Close() error {
	return s.sock.Close()
}
