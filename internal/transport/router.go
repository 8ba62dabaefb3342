package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/sirupsen/logrus"

	"github.com/go-jupyter/kernel/internal/protocol"
)

// RouterServer owns one ROUTER socket (shell or control). It decodes and
// authenticates incoming frames and hands messages to a handler in receipt
// order. Decode failures are logged and the loop continues; a malformed
// message is fatal only to itself.
type RouterServer struct {
	name   string
	logger *logrus.Logger
	codec  *protocol.Codec
	sock   zmq4.Socket
	sendMu sync.Mutex
}

// NewRouterServer creates a router server for the named channel.
func NewRouterServer(ctx context.Context, name string, codec *protocol.Codec, logger *logrus.Logger) *RouterServer {
	return NewRouterServerFrom(name, zmq4.NewRouter(ctx), codec, logger)
}

// NewRouterServerFrom creates a router server on an existing socket, which
// lets tests run the channel loop over in-memory sockets.
func NewRouterServerFrom(name string, sock zmq4.Socket, codec *protocol.Codec, logger *logrus.Logger) *RouterServer {
	return &RouterServer{
		name:   name,
		logger: logger,
		codec:  codec,
		sock:   sock,
	}
}

// Listen binds the socket.
func (s *RouterServer) Listen(addr string) error {
	if err := s.sock.Listen(addr); err != nil {
		return fmt.Errorf("failed to bind %s socket on %s: %w", s.name, addr, err)
	}
	s.logger.WithFields(logrus.Fields{
		"channel": s.name,
		"addr":    addr,
	}).Info("Channel bound")
	return nil
}

// Serve runs the blocking receive loop until the context is cancelled or the
// socket fails. Each successfully decoded message is passed to handler.
func (s *RouterServer) Serve(ctx context.Context, handler Handler) error {
	for {
		raw, err := s.sock.Recv()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("%s receive loop failed: %w", s.name, err)
		}

		msg, err := s.codec.Decode(raw.Frames)
		if err != nil {
			// Protocol violations indicate a misconfigured connection, not a
			// user error; they are never surfaced to the client.
			s.logger.WithFields(logrus.Fields{
				"channel": s.name,
				"frames":  len(raw.Frames),
			}).WithError(err).Error("Dropping undecodable message")
			continue
		}
		handler(msg)
	}
}

// Send encodes and sends one message. Concurrent senders are serialized.
func (s *RouterServer) Send(msg *protocol.Message) error {
	frames, err := s.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.Header.MsgType, err)
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return fmt.Errorf("failed to send on %s: %w", s.name, err)
	}
	return nil
}

// Close releases the socket.
func (s *RouterServer) Close() error {
	return s.sock.Close()
}
