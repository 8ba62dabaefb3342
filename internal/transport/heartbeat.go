package transport

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
	"github.com/sirupsen/logrus"
)

// HeartbeatServer echoes pings on the heartbeat REP socket. Clients consider
// a kernel dead when its heartbeat stops answering, so this loop does nothing
// but bounce frames back unchanged.
type HeartbeatServer struct {
	logger *logrus.Logger
	sock   zmq4.Socket
}

// NewHeartbeatServer creates the heartbeat echo server.
func NewHeartbeatServer(ctx context.Context, logger *logrus.Logger) *HeartbeatServer {
	return &HeartbeatServer{
		logger: logger,
		sock:   zmq4.NewRep(ctx),
	}
}

// Listen binds the socket.
func (s *HeartbeatServer) Listen(addr string) error {
	if err := s.sock.Listen(addr); err != nil {
		return fmt.Errorf("failed to bind heartbeat socket on %s: %w", addr, err)
	}
	s.logger.WithFields(logrus.Fields{
		"channel": "heartbeat",
		"addr":    addr,
	}).Info("Channel bound")
	return nil
}

// Serve echoes every received message until the context is cancelled or the
// socket fails.
func (s *HeartbeatServer) Serve(ctx context.Context) error {
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("heartbeat receive loop failed: %w", err)
		}
		if err := s.sock.Send(msg); err != nil {
			return fmt.Errorf("heartbeat echo failed: %w", err)
		}
	}
}

// Close releases the socket.
func (s *HeartbeatServer) Close() error {
	return s.sock.Close()
}
