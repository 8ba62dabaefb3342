// Package transport owns the ZeroMQ sockets a Jupyter kernel binds: the
// shell and control router sockets, the IOPub publisher and the heartbeat
// echo socket. Each socket runs its own blocking receive loop on a dedicated
// goroutine; sends are serialized per socket behind a mutex.
package transport

import (
	"github.com/go-jupyter/kernel/internal/protocol"
)

// Sender sends one decoded message over a socket. Implementations guarantee
// that only one send is ever in flight on the underlying socket.
type Sender interface {
	Send(msg *protocol.Message) error
}

// Handler consumes messages decoded off a receiving socket, in receipt order.
type Handler func(msg *protocol.Message)
