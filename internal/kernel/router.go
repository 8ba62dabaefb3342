package kernel

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/go-jupyter/kernel/internal/protocol"
)

// HandlerFunc handles one routed message and is finished when it returns.
type HandlerFunc func(ctx context.Context, msg *protocol.Message)

// DeferredHandlerFunc handles one routed message in two phases. The function
// body runs on the dispatcher's goroutine, so ordering-sensitive steps such
// as queue enqueues happen strictly in receipt order; work that outlives the
// call reports completion on the returned channel. A nil channel means the
// message was fully handled in the first phase.
type DeferredHandlerFunc func(ctx context.Context, msg *protocol.Message) <-chan struct{}

// Router maps message type strings to handlers. Dispatch invokes the handler
// on the caller's goroutine: a channel receive loop hands messages to
// handlers in exactly the order frames arrived, and only deferred work
// overlaps the next receive.
type Router struct {
	logger   *logrus.Logger
	mu       sync.RWMutex
	handlers map[string]DeferredHandlerFunc
	fallback HandlerFunc
}

// handled is returned from Dispatch when nothing outlives the call.
var handled = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// NewRouter creates a router whose default fallback logs and drops.
func NewRouter(logger *logrus.Logger) *Router {
	r := &Router{
		logger:   logger,
		handlers: make(map[string]DeferredHandlerFunc),
	}
	r.fallback = func(ctx context.Context, msg *protocol.Message) {
		logger.WithField("msg_type", msg.Header.MsgType).Debug("No handler registered, dropping message")
	}
	return r
}

// Register installs a handler that completes before Dispatch returns. The
// last registration for a type wins, which lets embedders override the
// built-in handlers.
func (r *Router) Register(msgType string, handler HandlerFunc) {
	r.RegisterDeferred(msgType, func(ctx context.Context, msg *protocol.Message) <-chan struct{} {
		handler(ctx, msg)
		return nil
	})
}

// RegisterDeferred installs a two-phase handler. Last registration wins.
func (r *Router) RegisterDeferred(msgType string, handler DeferredHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = handler
	r.logger.WithField("msg_type", msgType).Debug("Registered handler")
}

// SetFallback replaces the handler invoked for unrecognized message types.
func (r *Router) SetFallback(handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = handler
}

// Dispatch routes one message on the caller's goroutine and returns a
// channel closed once handling, including any deferred phase, has finished.
// Unknown types go to the fallback.
func (r *Router) Dispatch(ctx context.Context, msg *protocol.Message) <-chan struct{} {
	r.mu.RLock()
	handler, ok := r.handlers[msg.Header.MsgType]
	fallback := r.fallback
	r.mu.RUnlock()

	if !ok {
		fallback(ctx, msg)
		return handled
	}
	if done := handler(ctx, msg); done != nil {
		return done
	}
	return handled
}
