// Package kernel is the engine room of the protocol stack: it wires the
// socket servers, the message router, the ordered execution pipeline and the
// comm manager into a running Jupyter kernel around an external engine.
package kernel

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/go-jupyter/kernel/internal/connection"
	"github.com/go-jupyter/kernel/internal/engine"
	"github.com/go-jupyter/kernel/internal/protocol"
	"github.com/go-jupyter/kernel/internal/transport"
)

// Options tunes the kernel runtime.
type Options struct {
	// StreamRateLimit throttles IOPub stream messages per second; zero
	// disables throttling.
	StreamRateLimit float64
	// StreamRateBurst is the throttle burst size.
	StreamRateBurst int
	// CompletionCacheSize bounds the LRU cache of completion replies.
	CompletionCacheSize int
}

// Server is one kernel process: a single session, a single engine, three
// sockets and one ordered execution queue.
type Server struct {
	logger  *logrus.Logger
	opts    Options
	engine  engine.Engine
	session *Session

	pipeline      *Pipeline
	shellRouter   *Router
	controlRouter *Router
	interrupter   interrupter

	iopub   *IOPub
	comms   *Comms
	shell   transport.Sender
	control transport.Sender

	completions *lru.Cache[completionKey, *engine.Completion]

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

type completionKey struct {
	code      string
	cursorPos int
}

// New creates a server around an engine. Transports are attached separately
// so tests can substitute in-memory senders.
func New(eng engine.Engine, opts Options, logger *logrus.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("kernel requires an engine")
	}
	cacheSize := opts.CompletionCacheSize
	if cacheSize <= 0 {
		cacheSize = 128
	}
	completions, err := lru.New[completionKey, *engine.Completion](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion cache: %w", err)
	}

	s := &Server{
		logger:        logger,
		opts:          opts,
		engine:        eng,
		session:       NewSession(),
		pipeline:      NewPipeline(logger),
		shellRouter:   NewRouter(logger),
		controlRouter: NewRouter(logger),
		completions:   completions,
		shutdownCh:    make(chan struct{}),
	}
	return s, nil
}

// Attach wires the channel senders and registers the built-in handlers.
func (s *Server) Attach(shell, control, iopub transport.Sender) {
	s.shell = shell
	s.control = control
	s.iopub = NewIOPub(iopub, s.session, s.opts.StreamRateLimit, s.opts.StreamRateBurst, s.logger)
	s.comms = NewComms(s.iopub, s.logger)

	s.shellRouter.Register(protocol.MsgTypeKernelInfoRequest, s.handleKernelInfo)
	s.shellRouter.RegisterDeferred(protocol.MsgTypeExecuteRequest, s.handleExecute)
	s.shellRouter.RegisterDeferred(protocol.MsgTypeCompleteRequest, s.handleComplete)
	s.shellRouter.Register(protocol.MsgTypeCommOpen, s.comms.HandleOpen)
	s.shellRouter.Register(protocol.MsgTypeCommMsg, s.comms.HandleMsg)
	s.shellRouter.Register(protocol.MsgTypeCommClose, s.comms.HandleClose)

	s.controlRouter.Register(protocol.MsgTypeKernelInfoRequest, s.controlKernelInfo)
	s.controlRouter.Register(protocol.MsgTypeInterruptRequest, s.handleInterrupt)
	s.controlRouter.Register(protocol.MsgTypeShutdownRequest, s.handleShutdown)
}

// ShellRouter exposes the shell router so embedders can register or override
// handlers before Run.
func (s *Server) ShellRouter() *Router { return s.shellRouter }

// ControlRouter exposes the control router.
func (s *Server) ControlRouter() *Router { return s.controlRouter }

// CommManager exposes the comm manager for target subscriptions.
func (s *Server) CommManager() *Comms { return s.comms }

// Session exposes the process session.
func (s *Server) Session() *Session { return s.session }

// HandleShell processes one decoded shell message: the first one fixes the
// session id, then the message is dispatched through the shell router.
func (s *Server) HandleShell(ctx context.Context, msg *protocol.Message) <-chan struct{} {
	s.session.Observe(msg.Header.Session)
	return s.shellRouter.Dispatch(ctx, msg)
}

// HandleControl processes one decoded control message.
func (s *Server) HandleControl(ctx context.Context, msg *protocol.Message) <-chan struct{} {
	s.session.Observe(msg.Header.Session)
	return s.controlRouter.Dispatch(ctx, msg)
}

// Done is closed when a shutdown_request has been honored.
func (s *Server) Done() <-chan struct{} { return s.shutdownCh }

func (s *Server) shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Run binds the sockets described by the connection file and serves until the
// context is cancelled or a shutdown_request arrives.
func Run(ctx context.Context, info *connection.Info, eng engine.Engine, opts Options, logger *logrus.Logger) error {
	codec := protocol.NewCodec(logger, info.SignerFactory(), nil)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shell := transport.NewRouterServer(ctx, "shell", codec, logger)
	control := transport.NewRouterServer(ctx, "control", codec, logger)
	iopub := transport.NewPubServer(ctx, codec, logger)
	heartbeat := transport.NewHeartbeatServer(ctx, logger)
	defer shell.Close()
	defer control.Close()
	defer iopub.Close()
	defer heartbeat.Close()

	if err := shell.Listen(info.ShellAddr()); err != nil {
		return err
	}
	if err := control.Listen(info.ControlAddr()); err != nil {
		return err
	}
	if err := iopub.Listen(info.IOPubAddr()); err != nil {
		return err
	}
	if err := heartbeat.Listen(info.HeartbeatAddr()); err != nil {
		return err
	}

	server, err := New(eng, opts, logger)
	if err != nil {
		return err
	}
	server.Attach(shell, control, iopub)

	if err := server.iopub.Starting(); err != nil {
		logger.WithError(err).Warn("Failed to publish starting status")
	}

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	serve := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				logger.WithField("channel", name).WithError(err).Error("Channel loop exited")
				errCh <- err
			}
		}()
	}
	serve("shell", func() error {
		return shell.Serve(ctx, func(msg *protocol.Message) { server.HandleShell(ctx, msg) })
	})
	serve("control", func() error {
		return control.Serve(ctx, func(msg *protocol.Message) { server.HandleControl(ctx, msg) })
	})
	serve("heartbeat", func() error { return heartbeat.Serve(ctx) })

	logger.WithField("session", server.session.ID()).Info("Kernel serving")

	select {
	case <-ctx.Done():
	case <-server.Done():
		logger.Info("Shutdown requested by client")
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	}
	cancel()
	wg.Wait()
	return nil
}
