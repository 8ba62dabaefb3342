package kernel

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/go-jupyter/kernel/internal/engine"
	"github.com/go-jupyter/kernel/internal/protocol"
	"github.com/go-jupyter/kernel/internal/transport"
)

// handleKernelInfo answers on the shell channel. This is the fast path: one
// reply followed by an idle status, no busy bracketing.
func (s *Server) handleKernelInfo(ctx context.Context, msg *protocol.Message) {
	s.sendKernelInfo(msg, s.shell)
	if err := s.iopub.Idle(msg); err != nil {
		s.logger.WithError(err).Error("Failed to publish idle status")
	}
}

// controlKernelInfo answers kernel_info on the control channel, where clients
// probe liveness without queueing behind cell execution.
func (s *Server) controlKernelInfo(ctx context.Context, msg *protocol.Message) {
	s.sendKernelInfo(msg, s.control)
}

func (s *Server) sendKernelInfo(msg *protocol.Message, via transport.Sender) {
	info := s.engine.Info()
	reply := msg.Reply(protocol.MsgTypeKernelInfoReply, &protocol.KernelInfoReply{
		Status:                protocol.StatusOK,
		ProtocolVersion:       protocol.Version,
		Implementation:        info.Implementation,
		ImplementationVersion: info.ImplementationVersion,
		Banner:                info.Banner,
		LanguageInfo: protocol.LanguageInfo{
			Name:          info.LanguageName,
			Version:       info.LanguageVersion,
			MimeType:      info.MimeType,
			FileExtension: info.FileExtension,
		},
	})
	if err := via.Send(reply); err != nil {
		s.logger.WithError(err).Error("Failed to send kernel_info_reply")
	}
}

// handleExecute queues an execute_request on the ordered pipeline. The
// enqueue happens before the handler returns, so requests enter the queue in
// receipt order; all protocol emission happens inside the pipeline unit so
// the busy, result, reply, idle sequence of concurrent requests never
// interleaves.
func (s *Server) handleExecute(ctx context.Context, msg *protocol.Message) <-chan struct{} {
	req, ok := msg.Content.(*protocol.ExecuteRequest)
	if !ok {
		s.logger.WithField("msg_type", msg.Header.MsgType).Error("execute_request with unexpected content type")
		return nil
	}

	return awaitUnit(s.pipeline.Submit(ctx, func(ctx context.Context, prev PipelineResult) PipelineResult {
		if prev.Status != PipelineOK {
			s.sendExecuteReply(msg, &protocol.ExecuteReply{
				Status:         protocol.StatusAbort,
				ExecutionCount: nil,
			})
			return PipelineResult{Status: PipelineAbort}
		}
		return s.executeUnit(ctx, msg, req)
	}))
}

// awaitUnit turns a pipeline result channel into a completion signal for the
// router's deferred phase.
func awaitUnit(results <-chan PipelineResult) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-results
	}()
	return done
}

// executeUnit runs one cell: busy, execute_input, engine call, result or
// error, reply, idle, strictly in that order.
func (s *Server) executeUnit(ctx context.Context, msg *protocol.Message, req *protocol.ExecuteRequest) PipelineResult {
	if err := s.iopub.Busy(msg); err != nil {
		s.logger.WithError(err).Error("Failed to publish busy status")
	}
	defer func() {
		if err := s.iopub.Idle(msg); err != nil {
			s.logger.WithError(err).Error("Failed to publish idle status")
		}
	}()

	var count int
	if req.Silent {
		count = s.pipeline.ExecutionCount()
	} else {
		count = s.pipeline.NextExecutionCount()
		if err := s.iopub.ExecuteInput(msg, req.Code, count); err != nil {
			s.logger.WithError(err).Error("Failed to publish execute_input")
		}
	}

	execCtx, cancel := context.WithCancel(ctx)
	s.interrupter.arm(cancel)
	defer func() {
		s.interrupter.disarm()
		cancel()
	}()

	out := &cellOutput{ctx: execCtx, iopub: s.iopub, parent: msg, comms: s.comms}
	result, err := s.invokeEngine(execCtx, req.Code, out)

	if err != nil || (result != nil && result.Status == engine.StatusError) {
		if result == nil {
			result = engine.Errf("EngineError", "%v", err)
		}
		if pubErr := s.iopub.Error(msg, result.EName, result.EValue, result.Traceback); pubErr != nil {
			s.logger.WithError(pubErr).Error("Failed to publish execution error")
		}
		s.sendExecuteReply(msg, &protocol.ExecuteReply{
			Status:         protocol.StatusError,
			ExecutionCount: &count,
			EName:          result.EName,
			EValue:         result.EValue,
			Traceback:      result.Traceback,
		})
		return PipelineResult{Status: PipelineError, ExecutionCount: &count}
	}

	if result != nil && result.Data != nil && !req.Silent {
		if pubErr := s.iopub.ExecuteResult(msg, count, result.Data, result.Metadata); pubErr != nil {
			s.logger.WithError(pubErr).Error("Failed to publish execute_result")
		}
	}
	s.sendExecuteReply(msg, &protocol.ExecuteReply{
		Status:         protocol.StatusOK,
		ExecutionCount: &count,
	})
	return PipelineResult{Status: PipelineOK, ExecutionCount: &count}
}

// invokeEngine calls the engine with panic containment: engine failures
// become error results and never escape to the socket loop.
func (s *Server) invokeEngine(ctx context.Context, code string, out engine.Output) (result *engine.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Engine panicked")
			result = engine.Errf("EnginePanic", "%v", r)
			err = nil
		}
	}()
	return s.engine.Execute(ctx, code, out)
}

func (s *Server) sendExecuteReply(msg *protocol.Message, content *protocol.ExecuteReply) {
	if err := s.shell.Send(msg.Reply(protocol.MsgTypeExecuteReply, content)); err != nil {
		s.logger.WithError(err).Error("Failed to send execute_reply")
	}
}

// handleComplete queues a complete_request on the same ordered pipeline as
// execution, so completions observe a consistent engine state. Completion
// units never touch the execution counter.
func (s *Server) handleComplete(ctx context.Context, msg *protocol.Message) <-chan struct{} {
	req, ok := msg.Content.(*protocol.CompleteRequest)
	if !ok {
		s.logger.WithField("msg_type", msg.Header.MsgType).Error("complete_request with unexpected content type")
		return nil
	}

	return awaitUnit(s.pipeline.Submit(ctx, func(ctx context.Context, prev PipelineResult) PipelineResult {
		if prev.Status != PipelineOK {
			s.sendCompleteReply(msg, &protocol.CompleteReply{
				Status:   protocol.StatusAbort,
				Matches:  []string{},
				Metadata: map[string]interface{}{},
			})
			return PipelineResult{Status: PipelineAbort}
		}

		if err := s.iopub.Busy(msg); err != nil {
			s.logger.WithError(err).Error("Failed to publish busy status")
		}
		defer func() {
			if err := s.iopub.Idle(msg); err != nil {
				s.logger.WithError(err).Error("Failed to publish idle status")
			}
		}()

		completion, err := s.complete(req.Code, req.CursorPos)
		if err != nil {
			s.logger.WithError(err).Error("Completion failed")
			s.sendCompleteReply(msg, &protocol.CompleteReply{
				Status:   protocol.StatusError,
				Matches:  []string{},
				Metadata: map[string]interface{}{},
			})
			return PipelineResult{Status: PipelineOK}
		}

		s.sendCompleteReply(msg, &protocol.CompleteReply{
			Status:      protocol.StatusOK,
			Matches:     completion.Matches,
			CursorStart: completion.CursorStart,
			CursorEnd:   completion.CursorEnd,
			Metadata:    map[string]interface{}{},
		})
		return PipelineResult{Status: PipelineOK}
	}))
}

// complete answers from the LRU cache when possible, otherwise asks the
// engine. Engines without completion support yield empty matches.
func (s *Server) complete(code string, cursorPos int) (*engine.Completion, error) {
	key := completionKey{code: code, cursorPos: cursorPos}
	if cached, ok := s.completions.Get(key); ok {
		return cached, nil
	}

	completer, ok := s.engine.(engine.Completer)
	if !ok {
		return &engine.Completion{Matches: []string{}, CursorStart: cursorPos, CursorEnd: cursorPos}, nil
	}
	completion, err := completer.Complete(code, cursorPos)
	if err != nil {
		return nil, fmt.Errorf("engine completion failed: %w", err)
	}
	if completion.Matches == nil {
		completion.Matches = []string{}
	}
	s.completions.Add(key, completion)
	return completion, nil
}

func (s *Server) sendCompleteReply(msg *protocol.Message, content *protocol.CompleteReply) {
	if err := s.shell.Send(msg.Reply(protocol.MsgTypeCompleteReply, content)); err != nil {
		s.logger.WithError(err).Error("Failed to send complete_reply")
	}
}

// handleInterrupt propagates a cooperative cancellation signal into the
// currently executing pipeline unit, then acknowledges.
func (s *Server) handleInterrupt(ctx context.Context, msg *protocol.Message) {
	interrupted := s.interrupter.interrupt()
	s.logger.WithField("interrupted", interrupted).Info("Interrupt requested")

	reply := msg.Reply(protocol.MsgTypeInterruptReply, &protocol.InterruptReply{Status: protocol.StatusOK})
	if err := s.control.Send(reply); err != nil {
		s.logger.WithError(err).Error("Failed to send interrupt_reply")
	}
}

// handleShutdown acknowledges and then stops the server loops.
func (s *Server) handleShutdown(ctx context.Context, msg *protocol.Message) {
	restart := false
	if req, ok := msg.Content.(*protocol.ShutdownRequest); ok {
		restart = req.Restart
	}
	s.logger.WithFields(logrus.Fields{"restart": restart}).Info("Shutdown requested")

	reply := msg.Reply(protocol.MsgTypeShutdownReply, &protocol.ShutdownReply{
		Status:  protocol.StatusOK,
		Restart: restart,
	})
	if err := s.control.Send(reply); err != nil {
		s.logger.WithError(err).Error("Failed to send shutdown_reply")
	}
	s.shutdown()
}
