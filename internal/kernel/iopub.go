package kernel

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/go-jupyter/kernel/internal/protocol"
	"github.com/go-jupyter/kernel/internal/transport"
)

// IOPub publishes status, stream and display traffic. Every message is
// stamped with the current session id; stream messages can be throttled so a
// hot loop in user code cannot flood frontends.
type IOPub struct {
	logger  *logrus.Logger
	sender  transport.Sender
	session *Session
	limiter *rate.Limiter
}

// NewIOPub creates a publisher. A zero messagesPerSec disables throttling.
func NewIOPub(sender transport.Sender, session *Session, messagesPerSec float64, burst int, logger *logrus.Logger) *IOPub {
	var limiter *rate.Limiter
	if messagesPerSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(messagesPerSec), burst)
	}
	return &IOPub{
		logger:  logger,
		sender:  sender,
		session: session,
		limiter: limiter,
	}
}

// Publish sends a message of the given type parented to parent. A nil parent
// produces an unparented broadcast, as used for the boot-time starting state.
func (p *IOPub) Publish(parent *protocol.Message, msgType string, content interface{}) error {
	var msg *protocol.Message
	if parent != nil {
		msg = parent.Child(msgType, content)
	} else {
		msg = protocol.NewMessage(msgType, p.session.ID(), "kernel", content)
	}
	if msg.Header.Session == "" {
		msg.Header.Session = p.session.ID()
	}
	if err := p.sender.Send(msg); err != nil {
		return fmt.Errorf("iopub publish failed: %w", err)
	}
	return nil
}

// Starting broadcasts the boot-time starting state.
func (p *IOPub) Starting() error {
	return p.Publish(nil, protocol.MsgTypeStatus, &protocol.Status{ExecutionState: protocol.StateStarting})
}

// Busy brackets the start of request handling.
func (p *IOPub) Busy(parent *protocol.Message) error {
	return p.Publish(parent, protocol.MsgTypeStatus, &protocol.Status{ExecutionState: protocol.StateBusy})
}

// Idle brackets the end of request handling.
func (p *IOPub) Idle(parent *protocol.Message) error {
	return p.Publish(parent, protocol.MsgTypeStatus, &protocol.Status{ExecutionState: protocol.StateIdle})
}

// Stream publishes stdout or stderr text, waiting on the throttle first.
func (p *IOPub) Stream(ctx context.Context, parent *protocol.Message, name, text string) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("stream throttled out: %w", err)
		}
	}
	return p.Publish(parent, protocol.MsgTypeStream, &protocol.Stream{Name: name, Text: text})
}

// ExecuteInput re-broadcasts the code about to run with its execution count.
func (p *IOPub) ExecuteInput(parent *protocol.Message, code string, count int) error {
	return p.Publish(parent, protocol.MsgTypeExecuteInput, &protocol.ExecuteInput{
		Code:           code,
		ExecutionCount: count,
	})
}

// ExecuteResult publishes the Out[n] value of a successful execution.
func (p *IOPub) ExecuteResult(parent *protocol.Message, count int, data, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return p.Publish(parent, protocol.MsgTypeExecuteResult, &protocol.ExecuteResult{
		ExecutionCount: count,
		Data:           data,
		Metadata:       metadata,
	})
}

// Error publishes an execution error.
func (p *IOPub) Error(parent *protocol.Message, ename, evalue string, traceback []string) error {
	if traceback == nil {
		traceback = []string{}
	}
	return p.Publish(parent, protocol.MsgTypeError, &protocol.ErrorContent{
		EName:     ename,
		EValue:    evalue,
		Traceback: traceback,
	})
}

// DisplayData publishes a display bundle.
func (p *IOPub) DisplayData(parent *protocol.Message, content *protocol.DisplayData) error {
	return p.Publish(parent, protocol.MsgTypeDisplayData, content)
}

// UpdateDisplayData re-renders a previously displayed bundle in place.
func (p *IOPub) UpdateDisplayData(parent *protocol.Message, content *protocol.DisplayData) error {
	return p.Publish(parent, protocol.MsgTypeUpdateDisplayData, content)
}
