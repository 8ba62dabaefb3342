package kernel

import (
	"context"
	"sync"

	"github.com/go-jupyter/kernel/internal/engine"
	"github.com/go-jupyter/kernel/internal/protocol"
)

// fakeSender records sent messages in order.
type fakeSender struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (f *fakeSender) Send(msg *protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSender) all() []*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Message(nil), f.msgs...)
}

func (f *fakeSender) byType(msgType string) []*protocol.Message {
	var out []*protocol.Message
	for _, msg := range f.all() {
		if msg.Header.MsgType == msgType {
			out = append(out, msg)
		}
	}
	return out
}

// stubEngine delegates to configurable functions.
type stubEngine struct {
	info     engine.Info
	execute  func(ctx context.Context, code string, out engine.Output) (*engine.Result, error)
	complete func(code string, cursorPos int) (*engine.Completion, error)
}

func (s *stubEngine) Info() engine.Info {
	if s.info.Implementation == "" {
		return engine.Info{
			Implementation:        "stub",
			ImplementationVersion: "0.0",
			LanguageName:          "stub",
			LanguageVersion:       "0.0",
		}
	}
	return s.info
}

func (s *stubEngine) Execute(ctx context.Context, code string, out engine.Output) (*engine.Result, error) {
	if s.execute == nil {
		return &engine.Result{Status: engine.StatusOK}, nil
	}
	return s.execute(ctx, code, out)
}

func (s *stubEngine) Complete(code string, cursorPos int) (*engine.Completion, error) {
	if s.complete == nil {
		return &engine.Completion{Matches: []string{}}, nil
	}
	return s.complete(code, cursorPos)
}
