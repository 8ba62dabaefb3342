// Package echo implements a trivial engine that echoes each cell back as its
// result. It exists so the protocol stack can be exercised end to end (and
// tested against jupyter_kernel_test) without a real language behind it.
package echo

import (
	"context"
	"strings"

	"github.com/go-jupyter/kernel/internal/engine"
)

// Engine echoes code to stdout and returns it as a text/plain result. Lines
// starting with "!error" produce an error result, which gives tests a handle
// on the abort path.
type Engine struct {
	magics *engine.MagicSet
}

// New creates an echo engine with its built-in magics registered.
func New() *Engine {
	e := &Engine{magics: engine.NewMagicSet("%")}
	e.magics.Register("echo", "Echo the arguments.", e.magicEcho)
	return e
}

// Info implements engine.Engine.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		Implementation:        "echo",
		ImplementationVersion: "1.0",
		Banner:                "echo kernel: your input, right back at you",
		LanguageName:          "echo",
		LanguageVersion:       "1.0",
		MimeType:              "text/plain",
		FileExtension:         ".txt",
	}
}

// Execute implements engine.Engine.
func (e *Engine) Execute(ctx context.Context, code string, out engine.Output) (*engine.Result, error) {
	var last *engine.Result
	for _, chunk := range e.magics.Split(code) {
		if err := ctx.Err(); err != nil {
			return engine.Errf("Interrupted", "execution interrupted"), nil
		}
		result, err := e.run(ctx, chunk, out)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Status == engine.StatusError {
			return result, nil
		}
		if result != nil {
			last = result
		}
	}
	return last, nil
}

func (e *Engine) run(ctx context.Context, chunk engine.Chunk, out engine.Output) (*engine.Result, error) {
	switch chunk.Kind {
	case engine.ChunkMagic:
		handler, ok := e.magics.Lookup(chunk.Name)
		if !ok {
			return engine.Errf("UnknownMagic", "no such magic: %s%s", e.magics.Prefix(), chunk.Name), nil
		}
		return handler(ctx, chunk.Args, out)
	case engine.ChunkMagicHelp:
		text, ok := e.magics.Help(chunk.Name)
		if !ok {
			return engine.Errf("UnknownMagic", "no such magic: %s%s", e.magics.Prefix(), chunk.Name), nil
		}
		return textResult(text), nil
	case engine.ChunkHelp:
		return textResult("echo kernel: there is no help, only echo of " + chunk.Name), nil
	default:
		text := strings.TrimSpace(chunk.Text)
		if text == "" {
			return nil, nil
		}
		if strings.HasPrefix(text, "!error") {
			return engine.Errf("EchoError", "%s", strings.TrimSpace(strings.TrimPrefix(text, "!error"))), nil
		}
		if err := out.Stdout(text + "\n"); err != nil {
			return nil, err
		}
		return textResult(text), nil
	}
}

func (e *Engine) magicEcho(ctx context.Context, args string, out engine.Output) (*engine.Result, error) {
	if err := out.Stdout(args + "\n"); err != nil {
		return nil, err
	}
	return textResult(args), nil
}

// Complete implements engine.Completer over the registered magic names.
func (e *Engine) Complete(code string, cursorPos int) (*engine.Completion, error) {
	if cursorPos > len(code) {
		cursorPos = len(code)
	}
	start := strings.LastIndexAny(code[:cursorPos], " \t\n") + 1
	word := code[start:cursorPos]

	var matches []string
	for _, name := range e.magics.Names() {
		if strings.HasPrefix(name, word) {
			matches = append(matches, name)
		}
	}
	return &engine.Completion{
		Matches:     matches,
		CursorStart: start,
		CursorEnd:   cursorPos,
	}, nil
}

func textResult(text string) *engine.Result {
	return &engine.Result{
		Status: engine.StatusOK,
		Data:   map[string]interface{}{"text/plain": text},
	}
}
