// Package engine defines the boundary between the protocol stack and the
// execution engine that interprets user code. The kernel calls into an
// Engine; the Engine streams output back through the Output it is handed.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// Status is the outcome of one engine invocation.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Info describes the engine for kernel_info replies.
type Info struct {
	Implementation        string
	ImplementationVersion string
	Banner                string
	LanguageName          string
	LanguageVersion       string
	MimeType              string
	FileExtension         string
}

// Result is what an engine returns for one cell. Data is a mimetype bundle
// shown as Out[n] when present; EName/EValue/Traceback describe a failure.
type Result struct {
	Status    Status
	Data      map[string]interface{}
	Metadata  map[string]interface{}
	EName     string
	EValue    string
	Traceback []string
}

// Errf builds an error Result from a formatted message.
func Errf(name, format string, args ...interface{}) *Result {
	value := fmt.Sprintf(format, args...)
	return &Result{
		Status:    StatusError,
		EName:     name,
		EValue:    value,
		Traceback: []string{name + ": " + value},
	}
}

// Engine interprets user code. Execute observes ctx for cooperative
// cancellation; there is no forced preemption. A nil Result with a nil error
// is treated as an ok result with no value.
type Engine interface {
	Info() Info
	Execute(ctx context.Context, code string, out Output) (*Result, error)
}

// Completer is implemented by engines that can answer complete_requests.
type Completer interface {
	Complete(code string, cursorPos int) (*Completion, error)
}

// Completion is the answer to a completion request.
type Completion struct {
	Matches     []string
	CursorStart int
	CursorEnd   int
}

// DisplayHandle re-renders a previously displayed object in place.
type DisplayHandle interface {
	Update(data map[string]interface{}) error
}

// CommSession is the engine-facing handle to one open widget comm.
type CommSession interface {
	ID() string
	Send(data interface{}) error
	Close() error
}

// Comms lets an engine open kernel-initiated widget sessions.
type Comms interface {
	Open(targetName string, data interface{}, onMessage func(json.RawMessage), onClose func(reason string)) (CommSession, error)
}

// Output is the channel an engine writes cell output through. Every method
// may be called only while the owning Execute call is in flight.
type Output interface {
	Stdout(text string) error
	Stderr(text string) error
	Display(data map[string]interface{}) error
	DisplayUpdatable(data map[string]interface{}) (DisplayHandle, error)
	Comms() Comms
}
