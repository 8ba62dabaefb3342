package kernel

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/go-jupyter/kernel/internal/engine"
	"github.com/go-jupyter/kernel/internal/protocol"
)

// cellOutput is the engine.Output handed to the engine for one execution. It
// binds stream and display traffic to the execute_request being served so
// frontends can attribute output to the right cell.
type cellOutput struct {
	ctx    context.Context
	iopub  *IOPub
	parent *protocol.Message
	comms  *Comms
}

var _ engine.Output = (*cellOutput)(nil)

func (o *cellOutput) Stdout(text string) error {
	return o.iopub.Stream(o.ctx, o.parent, protocol.StreamStdout, text)
}

func (o *cellOutput) Stderr(text string) error {
	return o.iopub.Stream(o.ctx, o.parent, protocol.StreamStderr, text)
}

func (o *cellOutput) Display(data map[string]interface{}) error {
	return o.iopub.DisplayData(o.parent, &protocol.DisplayData{
		Data:     data,
		Metadata: map[string]interface{}{},
	})
}

func (o *cellOutput) DisplayUpdatable(data map[string]interface{}) (engine.DisplayHandle, error) {
	displayID := uuid.NewString()
	err := o.iopub.DisplayData(o.parent, &protocol.DisplayData{
		Data:      data,
		Metadata:  map[string]interface{}{},
		Transient: map[string]interface{}{"display_id": displayID},
	})
	if err != nil {
		return nil, err
	}
	return &displayHandle{out: o, displayID: displayID}, nil
}

func (o *cellOutput) Comms() engine.Comms {
	return commOpener{comms: o.comms}
}

// displayHandle re-renders one display_id in place.
type displayHandle struct {
	out       *cellOutput
	displayID string
}

func (h *displayHandle) Update(data map[string]interface{}) error {
	return h.out.iopub.UpdateDisplayData(h.out.parent, &protocol.DisplayData{
		Data:      data,
		Metadata:  map[string]interface{}{},
		Transient: map[string]interface{}{"display_id": h.displayID},
	})
}

// commOpener adapts Comms to the engine-facing interface.
type commOpener struct {
	comms *Comms
}

func (c commOpener) Open(targetName string, data interface{}, onMessage func(json.RawMessage), onClose func(reason string)) (engine.CommSession, error) {
	return c.comms.Open(targetName, data, onMessage, onClose)
}
