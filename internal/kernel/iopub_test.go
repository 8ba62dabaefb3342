package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-jupyter/kernel/internal/protocol"
)

func newTestIOPub(rateLimit float64, burst int) (*IOPub, *fakeSender) {
	logger, _ := test.NewNullLogger()
	sender := &fakeSender{}
	session := NewSession()
	session.Observe("iopub-session")
	return NewIOPub(sender, session, rateLimit, burst, logger), sender
}

func TestPublishParenting(t *testing.T) {
	iopub, sender := newTestIOPub(0, 0)

	parent := protocol.NewMessage(protocol.MsgTypeExecuteRequest, "client-session", "tester", &protocol.ExecuteRequest{})
	require.NoError(t, iopub.Busy(parent))

	msgs := sender.all()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].ParentHeader)
	assert.Equal(t, parent.Header.MsgID, msgs[0].ParentHeader.MsgID)
	assert.Equal(t, "client-session", msgs[0].Header.Session)
}

func TestStartingIsUnparented(t *testing.T) {
	iopub, sender := newTestIOPub(0, 0)

	require.NoError(t, iopub.Starting())

	msgs := sender.all()
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].ParentHeader)
	assert.Equal(t, "iopub-session", msgs[0].Header.Session)
	assert.Equal(t, protocol.StateStarting, msgs[0].Content.(*protocol.Status).ExecutionState)
}

func TestStreamThrottleDelaysBurstOverflow(t *testing.T) {
	// 1000 msg/s with burst 2: the third message must wait about 1ms for a
	// token, the first two pass immediately.
	iopub, sender := newTestIOPub(1000, 2)
	parent := protocol.NewMessage(protocol.MsgTypeExecuteRequest, "s", "tester", &protocol.ExecuteRequest{})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, iopub.Stream(context.Background(), parent, protocol.StreamStdout, "x"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Microsecond)
	assert.Len(t, sender.byType(protocol.MsgTypeStream), 3)
}

func TestStreamThrottleHonorsCancellation(t *testing.T) {
	iopub, sender := newTestIOPub(0.001, 1)
	parent := protocol.NewMessage(protocol.MsgTypeExecuteRequest, "s", "tester", &protocol.ExecuteRequest{})

	// Drain the single burst token.
	require.NoError(t, iopub.Stream(context.Background(), parent, protocol.StreamStdout, "first"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := iopub.Stream(ctx, parent, protocol.StreamStdout, "second")
	require.Error(t, err)
	assert.Len(t, sender.byType(protocol.MsgTypeStream), 1, "the throttled-out message is never sent")
}

func TestCellOutputDisplayUpdate(t *testing.T) {
	iopub, sender := newTestIOPub(0, 0)
	out := &cellOutput{ctx: context.Background(), iopub: iopub, parent: protocol.NewMessage(protocol.MsgTypeExecuteRequest, "s", "tester", &protocol.ExecuteRequest{})}

	handle, err := out.DisplayUpdatable(map[string]interface{}{"text/plain": "v1"})
	require.NoError(t, err)
	require.NoError(t, handle.Update(map[string]interface{}{"text/plain": "v2"}))

	displays := sender.byType(protocol.MsgTypeDisplayData)
	require.Len(t, displays, 1)
	updates := sender.byType(protocol.MsgTypeUpdateDisplayData)
	require.Len(t, updates, 1)

	// The update targets the same display_id as the original bundle.
	first := displays[0].Content.(*protocol.DisplayData)
	second := updates[0].Content.(*protocol.DisplayData)
	require.NotNil(t, first.Transient)
	assert.NotEmpty(t, first.Transient["display_id"])
	assert.Equal(t, first.Transient["display_id"], second.Transient["display_id"])
	assert.Equal(t, "v2", second.Data["text/plain"])
}
