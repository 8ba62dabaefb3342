package kernel

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-jupyter/kernel/internal/protocol"
)

func newTestComms(t *testing.T) (*Comms, *fakeSender) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	iopubSender := &fakeSender{}
	iopub := NewIOPub(iopubSender, NewSession(), 0, 0, logger)
	return NewComms(iopub, logger), iopubSender
}

func commOpenMessage(commID, target string, data string) *protocol.Message {
	return protocol.NewMessage(protocol.MsgTypeCommOpen, "session-1", "tester", &protocol.CommOpen{
		CommID:     commID,
		TargetName: target,
		Data:       json.RawMessage(data),
	})
}

func TestCommOpenDispatchesToSubscriber(t *testing.T) {
	comms, _ := newTestComms(t)
	ctx := context.Background()

	var gotSession *CommSession
	var gotData json.RawMessage
	comms.Subscribe("widget", func(session *CommSession, data json.RawMessage) {
		gotSession = session
		gotData = data
	})

	comms.HandleOpen(ctx, commOpenMessage("comm-1", "widget", `{"kind":"slider"}`))

	require.NotNil(t, gotSession)
	assert.Equal(t, "comm-1", gotSession.ID())
	assert.Equal(t, "widget", gotSession.Target())
	assert.True(t, gotSession.Valid())
	assert.JSONEq(t, `{"kind":"slider"}`, string(gotData))
	assert.Equal(t, 1, comms.Count())
}

func TestCommOpenDuplicateIDKeepsExistingSession(t *testing.T) {
	comms, _ := newTestComms(t)
	ctx := context.Background()

	opens := 0
	var received []string
	closedReasons := []string{}
	comms.Subscribe("widget", func(session *CommSession, data json.RawMessage) {
		opens++
		session.OnMessage(func(data json.RawMessage) {
			received = append(received, string(data))
		})
		session.OnClose(func(reason string) {
			closedReasons = append(closedReasons, reason)
		})
	})

	comms.HandleOpen(ctx, commOpenMessage("comm-1", "widget", `{}`))
	// Reopening a live id is dropped: the subscriber is not re-invoked and
	// the original session keeps its callbacks.
	comms.HandleOpen(ctx, commOpenMessage("comm-1", "widget", `{}`))

	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, comms.Count())
	assert.Empty(t, closedReasons)

	comms.HandleMsg(ctx, protocol.NewMessage(protocol.MsgTypeCommMsg, "session-1", "tester", &protocol.CommMsg{
		CommID: "comm-1",
		Data:   json.RawMessage(`{"value":1}`),
	}))
	require.Len(t, received, 1, "the original session still delivers messages")
}

func TestCommOpenUnknownTargetDroppedSilently(t *testing.T) {
	comms, iopubSender := newTestComms(t)
	ctx := context.Background()

	comms.HandleOpen(ctx, commOpenMessage("comm-1", "nobody-home", `{}`))

	assert.Zero(t, comms.Count())
	assert.Empty(t, iopubSender.all(), "unknown targets are not errors and get no reply")
}

func TestCommMsgDelivery(t *testing.T) {
	comms, _ := newTestComms(t)
	ctx := context.Background()

	var received []string
	comms.Subscribe("widget", func(session *CommSession, data json.RawMessage) {
		session.OnMessage(func(data json.RawMessage) {
			received = append(received, string(data))
		})
	})
	comms.HandleOpen(ctx, commOpenMessage("comm-1", "widget", `{}`))

	comms.HandleMsg(ctx, protocol.NewMessage(protocol.MsgTypeCommMsg, "session-1", "tester", &protocol.CommMsg{
		CommID: "comm-1",
		Data:   json.RawMessage(`{"value":7}`),
	}))
	require.Len(t, received, 1)
	assert.JSONEq(t, `{"value":7}`, received[0])

	// Unknown session ids are logged and dropped.
	comms.HandleMsg(ctx, protocol.NewMessage(protocol.MsgTypeCommMsg, "session-1", "tester", &protocol.CommMsg{
		CommID: "comm-unknown",
	}))
	assert.Len(t, received, 1)
}

func TestCommCloseByClient(t *testing.T) {
	comms, _ := newTestComms(t)
	ctx := context.Background()

	var closeReasons []string
	comms.Subscribe("widget", func(session *CommSession, data json.RawMessage) {
		session.OnClose(func(reason string) {
			closeReasons = append(closeReasons, reason)
		})
	})
	comms.HandleOpen(ctx, commOpenMessage("comm-1", "widget", `{}`))

	comms.HandleClose(ctx, protocol.NewMessage(protocol.MsgTypeCommClose, "session-1", "tester", &protocol.CommClose{
		CommID: "comm-1",
	}))

	assert.Equal(t, []string{"closed by client"}, closeReasons)
	assert.Zero(t, comms.Count())
}

func TestKernelInitiatedOpenAndIdempotentClose(t *testing.T) {
	comms, iopubSender := newTestComms(t)

	var closeCount int
	session, err := comms.Open("widget", map[string]interface{}{"kind": "gauge"}, nil, func(reason string) {
		closeCount++
	})
	require.NoError(t, err)
	require.True(t, session.Valid())

	opens := iopubSender.byType(protocol.MsgTypeCommOpen)
	require.Len(t, opens, 1)
	openContent := opens[0].Content.(*protocol.CommOpen)
	assert.Equal(t, session.ID(), openContent.CommID)
	assert.Equal(t, "widget", openContent.TargetName)

	require.NoError(t, session.Send(map[string]interface{}{"value": 1}))
	assert.Len(t, iopubSender.byType(protocol.MsgTypeCommMsg), 1)

	// Closing twice sends exactly one comm_close and runs the callback once.
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	assert.Len(t, iopubSender.byType(protocol.MsgTypeCommClose), 1)
	assert.Equal(t, 1, closeCount)
	assert.False(t, session.Valid())
	assert.Zero(t, comms.Count())

	// And sending on a closed session fails without I/O.
	assert.Error(t, session.Send(map[string]interface{}{"value": 2}))
	assert.Len(t, iopubSender.byType(protocol.MsgTypeCommMsg), 1)
}
