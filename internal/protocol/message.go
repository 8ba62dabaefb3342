package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Version is the Jupyter messaging protocol version this kernel speaks.
const Version = "5.3"

// MessageHeader is the general message header defined by the Jupyter
// messaging specification. MsgType is an open string, not a closed enum:
// unknown types must be preserved and round-tripped, never rejected.
// http://jupyter-client.readthedocs.io/en/latest/messaging.html#general-message-format
type MessageHeader struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// Message is a fully decoded wire message. Identities holds the opaque
// routing prefix frames present on router-style sockets; they are echoed
// back unchanged on replies to the same client. ParentHeader is nil for
// messages that do not reply to anything.
type Message struct {
	Identities   [][]byte
	Header       MessageHeader
	ParentHeader *MessageHeader
	Metadata     map[string]interface{}
	Content      interface{}
}

// NewMessage builds a fresh outgoing message of the given type with a unique
// message id and the current timestamp. The session id is stamped by the
// sender if left empty here.
func NewMessage(msgType, session, username string, content interface{}) *Message {
	return &Message{
		Header: MessageHeader{
			MsgID:    uuid.NewString(),
			Username: username,
			Session:  session,
			Date:     time.Now().UTC().Format(time.RFC3339),
			MsgType:  msgType,
			Version:  Version,
		},
		Metadata: map[string]interface{}{},
		Content:  content,
	}
}

// Reply builds a message of the given type in reply to m: the parent header
// is m's header and the routing identities are m's, so a router socket
// delivers the reply to the originating client.
func (m *Message) Reply(msgType string, content interface{}) *Message {
	parent := m.Header
	reply := NewMessage(msgType, m.Header.Session, m.Header.Username, content)
	reply.Identities = m.Identities
	reply.ParentHeader = &parent
	return reply
}

// Child builds a message of the given type parented to m but without routing
// identities, as published on broadcast channels.
func (m *Message) Child(msgType string, content interface{}) *Message {
	parent := m.Header
	child := NewMessage(msgType, m.Header.Session, m.Header.Username, content)
	child.ParentHeader = &parent
	return child
}
