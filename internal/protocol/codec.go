package protocol

import (
	"bytes"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"

	"github.com/sirupsen/logrus"
)

// delimiter separates routing identity frames from the signed payload frames.
var delimiter = []byte("<IDS|MSG>")

// SignerFactory returns a freshly keyed HMAC for each digest operation.
// Digest state is not reentrant, so instances are never shared across calls.
type SignerFactory func() hash.Hash

// Codec encodes and decodes the multipart wire format and computes/verifies
// message signatures.
type Codec struct {
	logger   *logrus.Logger
	signer   SignerFactory
	registry *ContentRegistry
}

// NewCodec creates a codec using the given HMAC factory and content registry.
// A nil registry gets the default registry.
func NewCodec(logger *logrus.Logger, signer SignerFactory, registry *ContentRegistry) *Codec {
	if registry == nil {
		registry = NewContentRegistry()
	}
	return &Codec{
		logger:   logger,
		signer:   signer,
		registry: registry,
	}
}

// Registry exposes the codec's content registry so callers can register
// additional content types.
func (c *Codec) Registry() *ContentRegistry {
	return c.registry
}

// Decode parses raw wire frames into a Message, verifying the HMAC signature
// over the four payload frames. All failures wrap ErrProtocolViolation.
func (c *Codec) Decode(frames [][]byte) (*Message, error) {
	delim := -1
	for i, frame := range frames {
		if bytes.Equal(frame, delimiter) {
			delim = i
			break
		}
	}
	if delim < 0 {
		return nil, ErrMissingDelimiter
	}
	if len(frames) < delim+6 {
		return nil, fmt.Errorf("%w: expected 5 frames after delimiter, got %d", ErrProtocolViolation, len(frames)-delim-1)
	}

	claimed, err := hex.DecodeString(string(frames[delim+1]))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed signature frame: %v", ErrProtocolViolation, err)
	}
	signed := frames[delim+2 : delim+6]
	if !hmac.Equal(claimed, c.sign(signed)) {
		return nil, ErrSignatureMismatch
	}

	msg := &Message{Identities: frames[:delim]}
	if err := json.Unmarshal(signed[0], &msg.Header); err != nil {
		return nil, fmt.Errorf("%w: bad header: %v", ErrProtocolViolation, err)
	}
	parent, err := decodeParentHeader(signed[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad parent header: %v", ErrProtocolViolation, err)
	}
	msg.ParentHeader = parent
	if err := json.Unmarshal(signed[2], &msg.Metadata); err != nil {
		return nil, fmt.Errorf("%w: bad metadata: %v", ErrProtocolViolation, err)
	}

	content, known := c.registry.New(msg.Header.MsgType)
	if !known {
		// Forward compatibility: unknown types are preserved, not rejected.
		raw := RawContent{}
		if err := json.Unmarshal(signed[3], &raw); err != nil {
			return nil, fmt.Errorf("%w: bad content: %v", ErrProtocolViolation, err)
		}
		msg.Content = raw
		c.logger.WithField("msg_type", msg.Header.MsgType).Debug("Decoded message with unregistered type")
		return msg, nil
	}
	if err := json.Unmarshal(signed[3], content); err != nil {
		return nil, fmt.Errorf("%w: bad %s content: %v", ErrProtocolViolation, msg.Header.MsgType, err)
	}
	msg.Content = content
	return msg, nil
}

// Encode serializes a Message into wire frames: identities, delimiter, hex
// signature, then header, parent header, metadata and content as UTF-8 JSON.
func (c *Codec) Encode(msg *Message) ([][]byte, error) {
	header, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	parent := []byte("{}")
	if msg.ParentHeader != nil {
		if parent, err = json.Marshal(msg.ParentHeader); err != nil {
			return nil, fmt.Errorf("failed to marshal parent header: %w", err)
		}
	}
	metadata := []byte("{}")
	if msg.Metadata != nil {
		if metadata, err = json.Marshal(msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	content := []byte("{}")
	if msg.Content != nil {
		if content, err = json.Marshal(msg.Content); err != nil {
			return nil, fmt.Errorf("failed to marshal content: %w", err)
		}
	}

	signature := hex.EncodeToString(c.sign([][]byte{header, parent, metadata, content}))

	frames := make([][]byte, 0, len(msg.Identities)+6)
	frames = append(frames, msg.Identities...)
	frames = append(frames, delimiter, []byte(signature), header, parent, metadata, content)
	return frames, nil
}

// sign computes the HMAC over the payload frames as a single multi-block
// digest, using a fresh keyed instance.
func (c *Codec) sign(blocks [][]byte) []byte {
	mac := c.signer()
	for _, block := range blocks {
		mac.Write(block)
	}
	return mac.Sum(nil)
}

func decodeParentHeader(data []byte) (*MessageHeader, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var header MessageHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}
	return &header, nil
}
