package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation covers every framing and authentication failure for a
// single message: a missing delimiter frame, a signature that does not verify,
// or a payload frame that fails to parse for its declared type. A violation is
// fatal to that one message only; socket loops log it and keep receiving.
var ErrProtocolViolation = errors.New("protocol violation")

// ErrMissingDelimiter indicates the <IDS|MSG> delimiter frame was not found.
var ErrMissingDelimiter = fmt.Errorf("%w: missing <IDS|MSG> delimiter", ErrProtocolViolation)

// ErrSignatureMismatch indicates the HMAC over the signed frames did not match
// the signature frame sent by the client.
var ErrSignatureMismatch = fmt.Errorf("%w: signature mismatch", ErrProtocolViolation)
