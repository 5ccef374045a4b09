package protocol

import (
	"errors"
	"fmt"
)

// Observer error codes.
const (
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"
	ErrForbidden       = "E_FORBIDDEN"
	ErrInternal        = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrForbidden:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrMalformedMessage is wrapped by every host message decode failure.
var ErrMalformedMessage = errors.New("protocol: malformed message")

type MalformedError struct {
	Op     Opcode
	Size   int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("protocol: malformed %s (%d bytes): %s", e.Op, e.Size, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedMessage }
