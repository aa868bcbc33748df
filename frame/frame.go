// Package frame implements the JSON envelope of the Satori event stream.
//
// Every WebSocket text message carries exactly one envelope:
//
//	{"op": <opcode>, "body": <object, optional>}
//
// The body schema depends on the opcode; see package wire.
package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// MaxPayloadLen bounds a single envelope. Message content with inline
// media can be large, so the limit is generous.
const MaxPayloadLen = 16 << 20

// Opcode identifies the kind of envelope.
type Opcode uint8

// Opcodes.
const (
	OpEvent    Opcode = 0 // server -> client
	OpPing     Opcode = 1 // client -> server
	OpPong     Opcode = 2 // server -> client
	OpIdentify Opcode = 3 // client -> server
	OpReady    Opcode = 4 // server -> client
	OpMeta     Opcode = 5 // server -> client
)

var opNames = [...]string{"EVENT", "PING", "PONG", "IDENTIFY", "READY", "META"}

func (o Opcode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "OP(" + strconv.Itoa(int(o)) + ")"
}

var (
	ErrPayloadTooLarge = errors.New("frame: payload exceeds maximum size")
	ErrMissingOpcode   = errors.New("frame: missing op")
	ErrBadBody         = errors.New("frame: body is not an object")
)

// Frame is a decoded envelope. Body is nil when the envelope had none.
type Frame struct {
	Op   Opcode
	Body json.RawMessage
}

type envelope struct {
	Op   *Opcode         `json:"op"`
	Body json.RawMessage `json:"body,omitempty"`
}

// Encode serialises an envelope. A nil body is sent as an empty object,
// which every server accepts for PING.
func Encode(op Opcode, body any) ([]byte, error) {
	raw := json.RawMessage("{}")
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("frame: marshal %s body: %w", op, err)
		}
		raw = b
	}
	if len(raw) > MaxPayloadLen {
		return nil, ErrPayloadTooLarge
	}
	return json.Marshal(envelope{Op: &op, Body: raw})
}

// Decode parses one envelope.
func Decode(data []byte) (Frame, error) {
	if len(data) > MaxPayloadLen {
		return Frame{}, ErrPayloadTooLarge
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("frame: decode envelope: %w", err)
	}
	if env.Op == nil {
		return Frame{}, ErrMissingOpcode
	}
	body := bytes.TrimSpace(env.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return Frame{Op: *env.Op}, nil
	}
	if body[0] != '{' {
		return Frame{}, fmt.Errorf("%w: %s", ErrBadBody, *env.Op)
	}
	return Frame{Op: *env.Op, Body: body}, nil
}

// Unmarshal decodes the body into v. A missing body leaves v untouched.
func (f Frame) Unmarshal(v any) error {
	if len(f.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Body, v); err != nil {
		return fmt.Errorf("frame: decode %s body: %w", f.Op, err)
	}
	return nil
}

// Sequence extracts the "sn" field of an EVENT body, reporting whether one
// was present.
func (f Frame) Sequence() (int64, bool, error) {
	if f.Op != OpEvent || len(f.Body) == 0 {
		return 0, false, nil
	}
	var head struct {
		SN *int64 `json:"sn"`
	}
	if err := json.Unmarshal(f.Body, &head); err != nil {
		return 0, false, fmt.Errorf("frame: decode event sn: %w", err)
	}
	if head.SN == nil {
		return 0, false, nil
	}
	return *head.SN, true, nil
}
