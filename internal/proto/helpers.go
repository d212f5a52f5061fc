package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed       = errors.New("malformed lobby message")
	ErrUnknownType     = errors.New("unknown lobby message type")
	ErrBadAnnouncement = errors.New("bad game announcement")
)

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// NewEnvelope builds an envelope with body marshalled from v (nil for none).
func NewEnvelope(t MessageType, session, name string, v any) Envelope {
	env := Envelope{Type: t, Session: session, Name: name}
	if v != nil {
		env.Body = MustMarshal(v)
	}
	return env
}

// Encode renders env as the text payload handed to the broadcast manager.
func Encode(env Envelope) (string, error) {
	if !env.Type.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", env.Type, err)
	}
	return string(b), nil
}

// Decode parses a received payload. Unknown types and envelopes without a
// session are rejected.
func Decode(s string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !env.Type.Known() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if env.Session == "" {
		return Envelope{}, fmt.Errorf("%w: missing session", ErrMalformed)
	}
	return env, nil
}

// DecodeBody unmarshals env.Body into a T.
func DecodeBody[T any](env Envelope) (T, error) {
	var v T
	if len(env.Body) == 0 {
		return v, fmt.Errorf("%w: %s without body", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Body, &v); err != nil {
		return v, fmt.Errorf("%w: %s body: %v", ErrMalformed, env.Type, err)
	}
	return v, nil
}
