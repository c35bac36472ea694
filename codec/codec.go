// Package codec converts relay envelopes to and from their JSON wire form.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"chat-relay/domain"
)

const (
	ConnectedMessage = "Connected to chat server"
	InvalidMessage   = "Invalid JSON message"
)

// Wire field names.
const (
	fieldType      = "type"
	fieldEvent     = "event"
	fieldClientID  = "clientId"
	fieldMessage   = "message"
	fieldTimestamp = "timestamp"
	fieldSelf      = "self"
)

var ErrInvalidMessage = errors.New("invalid message")

// reserved keys are never taken from a sender payload.
var reserved = map[string]struct{}{
	fieldType:      {},
	"kind":         {},
	fieldClientID:  {},
	"connectionId": {},
	fieldTimestamp: {},
	fieldSelf:      {},
}

var encodeFailure = []byte(`{"message":"encoding failure","type":"error"}`)

type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidMessage, e.Err}
	}
	return []error{ErrInvalidMessage}
}

// Decode parses a client frame. Only a JSON object is accepted.
func Decode(raw []byte) (domain.Payload, error) {
	if !utf8.Valid(raw) {
		return nil, &DecodeError{Reason: "not valid UTF-8"}
	}

	var payload domain.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &DecodeError{Reason: "not a JSON object", Err: err}
	}
	// "null" unmarshals into a nil map without error.
	if payload == nil {
		return nil, &DecodeError{Reason: "not a JSON object"}
	}
	return payload, nil
}

func Encode(env domain.Envelope) []byte {
	fields := make(map[string]any, len(env.Payload)+6)
	for key, value := range env.Payload {
		if _, ok := reserved[key]; ok {
			continue
		}
		fields[key] = value
	}

	fields[fieldType] = env.Kind
	switch env.Kind {
	case domain.KindSystem:
		fields[fieldEvent] = env.Event
		fields[fieldClientID] = env.ConnectionID
		if env.Message != "" {
			fields[fieldMessage] = env.Message
		}
	case domain.KindChat:
		fields[fieldClientID] = env.ConnectionID
		fields[fieldTimestamp] = env.Timestamp
		if env.Self {
			fields[fieldSelf] = true
		}
	case domain.KindError:
		fields[fieldMessage] = env.Message
	}

	data, err := json.Marshal(fields)
	if err != nil {
		slog.Error("encode error", "kind", env.Kind, "clientId", env.ConnectionID, "error", err)
		return encodeFailure
	}
	return data
}

func Connected(id string) domain.Envelope {
	return domain.Envelope{
		Kind:         domain.KindSystem,
		Event:        domain.EventConnected,
		ConnectionID: id,
		Message:      ConnectedMessage,
	}
}

func Join(id string) domain.Envelope {
	return domain.Envelope{Kind: domain.KindSystem, Event: domain.EventJoin, ConnectionID: id}
}

func Leave(id string) domain.Envelope {
	return domain.Envelope{Kind: domain.KindSystem, Event: domain.EventLeave, ConnectionID: id}
}

func Chat(id string, timestamp int64, payload domain.Payload) domain.Envelope {
	return domain.Envelope{
		Kind:         domain.KindChat,
		ConnectionID: id,
		Timestamp:    timestamp,
		Payload:      payload,
	}
}

func Invalid() domain.Envelope {
	return domain.Envelope{Kind: domain.KindError, Message: InvalidMessage}
}
