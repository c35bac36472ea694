package domain

import (
	"encoding/json"
	"errors"
)

var (
	ErrConnectionClosed    = errors.New("connection is not open")
	ErrDuplicateConnection = errors.New("connection already registered")
)

type Kind string

const (
	KindSystem Kind = "system"
	KindChat   Kind = "chat"
	KindError  Kind = "error"
)

type Event string

const (
	EventConnected Event = "connected"
	EventJoin      Event = "join"
	EventLeave     Event = "leave"
)

// Payload holds the sender-supplied fields of a chat message, kept verbatim.
type Payload map[string]json.RawMessage

type Envelope struct {
	Kind         Kind
	Event        Event
	ConnectionID string
	Message      string
	Timestamp    int64
	Self         bool
	Payload      Payload
}

// Echo returns the copy delivered back to the sender of a chat message.
func (e Envelope) Echo() Envelope {
	e.Self = true
	return e
}

type Connection interface {
	ID() string
	Send(data []byte) error
	Ping() error
	Close() error

	// Open moves a new connection to OPEN. It reports false if the
	// connection already left CONNECTING.
	Open() bool
	IsOpen() bool
	// MarkClosed moves the connection to CLOSED and reports whether this
	// call made the transition.
	MarkClosed() bool

	MarkAlive()
	// MarkSuspect flags the connection as awaiting a pong and reports
	// whether it was alive before the call.
	MarkSuspect() bool
}

type Registry interface {
	Add(conn Connection) error
	Remove(id string) bool
	ForEach(visit func(Connection))
	Count() int
}

type Broadcaster interface {
	Broadcast(env Envelope, excludeID string) int
}

type LifecycleHandler interface {
	Accept(conn Connection) error
	Handle(conn Connection, data []byte)
	Disconnect(conn Connection)
}
