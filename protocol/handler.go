package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/codec"
	"chat-relay/domain"
)

var ErrNotConnecting = errors.New("connection already accepted or closed")

type Handler struct {
	registry    domain.Registry
	broadcaster domain.Broadcaster
	now         func() time.Time
}

type Option func(*Handler)

// WithClock replaces the source of chat timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(r domain.Registry, b domain.Broadcaster, opts ...Option) *Handler {
	h := &Handler{registry: r, broadcaster: b, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Accept(conn domain.Connection) error {
	if !conn.Open() {
		return fmt.Errorf("accept %s: %w", conn.ID(), ErrNotConnecting)
	}

	if err := h.registry.Add(conn); err != nil {
		conn.MarkClosed()
		if cerr := conn.Close(); cerr != nil {
			slog.Debug("close after rejected accept", "clientId", conn.ID(), "error", cerr)
		}
		return fmt.Errorf("accept: %w", err)
	}

	h.send(conn, codec.Connected(conn.ID()))
	h.broadcaster.Broadcast(codec.Join(conn.ID()), conn.ID())
	return nil
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	if !conn.IsOpen() {
		return
	}

	payload, err := codec.Decode(data)
	if err != nil {
		slog.Warn("invalid message", "clientId", conn.ID(), "error", err)
		h.send(conn, codec.Invalid())
		return
	}

	msg := codec.Chat(conn.ID(), h.now().UnixMilli(), payload)
	h.send(conn, msg.Echo())
	h.broadcaster.Broadcast(msg, conn.ID())
}

// Disconnect is safe to call any number of times and from any goroutine;
// only the first call removes the connection and announces the leave.
func (h *Handler) Disconnect(conn domain.Connection) {
	if !conn.MarkClosed() {
		return
	}

	h.registry.Remove(conn.ID())
	if err := conn.Close(); err != nil {
		slog.Debug("close error", "clientId", conn.ID(), "error", err)
	}
	h.broadcaster.Broadcast(codec.Leave(conn.ID()), "")
}

func (h *Handler) send(conn domain.Connection, env domain.Envelope) {
	if err := conn.Send(codec.Encode(env)); err != nil {
		slog.Warn("send failed", "clientId", conn.ID(), "kind", env.Kind, "error", err)
	}
}
