package hub

import (
	"log/slog"

	"chat-relay/codec"
	"chat-relay/domain"
)

// Broadcast encodes env once and queues it to every open connection except
// excludeID. A failed send is logged and skipped; the peer stays registered
// until its own transport or the liveness monitor closes it.
func (h *Hub) Broadcast(env domain.Envelope, excludeID string) int {
	data := codec.Encode(env)

	delivered := 0
	h.ForEach(func(conn domain.Connection) {
		if excludeID != "" && conn.ID() == excludeID {
			return
		}
		if !conn.IsOpen() {
			return
		}
		if err := conn.Send(data); err != nil {
			slog.Warn("broadcast send failed", "clientId", conn.ID(), "kind", env.Kind, "error", err)
			return
		}
		delivered++
	})

	slog.Debug("broadcast", "kind", env.Kind, "event", env.Event, "recipients", delivered)
	return delivered
}
