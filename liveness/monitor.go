// Package liveness evicts connections that stop answering transport pings.
//
// Every sweep marks each registered connection SUSPECT and pings it; a pong
// puts it back to ALIVE. A connection still SUSPECT at the next sweep is
// evicted, so a silent peer is dropped between one and two intervals after
// its last pong.
package liveness

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chat-relay/domain"
)

const DefaultInterval = 30 * time.Second

var ErrAlreadyStarted = errors.New("liveness monitor already started")

type Evictor interface {
	Disconnect(conn domain.Connection)
}

type Monitor struct {
	registry domain.Registry
	evictor  Evictor
	interval time.Duration

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func New(registry domain.Registry, evictor Evictor, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		registry: registry,
		evictor:  evictor,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (m *Monitor) Interval() time.Duration { return m.interval }

// Start launches the periodic sweep. It returns ErrAlreadyStarted on a
// second call, including after Stop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)

	slog.Info("liveness monitor started", "interval", m.interval)
	return nil
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Stop cancels the sweep and waits for it to exit. Only the first call has
// an effect; calling it before Start is allowed.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		cancel := m.cancel
		m.started = true
		m.mu.Unlock()

		if cancel == nil {
			close(m.done)
			return
		}
		cancel()
		<-m.done
		slog.Info("liveness monitor stopped")
	})
}

// Sweep runs a single liveness pass over the registry.
func (m *Monitor) Sweep() {
	m.registry.ForEach(func(conn domain.Connection) {
		if !conn.MarkSuspect() {
			slog.Info("evicting unresponsive client", "clientId", conn.ID())
			m.evictor.Disconnect(conn)
			return
		}
		if err := conn.Ping(); err != nil {
			slog.Warn("ping failed", "clientId", conn.ID(), "error", err)
		}
	})
}
