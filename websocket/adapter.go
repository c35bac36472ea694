package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/domain"
)

const (
	writeWait             = 10 * time.Second
	sendQueueSize         = 256
	DefaultMaxMessageSize = 64 * 1024
)

var ErrSendQueueFull = errors.New("send queue full")

const (
	stateConnecting int32 = iota
	stateOpen
	stateClosed
)

type Conn struct {
	id      string
	ws      *websocket.Conn
	handler domain.LifecycleHandler
	maxSize int64

	state atomic.Int32
	alive atomic.Bool

	mu         sync.Mutex
	send       chan []byte
	ping       chan struct{}
	sendClosed bool
	writing    atomic.Bool
}

type Option func(*Conn)

func WithMaxMessageSize(n int64) Option {
	return func(c *Conn) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

func NewConn(id string, ws *websocket.Conn, h domain.LifecycleHandler, opts ...Option) *Conn {
	c := &Conn{
		id:      id,
		ws:      ws,
		handler: h,
		maxSize: DefaultMaxMessageSize,
		send:    make(chan []byte, sendQueueSize),
		ping:    make(chan struct{}, 1),
	}
	c.alive.Store(true)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Open() bool   { return c.state.CompareAndSwap(stateConnecting, stateOpen) }
func (c *Conn) IsOpen() bool { return c.state.Load() == stateOpen }

func (c *Conn) MarkClosed() bool {
	return c.state.Swap(stateClosed) == stateOpen
}

func (c *Conn) MarkAlive()        { c.alive.Store(true) }
func (c *Conn) MarkSuspect() bool { return c.alive.Swap(false) }

// Send queues data for the writer goroutine without waiting on the peer.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendClosed || !c.IsOpen() {
		return domain.ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Ping asks the writer goroutine for a ping frame and returns at once. A
// request still pending from an earlier call absorbs this one.
func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendClosed {
		return domain.ErrConnectionClosed
	}
	select {
	case c.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting sends. Once the writer has flushed the queue it
// sends a close frame and closes the socket; without a running writer the
// socket is closed here.
func (c *Conn) Close() error {
	c.mu.Lock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
	c.mu.Unlock()

	if c.writing.Load() {
		return nil
	}
	return c.ws.Close()
}

func (c *Conn) Start() error {
	c.writing.Store(true)
	go c.writePump()

	if err := c.handler.Accept(c); err != nil {
		c.Close()
		return err
	}
	go c.readPump()
	return nil
}

func (c *Conn) readPump() {
	defer c.handler.Disconnect(c)

	c.ws.SetReadLimit(c.maxSize)
	c.ws.SetPongHandler(func(string) error {
		c.MarkAlive()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("read error", "clientId", c.id, "error", err)
			} else {
				slog.Debug("read loop ended", "clientId", c.id, "error", err)
			}
			return
		}

		c.handler.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	defer c.ws.Close()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("write error", "clientId", c.id, "error", err)
				c.handler.Disconnect(c)
				return
			}
		case <-c.ping:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("ping error", "clientId", c.id, "error", err)
				c.handler.Disconnect(c)
				return
			}
		}
	}
}
