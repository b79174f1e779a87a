package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"netpulseserver/internal/wire"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 << 10
	sendBufferSize = 64
)

// Client wraps one websocket connection. All writes go through the send
// channel and a single writer goroutine; everything else only enqueues.
type Client struct {
	// ID identifies the connection in logs. UserID is set once the
	// connection authenticates.
	ID     string
	UserID string

	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger.With("conn_id", id),
	}
}

// Enqueue hands an event to the writer goroutine without blocking. A full
// buffer drops the event: slow readers must not stall anyone else. Reports
// whether the event was queued.
func (c *Client) Enqueue(event wire.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("marshal event", "type", event.Type, "err", err)
		return false
	}
	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		c.logger.Warn("send buffer full, dropping event", "type", event.Type)
		return false
	}
}

// Close stops the writer goroutine, which closes the underlying
// connection on its way out. Safe to call more than once and from any
// goroutine.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// writePump is the connection's only writer. It drains the send queue,
// keeps the peer alive with pings, and closes the connection when asked
// to stop or when a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
