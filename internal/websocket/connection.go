package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps one gorilla/websocket connection for one user. All
// writes go through a single writer goroutine; callers only see WriteJSON.
type Connection struct {
	conn         *websocket.Conn
	userID       string
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection wraps an upgraded WebSocket connection and starts its
// writer goroutine. bufferSize bounds the outbound queue; writeTimeout is
// applied to both queueing and the network write, so a dead peer surfaces
// as a send failure instead of a stalled broadcast.
func NewConnection(conn *websocket.Conn, userID string, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		userID:       userID,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// UserID returns the identity this transport is addressed by.
func (c *Connection) UserID() string {
	return c.userID
}

func (c *Connection) writeLoop() {
	// The channel is never closed: senders are unblocked by ctx instead,
	// so a racing WriteJSON cannot hit a closed channel.
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.cancel()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// A failed write poisons the connection; stop the loop so
				// queued sends fail fast instead of piling up.
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON marshals v and queues it for the writer goroutine. A full
// queue past the write timeout counts as a transport failure.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears down the transport. Safe to call any number of times.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done exposes the connection's lifetime for the read-side heartbeat.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
