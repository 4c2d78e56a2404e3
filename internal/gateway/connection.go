package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is the wire frame in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outEnvelope avoids re-marshalling payloads that are not RawMessage yet.
type outEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Connection wraps a websocket with a single writer goroutine; gorilla
// connections do not allow concurrent writes. The identity fields are set once
// at upgrade time, the room changes as the user moves.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	userID   string
	username string
	location string
	roomID   string
	mu       sync.RWMutex // protects username, location, roomID
}

// NewConnection wraps an upgraded websocket and starts its write loop.
func NewConnection(conn *websocket.Conn, userID string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, 100),
		ctx:     ctx,
		cancel:  cancel,
		userID:  userID,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues one event frame for delivery. Implements interfaces.Sender.
func (c *Connection) Send(event string, data interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	frame, err := json.Marshal(outEnvelope{Event: event, Data: data})
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- frame:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears the connection down. Safe to call more than once.
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

func (c *Connection) UserID() string { return c.userID }

func (c *Connection) SetIdentity(username, location string) {
	c.mu.Lock()
	c.username = username
	c.location = location
	c.mu.Unlock()
}

func (c *Connection) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Connection) Location() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.location
}

func (c *Connection) SetRoomID(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

func (c *Connection) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}
