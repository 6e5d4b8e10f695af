package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thereayou/planning-poker/internal/session"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Client is one participant's socket. It implements session.Conn.
type Client struct {
	id     uuid.UUID
	Name   string
	RoomID string

	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ session.Conn = (*Client)(nil)

func NewClient(hub *Hub, conn *websocket.Conn, roomID, name string, log *slog.Logger) *Client {
	id := uuid.New()
	return &Client{
		id:     id,
		Name:   name,
		RoomID: roomID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    hub,
		log:    log.With("conn", id, "room", roomID),
	}
}

func (c *Client) ID() uuid.UUID {
	return c.id
}

// Send queues an event without blocking.
func (c *Client) Send(event session.Event) error {
	data, err := session.Encode(event)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientQueueFull
	}
}

// SendError queues an error message for this client only.
func (c *Client) SendError(err error) {
	if sendErr := c.Send(session.ErrorMessage{Message: err.Error()}); sendErr != nil {
		c.log.Debug("error message dropped", "error", sendErr)
	}
}

// Close stops the write pump after the queued frames are flushed.
// The read pump then fails and reports the departure.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// ReadPump feeds inbound frames to the room until the socket fails.
func (c *Client) ReadPump(ctx context.Context, room *session.Room) {
	defer func() {
		room.Leave(context.WithoutCancel(ctx), c.Name, c.id)
		c.hub.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", "error", err)
			}
			return
		}

		cmd, err := session.DecodeCommand(data)
		if err != nil {
			c.SendError(err)
			continue
		}

		if err := room.Handle(ctx, c.Name, c.id, cmd); err != nil {
			c.log.Debug("command rejected", "command", cmd, "error", err)
			c.SendError(err)
		}
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Reject tells the peer why the connection cannot be set up, then closes it.
func Reject(conn *websocket.Conn, err error) {
	data, encErr := session.Encode(session.ErrorMessage{Message: err.Error()})
	if encErr == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, data)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
	conn.Close()
}
