package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

// Client is one websocket connection of a user. All writes go through the
// single writePump goroutine.
type Client struct {
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(conn *websocket.Conn, userID string, buffer int, limiter *rate.Limiter) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, buffer),
		limiter: limiter,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// enqueue never blocks; a full buffer or a closed client refuses the message.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close asks writePump to send a close frame and drop the connection, which
// in turn ends readPump. Safe to call more than once.
func (c *Client) Close() {
	c.cancel()
}

// readPump delivers inbound frames to handle until the connection fails.
func (c *Client) readPump(readLimit int64, pongWait time.Duration, handle func([]byte)) {
	defer c.Close()

	if readLimit > 0 {
		c.conn.SetReadLimit(readLimit)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		handle(message)
	}
}

// writePump drains the send buffer and keeps the connection alive with pings.
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
