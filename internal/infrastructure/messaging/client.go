package messaging

import (
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// FeedClient is one websocket connection subscribed to a topic.
type FeedClient struct {
	Conn  *websocket.Conn
	Topic tracking.Topic
	Send  chan []byte
}

// NewFeedClient wraps conn for topic.
func NewFeedClient(conn *websocket.Conn, topic tracking.Topic) *FeedClient {
	return &FeedClient{Conn: conn, Topic: topic, Send: make(chan []byte, 16)}
}

// Serve registers the client, pumps messages until the connection drops and
// unregisters it. It blocks for the lifetime of the connection.
func (c *FeedClient) Serve(b *FeedBroadcaster, initial []byte) {
	if initial != nil {
		c.Send <- initial
	}
	b.Register(c)
	go c.writePump()
	c.readPump()
	b.Unregister(c)
}

// readPump discards client messages; it exists to process control frames.
func (c *FeedClient) readPump() {
	defer func() { _ = c.Conn.Close() }()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *FeedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
