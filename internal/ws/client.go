package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var errClientClosed = errors.New("client closed")

// Client is one websocket connection. Outbound frames go through a buffered
// queue drained by a single writer goroutine.
type Client struct {
	info ConnInfo
	conn *websocket.Conn

	send   chan []byte
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		info:   info,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
		rooms:  map[string]struct{}{},
	}
}

// Send queues payload. A client whose queue is full is closed rather than
// allowed to stall the broadcaster.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.closed:
		return errClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return errClientClosed
	default:
		c.Close()
		return errors.New("send buffer full")
	}
}

// Close stops the writer and closes the socket. It is idempotent.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = c.conn.Close()
		}
	})
}

func (c *Client) joined(pairKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[pairKey]; ok {
		return false
	}
	c.rooms[pairKey] = struct{}{}
	return true
}

func (c *Client) roomKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.rooms))
	for k := range c.rooms {
		keys = append(keys, k)
	}
	return keys
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
