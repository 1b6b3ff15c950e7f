package gateway

import (
	"sync"

	"github.com/gorilla/websocket"
)

// client is one live connection. The send channel is never closed; done
// signals the writer to flush and hang up.
type client struct {
	id        string
	conn      *websocket.Conn
	teacherID string
	send      chan *websocket.PreparedMessage
	done      chan struct{}

	once      sync.Once
	mu        sync.Mutex
	closeCode int
	closeText string
}

func newClient(id string, conn *websocket.Conn, teacherID string, buffer int) *client {
	return &client{
		id:        id,
		conn:      conn,
		teacherID: teacherID,
		send:      make(chan *websocket.PreparedMessage, buffer),
		done:      make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the buffer is full.
func (c *client) enqueue(pm *websocket.PreparedMessage) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- pm:
		return true
	default:
		return false
	}
}

// close records the first close reason and signals the writer.
func (c *client) close(code int, text string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeText = code, text
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *client) closeReason() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeText
}
