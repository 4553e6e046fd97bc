package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientConn serializes writes to one websocket connection. gorilla
// conns allow a single concurrent writer, and the same conn is written
// to by the reader loop (acks, errors) and by room broadcasts.
type clientConn struct {
	rawConn *websocket.Conn
	mu      sync.Mutex
}

func (c *clientConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data)
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}

func (c *clientConn) close() {
	_ = c.rawConn.Close()
}
