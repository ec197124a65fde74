package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Conn is one client connection. Writes go through a single mutex because
// gorilla/websocket allows only one concurrent writer, and room broadcasts
// arrive from other connections' goroutines.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	addr string
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *Conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Conn) close() error {
	return c.ws.Close()
}

// bind associates the wallet address a connection first authenticates as.
// Later messages on the same connection keep the original binding.
func (c *Conn) bind(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addr == "" {
		c.addr = addr
	}
}

func (c *Conn) address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}
