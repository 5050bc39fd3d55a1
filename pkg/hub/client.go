package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Dashboard clients only send small control messages.
	maxInbound = 64 * 1024
	sendBuffer = 64
)

// Client is one websocket subscriber. Only the write goroutine touches the
// connection for writes.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	// OnMessage receives text messages from the client, if set.
	OnMessage func(data []byte)
}

func (c *Client) queue() chan Message { return c.send }

// NewClient creates a client for conn. Messages passed as greeting are
// delivered ahead of any broadcast.
func NewClient(hub *Hub, conn *websocket.Conn, greeting ...Message) *Client {
	send := make(chan Message, sendBuffer+len(greeting))
	for _, m := range greeting {
		send <- m
	}
	return &Client{hub: hub, conn: conn, send: send}
}

// Run registers the client and serves it until the connection drops or
// the hub stops.
func (c *Client) Run() {
	if err := c.hub.Register(c); err != nil {
		c.conn.Close()
		return
	}
	go c.write()
	c.read()
}

func (c *Client) read() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInbound)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if typ == websocket.TextMessage && c.OnMessage != nil {
			c.OnMessage(data)
		}
	}
}

func (c *Client) write() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var (
			typ  int
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				// dropped or hub stopped
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			typ, data = websocket.TextMessage, msg.Data
			if msg.Binary {
				typ = websocket.BinaryMessage
			}
		case <-ping.C:
			typ = websocket.PingMessage
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(typ, data); err != nil {
			return
		}
	}
}
