package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Symbol filter; empty means everything.
	mu      sync.RWMutex
	symbols map[string]bool
}

// controlMsg is what clients may send.
type controlMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn, symbols []string) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	c.setSymbols(symbols)
	conn.EnableWriteCompression(true)
	return c
}

func (c *Client) setSymbols(symbols []string) {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(s)] = true
	}
	c.mu.Lock()
	c.symbols = set
	c.mu.Unlock()
}

// wants reports whether the channel "kind:SYMBOL" passes the filter.
func (c *Client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}
	i := strings.IndexByte(channel, ':')
	return c.symbols[channel[i+1:]]
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued envelopes into one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
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

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var ctl controlMsg
		if json.Unmarshal(msg, &ctl) != nil {
			continue
		}

		switch ctl.Type {
		case "subscribe":
			c.setSymbols(ctl.Symbols)
		case "ping":
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      ctl.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.hub.mu.Lock()
			if c.hub.clients[c] {
				select {
				case c.send <- pong:
				default:
				}
			}
			c.hub.mu.Unlock()
		}
	}
}
