package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub fans trader output out to WebSocket clients. Every envelope gets a
// global sequence number and is kept in a replay buffer, so a client that
// connects with ?since=<seq> receives what it missed before live traffic.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]bool
	seq     int64
	replay  *ReplayBuffer

	// OnClientCount, if set, is called with the client count after every
	// connect and disconnect.
	OnClientCount func(n int)
}

// NewHub creates a hub keeping the last replaySize envelopes.
func NewHub(replaySize int) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
	}
}

// Broadcast sends data (already JSON) to every client interested in symbol
// and returns the envelope's sequence number.
func (h *Hub) Broadcast(kind, symbol string, data []byte) int64 {
	now := time.Now().UTC()
	channel := channelOf(kind, symbol)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	buf := buildEnvelope(kind, symbol, data, now, h.seq)
	h.replay.Push(h.seq, channel, buf)

	for client := range h.clients {
		if !client.wants(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			// slow client; it can catch up with ?since
		}
	}
	return h.seq
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(kind, symbol string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", kind, err)
	}
	h.Broadcast(kind, symbol, data)
	return nil
}

// ServeHTTP upgrades the request to a WebSocket stream.
// Query parameters: symbols=BTCUSDT,ETHUSDT filters by symbol; since=<seq>
// replays buffered envelopes newer than seq (default: the whole buffer).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}

	client := newClient(h, conn, splitSymbols(r.URL.Query().Get("symbols")))
	h.register(client, since)

	go client.writePump()
	go client.readPump()
}

// register adds c and queues the replay under the hub lock, so nothing
// broadcast concurrently is missed or delivered twice.
func (h *Hub) register(c *Client, since int64) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	for _, e := range h.replay.Range(since+1, h.seq) {
		if !c.wants(e.Channel) {
			continue
		}
		select {
		case c.send <- e.Data:
		default:
		}
	}
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client disconnected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Seq returns the sequence number of the latest envelope.
func (h *Hub) Seq() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.RemoveClient(c)
	}
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
