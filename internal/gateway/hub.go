package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"volatility-systemv1/internal/analyzer"
	"volatility-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

// Channel names pushed to WS clients.
const (
	ChannelRecommendation = "recommendation"
	ChannelReadiness      = "readiness"
	statsChannelPrefix    = "stats:"
)

// Hub manages WebSocket clients and fans engine updates out to them.
// Every published payload gets a per-channel sequence number and lands in
// a replay buffer so clients can backfill gaps over REST.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	lastReady bool
	readySent bool
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
	}
}

// Bind subscribes the hub to an engine. Each engine broadcast is republished
// as one envelope per stats symbol plus the recommendation channel; the
// readiness channel fires only when the flag changes. Returns the engine
// unsubscribe func.
func (h *Hub) Bind(eng *analyzer.Engine) func() {
	return eng.Subscribe(func(rec *model.Recommendation, stats map[string]model.SymbolStats) {
		for sym, s := range stats {
			if data, err := s.JSON(); err == nil {
				h.Publish(statsChannelPrefix+sym, data)
			}
		}
		if rec != nil {
			if data, err := rec.JSON(); err == nil {
				h.Publish(ChannelRecommendation, data)
			}
		}
		h.publishReadiness(eng.IsReady())
	})
}

func (h *Hub) publishReadiness(ready bool) {
	h.mu.Lock()
	changed := !h.readySent || ready != h.lastReady
	h.lastReady = ready
	h.readySent = true
	h.mu.Unlock()
	if !changed {
		return
	}
	data, _ := json.Marshal(map[string]bool{"ready": ready})
	h.Publish(ChannelReadiness, data)
}

// HandleWS registers an upgraded connection and starts its pumps.
// lastTS filters the initial snapshot to entries newer than the given
// RFC3339Nano timestamp.
func (h *Hub) HandleWS(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		hub:      h,
		channels: make(map[string]bool),
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient drops a client from the hub and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// GetLatestAll returns a snapshot of the newest payload per channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb := h.replayBufs[channel]
	h.mu.RUnlock()
	if rb == nil {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
