package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"volatility-systemv1/internal/analyzer"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes wires the WS endpoint and REST surface onto the mux.
// rdb may be nil when Redis publishing is disabled.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, eng *analyzer.Engine, rdb *goredis.Client, processStart time.Time) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWS(conn, r.URL.Query().Get("last_ts"))
	})

	// REST: newest payload per channel.
	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetLatestAll())
	})

	// REST: current recommendation, nullable.
	mux.HandleFunc("/api/recommendation", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(eng.Current())
	})

	// REST: per-symbol stats snapshot.
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(eng.Stats())
	})

	// REST: replay envelopes for client gap backfill.
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		channel := r.URL.Query().Get("channel")
		from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		to, err := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if err != nil || to <= 0 {
			to = hub.GetChannelSeq(channel)
		}
		if channel == "" {
			http.Error(w, `{"error":"channel is required"}`, http.StatusBadRequest)
			return
		}

		envelopes := hub.GetReplayRange(channel, from, to)
		out := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			out[i] = e
		}
		json.NewEncoder(w).Encode(out)
	})

	// Health endpoint.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		redisOK := rdb == nil
		if rdb != nil {
			redisOK = rdb.Ping(r.Context()).Err() == nil
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "ok",
			"ready":      eng.IsReady(),
			"redis":      redisOK,
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
