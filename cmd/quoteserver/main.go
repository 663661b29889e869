// cmd/quoteserver — Demo volatility quote server.
// Simulates the broker WebSocket API for running the analyzer and trader
// without real credentials: random-walk quotes per symbol, ticks_history
// backfill with live subscription, authorize echo, and paper settlement of
// digit contracts one tick after purchase.
//
// Config (env vars):
//
//	QUOTE_SERVER_ADDR   — listen address (default: ":9100")
//	QUOTE_INTERVAL_MS   — tick interval milliseconds (default: "1000")
//	QUOTE_PAYOUT_FACTOR — gross payout multiple of stake (default: "1.95")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"volatility-systemv1/internal/digits"
	"volatility-systemv1/internal/quoteapi"
)

const historyCap = 1000

// symbolSpec fixes the decimal precision and starting quote per index.
var symbolSpecs = map[string]struct {
	pip   int
	start float64
}{
	"R_10":  {pip: 3, start: 6329.317},
	"R_25":  {pip: 3, start: 2704.552},
	"R_50":  {pip: 4, start: 214.3217},
	"R_75":  {pip: 4, start: 5318.9042},
	"R_100": {pip: 2, start: 1627.48},
}

// ─── session ──────────────────────────────────────────────────────────────────

// session is one client connection with its own write pump.
type session struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string

	balMu   sync.Mutex
	balance float64
}

func newSession(conn *websocket.Conn, remote string) *session {
	return &session{
		conn:    conn,
		send:    make(chan []byte, 256),
		remote:  remote,
		balance: 10000,
	}
}

// credit adjusts the paper balance; negative for debits.
func (s *session) credit(delta float64) {
	s.balMu.Lock()
	s.balance += delta
	s.balMu.Unlock()
}

func (s *session) getBalance() float64 {
	s.balMu.Lock()
	defer s.balMu.Unlock()
	return s.balance
}

// push queues a frame, dropping it if the client cannot keep up.
func (s *session) push(v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case s.send <- raw:
	default:
		log.Printf("[quoteserver] %s slow, dropping frame", s.remote)
	}
}

func (s *session) writePump() {
	for msg := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// ─── market ───────────────────────────────────────────────────────────────────

type point struct {
	epoch int64
	quote float64
}

// pendingContract is a bought contract waiting for its settlement tick.
type pendingContract struct {
	id      int64
	owner   *session
	params  quoteapi.ContractParams
	ticksTo int
}

// market is the per-symbol simulation state shared by all sessions.
type market struct {
	symbol string
	pip    int

	mu      sync.Mutex
	quote   float64
	history []point
	subs    map[*session]string // session → subscription id
	pending []*pendingContract
}

func newMarket(symbol string, pip int, start float64) *market {
	m := &market{
		symbol: symbol,
		pip:    pip,
		quote:  start,
		subs:   make(map[*session]string),
	}
	// Pre-seed enough history to satisfy a backfill immediately.
	now := time.Now().Unix() - historyCap
	for i := 0; i < historyCap; i++ {
		m.quote = m.walk(m.quote)
		m.history = append(m.history, point{epoch: now + int64(i), quote: m.quote})
	}
	return m
}

// walk applies a small random step (±0.1%) rounded to the symbol's precision.
func (m *market) walk(quote float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	next := quote * (1 + pct)
	scale := math.Pow10(m.pip)
	return math.Round(next*scale) / scale
}

// tick advances the quote, records history, fans the tick out to subscribers
// and settles any contract whose countdown reached zero.
func (m *market) tick(payoutFactor float64) {
	m.mu.Lock()
	m.quote = m.walk(m.quote)
	epoch := time.Now().Unix()
	m.history = append(m.history, point{epoch: epoch, quote: m.quote})
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}

	ev := quoteapi.TickEvent{Symbol: m.symbol, Epoch: epoch, Quote: m.quote}
	sessions := make(map[*session]string, len(m.subs))
	for s, id := range m.subs {
		sessions[s] = id
	}

	var settle []*pendingContract
	var remaining []*pendingContract
	for _, pc := range m.pending {
		pc.ticksTo--
		if pc.ticksTo <= 0 {
			settle = append(settle, pc)
		} else {
			remaining = append(remaining, pc)
		}
	}
	m.pending = remaining
	exit := digits.LastDigit(m.quote, m.pip)
	m.mu.Unlock()

	for s, id := range sessions {
		tick := ev
		tick.ID = id
		s.push(&quoteapi.ServerMsg{MsgType: "tick", Tick: &tick})
	}

	for _, pc := range settle {
		m.settle(pc, exit, payoutFactor)
	}
}

// settle decides the contract against the exit digit and notifies the owner.
func (m *market) settle(pc *pendingContract, exit int, payoutFactor float64) {
	barrier, _ := strconv.Atoi(pc.params.Barrier)

	var won bool
	switch pc.params.ContractType {
	case "DIGITOVER":
		won = exit > barrier
	case "DIGITUNDER":
		won = exit < barrier
	}

	stake := pc.params.Amount
	profit := -stake
	status := "lost"
	if won {
		profit = stake*payoutFactor - stake
		status = "won"
	}
	pc.owner.credit(profit)

	log.Printf("[quoteserver] contract %d %s %s barrier=%s exit=%d → %s (profit=%.2f)",
		pc.id, pc.params.ContractType, m.symbol, pc.params.Barrier, exit, status, profit)

	pc.owner.push(&quoteapi.ServerMsg{
		MsgType: "proposal_open_contract",
		Contract: &quoteapi.OpenContract{
			ContractID: pc.id,
			Status:     status,
			IsSold:     1,
			Profit:     math.Round(profit*100) / 100,
			ExitDigit:  exit,
		},
	})
}

// backfill returns the most recent count points, oldest first.
func (m *market) backfill(count int) quoteapi.History {
	m.mu.Lock()
	defer m.mu.Unlock()
	pts := m.history
	if count > 0 && len(pts) > count {
		pts = pts[len(pts)-count:]
	}
	h := quoteapi.History{
		Times:  make([]int64, len(pts)),
		Prices: make([]float64, len(pts)),
	}
	for i, p := range pts {
		h.Times[i] = p.epoch
		h.Prices[i] = p.quote
	}
	return h
}

func (m *market) subscribe(s *session, id string) {
	m.mu.Lock()
	m.subs[s] = id
	m.mu.Unlock()
}

func (m *market) drop(s *session) {
	m.mu.Lock()
	delete(m.subs, s)
	var remaining []*pendingContract
	for _, pc := range m.pending {
		if pc.owner != s {
			remaining = append(remaining, pc)
		}
	}
	m.pending = remaining
	m.mu.Unlock()
}

// ─── server ───────────────────────────────────────────────────────────────────

// request is the union of every inbound client message shape.
type request struct {
	TicksHistory string                   `json:"ticks_history"`
	Count        int                      `json:"count"`
	Subscribe    int                      `json:"subscribe"`
	Authorize    *string                  `json:"authorize"`
	Buy          *int                     `json:"buy"`
	Price        float64                  `json:"price"`
	Parameters   *quoteapi.ContractParams `json:"parameters"`
	Ping         *int                     `json:"ping"`
	ReqID        int64                    `json:"req_id"`
}

type server struct {
	markets      map[string]*market
	payoutFactor float64
	contractSeq  int64
	seqMu        sync.Mutex
}

func newServer(payoutFactor float64) *server {
	srv := &server{
		markets:      make(map[string]*market, len(symbolSpecs)),
		payoutFactor: payoutFactor,
	}
	for sym, spec := range symbolSpecs {
		srv.markets[sym] = newMarket(sym, spec.pip, spec.start)
	}
	return srv
}

func (srv *server) nextContractID() int64 {
	srv.seqMu.Lock()
	defer srv.seqMu.Unlock()
	srv.contractSeq++
	return srv.contractSeq
}

func (srv *server) runGenerator(intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		for _, m := range srv.markets {
			m.tick(srv.payoutFactor)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func (srv *server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[quoteserver] upgrade error: %v", err)
		return
	}
	log.Printf("[quoteserver] client connected: %s", r.RemoteAddr)

	s := newSession(conn, r.RemoteAddr)
	go s.writePump()
	defer func() {
		for _, m := range srv.markets {
			m.drop(s)
		}
		close(s.send)
		conn.Close()
		log.Printf("[quoteserver] client disconnected: %s", r.RemoteAddr)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			s.push(&quoteapi.ServerMsg{
				MsgType: "error",
				Error:   &quoteapi.APIError{Code: "BadRequest", Message: "malformed request"},
			})
			continue
		}
		srv.handle(s, &req)
	}
}

func (srv *server) handle(s *session, req *request) {
	switch {
	case req.TicksHistory != "":
		srv.handleHistory(s, req)
	case req.Authorize != nil:
		s.push(&quoteapi.ServerMsg{
			MsgType: "authorize",
			ReqID:   req.ReqID,
			Authorize: &quoteapi.Authorize{
				LoginID:  "VRTSIM001",
				Currency: "USD",
				Balance:  s.getBalance(),
			},
		})
	case req.Buy != nil:
		srv.handleBuy(s, req)
	case req.Ping != nil:
		s.push(map[string]string{"msg_type": "ping", "ping": "pong"})
	default:
		s.push(&quoteapi.ServerMsg{
			MsgType: "error",
			ReqID:   req.ReqID,
			Error:   &quoteapi.APIError{Code: "UnrecognisedRequest", Message: "unrecognised request"},
		})
	}
}

func (srv *server) handleHistory(s *session, req *request) {
	m, ok := srv.markets[req.TicksHistory]
	if !ok {
		s.push(&quoteapi.ServerMsg{
			MsgType: "error",
			ReqID:   req.ReqID,
			Error:   &quoteapi.APIError{Code: "InvalidSymbol", Message: "unknown symbol " + req.TicksHistory},
		})
		return
	}

	h := m.backfill(req.Count)
	s.push(&quoteapi.ServerMsg{MsgType: "history", ReqID: req.ReqID, History: &h})

	if req.Subscribe == 1 {
		id := fmt.Sprintf("sub-%s-%d", m.symbol, time.Now().UnixNano())
		m.subscribe(s, id)
		log.Printf("[quoteserver] %s subscribed to %s", s.remote, m.symbol)
	}
}

func (srv *server) handleBuy(s *session, req *request) {
	if req.Parameters == nil {
		s.push(&quoteapi.ServerMsg{
			MsgType: "error",
			ReqID:   req.ReqID,
			Error:   &quoteapi.APIError{Code: "InvalidContract", Message: "missing contract parameters"},
		})
		return
	}
	m, ok := srv.markets[req.Parameters.Symbol]
	if !ok {
		s.push(&quoteapi.ServerMsg{
			MsgType: "error",
			ReqID:   req.ReqID,
			Error:   &quoteapi.APIError{Code: "InvalidSymbol", Message: "unknown symbol " + req.Parameters.Symbol},
		})
		return
	}

	duration := req.Parameters.Duration
	if duration <= 0 {
		duration = 1
	}

	id := srv.nextContractID()
	pc := &pendingContract{id: id, owner: s, params: *req.Parameters, ticksTo: duration}
	m.mu.Lock()
	m.pending = append(m.pending, pc)
	m.mu.Unlock()

	s.credit(-req.Parameters.Amount)
	log.Printf("[quoteserver] %s bought contract %d: %s %s barrier=%s stake=%.2f",
		s.remote, id, req.Parameters.ContractType, req.Parameters.Symbol,
		req.Parameters.Barrier, req.Parameters.Amount)

	s.push(&quoteapi.ServerMsg{
		MsgType: "buy",
		ReqID:   req.ReqID,
		Buy: &quoteapi.BuyConfirmation{
			ContractID:   id,
			BuyPrice:     req.Parameters.Amount,
			Payout:       math.Round(req.Parameters.Amount*srv.payoutFactor*100) / 100,
			PurchaseTime: time.Now().Unix(),
		},
	})
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[quoteserver] starting demo quote server...")

	addr := envOrDefault("QUOTE_SERVER_ADDR", ":9100")
	intervalMs := envIntOrDefault("QUOTE_INTERVAL_MS", 1000)
	payout := envFloatOrDefault("QUOTE_PAYOUT_FACTOR", 1.95)

	srv := newServer(payout)
	go srv.runGenerator(intervalMs)

	http.HandleFunc("/ws", srv.wsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"quoteserver"}`)
	})

	log.Printf("[quoteserver] listening on %s (WebSocket: ws://localhost%s/ws), %d symbols, %dms interval",
		addr, addr, len(symbolSpecs), intervalMs)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[quoteserver] server error: %v", err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
