// Package ingest maintains one streaming quote connection per tracked symbol.
// Each connection requests a one-time historical backfill with a subscribe
// flag so the same channel keeps delivering live ticks, then feeds parsed
// events into a single channel consumed by the analyzer's event loop.
//
// Connection lifecycle per symbol is a small state machine
// (disconnected → connecting → streaming → closing) with a fixed-backoff
// reconnect while the manager is running. One broken symbol never affects
// the others.
package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"volatility-systemv1/internal/quoteapi"
)

// State is the connection state of one symbol's stream.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateClosing      State = "closing"
)

// Event is one parsed inbound message. Exactly one of History or Tick is set.
type Event struct {
	Symbol  string
	History *quoteapi.History
	Tick    *quoteapi.TickEvent
}

// Config holds configuration for the ingest manager.
type Config struct {
	// URL of the quote WebSocket endpoint.
	URL string

	// Symbols to track. Fixed at construction.
	Symbols []string

	// HistoryCount is the backfill size requested on connect. Defaults to 100.
	HistoryCount int

	// ConnectStagger spaces out initial connection attempts to avoid a
	// connection burst. Defaults to 150ms.
	ConnectStagger time.Duration

	// ReconnectDelay is the fixed backoff after a connection failure or
	// close. Defaults to 3s.
	ReconnectDelay time.Duration

	// Dial opens a connection. Defaults to quoteapi.Dial.
	Dial quoteapi.DialFunc
}

func (c *Config) defaults() {
	if c.HistoryCount == 0 {
		c.HistoryCount = 100
	}
	if c.ConnectStagger == 0 {
		c.ConnectStagger = 150 * time.Millisecond
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.Dial == nil {
		c.Dial = quoteapi.Dial
	}
}

// Manager owns all per-symbol streams.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	states  map[string]State

	// Optional metrics hooks
	OnReconnect  func(symbol string)
	OnParseError func(symbol string, err error)
}

// New creates an ingest manager for the given symbols.
func New(cfg Config) *Manager {
	cfg.defaults()
	states := make(map[string]State, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		states[s] = StateDisconnected
	}
	return &Manager{cfg: cfg, states: states}
}

// Start opens one stream per tracked symbol, staggering connection attempts.
// Non-blocking; streams run until Stop or ctx cancellation. Calling Start
// while already running is a no-op.
func (m *Manager) Start(ctx context.Context, eventCh chan<- Event) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.mu.Unlock()

	for i, symbol := range m.cfg.Symbols {
		go m.runSymbol(runCtx, symbol, time.Duration(i)*m.cfg.ConnectStagger, eventCh)
	}
}

// Stop closes all streams. Idempotent. Buffers and stats accumulated
// downstream are untouched — callers may still read last-known state.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	for s := range m.states {
		m.states[s] = StateClosing
	}
	m.cancel()
}

// States returns a snapshot of every symbol's connection state.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]State, len(m.states))
	for k, v := range m.states {
		cp[k] = v
	}
	return cp
}

// StreamingCount returns the number of symbols currently streaming.
func (m *Manager) StreamingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, st := range m.states {
		if st == StateStreaming {
			n++
		}
	}
	return n
}

func (m *Manager) setState(symbol string, st State) {
	m.mu.Lock()
	// Don't fight Stop — closing is terminal for this run.
	if m.states[symbol] != StateClosing || st == StateDisconnected {
		m.states[symbol] = st
	}
	m.mu.Unlock()
}

// runSymbol is the per-symbol connect/stream/reconnect loop.
func (m *Manager) runSymbol(ctx context.Context, symbol string, initialDelay time.Duration, eventCh chan<- Event) {
	if initialDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialDelay):
		}
	}

	for {
		select {
		case <-ctx.Done():
			m.setState(symbol, StateDisconnected)
			return
		default:
		}

		m.setState(symbol, StateConnecting)
		err := m.streamOnce(ctx, symbol, eventCh)
		m.setState(symbol, StateDisconnected)
		if err == nil {
			// Context cancelled cleanly.
			return
		}

		log.Printf("[ingest] %s disconnected (%v), reconnecting in %s", symbol, err, m.cfg.ReconnectDelay)
		if m.OnReconnect != nil {
			m.OnReconnect(symbol)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.ReconnectDelay):
		}
	}
}

// streamOnce makes a single connection attempt: backfill request, then reads
// until disconnect or ctx cancel. Returns nil only on clean cancellation.
func (m *Manager) streamOnce(ctx context.Context, symbol string, eventCh chan<- Event) error {
	conn, err := m.cfg.Dial(ctx, m.cfg.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Async context watcher — closing is idempotent. Scoped to this attempt so
	// reconnect cycles don't accumulate parked goroutines.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	req := quoteapi.TicksHistoryRequest{
		TicksHistory: symbol,
		Count:        m.cfg.HistoryCount,
		End:          "latest",
		Style:        "ticks",
		Subscribe:    1,
	}
	if err := conn.WriteJSON(&req); err != nil {
		return err
	}
	m.setState(symbol, StateStreaming)

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		msg, perr := quoteapi.Parse(raw)
		if perr != nil {
			log.Printf("[ingest] %s parse error: %v", symbol, perr)
			if m.OnParseError != nil {
				m.OnParseError(symbol, perr)
			}
			continue
		}
		if msg.Error != nil {
			// API-level error on this stream; log and keep the channel open.
			log.Printf("[ingest] %s api error: %v", symbol, msg.Error)
			continue
		}

		var ev Event
		switch {
		case msg.History != nil:
			ev = Event{Symbol: symbol, History: msg.History}
		case msg.Tick != nil:
			ev = Event{Symbol: symbol, Tick: msg.Tick}
		default:
			continue // unknown msg_type — drop
		}

		select {
		case eventCh <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}
