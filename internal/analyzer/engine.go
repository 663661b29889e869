// Package analyzer is the market analysis and recommendation engine for
// volatility-index digit contracts. It consumes per-symbol tick streams,
// maintains rolling digit statistics, and broadcasts a single best-of
// recommendation to registered observers.
//
// All mutable state is owned by one event loop goroutine: ingest callbacks
// and the periodic analysis tick both arrive over channels, so per-symbol
// buffers and derived stats need no locking. Externally visible snapshots
// (current recommendation, readiness, last stats) sit behind a small mutex
// and are written only by the loop.
package analyzer

import (
	"context"
	"log"
	"sync"
	"time"

	"volatility-systemv1/internal/digits"
	"volatility-systemv1/internal/ingest"
	"volatility-systemv1/internal/model"
	"volatility-systemv1/internal/ringbuf"
)

// Source feeds the engine with ingest events. ingest.Manager is the
// production implementation; tests substitute fakes.
type Source interface {
	Start(ctx context.Context, eventCh chan<- ingest.Event)
	Stop()
}

// ObserverFunc receives every broadcast: the current recommendation (nil when
// none) and a per-symbol stats snapshot. Observers must not mutate the
// snapshot; each callback gets its own copy.
type ObserverFunc func(rec *model.Recommendation, stats map[string]model.SymbolStats)

// Config holds engine tuning. Zero values take the documented defaults.
type Config struct {
	// Symbols to track. Fixed for the lifetime of the engine.
	Symbols []string

	// BufferCap bounds each symbol's sliding tick window. Default 150.
	BufferCap int

	// MinSamples is the per-symbol sample threshold below which no stats are
	// emitted. Default 20.
	MinSamples int

	// AnalyzeInterval is the recompute cadence. Default 1s.
	AnalyzeInterval time.Duration

	// ReadyMinElapsed is tier one of the readiness gate: at least half the
	// tracked symbols have MinSamples and this much time has passed. Default 3s.
	ReadyMinElapsed time.Duration

	// ReadyFallbackElapsed is tier two: any data at all exists and this much
	// time has passed — one stuck connection cannot block the engine forever.
	// Default 15s.
	ReadyFallbackElapsed time.Duration

	// EventBuffer sizes the ingest event channel. Default 4096.
	EventBuffer int
}

func (c *Config) defaults() {
	if c.BufferCap == 0 {
		c.BufferCap = 150
	}
	if c.MinSamples == 0 {
		c.MinSamples = 20
	}
	if c.AnalyzeInterval == 0 {
		c.AnalyzeInterval = time.Second
	}
	if c.ReadyMinElapsed == 0 {
		c.ReadyMinElapsed = 3 * time.Second
	}
	if c.ReadyFallbackElapsed == 0 {
		c.ReadyFallbackElapsed = 15 * time.Second
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 4096
	}
}

// symbolState is the loop-owned per-symbol ingestion state.
type symbolState struct {
	window     *ringbuf.Window
	precision  int // decimal places; monotonically non-decreasing
	backfilled bool
}

// Engine is the analysis engine. Construct with New, then Start/Stop.
type Engine struct {
	cfg    Config
	source Source

	// Loop-owned; touched only by the event loop goroutine.
	symbols   map[string]*symbolState
	startedAt time.Time

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	ready     bool // monotonic: never resets while the process runs
	lastRec   *model.Recommendation
	lastStats map[string]model.SymbolStats
	observers map[int]ObserverFunc
	nextObsID int

	// Optional hooks, set before Start.
	OnTransition func(prev, next *model.Recommendation)
	OnTick       func(symbol string)
	OnAnalysis   func(elapsed time.Duration)
}

// New creates an engine over the given source.
func New(cfg Config, source Source) *Engine {
	cfg.defaults()
	symbols := make(map[string]*symbolState, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[s] = &symbolState{window: ringbuf.New(cfg.BufferCap)}
	}
	return &Engine{
		cfg:       cfg,
		source:    source,
		symbols:   symbols,
		observers: make(map[int]ObserverFunc),
	}
}

// Start launches the source and the event loop. Idempotent: calling Start
// while running is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	e.startedAt = time.Now()
	eventCh := make(chan ingest.Event, e.cfg.EventBuffer)
	e.source.Start(runCtx, eventCh)
	go e.loop(runCtx, eventCh)

	log.Printf("[analyzer] started: %d symbols, buffer=%d, min_samples=%d",
		len(e.cfg.Symbols), e.cfg.BufferCap, e.cfg.MinSamples)
}

// Stop tears down the source and halts the loop. Idempotent. Accumulated
// buffers, last stats, and readiness survive — callers may still read them.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.source.Stop()
	log.Println("[analyzer] stopped")
}

// IsReady reports whether enough data has accumulated to trust the engine's
// statistics. Monotonic: once true, stays true for the life of the run.
func (e *Engine) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Current returns the live recommendation, or nil when none exists.
func (e *Engine) Current() *model.Recommendation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRec
}

// Stats returns a copy of the most recent per-symbol stats snapshot.
func (e *Engine) Stats() map[string]model.SymbolStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneStats(e.lastStats)
}

// Subscribe registers an observer and returns its unsubscribe function.
// If a recommendation already exists the observer is invoked once,
// synchronously, with the current state — late subscribers are not starved
// until the next analysis tick.
func (e *Engine) Subscribe(fn ObserverFunc) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextObsID
	e.nextObsID++
	e.observers[id] = fn
	rec := e.lastRec
	stats := cloneStats(e.lastStats)
	e.mu.Unlock()

	if rec != nil {
		safeNotify(fn, rec, stats)
	}
	return func() {
		e.mu.Lock()
		delete(e.observers, id)
		e.mu.Unlock()
	}
}

// loop is the single owner of all per-symbol mutable state.
func (e *Engine) loop(ctx context.Context, eventCh <-chan ingest.Event) {
	ticker := time.NewTicker(e.cfg.AnalyzeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eventCh:
			e.apply(ev)
		case <-ticker.C:
			// A slow analysis pass cannot overlap the next tick: both run on
			// this goroutine.
			e.analyze(time.Now())
		}
	}
}

// apply folds one ingest event into the per-symbol state.
func (e *Engine) apply(ev ingest.Event) {
	st := e.symbols[ev.Symbol]
	if st == nil {
		return // not a tracked symbol — drop
	}

	switch {
	case ev.History != nil:
		n := len(ev.History.Times)
		if len(ev.History.Prices) < n {
			n = len(ev.History.Prices)
		}
		// Precision first, across the whole series, so every entry's digit is
		// derived under the same (monotonic) window.
		for _, q := range ev.History.Prices[:n] {
			if p := digits.DecimalPlaces(q); p > st.precision {
				st.precision = p
			}
		}
		ticks := make([]model.Tick, 0, n)
		for i := 0; i < n; i++ {
			q := ev.History.Prices[i]
			ticks = append(ticks, model.Tick{
				Symbol:    ev.Symbol,
				Epoch:     time.Unix(ev.History.Times[i], 0).UTC(),
				Quote:     q,
				LastDigit: digits.LastDigit(q, st.precision),
			})
		}
		st.window.Replace(ticks)
		st.backfilled = true
		log.Printf("[analyzer] %s backfilled %d ticks (precision=%d)", ev.Symbol, len(ticks), st.precision)
		// Recompute immediately — don't wait out the cadence after backfill.
		e.analyze(time.Now())

	case ev.Tick != nil:
		q := ev.Tick.Quote
		if p := digits.DecimalPlaces(q); p > st.precision {
			st.precision = p
		}
		st.window.Push(model.Tick{
			Symbol:    ev.Symbol,
			Epoch:     time.Unix(ev.Tick.Epoch, 0).UTC(),
			Quote:     q,
			LastDigit: digits.LastDigit(q, st.precision),
		})
		if e.OnTick != nil {
			e.OnTick(ev.Symbol)
		}
	}
}

// analyze recomputes all symbol stats, advances the readiness gate, selects
// the cross-symbol recommendation, and broadcasts.
func (e *Engine) analyze(now time.Time) {
	start := time.Now()

	stats := make(map[string]model.SymbolStats, len(e.symbols))
	sampled := 0
	anyData := false
	for sym, st := range e.symbols {
		if st.window.Len() > 0 {
			anyData = true
		}
		if st.window.Len() < e.cfg.MinSamples {
			continue // under-sampled — a designed steady state, not an error
		}
		sampled++
		stats[sym] = computeStats(sym, st.window.Snapshot(), st.precision, now)
	}

	e.updateReadiness(now, sampled, anyData)

	rec := selectRecommendation(stats, now)
	prev := e.Current()
	if !rec.Same(prev) {
		log.Printf("[analyzer] recommendation: %s -> %s", describe(prev), describe(rec))
		if e.OnTransition != nil {
			e.OnTransition(prev, rec)
		}
	}

	e.broadcast(rec, stats)

	if e.OnAnalysis != nil {
		e.OnAnalysis(time.Since(start))
	}
}

// updateReadiness evaluates the two-tier readiness gate. Lenient on purpose:
// a single slow or broken connection cannot indefinitely block the engine.
func (e *Engine) updateReadiness(now time.Time, sampled int, anyData bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return
	}
	elapsed := now.Sub(e.startedAt)
	tracked := len(e.cfg.Symbols)

	switch {
	case tracked > 0 && sampled*2 >= tracked && elapsed >= e.cfg.ReadyMinElapsed:
		e.ready = true
		log.Printf("[analyzer] ready: %d/%d symbols sampled after %v", sampled, tracked, elapsed.Truncate(time.Millisecond))
	case anyData && elapsed >= e.cfg.ReadyFallbackElapsed:
		e.ready = true
		log.Printf("[analyzer] ready (fallback): partial data after %v", elapsed.Truncate(time.Millisecond))
	}
}

// broadcast replaces the cached state wholesale and fans out to observers.
// Membership is re-checked per callback so an unsubscribe that lands
// mid-cycle suppresses the remaining deliveries for that observer.
func (e *Engine) broadcast(rec *model.Recommendation, stats map[string]model.SymbolStats) {
	e.mu.Lock()
	e.lastRec = rec
	e.lastStats = stats
	ids := make([]int, 0, len(e.observers))
	for id := range e.observers {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.mu.Lock()
		fn, ok := e.observers[id]
		e.mu.Unlock()
		if !ok {
			continue
		}
		safeNotify(fn, rec, cloneStats(stats))
	}
}

// safeNotify isolates observer panics: one failing callback must not abort
// the broadcast for the others.
func safeNotify(fn ObserverFunc, rec *model.Recommendation, stats map[string]model.SymbolStats) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[analyzer] observer panic recovered: %v", r)
		}
	}()
	fn(rec, stats)
}

func cloneStats(stats map[string]model.SymbolStats) map[string]model.SymbolStats {
	if stats == nil {
		return nil
	}
	cp := make(map[string]model.SymbolStats, len(stats))
	for k, v := range stats {
		cp[k] = v
	}
	return cp
}

func describe(r *model.Recommendation) string {
	if r == nil {
		return "none"
	}
	return r.Symbol + "/" + string(r.Strategy) + " barrier " + r.Barrier
}
