// Package trader turns recommendations into digit contracts. It sits
// outside the analysis engine: the engine broadcasts, the trader is just
// one more observer.
package trader

import (
	"context"
	"log"
	"sync"
	"time"

	"volatility-systemv1/internal/model"
	"volatility-systemv1/internal/quoteapi"
)

// Broker is the slice of the order client the trader needs.
type Broker interface {
	Buy(ctx context.Context, params quoteapi.ContractParams) (*quoteapi.BuyConfirmation, error)
}

// Config configures the trading loop.
type Config struct {
	Policy   StakePolicy
	Currency string
	Cooldown time.Duration // min spacing between purchases
}

// openTrade remembers what was bought so settlements can be attributed.
type openTrade struct {
	symbol   string
	strategy model.Strategy
	barrier  string
	stake    string
}

// Trader places a one-tick digit contract whenever the recommendation
// transitions to a new symbol/strategy pair, rate-limited by a cooldown.
type Trader struct {
	broker   Broker
	policy   StakePolicy
	currency string
	cooldown time.Duration

	mu        sync.Mutex
	lastKey   string
	lastTrade time.Time
	open      map[int64]openTrade

	// OnSettlement fires once per settled contract.
	OnSettlement func(model.Settlement)
}

// New creates a trader.
func New(broker Broker, cfg Config) *Trader {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Trader{
		broker:   broker,
		policy:   cfg.Policy,
		currency: cfg.Currency,
		cooldown: cfg.Cooldown,
		open:     make(map[int64]openTrade),
	}
}

// HandleRecommendation is the observer entry point. Repeats of the same
// symbol/strategy pair and recommendations inside the cooldown window are
// skipped; a nil recommendation only clears the transition key.
func (t *Trader) HandleRecommendation(ctx context.Context, rec *model.Recommendation) {
	if rec == nil {
		t.mu.Lock()
		t.lastKey = ""
		t.mu.Unlock()
		return
	}

	key := rec.Symbol + "/" + string(rec.Strategy)

	t.mu.Lock()
	if key == t.lastKey {
		t.mu.Unlock()
		return
	}
	if since := time.Since(t.lastTrade); since < t.cooldown {
		t.mu.Unlock()
		log.Printf("[trader] skipping %s: cooldown (%s remaining)", key, t.cooldown-since)
		return
	}
	t.lastKey = key
	t.lastTrade = time.Now()
	t.mu.Unlock()

	stake := t.policy.Next()
	contractType := "DIGITUNDER"
	if rec.Strategy == model.StrategyOver {
		contractType = "DIGITOVER"
	}

	params := quoteapi.ContractParams{
		ContractType: contractType,
		Symbol:       rec.Symbol,
		Barrier:      rec.Barrier,
		Amount:       stake.InexactFloat64(),
		Basis:        "stake",
		Currency:     t.currency,
		Duration:     1,
		DurationUnit: "t",
	}

	buy, err := t.broker.Buy(ctx, params)
	if err != nil {
		log.Printf("[trader] buy %s %s failed: %v", contractType, rec.Symbol, err)
		return
	}

	t.mu.Lock()
	t.open[buy.ContractID] = openTrade{
		symbol:   rec.Symbol,
		strategy: rec.Strategy,
		barrier:  rec.Barrier,
		stake:    stake.String(),
	}
	t.mu.Unlock()

	log.Printf("[trader] bought %s %s barrier=%s stake=%s contract=%d",
		contractType, rec.Symbol, rec.Barrier, stake, buy.ContractID)
}

// HandleContract is the settlement entry point, fed by the broker's
// contract stream. Open updates are ignored; sold ones settle the stake
// policy and fire OnSettlement.
func (t *Trader) HandleContract(oc quoteapi.OpenContract) {
	if oc.IsSold == 0 && oc.Status == "open" {
		return
	}

	t.mu.Lock()
	trade, ok := t.open[oc.ContractID]
	if ok {
		delete(t.open, oc.ContractID)
	}
	t.mu.Unlock()
	if !ok {
		return // not ours
	}

	won := oc.Profit > 0
	t.policy.Settle(won)

	s := model.Settlement{
		ContractID: oc.ContractID,
		Symbol:     trade.symbol,
		Strategy:   trade.strategy,
		Barrier:    trade.barrier,
		Stake:      trade.stake,
		Profit:     oc.Profit,
		ExitDigit:  oc.ExitDigit,
		SettledAt:  time.Now().UTC(),
	}

	verdict := "lost"
	if won {
		verdict = "won"
	}
	log.Printf("[trader] contract %d %s: profit=%.2f exit_digit=%d",
		oc.ContractID, verdict, oc.Profit, oc.ExitDigit)

	if t.OnSettlement != nil {
		t.OnSettlement(s)
	}
}

// OpenCount returns the number of unsettled contracts.
func (t *Trader) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}
