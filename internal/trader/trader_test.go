package trader

import (
	"context"
	"sync"
	"testing"
	"time"

	"volatility-systemv1/internal/model"
	"volatility-systemv1/internal/quoteapi"
)

type fakeBroker struct {
	mu     sync.Mutex
	buys   []quoteapi.ContractParams
	nextID int64
}

func (b *fakeBroker) Buy(ctx context.Context, params quoteapi.ContractParams) (*quoteapi.BuyConfirmation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buys = append(b.buys, params)
	b.nextID++
	return &quoteapi.BuyConfirmation{ContractID: b.nextID, BuyPrice: params.Amount}, nil
}

func (b *fakeBroker) buyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buys)
}

func rec(symbol string, strategy model.Strategy, barrier string) *model.Recommendation {
	return &model.Recommendation{
		Symbol:    symbol,
		Strategy:  strategy,
		Barrier:   barrier,
		CreatedAt: time.Now(),
	}
}

func TestTrader_PlacesContractOnTransition(t *testing.T) {
	b := &fakeBroker{}
	tr := New(b, Config{Policy: NewFlatPolicy(d("1.00")), Currency: "USD", Cooldown: time.Millisecond})

	tr.HandleRecommendation(context.Background(), rec("R_10", model.StrategyOver, "2"))

	if b.buyCount() != 1 {
		t.Fatalf("buys = %d, want 1", b.buyCount())
	}
	got := b.buys[0]
	if got.ContractType != "DIGITOVER" || got.Symbol != "R_10" || got.Barrier != "2" {
		t.Fatalf("params = %+v", got)
	}
	if got.Duration != 1 || got.DurationUnit != "t" || got.Basis != "stake" {
		t.Fatalf("contract shape = %+v, want 1-tick stake contract", got)
	}
	if tr.OpenCount() != 1 {
		t.Fatalf("open = %d, want 1", tr.OpenCount())
	}
}

func TestTrader_SkipsRepeatedRecommendation(t *testing.T) {
	b := &fakeBroker{}
	tr := New(b, Config{Policy: NewFlatPolicy(d("1.00")), Cooldown: time.Millisecond})

	r := rec("R_10", model.StrategyUnder, "7")
	tr.HandleRecommendation(context.Background(), r)
	time.Sleep(2 * time.Millisecond)
	tr.HandleRecommendation(context.Background(), r)

	if b.buyCount() != 1 {
		t.Fatalf("buys = %d, want 1 (repeat skipped)", b.buyCount())
	}
}

func TestTrader_CooldownBlocksRapidTransitions(t *testing.T) {
	b := &fakeBroker{}
	tr := New(b, Config{Policy: NewFlatPolicy(d("1.00")), Cooldown: time.Hour})

	tr.HandleRecommendation(context.Background(), rec("R_10", model.StrategyOver, "2"))
	tr.HandleRecommendation(context.Background(), rec("R_25", model.StrategyUnder, "7"))

	if b.buyCount() != 1 {
		t.Fatalf("buys = %d, want 1 (second inside cooldown)", b.buyCount())
	}
}

func TestTrader_SettlementFlow(t *testing.T) {
	b := &fakeBroker{}
	policy := NewMultiplierPolicy(d("1.00"), d("2.0"), 5)
	tr := New(b, Config{Policy: policy, Cooldown: time.Millisecond})

	var settled []model.Settlement
	tr.OnSettlement = func(s model.Settlement) { settled = append(settled, s) }

	tr.HandleRecommendation(context.Background(), rec("R_10", model.StrategyOver, "2"))

	// Open update is a no-op.
	tr.HandleContract(quoteapi.OpenContract{ContractID: 1, Status: "open"})
	if len(settled) != 0 {
		t.Fatal("open update must not settle")
	}

	// Loss settles and bumps the stake.
	tr.HandleContract(quoteapi.OpenContract{ContractID: 1, Status: "lost", IsSold: 1, Profit: -1.0, ExitDigit: 1})
	if len(settled) != 1 {
		t.Fatalf("settlements = %d, want 1", len(settled))
	}
	s := settled[0]
	if s.Symbol != "R_10" || s.Strategy != model.StrategyOver || s.Won() {
		t.Fatalf("settlement = %+v", s)
	}
	if !policy.Next().Equal(d("2.00")) {
		t.Fatalf("stake after loss = %s, want 2.00", policy.Next())
	}
	if tr.OpenCount() != 0 {
		t.Fatalf("open = %d, want 0", tr.OpenCount())
	}
}

func TestTrader_IgnoresForeignContract(t *testing.T) {
	b := &fakeBroker{}
	tr := New(b, Config{Policy: NewFlatPolicy(d("1.00"))})

	called := false
	tr.OnSettlement = func(model.Settlement) { called = true }

	tr.HandleContract(quoteapi.OpenContract{ContractID: 999, Status: "won", IsSold: 1, Profit: 0.95})
	if called {
		t.Fatal("settlement fired for a contract we never bought")
	}
}

func TestTrader_NilRecommendationClearsKey(t *testing.T) {
	b := &fakeBroker{}
	tr := New(b, Config{Policy: NewFlatPolicy(d("1.00")), Cooldown: time.Millisecond})

	r := rec("R_10", model.StrategyOver, "2")
	tr.HandleRecommendation(context.Background(), r)
	tr.HandleRecommendation(context.Background(), nil)
	time.Sleep(2 * time.Millisecond)
	tr.HandleRecommendation(context.Background(), r)

	if b.buyCount() != 2 {
		t.Fatalf("buys = %d, want 2 (withdrawal resets the transition key)", b.buyCount())
	}
}
