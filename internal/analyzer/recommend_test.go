package analyzer

import (
	"testing"
	"time"

	"volatility-systemv1/internal/model"
)

// statsFor builds a SymbolStats with the fields selection cares about.
func statsFor(symbol string, mostFrequent int, mfPct float64, current int) model.SymbolStats {
	return model.SymbolStats{
		Symbol:            symbol,
		SampleSize:        100,
		MostFrequentDigit: mostFrequent,
		MostFrequentPct:   mfPct,
		CurrentDigit:      current,
		OverPct:           70,
		UnderPct:          70,
	}
}

func TestSelect_UnderWinsWithoutCompetition(t *testing.T) {
	stats := map[string]model.SymbolStats{
		"R_10": statsFor("R_10", 1, 24.0, 8), // low frequent + high current → under7
	}
	rec := selectRecommendation(stats, time.Now())
	if rec == nil {
		t.Fatal("expected a recommendation")
	}
	if rec.Symbol != "R_10" || rec.Strategy != model.StrategyUnder || rec.Barrier != "7" {
		t.Fatalf("got %s/%s barrier %s, want R_10/under barrier 7", rec.Symbol, rec.Strategy, rec.Barrier)
	}
	if rec.Strength != 24.0 {
		t.Fatalf("strength = %v, want 24.0", rec.Strength)
	}
}

func TestSelect_StrongerOverBeatsUnder(t *testing.T) {
	stats := map[string]model.SymbolStats{
		"R_10": statsFor("R_10", 1, 24.0, 8), // under7, strength 24
		"R_25": statsFor("R_25", 9, 31.0, 0), // over2, strength 31
	}
	rec := selectRecommendation(stats, time.Now())
	if rec == nil || rec.Symbol != "R_25" || rec.Strategy != model.StrategyOver || rec.Barrier != "2" {
		t.Fatalf("got %+v, want R_25/over barrier 2", rec)
	}
}

func TestSelect_OverWinsOnEqualStrength(t *testing.T) {
	// Under is chosen only when strictly stronger; an exact tie goes to over.
	stats := map[string]model.SymbolStats{
		"R_10": statsFor("R_10", 1, 25.0, 8),
		"R_25": statsFor("R_25", 9, 25.0, 0),
	}
	rec := selectRecommendation(stats, time.Now())
	if rec == nil || rec.Strategy != model.StrategyOver || rec.Symbol != "R_25" {
		t.Fatalf("got %+v, want over to win the tie", rec)
	}
}

func TestSelect_BestOfEachSide(t *testing.T) {
	stats := map[string]model.SymbolStats{
		"R_10":  statsFor("R_10", 0, 18.0, 9),
		"R_25":  statsFor("R_25", 2, 29.0, 7), // strongest under7
		"R_100": statsFor("R_100", 8, 22.0, 1),
	}
	rec := selectRecommendation(stats, time.Now())
	if rec == nil || rec.Symbol != "R_25" {
		t.Fatalf("got %+v, want the strongest under7 candidate R_25", rec)
	}
}

func TestSelect_NeutralSymbolsYieldNothing(t *testing.T) {
	stats := map[string]model.SymbolStats{
		"R_10": statsFor("R_10", 5, 30.0, 5), // mid digits — no opportunity
		"R_25": statsFor("R_25", 1, 30.0, 1), // low + low — no opportunity
	}
	if rec := selectRecommendation(stats, time.Now()); rec != nil {
		t.Fatalf("expected no recommendation, got %+v", rec)
	}
}

func TestSelect_EmptyStats(t *testing.T) {
	if rec := selectRecommendation(nil, time.Now()); rec != nil {
		t.Fatalf("expected nil for empty stats, got %+v", rec)
	}
}

func TestRecommendation_Same(t *testing.T) {
	a := &model.Recommendation{Symbol: "R_10", Strategy: model.StrategyOver}
	b := &model.Recommendation{Symbol: "R_10", Strategy: model.StrategyOver, Strength: 99}
	c := &model.Recommendation{Symbol: "R_10", Strategy: model.StrategyUnder}
	if !a.Same(b) {
		t.Fatal("same symbol+strategy should compare equal")
	}
	if a.Same(c) || a.Same(nil) {
		t.Fatal("different strategy or nil should not compare equal")
	}
	var n *model.Recommendation
	if !n.Same(nil) {
		t.Fatal("nil/nil should compare equal")
	}
}
