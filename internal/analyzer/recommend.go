package analyzer

import (
	"fmt"
	"sort"
	"time"

	"volatility-systemv1/internal/model"
)

// opportunity is one symbol's candidate trade, ranked by the percentage
// weight of its most-frequent digit.
type opportunity struct {
	symbol   string
	strategy model.Strategy
	strength float64
	stats    model.SymbolStats
}

// selectRecommendation turns per-symbol stats into the single best
// cross-symbol recommendation, or nil when no opportunity exists.
//
// Candidates split into "under 7" (low frequent digit, high current digit)
// and "over 2" (mirror) lists. The best under7 wins only when it is strictly
// stronger than the best over2; over2 takes an exact tie.
func selectRecommendation(stats map[string]model.SymbolStats, now time.Time) *model.Recommendation {
	symbols := make([]string, 0, len(stats))
	for sym := range stats {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols) // deterministic scan order

	var under, over []opportunity
	for _, sym := range symbols {
		s := stats[sym]
		switch {
		case lowDigit(s.MostFrequentDigit) && highDigit(s.CurrentDigit):
			under = append(under, opportunity{sym, model.StrategyUnder, s.MostFrequentPct, s})
		case highDigit(s.MostFrequentDigit) && lowDigit(s.CurrentDigit):
			over = append(over, opportunity{sym, model.StrategyOver, s.MostFrequentPct, s})
		}
	}
	sort.SliceStable(under, func(i, j int) bool { return under[i].strength > under[j].strength })
	sort.SliceStable(over, func(i, j int) bool { return over[i].strength > over[j].strength })

	switch {
	case len(under) > 0 && (len(over) == 0 || under[0].strength > over[0].strength):
		return buildRecommendation(under[0], UnderBarrier, now)
	case len(over) > 0:
		return buildRecommendation(over[0], OverBarrier, now)
	default:
		return nil
	}
}

func buildRecommendation(op opportunity, barrier string, now time.Time) *model.Recommendation {
	s := op.stats
	var reason string
	if op.strategy == model.StrategyUnder {
		reason = fmt.Sprintf(
			"%s: digit %d leads at %.1f%% while current digit is %d; under %s covers %.1f%% of samples",
			op.symbol, s.MostFrequentDigit, s.MostFrequentPct, s.CurrentDigit, barrier, s.UnderPct)
	} else {
		reason = fmt.Sprintf(
			"%s: digit %d leads at %.1f%% while current digit is %d; over %s covers %.1f%% of samples",
			op.symbol, s.MostFrequentDigit, s.MostFrequentPct, s.CurrentDigit, barrier, s.OverPct)
	}

	return &model.Recommendation{
		Symbol:            op.symbol,
		Strategy:          op.strategy,
		Barrier:           barrier,
		OverPct:           s.OverPct,
		UnderPct:          s.UnderPct,
		MostFrequentDigit: s.MostFrequentDigit,
		CurrentDigit:      s.CurrentDigit,
		Strength:          op.strength,
		Reason:            reason,
		CreatedAt:         now,
	}
}
