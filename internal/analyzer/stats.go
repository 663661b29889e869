package analyzer

import (
	"time"

	"volatility-systemv1/internal/model"
)

// Over/under band constants. Tuned for the digit contract convention this
// engine trades against: an "over 2" contract wins on digits 3..9, an
// "under 7" contract wins on digits 0..6. Deliberately asymmetric anchor
// points, not a median split.
const (
	OverBarrier  = "2"
	UnderBarrier = "7"

	// Digit classification for the mean-reversion signal.
	maxLowDigit  = 2
	minHighDigit = 7
)

func lowDigit(d int) bool  { return d <= maxLowDigit }
func highDigit(d int) bool { return d >= minHighDigit }

// computeStats derives a full SymbolStats from the symbol's retained ticks.
// Callers must have already enforced the minimum-sample threshold.
func computeStats(symbol string, ticks []model.Tick, precision int, now time.Time) model.SymbolStats {
	s := model.SymbolStats{
		Symbol:     symbol,
		SampleSize: len(ticks),
		Precision:  precision,
		UpdatedAt:  now,
	}
	if len(ticks) == 0 {
		return s
	}

	for _, t := range ticks {
		s.DigitCounts[t.LastDigit]++
	}

	total := float64(len(ticks))
	for d := 0; d < 10; d++ {
		s.DigitPcts[d] = float64(s.DigitCounts[d]) / total * 100
		if d > 2 {
			s.OverPct += s.DigitPcts[d] // digits 3..9 win an "over 2"
		}
		if d < 7 {
			s.UnderPct += s.DigitPcts[d] // digits 0..6 win an "under 7"
		}
	}

	// Most frequent digit; ties resolve to the lowest digit.
	best := 0
	for d := 1; d < 10; d++ {
		if s.DigitCounts[d] > s.DigitCounts[best] {
			best = d
		}
	}
	s.MostFrequentDigit = best
	s.MostFrequentPct = s.DigitPcts[best]
	s.CurrentDigit = ticks[len(ticks)-1].LastDigit

	// Mean-reversion heuristic: a market whose frequent digit is low but just
	// printed a high digit is due to revert low, and vice versa.
	switch {
	case lowDigit(best) && highDigit(s.CurrentDigit):
		s.Signal = model.SignalUnder
	case highDigit(best) && lowDigit(s.CurrentDigit):
		s.Signal = model.SignalOver
	default:
		s.Signal = model.SignalNeutral
	}

	return s
}
