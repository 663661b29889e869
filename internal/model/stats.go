package model

import (
	"encoding/json"
	"time"
)

// Signal is the directional classification a symbol's digit distribution
// produces: mean-reversion "over", "under", or "neutral".
type Signal string

const (
	SignalOver    Signal = "over"
	SignalUnder   Signal = "under"
	SignalNeutral Signal = "neutral"
)

// SymbolStats is the derived digit statistics for one symbol. It is recomputed
// wholesale from the symbol's tick buffer on every analysis pass — never
// partially mutated.
type SymbolStats struct {
	Symbol     string `json:"symbol"`
	SampleSize int    `json:"sample_size"`
	Precision  int    `json:"precision"` // decimal places used for digit extraction

	DigitCounts [10]int     `json:"digit_counts"`
	DigitPcts   [10]float64 `json:"digit_pcts"`

	// Fixed-band aggregates used by the over/under contract convention:
	// OverPct  = sum of pcts for digits 3..9 (an "over 2" win),
	// UnderPct = sum of pcts for digits 0..6 (an "under 7" win).
	OverPct  float64 `json:"over_pct"`
	UnderPct float64 `json:"under_pct"`

	MostFrequentDigit int     `json:"most_frequent_digit"`
	MostFrequentPct   float64 `json:"most_frequent_pct"`
	CurrentDigit      int     `json:"current_digit"`

	Signal    Signal    `json:"signal"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JSON returns the JSON-encoded stats.
func (s *SymbolStats) JSON() ([]byte, error) {
	return json.Marshal(s)
}
