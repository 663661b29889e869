package model

import (
	"encoding/json"
	"time"
)

// Strategy names the over/under contract side a recommendation targets.
type Strategy string

const (
	StrategyOver  Strategy = "over"
	StrategyUnder Strategy = "under"
)

// Recommendation is the engine's single best current trade suggestion.
// At most one is live at a time; it is replaced wholesale, never merged.
type Recommendation struct {
	Symbol   string   `json:"symbol"`
	Strategy Strategy `json:"strategy"`
	Barrier  string   `json:"barrier"` // "2" for over, "7" for under

	OverPct  float64 `json:"over_pct"`
	UnderPct float64 `json:"under_pct"`

	MostFrequentDigit int `json:"most_frequent_digit"`
	CurrentDigit      int `json:"current_digit"`

	// Strength is the percentage weight of the most-frequent digit,
	// used to rank competing opportunities across symbols.
	Strength float64 `json:"strength"`

	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Same reports whether two recommendations target the same symbol and side.
// Used to decide whether a replacement is a logged transition.
func (r *Recommendation) Same(other *Recommendation) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Symbol == other.Symbol && r.Strategy == other.Strategy
}

// JSON returns the JSON-encoded recommendation.
func (r *Recommendation) JSON() ([]byte, error) {
	return json.Marshal(r)
}
