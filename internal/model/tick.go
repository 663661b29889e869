package model

import (
	"encoding/json"
	"time"
)

// Tick represents a single price update for a volatility index symbol.
// LastDigit is derived from the quote under the symbol's decimal-precision
// model at ingest time and is immutable afterwards.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Epoch     time.Time `json:"epoch"`      // UTC timestamp from the feed
	Quote     float64   `json:"quote"`      // decimal price as reported
	LastDigit int       `json:"last_digit"` // 0..9
}

// JSON returns the JSON-encoded tick (ignoring errors for hot-path usage).
func (t *Tick) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
