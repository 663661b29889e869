package model

import (
	"encoding/json"
	"time"
)

// Settlement is the outcome of one digit contract.
type Settlement struct {
	ContractID int64     `json:"contract_id"`
	Symbol     string    `json:"symbol"`
	Strategy   Strategy  `json:"strategy"`
	Barrier    string    `json:"barrier"`
	Stake      string    `json:"stake"` // decimal string
	Profit     float64   `json:"profit"`
	ExitDigit  int       `json:"exit_digit"`
	SettledAt  time.Time `json:"settled_at"`
}

// Won reports whether the contract settled in profit.
func (s Settlement) Won() bool { return s.Profit > 0 }

// JSON returns the settlement serialized as JSON.
func (s Settlement) JSON() ([]byte, error) {
	return json.Marshal(s)
}
