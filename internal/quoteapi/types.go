// Package quoteapi defines the JSON message shapes spoken by the volatility
// quote/trade WebSocket API, plus a minimal connection abstraction so the
// ingest layer can be driven by a fake transport in tests.
//
// The core only cares about two inbound shapes per symbol: a one-time
// historical payload (parallel times/prices arrays) and a continuous stream of
// single tick events. Order placement shapes are consumed by the trader, not
// by the analysis engine.
package quoteapi

import (
	"encoding/json"
	"fmt"
)

// TicksHistoryRequest asks for the last Count historical points of a symbol.
// Subscribe=1 keeps the same channel delivering live ticks after the history
// response.
type TicksHistoryRequest struct {
	TicksHistory string `json:"ticks_history"`
	Count        int    `json:"count"`
	End          string `json:"end"`   // "latest"
	Style        string `json:"style"` // "ticks"
	Subscribe    int    `json:"subscribe,omitempty"`
}

// AuthorizeRequest authenticates the session with an API token. TOTP carries
// an optional one-time 2FA code for accounts with it enabled.
type AuthorizeRequest struct {
	Authorize string `json:"authorize"`
	TOTP      string `json:"totp,omitempty"`
	ReqID     int64  `json:"req_id,omitempty"`
}

// ContractParams specifies a digit contract to purchase.
type ContractParams struct {
	ContractType string  `json:"contract_type"` // "DIGITOVER" / "DIGITUNDER"
	Symbol       string  `json:"symbol"`
	Barrier      string  `json:"barrier"`
	Amount       float64 `json:"amount"`
	Basis        string  `json:"basis"` // "stake"
	Currency     string  `json:"currency"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"` // "t" (ticks)
}

// BuyRequest purchases a contract at up to Price total cost.
type BuyRequest struct {
	Buy        int            `json:"buy"`
	Price      float64        `json:"price"`
	Parameters ContractParams `json:"parameters"`
	Subscribe  int            `json:"subscribe,omitempty"` // stream settlement updates
	ReqID      int64          `json:"req_id,omitempty"`
}

// History is the one-time backfill payload: parallel arrays of epoch seconds
// and quotes, oldest first.
type History struct {
	Times  []int64   `json:"times"`
	Prices []float64 `json:"prices"`
}

// TickEvent is a single live price update.
type TickEvent struct {
	Symbol string  `json:"symbol"`
	Epoch  int64   `json:"epoch"`
	Quote  float64 `json:"quote"`
	ID     string  `json:"id,omitempty"`
}

// BuyConfirmation acknowledges a purchase with the open contract identifier.
type BuyConfirmation struct {
	ContractID    int64   `json:"contract_id"`
	BuyPrice      float64 `json:"buy_price"`
	Payout        float64 `json:"payout"`
	PurchaseTime  int64   `json:"purchase_time"`
	LongCode      string  `json:"longcode,omitempty"`
	TransactionID int64   `json:"transaction_id,omitempty"`
}

// OpenContract is a settlement update for a purchased contract.
type OpenContract struct {
	ContractID int64   `json:"contract_id"`
	Status     string  `json:"status"` // "open", "won", "lost"
	IsSold     int     `json:"is_sold"`
	Profit     float64 `json:"profit"`
	ExitDigit  int     `json:"exit_digit,omitempty"`
}

// Authorize acknowledges a successful authorize request.
type Authorize struct {
	LoginID  string  `json:"loginid"`
	Currency string  `json:"currency"`
	Balance  float64 `json:"balance"`
}

// APIError is the error payload attached to any response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quoteapi: %s: %s", e.Code, e.Message)
}

// ServerMsg is the envelope for every inbound message. Exactly one of the
// payload pointers is set, selected by MsgType.
type ServerMsg struct {
	MsgType string          `json:"msg_type"`
	EchoReq json.RawMessage `json:"echo_req,omitempty"`
	ReqID   int64           `json:"req_id,omitempty"`

	History   *History         `json:"history,omitempty"`
	Tick      *TickEvent       `json:"tick,omitempty"`
	Buy       *BuyConfirmation `json:"buy,omitempty"`
	Contract  *OpenContract    `json:"proposal_open_contract,omitempty"`
	Authorize *Authorize       `json:"authorize,omitempty"`
	Error     *APIError        `json:"error,omitempty"`
}

// Parse decodes a raw frame into a ServerMsg. A frame that decodes but names
// no known payload is returned as-is with its MsgType so callers can log and
// drop it without treating it as fatal.
func Parse(raw []byte) (*ServerMsg, error) {
	var msg ServerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("quoteapi: parse frame: %w", err)
	}
	return &msg, nil
}
