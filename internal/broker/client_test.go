package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"volatility-systemv1/internal/quoteapi"
)

// fakeConn scripts the server side: every written request is passed to
// onWrite, which can push response frames back through the read channel.
type fakeConn struct {
	frames  chan []byte
	onWrite func(v interface{})
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16)}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	raw, ok := <-f.frames
	if !ok {
		return nil, io.EOF
	}
	return raw, nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	if f.onWrite != nil {
		f.onWrite(v)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.frames) })
	return nil
}

func (f *fakeConn) push(t *testing.T, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	f.frames <- raw
}

// reqID pulls the req_id out of any written request.
func reqID(t *testing.T, v interface{}) int64 {
	t.Helper()
	raw, _ := json.Marshal(v)
	var base struct {
		ReqID int64 `json:"req_id"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	return base.ReqID
}

func dialTo(conn *fakeConn) quoteapi.DialFunc {
	return func(ctx context.Context, url string) (quoteapi.Conn, error) {
		return conn, nil
	}
}

func authOK(t *testing.T, conn *fakeConn) func(v interface{}) {
	return func(v interface{}) {
		id := reqID(t, v)
		raw, _ := json.Marshal(v)
		switch {
		case jsonHas(raw, "authorize"):
			conn.push(t, map[string]interface{}{
				"msg_type": "authorize",
				"req_id":   id,
				"authorize": map[string]interface{}{
					"loginid": "VRT1234", "currency": "USD", "balance": 1000.0,
				},
			})
		case jsonHas(raw, "buy"):
			conn.push(t, map[string]interface{}{
				"msg_type": "buy",
				"req_id":   id,
				"buy": map[string]interface{}{
					"contract_id": 42, "buy_price": 1.0, "payout": 1.95,
				},
			})
		}
	}
}

func jsonHas(raw []byte, key string) bool {
	var m map[string]json.RawMessage
	json.Unmarshal(raw, &m)
	_, ok := m[key]
	return ok
}

func TestConnect_Authorizes(t *testing.T) {
	conn := newFakeConn()
	conn.onWrite = authOK(t, conn)

	c := New(Config{URL: "ws://test", APIToken: "token", Dial: dialTo(conn)})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	acct := c.Account()
	if acct == nil || acct.LoginID != "VRT1234" {
		t.Fatalf("account = %+v, want VRT1234", acct)
	}
}

func TestConnect_AuthorizeError(t *testing.T) {
	conn := newFakeConn()
	conn.onWrite = func(v interface{}) {
		conn.push(t, map[string]interface{}{
			"msg_type": "authorize",
			"req_id":   reqID(t, v),
			"error":    map[string]interface{}{"code": "InvalidToken", "message": "bad token"},
		})
	}

	c := New(Config{URL: "ws://test", APIToken: "bad", Dial: dialTo(conn)})
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected authorize error")
	}
}

func TestBuy_Confirmation(t *testing.T) {
	conn := newFakeConn()
	conn.onWrite = authOK(t, conn)

	c := New(Config{URL: "ws://test", APIToken: "token", Dial: dialTo(conn)})
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	buy, err := c.Buy(context.Background(), quoteapi.ContractParams{
		ContractType: "DIGITOVER",
		Symbol:       "R_10",
		Barrier:      "2",
		Amount:       1.0,
		Basis:        "stake",
		Currency:     "USD",
		Duration:     1,
		DurationUnit: "t",
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if buy.ContractID != 42 {
		t.Fatalf("contract id = %d, want 42", buy.ContractID)
	}
}

func TestBuy_Timeout(t *testing.T) {
	conn := newFakeConn()
	calls := 0
	conn.onWrite = func(v interface{}) {
		calls++
		if calls == 1 { // answer only the authorize
			authOK(t, conn)(v)
		}
	}

	c := New(Config{URL: "ws://test", APIToken: "token", Dial: dialTo(conn), RequestTimeout: 50 * time.Millisecond})
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := c.Buy(context.Background(), quoteapi.ContractParams{Symbol: "R_10"}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSettlementStream(t *testing.T) {
	conn := newFakeConn()
	conn.onWrite = authOK(t, conn)

	c := New(Config{URL: "ws://test", APIToken: "token", Dial: dialTo(conn)})
	defer c.Close()

	got := make(chan quoteapi.OpenContract, 1)
	c.OnContract = func(oc quoteapi.OpenContract) {
		select {
		case got <- oc:
		default:
		}
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	conn.push(t, map[string]interface{}{
		"msg_type": "proposal_open_contract",
		"proposal_open_contract": map[string]interface{}{
			"contract_id": 42, "status": "won", "is_sold": 1, "profit": 0.95, "exit_digit": 8,
		},
	})

	select {
	case oc := <-got:
		if oc.ContractID != 42 || oc.Status != "won" {
			t.Fatalf("contract = %+v", oc)
		}
	case <-time.After(time.Second):
		t.Fatal("settlement update not delivered")
	}
}

func TestConnect_DialError(t *testing.T) {
	c := New(Config{URL: "ws://test", APIToken: "token", Dial: func(ctx context.Context, url string) (quoteapi.Conn, error) {
		return nil, fmt.Errorf("refused")
	}})
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}
