package quoteapi

import "testing"

func TestParse_History(t *testing.T) {
	raw := []byte(`{"msg_type":"history","echo_req":{"ticks_history":"R_10"},"history":{"times":[1700000001,1700000002],"prices":[1287.45,1287.41]}}`)
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.MsgType != "history" || msg.History == nil {
		t.Fatalf("expected history payload, got %+v", msg)
	}
	if len(msg.History.Times) != 2 || msg.History.Prices[1] != 1287.41 {
		t.Fatalf("unexpected history contents: %+v", msg.History)
	}
}

func TestParse_Tick(t *testing.T) {
	raw := []byte(`{"msg_type":"tick","tick":{"symbol":"R_50","epoch":1700000003,"quote":215.4601}}`)
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Tick == nil || msg.Tick.Symbol != "R_50" || msg.Tick.Quote != 215.4601 {
		t.Fatalf("unexpected tick: %+v", msg.Tick)
	}
}

func TestParse_ErrorPayload(t *testing.T) {
	raw := []byte(`{"msg_type":"tick","error":{"code":"MarketIsClosed","message":"This market is presently closed."}}`)
	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Error == nil || msg.Error.Code != "MarketIsClosed" {
		t.Fatalf("expected API error, got %+v", msg)
	}
	if msg.Error.Error() == "" {
		t.Fatal("APIError should render a message")
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte(`{"msg_type":`)); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

func TestParse_UnknownTypeIsNotFatal(t *testing.T) {
	msg, err := Parse([]byte(`{"msg_type":"website_status","website_status":{"site_status":1}}`))
	if err != nil {
		t.Fatalf("unknown msg_type should parse: %v", err)
	}
	if msg.MsgType != "website_status" {
		t.Fatalf("unexpected msg_type: %q", msg.MsgType)
	}
}
