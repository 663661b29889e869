package gateway

import (
	"encoding/json"
	"testing"
)

func TestPublish_SeqAndLatest(t *testing.T) {
	h := NewHub()

	h.Publish("recommendation", []byte(`{"symbol":"R_10"}`))
	h.Publish("recommendation", []byte(`{"symbol":"R_25"}`))
	h.Publish("stats:R_10", []byte(`{"sampleSize":100}`))

	if got := h.GetChannelSeq("recommendation"); got != 2 {
		t.Fatalf("recommendation seq = %d, want 2", got)
	}
	if got := h.GetChannelSeq("stats:R_10"); got != 1 {
		t.Fatalf("stats seq = %d, want 1", got)
	}

	latest := h.GetLatestAll()
	var rec struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(latest["recommendation"], &rec); err != nil {
		t.Fatalf("latest unmarshal: %v", err)
	}
	if rec.Symbol != "R_25" {
		t.Fatalf("latest symbol = %s, want most recent R_25", rec.Symbol)
	}
}

func TestPublish_EnvelopeShape(t *testing.T) {
	h := NewHub()
	h.Publish("readiness", []byte(`{"ready":true}`))

	got := h.GetReplayRange("readiness", 1, 1)
	if len(got) != 1 {
		t.Fatalf("replay returned %d envelopes, want 1", len(got))
	}

	var env struct {
		Channel    string          `json:"channel"`
		Data       json.RawMessage `json:"data"`
		TS         string          `json:"ts"`
		Seq        int64           `json:"seq"`
		ChannelSeq int64           `json:"channel_seq"`
	}
	if err := json.Unmarshal(got[0], &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if env.Channel != "readiness" || env.ChannelSeq != 1 || env.TS == "" {
		t.Fatalf("bad envelope: %+v", env)
	}
	if string(env.Data) != `{"ready":true}` {
		t.Fatalf("data = %s", env.Data)
	}
}

func TestGetReplayRange_MissingChannel(t *testing.T) {
	h := NewHub()
	if got := h.GetReplayRange("nope", 0, 100); got != nil {
		t.Fatalf("expected nil for unknown channel, got %v", got)
	}
}

func TestClientWantsChannel(t *testing.T) {
	c := &Client{channels: make(map[string]bool)}

	// No explicit subscriptions: receive everything.
	if !c.wantsChannel("recommendation") || !c.wantsChannel("stats:R_10") {
		t.Fatal("unsubscribed client should receive all channels")
	}

	c.setChannels([]string{"recommendation"})
	if !c.wantsChannel("recommendation") {
		t.Fatal("subscribed channel not delivered")
	}
	if c.wantsChannel("stats:R_10") {
		t.Fatal("unsubscribed channel delivered")
	}

	// "stats" is a wildcard over all per-symbol stats channels.
	c.setChannels([]string{"stats"})
	if !c.wantsChannel("stats:R_10") || !c.wantsChannel("stats:R_100") {
		t.Fatal("stats wildcard not applied")
	}

	c.dropChannels([]string{"stats"})
	if c.wantsChannel("stats:R_10") {
		t.Fatal("dropped wildcard still delivered")
	}
}
