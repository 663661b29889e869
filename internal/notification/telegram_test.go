package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTelegramNotifier_SendsPlainText(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Errorf("payload is not JSON: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bot-token", "chat-42")
	n.apiBase = srv.URL

	alert := Alert{
		Level:   AlertInfo,
		Title:   "recommendation: R_10 under 7",
		Message: "digit 1 leads at 48.0% (mean-reversion)",
	}
	if err := n.Send(context.Background(), alert); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if gotPath != "/botbot-token/sendMessage" {
		t.Fatalf("path = %q, want /botbot-token/sendMessage", gotPath)
	}
	if gotBody["chat_id"] != "chat-42" {
		t.Fatalf("chat_id = %v, want chat-42", gotBody["chat_id"])
	}
	// Plain text: no parse_mode, and special characters go through unescaped.
	if _, ok := gotBody["parse_mode"]; ok {
		t.Fatalf("unexpected parse_mode in payload: %v", gotBody["parse_mode"])
	}
	want := "[INFO] recommendation: R_10 under 7\n\ndigit 1 leads at 48.0% (mean-reversion)"
	if gotBody["text"] != want {
		t.Fatalf("text = %q, want %q", gotBody["text"], want)
	}
}

func TestTelegramNotifier_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bot-token", "chat-42")
	n.apiBase = srv.URL

	if err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "x"}); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
