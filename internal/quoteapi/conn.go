package quoteapi

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the slice of a WebSocket connection the ingest layer needs.
// gorilla/websocket satisfies it via wsConn; tests substitute fakes.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v interface{}) error
	Close() error
}

// DialFunc opens a connection to the quote API. Injected so the engine can be
// constructed against a simulator or an in-memory transport.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Dial is the production DialFunc backed by gorilla/websocket.
func Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, raw, err := w.c.ReadMessage()
	return raw, err
}

func (w *wsConn) WriteJSON(v interface{}) error {
	return w.c.WriteJSON(v)
}

func (w *wsConn) Close() error {
	// Best-effort close handshake; safe to call multiple times.
	w.c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return w.c.Close()
}
