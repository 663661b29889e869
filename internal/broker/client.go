// Package broker implements the order-side WebSocket client: authorize
// (API token plus optional TOTP 2FA), contract purchase, and the
// settlement stream for open contracts.
package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"volatility-systemv1/internal/quoteapi"

	"github.com/pquerna/otp/totp"
)

// Config configures the broker client.
type Config struct {
	URL      string
	APIToken string
	TOTPKey  string // optional base32 secret for accounts with 2FA
	Dial     quoteapi.DialFunc

	RequestTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Dial == nil {
		out.Dial = quoteapi.Dial
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = 10 * time.Second
	}
	return out
}

// Client is a request/response WebSocket client. Requests carry a req_id;
// a single read loop routes responses back to waiting callers and pushes
// settlement updates to the OnContract hook.
type Client struct {
	cfg Config

	mu      sync.Mutex
	conn    quoteapi.Conn
	nextID  int64
	pending map[int64]chan *quoteapi.ServerMsg
	account *quoteapi.Authorize
	closed  bool

	// OnContract receives every proposal_open_contract update. Set before
	// Connect.
	OnContract func(quoteapi.OpenContract)
}

// New creates an unconnected broker client.
func New(cfg Config) *Client {
	return &Client{
		cfg:     cfg.withDefaults(),
		pending: make(map[int64]chan *quoteapi.ServerMsg),
	}
}

// Connect dials the order WS and authorizes the session. When a TOTP key
// is configured, a fresh one-time code is attached to the authorize call.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.cfg.Dial(ctx, c.cfg.URL)
	if err != nil {
		return fmt.Errorf("broker dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.mu.Unlock()

	go c.readLoop()

	req := quoteapi.AuthorizeRequest{Authorize: c.cfg.APIToken}
	if c.cfg.TOTPKey != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPKey, time.Now())
		if err != nil {
			conn.Close()
			return fmt.Errorf("broker totp: %w", err)
		}
		req.TOTP = code
	}

	id, ch := c.register()
	req.ReqID = id
	if err := conn.WriteJSON(&req); err != nil {
		c.unregister(id)
		conn.Close()
		return fmt.Errorf("broker authorize write: %w", err)
	}

	msg, err := c.await(ctx, id, ch)
	if err != nil {
		conn.Close()
		return fmt.Errorf("broker authorize: %w", err)
	}
	if msg.Error != nil {
		conn.Close()
		return fmt.Errorf("broker authorize: %w", msg.Error)
	}
	if msg.Authorize == nil {
		conn.Close()
		return fmt.Errorf("broker authorize: unexpected %s response", msg.MsgType)
	}

	c.mu.Lock()
	c.account = msg.Authorize
	c.mu.Unlock()

	log.Printf("[broker] authorized as %s (balance %.2f %s)",
		msg.Authorize.LoginID, msg.Authorize.Balance, msg.Authorize.Currency)
	return nil
}

// Account returns the authorized account details, or nil before Connect.
func (c *Client) Account() *quoteapi.Authorize {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

// Buy purchases a digit contract and subscribes to its settlement stream.
func (c *Client) Buy(ctx context.Context, params quoteapi.ContractParams) (*quoteapi.BuyConfirmation, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("broker: not connected")
	}

	id, ch := c.register()
	req := quoteapi.BuyRequest{
		Buy:        1,
		Price:      params.Amount,
		Parameters: params,
		Subscribe:  1,
		ReqID:      id,
	}
	if err := conn.WriteJSON(&req); err != nil {
		c.unregister(id)
		return nil, fmt.Errorf("broker buy write: %w", err)
	}

	msg, err := c.await(ctx, id, ch)
	if err != nil {
		return nil, fmt.Errorf("broker buy: %w", err)
	}
	if msg.Error != nil {
		return nil, fmt.Errorf("broker buy: %w", msg.Error)
	}
	if msg.Buy == nil {
		return nil, fmt.Errorf("broker buy: unexpected %s response", msg.MsgType)
	}
	return msg.Buy, nil
}

// Close tears down the connection. Pending requests fail with a read error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Client) register() (int64, chan *quoteapi.ServerMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	ch := make(chan *quoteapi.ServerMsg, 1)
	c.pending[id] = ch
	return id, ch
}

func (c *Client) unregister(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) await(ctx context.Context, id int64, ch chan *quoteapi.ServerMsg) (*quoteapi.ServerMsg, error) {
	defer c.unregister(id)

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection closed")
		}
		return msg, nil
	case <-timer.C:
		return nil, fmt.Errorf("timed out after %s", c.cfg.RequestTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if conn == nil || closed {
			return
		}

		raw, err := conn.ReadMessage()
		if err != nil {
			c.failPending()
			c.mu.Lock()
			wasClosed := c.closed
			c.mu.Unlock()
			if !wasClosed {
				log.Printf("[broker] read error: %v", err)
			}
			return
		}

		msg, err := quoteapi.Parse(raw)
		if err != nil {
			log.Printf("[broker] dropping malformed frame: %v", err)
			continue
		}

		// Settlement updates stream outside request/response correlation.
		if msg.Contract != nil {
			if c.OnContract != nil {
				c.OnContract(*msg.Contract)
			}
			continue
		}

		if msg.ReqID != 0 {
			c.mu.Lock()
			ch := c.pending[msg.ReqID]
			c.mu.Unlock()
			if ch != nil {
				select {
				case ch <- msg:
				default:
				}
				continue
			}
		}

		log.Printf("[broker] unhandled message type %q", msg.MsgType)
	}
}

// failPending closes all waiting request channels after a read failure.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}
