// Package balanceclient is the client side of the net-change protocol.
//
// A Buffer accumulates a user's balance deltas locally, shows an optimistic
// balance (server baseline + pending), and periodically flushes the pending
// total to /api/write_balance, which adds it to the stored balance in one
// step. Pending deltas survive restarts through a PendingStore. Without a user
// ID the buffer runs in guest mode: deltas stay local and are never flushed.
package balanceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Snapshot is a balance as read from the server.
type Snapshot struct {
	Balance     int64
	LastUpdated time.Time
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("balanceclient: server returned %d", e.Status)
	}
	return fmt.Sprintf("balanceclient: server returned %d: %s", e.Status, e.Message)
}

// Client calls the balance endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the server at baseURL, e.g. "https://example.org".
// A nil hc gets a client with a 10s timeout.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// GetBalance reads the stored balance. Users without a record read zero.
func (c *Client) GetBalance(ctx context.Context, userID string) (*Snapshot, error) {
	var out struct {
		Balance     int64 `json:"balance"`
		LastUpdated int64 `json:"last_updated"`
	}
	q := url.Values{"user_id": {userID}}
	if err := c.do(ctx, http.MethodGet, "/api/get_balance?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	snap := &Snapshot{Balance: out.Balance}
	if out.LastUpdated > 0 {
		snap.LastUpdated = time.Unix(out.LastUpdated, 0)
	}
	return snap, nil
}

// WriteBalance adds netChange to the stored balance and returns the result.
func (c *Client) WriteBalance(ctx context.Context, userID string, netChange int64) (int64, error) {
	in := map[string]any{"user_id": userID, "net_change": netChange}
	var out struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/write_balance", in, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

// CreditAdView reports a watched ad and returns the new balance.
func (c *Client) CreditAdView(ctx context.Context, userID string, reward int64, adID string) (int64, error) {
	in := map[string]any{"userId": userID, "reward": reward}
	if adID != "" {
		in["adId"] = adID
	}
	var out struct {
		NewBalance int64 `json:"newBalance"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/update_balance", in, &out); err != nil {
		return 0, err
	}
	return out.NewBalance, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("balanceclient: encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("balanceclient: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("balanceclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e) == nil {
			apiErr.Code, apiErr.Message = e.Error, e.Message
		}
		return apiErr
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("balanceclient: decoding %s response: %w", path, err)
	}
	return nil
}
