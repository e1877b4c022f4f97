// Package profilesource fetches user profiles from the external identity
// server. Local profiles and balances are provisioned from it the first time a
// user shows up on this site.
package profilesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrUnknownUser is returned when the identity server has no profile for the user.
var ErrUnknownUser = errors.New("profilesource: unknown user")

// RemoteProfile is the identity data the server returns.
type RemoteProfile struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	Email       string `json:"email"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	Website     string `json:"website"`
}

type syncResponse struct {
	Success bool           `json:"success"`
	Data    *RemoteProfile `json:"data"`
	Error   string         `json:"error"`
}

// Config describes how to reach the identity server.
type Config struct {
	URL     string
	Timeout time.Duration

	// Optional OAuth2 client credentials. When TokenURL is empty requests go out
	// unauthenticated.
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Client talks to the identity server's sync endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client. With client credentials configured the returned client
// fetches and refreshes its own bearer token.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	base := &http.Client{Timeout: timeout}

	httpClient := base
	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		// Token requests use the same timeout as profile requests.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = cc.Client(ctx)
		httpClient.Timeout = timeout
	}

	return &Client{baseURL: cfg.URL, http: httpClient}
}

// NewWithHTTPClient builds a Client around an existing http.Client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, http: hc}
}

// Fetch returns the profile for userID, ErrUnknownUser when the server does not
// know the user, or a transport error.
func (c *Client) Fetch(ctx context.Context, userID string) (*RemoteProfile, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("profilesource: parsing url: %w", err)
	}
	q := u.Query()
	q.Set("action", "get")
	q.Set("user_id", userID)
	q.Set("data_type", "profile")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("profilesource: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profilesource: fetching %s: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUnknownUser
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("profilesource: fetching %s: unexpected status %d", userID, resp.StatusCode)
	}

	var body syncResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("profilesource: decoding response for %s: %w", userID, err)
	}
	if !body.Success || body.Data == nil {
		return nil, ErrUnknownUser
	}
	return body.Data, nil
}
