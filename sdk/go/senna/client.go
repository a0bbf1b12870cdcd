// Package senna provides a typed Go client for the Senna Wallet REST API.
package senna

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the Senna Wallet REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// ChatRequest is the payload for a conversational turn.
type ChatRequest struct {
	SessionID      string `json:"session_id,omitempty"`
	Message        string `json:"message"`
	WalletAddress  string `json:"wallet_address,omitempty"`
	ConfirmAction  *bool  `json:"confirm_action,omitempty"`
	SelectedOption *int   `json:"selected_option,omitempty"`
}

// ChatResponse mirrors the server side chat response.
type ChatResponse struct {
	SessionID            string         `json:"session_id"`
	Response             string         `json:"response"`
	Action               string         `json:"action,omitempty"`
	Success              bool           `json:"success"`
	RequiresConfirmation bool           `json:"requires_confirmation,omitempty"`
	Data                 map[string]any `json:"data,omitempty"`
	TransactionData      map[string]any `json:"transaction_data,omitempty"`
	ExplorerURL          string         `json:"explorer_url,omitempty"`
	Options              []string       `json:"options,omitempty"`
	SuggestedActions     []string       `json:"suggested_actions,omitempty"`
}

// Wallet is a freshly generated key pair.
type Wallet struct {
	Address     string `json:"address"`
	PrivateKey  string `json:"private_key"`
	ExplorerURL string `json:"explorer_url"`
}

// Balance is the result of a balance lookup.
type Balance struct {
	Address     string `json:"address"`
	Balance     string `json:"balance"`
	Symbol      string `json:"symbol"`
	ExplorerURL string `json:"explorer_url"`
}

// GasQuote lists gas prices per tier in gwei.
type GasQuote struct {
	Slow    string `json:"slow"`
	Current string `json:"current"`
	Fast    string `json:"fast"`
	Rapid   string `json:"rapid"`
	Symbol  string `json:"symbol"`
}

// TxStatus is the result of a transaction status lookup.
type TxStatus struct {
	Hash        string `json:"hash"`
	State       string `json:"state"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	ExplorerURL string `json:"explorer_url"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("senna api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the Senna Wallet API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Chat sends a conversational turn and returns the assistant response.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	if err := c.post(ctx, "/api/v1/chat", req, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

// Confirm approves the pending action of a session.
func (c *Client) Confirm(ctx context.Context, sessionID string) (ChatResponse, error) {
	yes := true
	return c.Chat(ctx, ChatRequest{SessionID: sessionID, ConfirmAction: &yes})
}

// Cancel discards the pending action of a session.
func (c *Client) Cancel(ctx context.Context, sessionID string) (ChatResponse, error) {
	no := false
	return c.Chat(ctx, ChatRequest{SessionID: sessionID, ConfirmAction: &no})
}

// SelectOption answers a numbered option prompt.
func (c *Client) SelectOption(ctx context.Context, sessionID string, option int) (ChatResponse, error) {
	return c.Chat(ctx, ChatRequest{SessionID: sessionID, SelectedOption: &option})
}

// CreateWallet generates a new key pair on the server.
func (c *Client) CreateWallet(ctx context.Context) (Wallet, error) {
	var wallet Wallet
	if err := c.post(ctx, "/api/v1/wallets", struct{}{}, &wallet); err != nil {
		return Wallet{}, err
	}
	return wallet, nil
}

// GetBalance looks up the native balance of an address.
func (c *Client) GetBalance(ctx context.Context, address string) (Balance, error) {
	var balance Balance
	if err := c.get(ctx, "/api/v1/balance/"+url.PathEscape(address), &balance); err != nil {
		return Balance{}, err
	}
	return balance, nil
}

// GasPrice returns the current gas price tiers.
func (c *Client) GasPrice(ctx context.Context) (GasQuote, error) {
	var quote GasQuote
	if err := c.get(ctx, "/api/v1/gas", &quote); err != nil {
		return GasQuote{}, err
	}
	return quote, nil
}

// TransactionStatus looks up the state of a transaction by hash.
func (c *Client) TransactionStatus(ctx context.Context, hash string) (TxStatus, error) {
	var status TxStatus
	if err := c.get(ctx, "/api/v1/transactions/"+url.PathEscape(hash), &status); err != nil {
		return TxStatus{}, err
	}
	return status, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if readErr != nil {
			return fmt.Errorf("read error response: %w", readErr)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
