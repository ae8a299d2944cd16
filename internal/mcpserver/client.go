package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the ArcPay platform.
type Config struct {
	APIURL       string // Base URL, e.g. "http://localhost:8080"
	APIKey       string // API key, e.g. "sk_..."
	AgentAddress string // Agent's address, e.g. "0x..."
}

// ArcPayClient is a pure HTTP client for the ArcPay platform API.
type ArcPayClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewArcPayClient creates a new client for the ArcPay platform.
func NewArcPayClient(cfg Config) *ArcPayClient {
	return &ArcPayClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *ArcPayClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// CreateEscrow opens a new escrow holding the given amount for the seller.
func (c *ArcPayClient) CreateEscrow(ctx context.Context, seller, amount string) (json.RawMessage, error) {
	body := map[string]string{
		"seller":        seller,
		"amount":        amount,
		"fundsProvided": amount,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/escrow", nil, body)
}

// ReleaseEscrow pays the held funds to the seller.
func (c *ArcPayClient) ReleaseEscrow(ctx context.Context, escrowID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/escrow/"+escrowID+"/release", nil, nil)
}

// RefundEscrow returns the held funds to the buyer.
func (c *ArcPayClient) RefundEscrow(ctx context.Context, escrowID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/escrow/"+escrowID+"/refund", nil, nil)
}

// GetEscrow fetches a single escrow record.
func (c *ArcPayClient) GetEscrow(ctx context.Context, escrowID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/escrow/"+escrowID, nil, nil)
}

// GetEscrowTimeout reports timeout status for an escrow.
func (c *ArcPayClient) GetEscrowTimeout(ctx context.Context, escrowID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/escrow/"+escrowID+"/timeout", nil, nil)
}

// GetBalance returns the agent's current USDC balance.
func (c *ArcPayClient) GetBalance(ctx context.Context) (json.RawMessage, error) {
	path := "/v1/agents/" + c.cfg.AgentAddress + "/balance"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// ListEscrows lists escrows involving the agent, newest first.
func (c *ArcPayClient) ListEscrows(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/agents/" + c.cfg.AgentAddress + "/escrows"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}
