package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL:       ts.URL,
		APIKey:       "sk_test_key",
		AgentAddress: "0x1111111111111111111111111111111111111111",
	}
	client := NewArcPayClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func escrowJSON(id uint64, state string) map[string]any {
	e := map[string]any{
		"id":        id,
		"buyer":     "0x1111111111111111111111111111111111111111",
		"seller":    "0x2222222222222222222222222222222222222222",
		"amount":    "3.000000",
		"state":     state,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}
	return map[string]any{"escrow": e}
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewArcPayClient(Config{APIURL: ts.URL, APIKey: "sk_secret123", AgentAddress: "0xABC"})
	_, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk_secret123", gotAuth)
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "forbidden",
			"message": "Only the seller may refund before the timeout",
		})
	}))
	defer ts.Close()

	client := NewArcPayClient(Config{APIURL: ts.URL, APIKey: "bad", AgentAddress: "0x1"})
	_, err := client.RefundEscrow(context.Background(), "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "Only the seller may refund")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewArcPayClient(Config{APIURL: ts.URL, APIKey: "k", AgentAddress: "0x1"})
	_, err := client.GetBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewArcPayClient(Config{APIURL: "http://127.0.0.1:1", APIKey: "k", AgentAddress: "0x1"})
	_, err := client.GetBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_CreateEscrow_Body(t *testing.T) {
	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_ = json.NewEncoder(w).Encode(escrowJSON(0, "active"))
	}))
	defer ts.Close()

	client := NewArcPayClient(Config{APIURL: ts.URL, APIKey: "k", AgentAddress: "0x1"})
	_, err := client.CreateEscrow(context.Background(), "0xSELLER", "3.000000")
	require.NoError(t, err)

	assert.Equal(t, "0xSELLER", gotBody["seller"])
	assert.Equal(t, "3.000000", gotBody["amount"])
	// The stated amount doubles as the funding declaration.
	assert.Equal(t, "3.000000", gotBody["fundsProvided"])
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleCreateEscrow(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/escrow", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(escrowJSON(7, "active"))
	}))
	defer cleanup()

	result, err := h.HandleCreateEscrow(context.Background(), makeRequest(map[string]any{
		"seller": "0x2222222222222222222222222222222222222222",
		"amount": "3.000000",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Escrow ID: 7")
	assert.Contains(t, text, "3.000000 USDC")
}

func TestHandleCreateEscrow_MissingArgs(t *testing.T) {
	h, cleanup := newTestSetup(http.NotFoundHandler())
	defer cleanup()

	result, err := h.HandleCreateEscrow(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "seller is required")

	result, err = h.HandleCreateEscrow(context.Background(), makeRequest(map[string]any{
		"seller": "0x2222222222222222222222222222222222222222",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "amount is required")
}

func TestHandleReleaseEscrow(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/escrow/7/release", r.URL.Path)
		_ = json.NewEncoder(w).Encode(escrowJSON(7, "released"))
	}))
	defer cleanup()

	result, err := h.HandleReleaseEscrow(context.Background(), makeRequest(map[string]any{
		"escrow_id": "7",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Escrow 7 released")
	assert.Contains(t, text, "0x2222222222222222222222222222222222222222")
}

func TestHandleReleaseEscrow_APIError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "not_active",
			"message": "escrow is not active",
		})
	}))
	defer cleanup()

	result, err := h.HandleReleaseEscrow(context.Background(), makeRequest(map[string]any{
		"escrow_id": "7",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "escrow is not active")
}

func TestHandleRefundEscrow(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/escrow/3/refund", r.URL.Path)
		_ = json.NewEncoder(w).Encode(escrowJSON(3, "refunded"))
	}))
	defer cleanup()

	result, err := h.HandleRefundEscrow(context.Background(), makeRequest(map[string]any{
		"escrow_id": "3",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Escrow 3 refunded")
	assert.Contains(t, text, "0x1111111111111111111111111111111111111111")
}

func TestHandleGetEscrow(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/escrow/0", r.URL.Path)
		_ = json.NewEncoder(w).Encode(escrowJSON(0, "active"))
	}))
	defer cleanup()

	result, err := h.HandleGetEscrow(context.Background(), makeRequest(map[string]any{
		"escrow_id": "0",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "State: active")
	assert.Contains(t, text, "Amount: 3.000000 USDC")
}

func TestHandleEscrowTimeout(t *testing.T) {
	tests := []struct {
		name     string
		resp     map[string]any
		contains string
	}{
		{
			name:     "timed out",
			resp:     map[string]any{"timedOut": true, "remainingSeconds": 0},
			contains: "Anyone can now refund",
		},
		{
			name:     "still active",
			resp:     map[string]any{"timedOut": false, "remainingSeconds": 3600},
			contains: "1h0m0s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.resp)
			}))
			defer cleanup()

			result, err := h.HandleEscrowTimeout(context.Background(), makeRequest(map[string]any{
				"escrow_id": "0",
			}))
			require.NoError(t, err)
			assert.Contains(t, resultText(t, result), tt.contains)
		})
	}
}

func TestHandleCheckBalance(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/balance")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"balance": map[string]any{"available": "12.500000"},
		})
	}))
	defer cleanup()

	result, err := h.HandleCheckBalance(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "12.500000 USDC")
}

func TestHandleListEscrows(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/escrows")
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"escrows": []any{
				escrowJSON(1, "active")["escrow"],
				escrowJSON(0, "released")["escrow"],
			},
			"count": 2,
		})
	}))
	defer cleanup()

	result, err := h.HandleListEscrows(context.Background(), makeRequest(map[string]any{
		"limit": 5,
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 escrow(s)")
	assert.Contains(t, text, "[active]")
	assert.Contains(t, text, "[released]")
}

func TestHandleListEscrows_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"escrows": []any{}, "count": 0})
	}))
	defer cleanup()

	result, err := h.HandleListEscrows(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No escrows found")
}

func TestParseEscrow_BareObject(t *testing.T) {
	raw, _ := json.Marshal(escrowJSON(4, "active")["escrow"])
	e, err := parseEscrow(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), e.ID)
	assert.Equal(t, "active", e.State)
}
