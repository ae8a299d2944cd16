package funds

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclabs/arcpay/internal/identity"
)

func newFundsRouter(t *testing.T) (*gin.Engine, *Book) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	book := NewBook()
	h := NewHandler(book)

	r := gin.New()
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)
	h.RegisterAdminRoutes(v1)
	return r, book
}

func postJSON(r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRecordDepositAndBalance(t *testing.T) {
	r, _ := newFundsRouter(t)
	addr := "0x1111111111111111111111111111111111111111"

	w := postJSON(r, "/v1/admin/deposits", gin.H{"agentAddress": addr, "amount": "25.500000"})
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest("GET", "/v1/agents/"+addr+"/balance", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":"25.500000"`)
}

func TestRecordDeposit_Rejections(t *testing.T) {
	r, _ := newFundsRouter(t)

	cases := []struct {
		name string
		body gin.H
		code string
	}{
		{"missing amount", gin.H{"agentAddress": "0x1111111111111111111111111111111111111111"}, "invalid_request"},
		{"bad address", gin.H{"agentAddress": "nope", "amount": "1"}, "invalid_address"},
		{"zero address", gin.H{"agentAddress": "0x0000000000000000000000000000000000000000", "amount": "1"}, "invalid_address"},
		{"negative amount", gin.H{"agentAddress": "0x1111111111111111111111111111111111111111", "amount": "-1"}, "invalid_amount"},
		{"zero amount", gin.H{"agentAddress": "0x1111111111111111111111111111111111111111", "amount": "0"}, "invalid_amount"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(r, "/v1/admin/deposits", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}
}

func TestGetBalance_UnknownAgentIsZero(t *testing.T) {
	r, _ := newFundsRouter(t)

	req := httptest.NewRequest("GET", "/v1/agents/0x9999999999999999999999999999999999999999/balance", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":"0.000000"`)
}

func TestGetHistory(t *testing.T) {
	r, book := newFundsRouter(t)
	addr := "0x1111111111111111111111111111111111111111"

	for i := 0; i < 3; i++ {
		w := postJSON(r, "/v1/admin/deposits", gin.H{"agentAddress": addr, "amount": "1.000000"})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	// Custody entries belong to the same agent's history.
	agent := identity.MustParse(addr)
	require.NoError(t, book.Custody(context.Background(), agent, "2.000000", "escrow-0"))

	req := httptest.NewRequest("GET", "/v1/agents/"+addr+"/ledger?limit=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Entries []Entry `json:"entries"`
		Count   int     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	// Newest first.
	assert.Equal(t, "custody", resp.Entries[0].Type)
}

// fakeVerifier approves or rejects deposit verification per test.
type fakeVerifier struct {
	ok   bool
	err  error
	from identity.Address
	hash string
}

func (f *fakeVerifier) VerifyEscrowDeposit(ctx context.Context, from identity.Address, minAmount string, txHash string) (bool, error) {
	f.from = from
	f.hash = txHash
	return f.ok, f.err
}

func newVerifyRouter(t *testing.T, v DepositVerifier) (*gin.Engine, *Book) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	book := NewBook()
	var opts []HandlerOption
	if v != nil {
		opts = append(opts, WithVerifier(v))
	}
	h := NewHandler(book, opts...)

	r := gin.New()
	// Stand-in for the auth middleware.
	r.Use(func(c *gin.Context) {
		c.Set("authAgentAddr", "0x1111111111111111111111111111111111111111")
	})
	v1 := r.Group("/v1")
	h.RegisterProtectedRoutes(v1)
	return r, book
}

func TestVerifyDeposit_CreditsOnce(t *testing.T) {
	verifier := &fakeVerifier{ok: true}
	r, book := newVerifyRouter(t, verifier)
	ctx := context.Background()

	w := postJSON(r, "/v1/deposits/verify", gin.H{"txHash": "0xABCDEF", "amount": "9.000000"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "0xabcdef", verifier.hash)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", verifier.from.String())

	bal, err := book.Balance(ctx, identity.MustParse("0x1111111111111111111111111111111111111111"))
	require.NoError(t, err)
	assert.Equal(t, "9.000000", bal.Available)

	// Replaying the same transaction does not double-credit.
	w = postJSON(r, "/v1/deposits/verify", gin.H{"txHash": "0xabcdef", "amount": "9.000000"})
	assert.Equal(t, http.StatusConflict, w.Code)
	bal, _ = book.Balance(ctx, identity.MustParse("0x1111111111111111111111111111111111111111"))
	assert.Equal(t, "9.000000", bal.Available)
}

func TestVerifyDeposit_Unverified(t *testing.T) {
	r, book := newVerifyRouter(t, &fakeVerifier{ok: false})

	w := postJSON(r, "/v1/deposits/verify", gin.H{"txHash": "0x123", "amount": "5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "deposit_not_verified")

	bal, _ := book.Balance(context.Background(), identity.MustParse("0x1111111111111111111111111111111111111111"))
	assert.Equal(t, "0.000000", bal.Available)
}

func TestVerifyDeposit_NoVerifier(t *testing.T) {
	r, _ := newVerifyRouter(t, nil)

	w := postJSON(r, "/v1/deposits/verify", gin.H{"txHash": "0x123", "amount": "5"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "verification_unavailable")
}

func TestVerifyDeposit_MissingFields(t *testing.T) {
	r, _ := newVerifyRouter(t, &fakeVerifier{ok: true})

	w := postJSON(r, "/v1/deposits/verify", gin.H{"amount": "5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestGetBalance_BadAddress(t *testing.T) {
	r, _ := newFundsRouter(t)

	req := httptest.NewRequest("GET", "/v1/agents/not-an-address/balance", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
