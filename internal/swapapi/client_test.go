package swapapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/swapbot/internal/operation"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestClient(t *testing.T, h http.Handler, transport http.RoundTripper) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: "secret-key", ReadRetries: 2, RetryBackoff: time.Millisecond, Transport: transport})
	require.NoError(t, err)
	return c
}

func TestExecuteSendsTradeOnce(t *testing.T) {
	var hits int32
	var got map[string]any
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/trades", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get(apiKeyHeader))
		assert.Equal(t, "idem-1", r.Header.Get(idempotencyHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":true,"tx_hash":"0xabc","order_id":"o-9"}`)
	})
	c := newTestClient(t, h, nil)

	res, err := c.Execute(context.Background(), operation.Execution{
		Request: operation.LimitOrderRequest{
			Token:  "0xToken",
			Amount: decimal.RequireFromString("2.5"),
			Price:  decimal.RequireFromString("0.1"),
			Expiry: operation.Expiry{Count: 2, Unit: "H"},
		},
		Wallet:         "0xWallet",
		PrivateKey:     []byte(testKey),
		IdempotencyKey: "idem-1",
		SlippageBps:    50,
		GasPriority:    "fast",
	})
	require.NoError(t, err)
	assert.Equal(t, operation.ExecResult{Success: true, TxHash: "0xabc", OrderID: "o-9"}, res)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	assert.Equal(t, "limit_order", got["kind"])
	assert.Equal(t, "2.5", got["amount"])
	assert.Equal(t, "0.1", got["price"])
	assert.EqualValues(t, 7200, got["expiry_seconds"])
	assert.Equal(t, "0x"+testKey, got["private_key"])
	assert.EqualValues(t, 50, got["slippage_bps"])
}

func TestExecuteReportsAPIError(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"insufficient funds"}`)
	})
	c := newTestClient(t, h, nil)

	_, err := c.Execute(context.Background(), operation.Execution{
		Request: operation.WithdrawRequest{Amount: decimal.NewFromInt(1), Recipient: "0xR"},
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, operation.ReasonInsufficientFunds, operation.ClassifyFailure(err.Error()))
}

func TestExecuteRejectsKeyVerification(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), nil)
	_, err := c.Execute(context.Background(), operation.Execution{Request: operation.KeyVerificationRequest{}})
	assert.Error(t, err)
}

// flakyTransport fails the first n round trips with a dial error.
type flakyTransport struct {
	failures int32
	calls    int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestListOrdersRetriesReads(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, "0xW", r.URL.Query().Get("wallet"))
		assert.Equal(t, "limit", r.URL.Query().Get("kind"))
		_ = json.NewEncoder(w).Encode(listOrdersResponse{Orders: []orderDTO{
			{ID: "1", Status: "open", Wallet: "0xW", Amount: decimal.NewFromInt(3), CreatedAt: created},
		}})
	})
	ft := &flakyTransport{failures: 2}
	c := newTestClient(t, h, ft)

	orders, err := c.ListOrders(context.Background(), "0xW", operation.OrderLimit)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, operation.OrderLimit, orders[0].Kind)
	assert.True(t, orders[0].CreatedAt.Equal(created))
	assert.EqualValues(t, 3, atomic.LoadInt32(&ft.calls))
}

func TestWritesAreNotRetried(t *testing.T) {
	ft := &flakyTransport{failures: 1}
	c := newTestClient(t, http.NotFoundHandler(), ft)

	_, err := c.CancelOrder(context.Background(), operation.CancelRequest{OrderID: "1", Kind: operation.OrderLimit, Wallet: "0xW"})
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ft.calls))
}

func TestOrderStatusAndCancel(t *testing.T) {
	var status string
	h := http.NewServeMux()
	h.HandleFunc("PUT /v1/orders/42/status", func(w http.ResponseWriter, r *http.Request) {
		var body statusRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		status = body.Status
		w.WriteHeader(http.StatusNoContent)
	})
	h.HandleFunc("POST /v1/orders/42/cancel", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":"order already filled"}`)
	})
	c := newTestClient(t, h, nil)
	ctx := context.Background()

	require.NoError(t, c.SetOrderStatus(ctx, "42", operation.StatusCancelling))
	assert.Equal(t, operation.StatusCancelling, status)

	res, err := c.CancelOrder(ctx, operation.CancelRequest{OrderID: "42", Kind: operation.OrderRecurring})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "order already filled", res.Error)

	assert.Error(t, c.SetOrderStatus(ctx, " ", "open"))
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = New(Config{BaseURL: "not a url"})
	assert.Error(t, err)
}
