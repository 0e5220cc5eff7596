package swapapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/swapbot/internal/operation"
)

type orderDTO struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Wallet    string          `json:"wallet"`
	Token     string          `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type listOrdersResponse struct {
	Orders []orderDTO `json:"orders"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type cancelRequest struct {
	Kind       string `json:"kind"`
	Wallet     string `json:"wallet"`
	PrivateKey string `json:"private_key"`
}

// ListOrders returns every order of wallet of the given kind. The request is a
// GET and is retried on transient network failures.
func (c *Client) ListOrders(ctx context.Context, wallet string, kind operation.OrderKind) ([]operation.OrderSummary, error) {
	q := url.Values{}
	q.Set("wallet", wallet)
	q.Set("kind", string(kind))

	var resp listOrdersResponse
	if err := c.do(ctx, http.MethodGet, "/v1/orders", q, nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]operation.OrderSummary, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		k := operation.OrderKind(strings.ToLower(o.Kind))
		if k == "" {
			k = kind
		}
		out = append(out, operation.OrderSummary{
			ID:        o.ID,
			Kind:      k,
			Status:    o.Status,
			Wallet:    o.Wallet,
			Token:     o.Token,
			Amount:    o.Amount,
			CreatedAt: o.CreatedAt,
		})
	}
	return out, nil
}

// SetOrderStatus records a bookkeeping status for orderID.
func (c *Client) SetOrderStatus(ctx context.Context, orderID, status string) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("swapapi: order id required")
	}
	return c.do(ctx, http.MethodPut, "/v1/orders/"+url.PathEscape(orderID)+"/status", nil, nil, statusRequest{Status: status}, nil)
}

// CancelOrder cancels orderID on-chain. Like Execute it gets one attempt.
func (c *Client) CancelOrder(ctx context.Context, req operation.CancelRequest) (operation.ExecResult, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return operation.ExecResult{}, fmt.Errorf("swapapi: order id required")
	}
	body := cancelRequest{
		Kind:       string(req.Kind),
		Wallet:     req.Wallet,
		PrivateKey: keyHex(req.PrivateKey),
	}
	var resp execResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders/"+url.PathEscape(req.OrderID)+"/cancel", nil, nil, body, &resp); err != nil {
		return operation.ExecResult{}, err
	}
	return resp.result(), nil
}

var (
	_ operation.Executor = (*Client)(nil)
	_ operation.OrderAPI = (*Client)(nil)
)
