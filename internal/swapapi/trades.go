package swapapi

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/swapbot/internal/operation"
)

// tradeRequest is the wire form of one trade submission.
type tradeRequest struct {
	Kind           string           `json:"kind"`
	Wallet         string           `json:"wallet"`
	PrivateKey     string           `json:"private_key"`
	IdempotencyKey string           `json:"idempotency_key"`
	SlippageBps    int              `json:"slippage_bps"`
	GasPriority    string           `json:"gas_priority,omitempty"`
	Token          string           `json:"token,omitempty"`
	Amount         decimal.Decimal  `json:"amount"`
	IntervalHours  int              `json:"interval_hours,omitempty"`
	Repeat         int              `json:"repeat,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	ExpirySeconds  int64            `json:"expiry_seconds,omitempty"`
	Recipient      string           `json:"recipient,omitempty"`
}

// execResponse is the service verdict for trades and cancellations.
type execResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash"`
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

func (r execResponse) result() operation.ExecResult {
	return operation.ExecResult{Success: r.Success, TxHash: r.TxHash, OrderID: r.OrderID, Error: r.Error}
}

// Execute submits one trade. It is never retried: the idempotency key travels
// both in the body and as a header so the service can deduplicate.
func (c *Client) Execute(ctx context.Context, exec operation.Execution) (operation.ExecResult, error) {
	body, err := newTradeRequest(exec)
	if err != nil {
		return operation.ExecResult{}, err
	}

	var resp execResponse
	headers := map[string]string{idempotencyHeader: exec.IdempotencyKey}
	if err := c.do(ctx, http.MethodPost, "/v1/trades", nil, headers, body, &resp); err != nil {
		return operation.ExecResult{}, err
	}
	return resp.result(), nil
}

func newTradeRequest(exec operation.Execution) (*tradeRequest, error) {
	if exec.Request == nil {
		return nil, fmt.Errorf("swapapi: empty request")
	}
	body := &tradeRequest{
		Kind:           exec.Request.Kind().String(),
		Wallet:         exec.Wallet,
		PrivateKey:     keyHex(exec.PrivateKey),
		IdempotencyKey: exec.IdempotencyKey,
		SlippageBps:    exec.SlippageBps,
		GasPriority:    exec.GasPriority,
	}
	switch req := exec.Request.(type) {
	case operation.BuyRequest:
		body.Token, body.Amount = req.Token, req.Amount
	case operation.SellRequest:
		body.Token, body.Amount = req.Token, req.Amount
	case operation.RecurringBuyRequest:
		body.Token, body.Amount = req.Token, req.Amount
		body.IntervalHours = int(req.Interval.Hours())
		body.Repeat = req.Repeat
	case operation.LimitOrderRequest:
		body.Token, body.Amount = req.Token, req.Amount
		price := req.Price
		body.Price = &price
		body.ExpirySeconds = int64(req.Expiry.Duration().Seconds())
	case operation.WithdrawRequest:
		body.Amount, body.Recipient = req.Amount, req.Recipient
	default:
		return nil, fmt.Errorf("swapapi: %s is not executable", exec.Request.Kind())
	}
	return body, nil
}

// keyHex renders stored key material as 0x-prefixed hex. The vault holds keys
// as hex text; raw 32-byte keys are encoded.
func keyHex(key []byte) string {
	s := strings.TrimSpace(string(key))
	if len(key) == 32 {
		s = hex.EncodeToString(key)
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}
