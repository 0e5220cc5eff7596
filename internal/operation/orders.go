package operation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/internal/profile"
)

// OrderKind selects recurring or limit orders.
type OrderKind string

const (
	OrderRecurring OrderKind = "recurring"
	OrderLimit     OrderKind = "limit"
)

// OperationKind maps an order kind to the operation that created it.
func (k OrderKind) OperationKind() Kind {
	if k == OrderLimit {
		return LimitOrder
	}
	return RecurringBuy
}

// StatusCancelling marks an order whose on-chain cancellation is pending.
const StatusCancelling = "cancelling"

// OrderSummary is one executed recurring or limit order.
type OrderSummary struct {
	ID        string
	Kind      OrderKind
	Status    string
	Wallet    string
	Token     string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// CancelRequest asks the order API to cancel an order on-chain.
type CancelRequest struct {
	OrderID    string
	Kind       OrderKind
	Wallet     string
	PrivateKey []byte
}

// OrderAPI is the order side of the swap service.
type OrderAPI interface {
	ListOrders(ctx context.Context, wallet string, kind OrderKind) ([]OrderSummary, error)
	SetOrderStatus(ctx context.Context, orderID, status string) error
	CancelOrder(ctx context.Context, req CancelRequest) (ExecResult, error)
}

// OrdersOptions tune Orders.
type OrdersOptions struct {
	ActiveStatuses []string
	CancelTimeout  time.Duration
}

// Orders lists and cancels a user's executed orders.
type Orders struct {
	api      OrderAPI
	vault    KeyVault
	profiles Profiles
	active   []string
	timeout  time.Duration
	inflight sync.Map
}

// NewOrders builds the order sub-flow.
func NewOrders(api OrderAPI, vault KeyVault, profiles Profiles, opts OrdersOptions) *Orders {
	o := &Orders{
		api:      api,
		vault:    vault,
		profiles: profiles,
		active:   normalizeStatuses(opts.ActiveStatuses),
		timeout:  opts.CancelTimeout,
	}
	if len(o.active) == 0 {
		o.active = []string{"open", "active", "pending"}
	}
	if o.timeout <= 0 {
		o.timeout = DefaultExecuteTimeout
	}
	return o
}

// ActiveStatuses returns the default status filter.
func (o *Orders) ActiveStatuses() []string {
	return append([]string(nil), o.active...)
}

// ListActive returns orders of wallet whose status is in statuses (the
// configured set when empty), oldest first, ties broken by id.
func (o *Orders) ListActive(ctx context.Context, wallet string, kind OrderKind, statuses []string) ([]OrderSummary, error) {
	filter := normalizeStatuses(statuses)
	if len(filter) == 0 {
		filter = o.active
	}
	start := time.Now()
	all, err := o.api.ListOrders(ctx, wallet, kind)
	if err != nil {
		logger.Warn(ctx, "service.orders", "orders.list",
			slog.String("status", "fail"),
			slog.String("kind", string(kind)),
			slog.String("wallet", wallet),
			slog.String("err", err.Error()),
		)
		return nil, err
	}
	out := make([]OrderSummary, 0, len(all))
	for _, ord := range all {
		if containsFold(filter, ord.Status) {
			if ord.Kind == "" {
				ord.Kind = kind
			}
			if ord.Wallet == "" {
				ord.Wallet = wallet
			}
			out = append(out, ord)
		}
	}
	SortOrders(out)
	logger.Debug(ctx, "service.orders", "orders.list",
		slog.String("status", "ok"),
		slog.String("kind", string(kind)),
		slog.Int("count", len(out)),
		slog.Duration("duration", logger.Took(start)),
	)
	return out, nil
}

// ListForUser lists active orders of kind across every wallet of the user.
func (o *Orders) ListForUser(ctx context.Context, conversationID int64, kind OrderKind) ([]OrderSummary, error) {
	p, err := o.profiles.RequireEligible(ctx, conversationID, profile.AllowStale)
	if err != nil {
		return nil, err
	}
	var out []OrderSummary
	for _, w := range p.Wallets {
		orders, err := o.ListActive(ctx, w.Address, kind, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, orders...)
	}
	SortOrders(out)
	return out, nil
}

// SortOrders orders by earliest CreatedAt, then id.
func SortOrders(orders []OrderSummary) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}

// Cancel cancels orderID in two phases: the API status moves to cancelling,
// then the order is cancelled on-chain. If the second phase fails the original
// status is restored so the order stays listed as active.
func (o *Orders) Cancel(ctx context.Context, conversationID int64, orderID string) (Outcome, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Outcome{}, ErrOrderIDRequired
	}
	if _, busy := o.inflight.LoadOrStore(orderID, struct{}{}); busy {
		return Outcome{}, ErrBusy
	}
	defer o.inflight.Delete(orderID)

	p, err := o.profiles.RequireEligible(ctx, conversationID, profile.ForceRefresh)
	if err != nil {
		return Outcome{}, err
	}
	ord, err := o.find(ctx, p, orderID)
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	out := o.cancel(ctx, ord)

	attrs := []slog.Attr{
		slog.String("status", out.Status.String()),
		slog.String("kind", string(ord.Kind)),
		slog.String("order_id", ord.ID),
		slog.String("wallet", ord.Wallet),
		slog.Duration("duration", logger.Took(start)),
	}
	if out.Reason != ReasonNone {
		attrs = append(attrs, slog.String("reason", string(out.Reason)))
	}
	if out.Detail != "" {
		attrs = append(attrs, slog.String("err", out.Detail))
	}
	if out.TxHash != "" {
		attrs = append(attrs, slog.String("tx_hash", out.TxHash))
	}
	if out.Status == Executed {
		logger.Info(ctx, "service.orders", "orders.cancel", attrs...)
	} else {
		logger.Warn(ctx, "service.orders", "orders.cancel", attrs...)
	}
	return out, nil
}

func (o *Orders) find(ctx context.Context, p profile.UserProfile, orderID string) (OrderSummary, error) {
	for _, w := range p.Wallets {
		for _, kind := range []OrderKind{OrderRecurring, OrderLimit} {
			orders, err := o.ListActive(ctx, w.Address, kind, nil)
			if err != nil {
				return OrderSummary{}, err
			}
			for _, ord := range orders {
				if ord.ID == orderID {
					return ord, nil
				}
			}
		}
	}
	return OrderSummary{}, ErrOrderNotFound
}

func (o *Orders) cancel(ctx context.Context, ord OrderSummary) Outcome {
	out := Outcome{Kind: ord.Kind.OperationKind(), Status: Failed, OrderID: ord.ID}

	if err := o.api.SetOrderStatus(ctx, ord.ID, StatusCancelling); err != nil {
		out.Reason = ClassifyFailure(err.Error())
		out.Detail = logger.SanitizeLimit(err.Error(), 256)
		return out
	}

	key, ok := o.vault.Retrieve(ctx, ord.Wallet)
	if !ok {
		o.restore(ctx, ord)
		out.Reason = ReasonNoKeyMaterial
		return out
	}
	defer memguard.WipeBytes(key)

	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()
	res, err := o.api.CancelOrder(cancelCtx, CancelRequest{
		OrderID:    ord.ID,
		Kind:       ord.Kind,
		Wallet:     ord.Wallet,
		PrivateKey: key,
	})
	switch {
	case err != nil:
		o.restore(ctx, ord)
		out.Reason = ClassifyFailure(err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			out.Reason = ReasonTimeout
		}
		out.Detail = logger.SanitizeLimit(err.Error(), 256)
	case !res.Success:
		o.restore(ctx, ord)
		out.Reason = ClassifyFailure(res.Error)
		out.Detail = logger.SanitizeLimit(res.Error, 256)
	default:
		out.Status = Executed
		out.TxHash = res.TxHash
	}
	return out
}

func (o *Orders) restore(ctx context.Context, ord OrderSummary) {
	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()
	if err := o.api.SetOrderStatus(restoreCtx, ord.ID, ord.Status); err != nil {
		logger.Error(ctx, "service.orders", "orders.restore",
			slog.String("status", "fail"),
			slog.String("order_id", ord.ID),
			slog.String("err", err.Error()),
		)
	}
}

func normalizeStatuses(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsFold(set []string, s string) bool {
	for _, v := range set {
		if strings.EqualFold(v, strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}
