package operation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Request is the fully resolved parameter set of one operation. Amounts are
// absolute; percentages are resolved before a Request exists.
type Request interface {
	Kind() Kind
	isRequest()
}

type BuyRequest struct {
	Token  string
	Amount decimal.Decimal
}

type SellRequest struct {
	Token  string
	Amount decimal.Decimal
}

type RecurringBuyRequest struct {
	Token    string
	Amount   decimal.Decimal
	Interval time.Duration
	Repeat   int
}

type LimitOrderRequest struct {
	Token  string
	Amount decimal.Decimal
	Price  decimal.Decimal
	Expiry Expiry
}

type WithdrawRequest struct {
	Amount    decimal.Decimal
	Recipient string
}

// KeyVerificationRequest carries the submitted key as lower-case hex. It is
// never sent to the executor.
type KeyVerificationRequest struct {
	Secret []byte
}

func (BuyRequest) Kind() Kind             { return Buy }
func (SellRequest) Kind() Kind            { return Sell }
func (RecurringBuyRequest) Kind() Kind    { return RecurringBuy }
func (LimitOrderRequest) Kind() Kind      { return LimitOrder }
func (WithdrawRequest) Kind() Kind        { return Withdraw }
func (KeyVerificationRequest) Kind() Kind { return KeyVerification }

func (BuyRequest) isRequest()             {}
func (SellRequest) isRequest()            {}
func (RecurringBuyRequest) isRequest()    {}
func (LimitOrderRequest) isRequest()      {}
func (WithdrawRequest) isRequest()        {}
func (KeyVerificationRequest) isRequest() {}

// RequestAmount returns the absolute amount of r, if it has one.
func RequestAmount(r Request) (decimal.Decimal, bool) {
	switch req := r.(type) {
	case BuyRequest:
		return req.Amount, true
	case SellRequest:
		return req.Amount, true
	case RecurringBuyRequest:
		return req.Amount, true
	case LimitOrderRequest:
		return req.Amount, true
	case WithdrawRequest:
		return req.Amount, true
	}
	return decimal.Zero, false
}

// RequestToken returns the traded token of r, if it has one.
func RequestToken(r Request) (string, bool) {
	switch req := r.(type) {
	case BuyRequest:
		return req.Token, true
	case SellRequest:
		return req.Token, true
	case RecurringBuyRequest:
		return req.Token, true
	case LimitOrderRequest:
		return req.Token, true
	}
	return "", false
}

// buildRequest assembles the typed request for kind. amount is the resolved
// absolute amount and is ignored for kinds without one.
func buildRequest(kind Kind, values map[Field]value, amount decimal.Decimal) (Request, error) {
	for _, f := range fieldOrder[kind] {
		if _, ok := values[f]; !ok {
			return nil, fmt.Errorf("operation: %s missing field %s", kind, f)
		}
	}
	token, _ := values[FieldToken].parsed.(string)
	switch kind {
	case Buy:
		return BuyRequest{Token: token, Amount: amount}, nil
	case Sell:
		return SellRequest{Token: token, Amount: amount}, nil
	case RecurringBuy:
		interval, _ := values[FieldInterval].parsed.(time.Duration)
		repeat, _ := values[FieldRepeat].parsed.(int)
		return RecurringBuyRequest{Token: token, Amount: amount, Interval: interval, Repeat: repeat}, nil
	case LimitOrder:
		price, _ := values[FieldPrice].parsed.(decimal.Decimal)
		expiry, _ := values[FieldExpiry].parsed.(Expiry)
		return LimitOrderRequest{Token: token, Amount: amount, Price: price, Expiry: expiry}, nil
	case Withdraw:
		recipient, _ := values[FieldRecipient].parsed.(string)
		return WithdrawRequest{Amount: amount, Recipient: recipient}, nil
	case KeyVerification:
		secret, _ := values[FieldSecret].parsed.([]byte)
		return KeyVerificationRequest{Secret: secret}, nil
	}
	return nil, ErrUnknownKind
}
