// Package operation drives multi-step trade construction for a conversation:
// it collects and validates fields in a fixed order, resolves amounts against
// live balances, and runs the single confirm/execute/cancel transition.
package operation

import "strings"

// Kind identifies an operation flow.
type Kind int

const (
	None Kind = iota
	Buy
	Sell
	RecurringBuy
	LimitOrder
	Withdraw
	KeyVerification
)

var kindNames = map[Kind]string{
	None:            "none",
	Buy:             "buy",
	Sell:            "sell",
	RecurringBuy:    "recurring_buy",
	LimitOrder:      "limit_order",
	Withdraw:        "withdraw",
	KeyVerification: "key_verification",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps a kind name back to its value.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s && k != None {
			return k, true
		}
	}
	return None, false
}

// Field names one collected input.
type Field string

const (
	FieldToken     Field = "token"
	FieldAmount    Field = "amount"
	FieldInterval  Field = "interval"
	FieldRepeat    Field = "repeat"
	FieldPrice     Field = "price"
	FieldExpiry    Field = "expiry"
	FieldRecipient Field = "recipient"
	FieldSecret    Field = "secret"
)

var fieldOrder = map[Kind][]Field{
	Buy:             {FieldToken, FieldAmount},
	Sell:            {FieldToken, FieldAmount},
	RecurringBuy:    {FieldToken, FieldAmount, FieldInterval, FieldRepeat},
	LimitOrder:      {FieldToken, FieldAmount, FieldPrice, FieldExpiry},
	Withdraw:        {FieldAmount, FieldRecipient},
	KeyVerification: {FieldSecret},
}

// Fields returns the collection order for k.
func (k Kind) Fields() []Field {
	return append([]Field(nil), fieldOrder[k]...)
}

// movesFunds is false for flows that never reach the executor.
func (k Kind) movesFunds() bool {
	return k != KeyVerification && k != None
}

// Phase is the machine's position within an operation.
type Phase int

const (
	Idle Phase = iota
	Collecting
	Confirming
	// Executing marks a conversation whose transition is waiting on I/O with
	// the conversation lock released. Other events are rejected meanwhile.
	Executing
)

func (p Phase) String() string {
	switch p {
	case Collecting:
		return "collecting"
	case Confirming:
		return "confirming"
	case Executing:
		return "executing"
	}
	return "idle"
}
