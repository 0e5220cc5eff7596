package operation

import "strings"

// Status is the terminal result of an operation.
type Status int

const (
	Executed Status = iota + 1
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Executed:
		return "executed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Reason explains a Failed outcome.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoKeyMaterial     Reason = "no_key_material"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonSlippageExceeded  Reason = "slippage_exceeded"
	ReasonTimeout           Reason = "timeout"
	ReasonUnknown           Reason = "unknown"
	ReasonKeyMismatch       Reason = "key_mismatch"
	ReasonNotEligible       Reason = "not_eligible"
)

// Outcome is emitted once per operation when it leaves the machine.
type Outcome struct {
	Kind    Kind
	Status  Status
	Reason  Reason
	Request Request
	TxHash  string
	OrderID string
	// Detail is the executor's message with key material redacted; for logs only.
	Detail string
}

// NeedsManualCheck is true when the trade may or may not have happened.
func (o Outcome) NeedsManualCheck() bool {
	return o.Status == Failed && o.Reason == ReasonTimeout
}

// failurePatterns is checked in order. Slippage comes first because router
// reverts such as INSUFFICIENT_OUTPUT_AMOUNT also contain "insufficient".
var failurePatterns = []struct {
	reason  Reason
	needles []string
}{
	{ReasonSlippageExceeded, []string{"slippage", "price impact", "too little received", "insufficient_output_amount"}},
	{ReasonInsufficientFunds, []string{"insufficient", "not enough balance", "exceeds balance"}},
	{ReasonTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
}

// ClassifyFailure maps an executor error message to a failure reason.
func ClassifyFailure(msg string) Reason {
	m := strings.ToLower(msg)
	for _, p := range failurePatterns {
		for _, needle := range p.needles {
			if strings.Contains(m, needle) {
				return p.reason
			}
		}
	}
	return ReasonUnknown
}
