package operation

import "context"

// NoticeKind selects what the channel should render.
type NoticeKind int

const (
	// NoticePrompt asks for Field.
	NoticePrompt NoticeKind = iota + 1
	// NoticeInvalid rejects input for Field with Hint.
	NoticeInvalid
	// NoticeNotEligible redirects to onboarding step Hint.
	NoticeNotEligible
	// NoticeActive reports that Operation is already in progress.
	NoticeActive
	// NoticeConfirm presents Request with confirm/cancel choices keyed by IdempotencyKey.
	NoticeConfirm
	// NoticeOutcome reports the terminal Outcome.
	NoticeOutcome
	// NoticeBusy reports that a transition is still in flight.
	NoticeBusy
)

// Notification is one message from the machine to the user.
type Notification struct {
	Kind           NoticeKind
	Operation      Kind
	Field          Field
	Hint           string
	Wallet         string
	Request        Request
	IdempotencyKey string
	Outcome        *Outcome
}

// Notifier delivers notifications to a conversation. Implementations must not
// block on delivery.
type Notifier interface {
	Notify(ctx context.Context, conversationID int64, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, conversationID int64, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, conversationID int64, n Notification) {
	f(ctx, conversationID, n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, int64, Notification) {}
