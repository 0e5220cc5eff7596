package operation

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/swapbot/internal/profile"
)

// Profiles resolves trade eligibility for a conversation.
type Profiles interface {
	RequireEligible(ctx context.Context, conversationID int64, policy profile.ReadPolicy) (profile.UserProfile, error)
}

// KeyVault returns authenticated private keys. The caller wipes the result.
type KeyVault interface {
	Retrieve(ctx context.Context, address string) ([]byte, bool)
}

// Balances reads live on-chain balances, scaled to token units.
type Balances interface {
	NativeBalance(ctx context.Context, wallet string) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, wallet, token string) (decimal.Decimal, error)
}

// Execution is everything the executor needs to submit one trade.
type Execution struct {
	Request        Request
	Wallet         string
	PrivateKey     []byte
	IdempotencyKey string
	SlippageBps    int
	GasPriority    string
}

// ExecResult is the executor's verdict. A non-nil error from Execute means the
// call itself failed and the result is undefined.
type ExecResult struct {
	Success bool
	TxHash  string
	OrderID string
	Error   string
}

// Executor submits trades. Implementations must not retry on their own.
type Executor interface {
	Execute(ctx context.Context, exec Execution) (ExecResult, error)
}
