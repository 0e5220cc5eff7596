// Package chain reads native and ERC-20 balances over JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/swapbot/core/logger"
)

var (
	selectorBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31}
	selectorDecimals  = []byte{0x31, 0x3c, 0xe5, 0x67}
)

// ErrInvalidAddress rejects wallet or token addresses that are not 20-byte hex.
var ErrInvalidAddress = errors.New("chain: invalid address")

// Caller is the subset of ethclient.Client the reader needs.
type Caller interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader returns balances scaled to whole token units.
type Reader struct {
	client         Caller
	nativeDecimals int32
	decimals       sync.Map // token address -> int32
	closeFn        func()
}

// NewReader wraps client. nativeDecimals is usually 18.
func NewReader(client Caller, nativeDecimals int32) *Reader {
	if nativeDecimals <= 0 {
		nativeDecimals = 18
	}
	return &Reader{client: client, nativeDecimals: nativeDecimals}
}

// Dial connects to the RPC endpoint at url.
func Dial(ctx context.Context, url string, nativeDecimals int32) (*Reader, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		logger.Error(ctx, "chain", "chain.dial",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("chain dial: %w", err)
	}
	r := NewReader(client, nativeDecimals)
	r.closeFn = client.Close
	logger.Info(ctx, "chain", "chain.dial", slog.String("status", "ok"))
	return r, nil
}

// Close releases the RPC connection, if the reader owns one.
func (r *Reader) Close() error {
	if r.closeFn != nil {
		r.closeFn()
	}
	return nil
}

// NativeBalance returns the wallet's native coin balance.
func (r *Reader) NativeBalance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	addr, err := parseAddress(wallet)
	if err != nil {
		return decimal.Zero, err
	}
	start := time.Now()
	wei, err := r.client.BalanceAt(ctx, addr, nil)
	r.logRead(ctx, "native", wallet, start, err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain native balance: %w", err)
	}
	return decimal.NewFromBigInt(wei, -r.nativeDecimals), nil
}

// TokenBalance returns the wallet's balance of the ERC-20 token.
func (r *Reader) TokenBalance(ctx context.Context, wallet, token string) (decimal.Decimal, error) {
	owner, err := parseAddress(wallet)
	if err != nil {
		return decimal.Zero, err
	}
	tokenAddr, err := parseAddress(token)
	if err != nil {
		return decimal.Zero, err
	}
	dec, err := r.tokenDecimals(ctx, tokenAddr)
	if err != nil {
		return decimal.Zero, err
	}

	start := time.Now()
	data := append(append([]byte(nil), selectorBalanceOf...), common.LeftPadBytes(owner.Bytes(), 32)...)
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	r.logRead(ctx, "token", wallet, start, err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain token balance: %w", err)
	}
	raw, err := word(out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain token balance: %w", err)
	}
	return decimal.NewFromBigInt(raw, -dec), nil
}

func (r *Reader) tokenDecimals(ctx context.Context, token common.Address) (int32, error) {
	key := token.Hex()
	if v, ok := r.decimals.Load(key); ok {
		return v.(int32), nil
	}
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: selectorDecimals}, nil)
	if err != nil {
		return 0, fmt.Errorf("chain token decimals: %w", err)
	}
	raw, err := word(out)
	if err != nil || !raw.IsUint64() || raw.Uint64() > 77 {
		return 0, fmt.Errorf("chain token decimals: unexpected result %x", out)
	}
	dec := int32(raw.Uint64())
	r.decimals.Store(key, dec)
	return dec, nil
}

// word decodes the first 32-byte ABI word of out as an unsigned integer.
func word(out []byte) (*big.Int, error) {
	if len(out) < 32 {
		return nil, fmt.Errorf("short return data (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

func (r *Reader) logRead(ctx context.Context, kind, wallet string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("kind", kind),
		slog.String("wallet", wallet),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Warn(ctx, "chain", "chain.balance", attrs...)
		return
	}
	logger.Debug(ctx, "chain", "chain.balance", attrs...)
}
