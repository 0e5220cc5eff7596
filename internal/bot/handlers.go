// Package bot is the Telegram surface of swapbot: commands, callbacks, the
// text flow that feeds the operation machine, and the chat notifier.
package bot

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/buildinfo"
	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/core/telegram"
	"github.com/m3rciful/swapbot/core/telegram/callbacks"
	"github.com/m3rciful/swapbot/core/telegram/commands"
	"github.com/m3rciful/swapbot/core/telegram/format"
	"github.com/m3rciful/swapbot/core/telegram/helpers"
	"github.com/m3rciful/swapbot/internal/operation"
	"github.com/m3rciful/swapbot/internal/profile"
	"github.com/m3rciful/swapbot/internal/vault"
)

const (
	// MaxWallets caps wallets per user.
	MaxWallets = 5

	minSlippageBps       = 1
	maxSlippageBps       = 5000
	defaultKeyMessageTTL = time.Minute
	confirmDeletePrefix  = "yes:"
	keepPayload          = "keep"
)

// Profiles is the profile service as seen by handlers.
type Profiles interface {
	Lookup(ctx context.Context, userID int64, policy profile.ReadPolicy) (profile.UserProfile, error)
	EnsureUser(ctx context.Context, userID int64) error
	AcceptTerms(ctx context.Context, userID int64) error
	AddWallet(ctx context.Context, userID int64, w profile.Wallet) error
	RemoveWallet(ctx context.Context, userID int64, address string) error
	UpdateSettings(ctx context.Context, userID int64, s profile.Settings) error
}

// Operations is the operation machine as seen by handlers.
type Operations interface {
	Start(ctx context.Context, conversationID int64, kind operation.Kind) error
	Submit(ctx context.Context, conversationID int64, raw string) error
	SubmitField(ctx context.Context, conversationID int64, field operation.Field, raw string) error
	Confirm(ctx context.Context, conversationID int64, idemKey string) (operation.Outcome, error)
	Cancel(ctx context.Context, conversationID int64) error
	InProgress(conversationID int64) bool
	Snapshot(conversationID int64) operation.Snapshot
}

// OrderBook lists and cancels executed orders.
type OrderBook interface {
	ListForUser(ctx context.Context, conversationID int64, kind operation.OrderKind) ([]operation.OrderSummary, error)
	Cancel(ctx context.Context, conversationID int64, orderID string) (operation.Outcome, error)
}

// Keys is the key vault as seen by handlers.
type Keys interface {
	Store(ctx context.Context, address string, privateKey []byte) bool
	Delete(ctx context.Context, address string) bool
	Check(ctx context.Context) (vault.CheckReport, error)
}

// Deps are the collaborators of Handlers.
type Deps struct {
	Profiles   Profiles
	Operations Operations
	Orders     OrderBook
	Keys       Keys
	Notifier   *Notifier
	Renderer   Renderer
	// KeyMessageTTL is how long a revealed private key stays in the chat.
	KeyMessageTTL time.Duration
	// NewKey generates a wallet key pair; defaults to secp256k1.
	NewKey func() (*ecdsa.PrivateKey, error)
}

// Handlers implements every command and callback of the bot.
type Handlers struct {
	profiles Profiles
	ops      Operations
	orders   OrderBook
	keys     Keys
	notifier *Notifier
	keyTTL   time.Duration
	newKey   func() (*ecdsa.PrivateKey, error)
}

// New validates deps.
func New(deps Deps) (*Handlers, error) {
	switch {
	case deps.Profiles == nil:
		return nil, errors.New("bot: nil profiles")
	case deps.Operations == nil:
		return nil, errors.New("bot: nil operations")
	case deps.Orders == nil:
		return nil, errors.New("bot: nil orders")
	case deps.Keys == nil:
		return nil, errors.New("bot: nil keys")
	}
	h := &Handlers{
		profiles: deps.Profiles,
		ops:      deps.Operations,
		orders:   deps.Orders,
		keys:     deps.Keys,
		notifier: deps.Notifier,
		keyTTL:   deps.KeyMessageTTL,
		newKey:   deps.NewKey,
	}
	if h.notifier == nil {
		h.notifier = NewNotifier(deps.Renderer)
	}
	if h.keyTTL <= 0 {
		h.keyTTL = defaultKeyMessageTTL
	}
	if h.newKey == nil {
		h.newKey = crypto.GenerateKey
	}
	return h, nil
}

// Register adds commands, callbacks and the unknown-callback fallback to reg.
func (h *Handlers) Register(reg *telegram.Registry) error {
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: h.handleStart, Description: "Set up your account"}},
		{"/buy", commands.Command{Handler: h.startOperation(operation.Buy), Description: "Buy a token"}},
		{"/sell", commands.Command{Handler: h.startOperation(operation.Sell), Description: "Sell a token"}},
		{"/dca", commands.Command{Handler: h.startOperation(operation.RecurringBuy), Description: "Set up a recurring buy", Aliases: []string{"/recurring"}}},
		{"/limit", commands.Command{Handler: h.startOperation(operation.LimitOrder), Description: "Place a limit order"}},
		{"/withdraw", commands.Command{Handler: h.startOperation(operation.Withdraw), Description: "Withdraw to another address"}},
		{"/orders", commands.Command{Handler: h.handleOrders, Description: "List active orders"}},
		{"/wallet", commands.Command{Handler: h.handleWallet, Description: "Show your wallets", Aliases: []string{"/wallets"}}},
		{"/newwallet", commands.Command{Handler: h.handleNewWallet, Description: "Create a new wallet"}},
		{"/verifykey", commands.Command{Handler: h.startOperation(operation.KeyVerification), Description: "Check your private key backup"}},
		{"/settings", commands.Command{Handler: h.handleSettings, Description: "Show trading settings"}},
		{"/cancel", commands.Command{Handler: h.handleCancel, Description: "Abort the current operation"}},
		{"/terms", commands.Command{Handler: h.handleTerms, Description: "Read and accept the terms"}},
		{"/cancelorder", commands.Command{Handler: h.handleCancelOrder, Description: "Cancel an order by id", Hidden: true}},
		{"/slippage", commands.Command{Handler: h.handleSlippage, Description: "Set slippage tolerance in percent", Hidden: true}},
		{"/gas", commands.Command{Handler: h.handleGas, Description: "Set gas priority", Hidden: true}},
		{"/version", commands.Command{Handler: h.handleVersion, Description: "Show bot version", Hidden: true}},
		{"/vaultstatus", commands.Command{Handler: h.handleVaultStatus, Description: "Check vault records", AdminOnly: true}},
	}
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			return fmt.Errorf("bot: %w", err)
		}
	}

	cbs := map[string]tele.HandlerFunc{
		cbTermsAccept:   h.onTermsAccept,
		cbConfirm:       h.onConfirm,
		cbCancel:        h.onCancel,
		cbAmountPct:     h.onAmountPercent,
		cbOrdersList:    h.onOrdersList,
		cbOrderCancel:   h.onOrderCancel,
		cbWalletDelete:  h.onWalletDelete,
		cbWalletDefault: h.onWalletDefault,
	}
	for key, fn := range cbs {
		if err := reg.RegisterCallback(key, fn); err != nil {
			return fmt.Errorf("bot: %w", err)
		}
	}
	reg.SetCallbackNotFound(h.UnknownCallback())
	return nil
}

func (h *Handlers) reply(c tele.Context, msg Message) error {
	return helpers.SendMD(c, msg.Text, msg.Markup)
}

func (h *Handlers) replyText(c tele.Context, text string) error {
	return h.reply(c, Message{Text: text})
}

// settle turns machine errors into chat replies. Errors the machine already
// reported through the notifier are swallowed.
func (h *Handlers) settle(c tele.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, operation.ErrNoActive):
		return h.replyText(c, "There is no operation in progress.")
	case errors.Is(err, operation.ErrNotConfirming):
		return h.replyText(c, "There is nothing to confirm.")
	case errors.Is(err, operation.ErrStaleConfirmation):
		return h.replyText(c, "This confirmation is no longer valid.")
	case errors.Is(err, operation.ErrValidation),
		errors.Is(err, operation.ErrActive),
		errors.Is(err, operation.ErrBusy),
		errors.Is(err, operation.ErrAwaitingConfirmation),
		errors.Is(err, profile.ErrNotEligible):
		return nil
	}
	return err
}

// lookup loads the sender's profile; unknown users are sent to /start.
func (h *Handlers) lookup(c tele.Context, policy profile.ReadPolicy) (profile.UserProfile, bool, error) {
	ctx := helpers.BuildContext(c)
	p, err := h.profiles.Lookup(ctx, c.Sender().ID, policy)
	if errors.Is(err, profile.ErrNotFound) {
		return p, false, h.reply(c, onboarding(profile.ReasonNotRegistered))
	}
	if err != nil {
		return p, false, err
	}
	return p, true, nil
}

func (h *Handlers) handleStart(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	uid := c.Sender().ID
	if err := h.profiles.EnsureUser(ctx, uid); err != nil {
		_ = h.replyText(c, "Could not set up your account. Please try again later.")
		return err
	}
	p, ok, err := h.lookup(c, profile.ForceRefresh)
	if !ok {
		return err
	}
	if err := p.Eligibility(); err != nil {
		var eligErr *profile.EligibilityError
		if errors.As(err, &eligErr) && eligErr.Reason == profile.ReasonTermsNotAccepted {
			return h.reply(c, Message{Text: welcomeText + "\n\n" + termsText, Markup: termsMarkup()})
		}
		return h.reply(c, Message{Text: welcomeText + "\n\n" + onboardingTexts[profile.ReasonNoWallet]})
	}
	return h.reply(c, Message{Text: welcomeText + "\n\n" + commandsText})
}

func (h *Handlers) handleTerms(c tele.Context) error {
	return h.reply(c, Message{Text: termsText, Markup: termsMarkup()})
}

func (h *Handlers) onTermsAccept(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	uid := c.Sender().ID
	if err := h.profiles.EnsureUser(ctx, uid); err != nil {
		return err
	}
	if err := h.profiles.AcceptTerms(ctx, uid); err != nil {
		_ = h.replyText(c, "Could not save your answer. Please try again.")
		return err
	}
	return h.replyText(c, "✅ Terms accepted. Create your wallet with /newwallet.")
}

func (h *Handlers) handleWallet(c tele.Context) error {
	p, ok, err := h.lookup(c, profile.AllowStale)
	if !ok {
		return err
	}
	return h.reply(c, walletsText(p))
}

// handleNewWallet generates a key pair, seals the key in the vault, links the
// address, and reveals the key in a message that deletes itself.
func (h *Handlers) handleNewWallet(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	uid := c.Sender().ID
	p, ok, err := h.lookup(c, profile.ForceRefresh)
	if !ok {
		return err
	}
	if !p.TermsAccepted {
		return h.reply(c, onboarding(profile.ReasonTermsNotAccepted))
	}
	if len(p.Wallets) >= MaxWallets {
		return h.replyText(c, fmt.Sprintf("You already have the maximum of %d wallets.", MaxWallets))
	}

	pk, err := h.newKey()
	if err != nil {
		_ = h.replyText(c, "Could not create a wallet. Please try again.")
		return fmt.Errorf("generate key: %w", err)
	}
	address := crypto.PubkeyToAddress(pk.PublicKey).Hex()
	raw := crypto.FromECDSA(pk)
	keyHex := []byte(hex.EncodeToString(raw))
	memguard.WipeBytes(raw)
	defer memguard.WipeBytes(keyHex)

	if !h.keys.Store(ctx, address, append([]byte(nil), keyHex...)) {
		logger.Error(ctx, "tg", "wallet.create",
			slog.String("status", "fail"),
			slog.String("reason", "vault_store"),
			slog.String("wallet", address),
		)
		return h.replyText(c, "Could not secure the new key, so no wallet was created. Please try again later.")
	}
	if err := h.profiles.AddWallet(ctx, uid, profile.Wallet{Address: address, CreatedAt: time.Now().UTC()}); err != nil {
		h.keys.Delete(ctx, address)
		_ = h.replyText(c, "Could not save the new wallet. Please try again later.")
		return fmt.Errorf("add wallet: %w", err)
	}
	logger.Info(ctx, "tg", "wallet.create",
		slog.String("status", "ok"),
		slog.String("wallet", address),
	)

	text := revealText(address, keyHex, h.keyTTL)
	defer memguard.WipeBytes(text)
	return h.notifier.SendSecret(ctx, uid, Message{Text: string(text)}, h.keyTTL)
}

// revealText builds the one-time key message in a caller-owned buffer, so the
// key never passes through fmt's pooled buffers. The string handed to the
// Telegram client is the one copy left for the collector.
func revealText(address string, keyHex []byte, ttl time.Duration) []byte {
	const (
		head = "🔐 *New wallet created*\nAddress: `"
		mid  = "`\nPrivate key: `"
		warn = "`\n\nWrite the key down now. This message is deleted in "
		tail = " seconds. Check your backup any time with /verifykey."
	)
	buf := make([]byte, 0, len(head)+len(address)+len(mid)+len(keyHex)+len(warn)+len(tail)+8)
	buf = append(buf, head...)
	buf = append(buf, address...)
	buf = append(buf, mid...)
	buf = append(buf, keyHex...)
	buf = append(buf, warn...)
	buf = strconv.AppendInt(buf, int64(ttl.Seconds()), 10)
	return append(buf, tail...)
}

func (h *Handlers) startOperation(kind operation.Kind) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		return h.settle(c, h.ops.Start(ctx, c.Sender().ID, kind))
	}
}

// InProgress routes free text to ManagerHandler while an operation is active.
func (h *Handlers) InProgress(userID int64) bool {
	return h.ops.InProgress(userID)
}

// SensitiveInput reports whether the update answers the secret prompt, so
// its text must stay out of logs.
func (h *Handlers) SensitiveInput(c tele.Context) bool {
	return c.Sender() != nil && c.Message() != nil && h.expectsSecret(c.Sender().ID)
}

func (h *Handlers) expectsSecret(userID int64) bool {
	snap := h.ops.Snapshot(userID)
	return snap.Phase == operation.Collecting && snap.Expected == operation.FieldSecret
}

// ManagerHandler feeds a text message to the active operation. A message
// answering the secret prompt is deleted before it is processed.
func (h *Handlers) ManagerHandler(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	uid := c.Sender().ID
	msg := c.Message()
	if msg == nil {
		return nil
	}
	if h.expectsSecret(uid) {
		h.notifier.Delete(ctx, msg)
	}
	if msg.Document != nil || strings.TrimSpace(msg.Text) == "" {
		return h.replyText(c, "Please answer with a text message, or /cancel.")
	}
	return h.settle(c, h.ops.Submit(ctx, uid, msg.Text))
}

func (h *Handlers) onAmountPercent(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	pct, err := callbacks.PayloadInt(c, 1, 100)
	if err != nil {
		return h.replyText(c, "Unsupported share.")
	}
	return h.settle(c, h.ops.SubmitField(ctx, c.Sender().ID, operation.FieldAmount, fmt.Sprintf("%d%%", pct)))
}

func (h *Handlers) onConfirm(c tele.Context) error {
	// Execution can outlast the callback answer window.
	_ = c.Respond()
	ctx := helpers.BuildContext(c)
	uid := c.Sender().ID
	idem, err := callbacks.PayloadString(c)
	if err != nil {
		return h.settle(c, operation.ErrStaleConfirmation)
	}
	if snap := h.ops.Snapshot(uid); snap.Phase == operation.Confirming && snap.IdempotencyKey == idem {
		_ = h.replyText(c, "⏳ Submitting…")
	}
	_, err = h.ops.Confirm(ctx, uid, idem)
	return h.settle(c, err)
}

func (h *Handlers) handleCancel(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	return h.settle(c, h.ops.Cancel(ctx, c.Sender().ID))
}

func (h *Handlers) onCancel(c tele.Context) error {
	if callbacks.Payload(c) == keepPayload {
		return h.replyText(c, "Nothing changed.")
	}
	return h.handleCancel(c)
}

func (h *Handlers) handleOrders(c tele.Context) error {
	return h.reply(c, Message{Text: "Which orders?", Markup: orderKindsMarkup()})
}

func (h *Handlers) onOrdersList(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	raw, _ := callbacks.PayloadString(c)
	kind := operation.OrderKind(raw)
	if kind != operation.OrderRecurring && kind != operation.OrderLimit {
		return h.replyText(c, "Unsupported order type.")
	}
	list, err := h.orders.ListForUser(ctx, c.Sender().ID, kind)
	if err != nil {
		if reason, ok := eligibilityReason(err); ok {
			return h.reply(c, onboarding(reason))
		}
		_ = h.replyText(c, "Could not load your orders. Please try again later.")
		return err
	}
	return h.reply(c, ordersText(kind, list))
}

func (h *Handlers) handleCancelOrder(c tele.Context) error {
	return h.cancelOrder(c, strings.Join(c.Args(), " "))
}

func (h *Handlers) onOrderCancel(c tele.Context) error {
	_ = c.Respond()
	id, _ := callbacks.PayloadString(c)
	return h.cancelOrder(c, id)
}

func (h *Handlers) cancelOrder(c tele.Context, orderID string) error {
	ctx := helpers.BuildContext(c)
	out, err := h.orders.Cancel(ctx, c.Sender().ID, orderID)
	switch {
	case err == nil:
		return h.reply(c, orderCancelText(orderID, out))
	case errors.Is(err, operation.ErrOrderIDRequired):
		return h.replyText(c, "Usage: /cancelorder <order id>")
	case errors.Is(err, operation.ErrOrderNotFound):
		return h.replyText(c, "Order not found among your active orders.")
	case errors.Is(err, operation.ErrBusy):
		return h.replyText(c, "⏳ This order is already being cancelled.")
	}
	if reason, ok := eligibilityReason(err); ok {
		return h.reply(c, onboarding(reason))
	}
	_ = h.replyText(c, "Could not cancel the order. Please try again later.")
	return err
}

func (h *Handlers) onWalletDelete(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	payload, _ := callbacks.PayloadString(c)
	confirmed := strings.HasPrefix(payload, confirmDeletePrefix)
	address := strings.TrimPrefix(payload, confirmDeletePrefix)

	p, ok, err := h.lookup(c, profile.ForceRefresh)
	if !ok {
		return err
	}
	w, owned := p.Wallet(address)
	if !owned {
		return h.replyText(c, "That wallet is not linked to your account.")
	}
	if !confirmed {
		return h.reply(c, walletDeletePrompt(w.Address))
	}
	if err := h.profiles.RemoveWallet(ctx, c.Sender().ID, w.Address); err != nil {
		_ = h.replyText(c, "Could not remove the wallet. Please try again later.")
		return err
	}
	h.keys.Delete(ctx, w.Address)
	return h.replyText(c, fmt.Sprintf("🗑 Wallet `%s` removed.", w.Address))
}

func (h *Handlers) onWalletDefault(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	address, _ := callbacks.PayloadString(c)
	p, ok, err := h.lookup(c, profile.ForceRefresh)
	if !ok {
		return err
	}
	w, owned := p.Wallet(address)
	if !owned {
		return h.replyText(c, "That wallet is not linked to your account.")
	}
	s := p.EffectiveSettings()
	s.DefaultWallet = w.Address
	if err := h.profiles.UpdateSettings(ctx, c.Sender().ID, s); err != nil {
		_ = h.replyText(c, "Could not save your settings. Please try again later.")
		return err
	}
	return h.replyText(c, fmt.Sprintf("⭐ Trades now use wallet `%s`.", w.Address))
}

func (h *Handlers) handleSettings(c tele.Context) error {
	p, ok, err := h.lookup(c, profile.AllowStale)
	if !ok {
		return err
	}
	return h.reply(c, settingsText(p.EffectiveSettings()))
}

func (h *Handlers) handleSlippage(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return h.replyText(c, "Usage: /slippage <percent>, e.g. /slippage 0.5")
	}
	bps, ok := parseSlippage(args[0])
	if !ok {
		return h.replyText(c, fmt.Sprintf("Slippage must be between %s%% and %s%% with at most two decimals.",
			decimal.New(minSlippageBps, -2), decimal.New(maxSlippageBps, -2)))
	}
	return h.updateSettings(c, func(s *profile.Settings) { s.SlippageBps = bps })
}

func (h *Handlers) handleGas(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return h.replyText(c, "Usage: /gas standard|fast|instant")
	}
	prio := strings.ToLower(strings.TrimSpace(args[0]))
	switch prio {
	case profile.GasStandard, profile.GasFast, profile.GasInstant:
	default:
		return h.replyText(c, "Gas priority must be standard, fast or instant.")
	}
	return h.updateSettings(c, func(s *profile.Settings) { s.GasPriority = prio })
}

func (h *Handlers) updateSettings(c tele.Context, apply func(*profile.Settings)) error {
	ctx := helpers.BuildContext(c)
	p, ok, err := h.lookup(c, profile.ForceRefresh)
	if !ok {
		return err
	}
	s := p.EffectiveSettings()
	apply(&s)
	if err := h.profiles.UpdateSettings(ctx, c.Sender().ID, s); err != nil {
		_ = h.replyText(c, "Could not save your settings. Please try again later.")
		return err
	}
	return h.reply(c, settingsText(s))
}

// parseSlippage converts a percentage such as "0.5" to basis points.
func parseSlippage(raw string) (int, bool) {
	pct, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if err != nil {
		return 0, false
	}
	bps := pct.Mul(decimal.NewFromInt(100))
	if !bps.Equal(bps.Truncate(0)) {
		return 0, false
	}
	n := bps.IntPart()
	if n < minSlippageBps || n > maxSlippageBps {
		return 0, false
	}
	return int(n), true
}

func (h *Handlers) handleVersion(c tele.Context) error {
	return h.replyText(c, format.Code(buildinfo.String()))
}

func (h *Handlers) handleVaultStatus(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	report, err := h.keys.Check(ctx)
	if err != nil {
		_ = h.replyText(c, "Vault check failed, see logs.")
		return err
	}
	return h.reply(c, vaultReportText(report))
}

// UnknownText answers text that matches no command outside an operation.
func (h *Handlers) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return h.replyText(c, "I did not understand that. Send /start to see what I can do.")
	}
}

// UnknownDocument answers files sent outside an operation.
func (h *Handlers) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return h.replyText(c, "Files are not supported.")
	}
}

// UnknownCallback answers presses of buttons that are no longer handled.
func (h *Handlers) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return h.replyText(c, "This button is no longer active.")
	}
}

// Limited answers updates dropped by the rate limiter.
func (h *Handlers) Limited() tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Callback() != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Too fast, try again in a moment."})
		}
		return nil
	}
}

// AdminRejected answers admin commands sent by anyone else.
func (h *Handlers) AdminRejected() tele.HandlerFunc {
	return func(c tele.Context) error {
		return h.replyText(c, "This command is not available.")
	}
}

func eligibilityReason(err error) (string, bool) {
	var eligErr *profile.EligibilityError
	if errors.As(err, &eligErr) {
		return eligErr.Reason, true
	}
	return "", false
}
