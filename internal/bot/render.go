package bot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/telegram/format"
	"github.com/m3rciful/swapbot/core/telegram/keyboard"
	"github.com/m3rciful/swapbot/internal/operation"
	"github.com/m3rciful/swapbot/internal/profile"
	"github.com/m3rciful/swapbot/internal/vault"
)

// Callback keys. Payloads follow the key after '|'.
const (
	cbTermsAccept   = "terms_accept"
	cbConfirm       = "op_confirm"
	cbCancel        = "op_cancel"
	cbAmountPct     = "amount_pct"
	cbOrdersList    = "orders_list"
	cbOrderCancel   = "order_cancel"
	cbWalletDelete  = "wallet_delete"
	cbWalletDefault = "wallet_default"
)

var kindTitles = map[operation.Kind]string{
	operation.Buy:             "Buy",
	operation.Sell:            "Sell",
	operation.RecurringBuy:    "Recurring buy",
	operation.LimitOrder:      "Limit order",
	operation.Withdraw:        "Withdraw",
	operation.KeyVerification: "Key verification",
}

var fieldPrompts = map[operation.Field]string{
	operation.FieldToken:     "Send the token contract address (0x…).",
	operation.FieldAmount:    "Send the amount, e.g. `0.5`, or a share of your balance like `25%`.",
	operation.FieldInterval:  "Send the interval between buys in hours, e.g. `24`.",
	operation.FieldRepeat:    "How many buys in total? (1-100)",
	operation.FieldPrice:     "Send the limit price.",
	operation.FieldExpiry:    "When should the order expire? e.g. `12H`, `7D`, `2W`, `1M`.",
	operation.FieldRecipient: "Send the recipient address (0x…).",
	operation.FieldSecret:    "Send the private key of this wallet to check your backup. Your message is deleted right away.",
}

var failureTexts = map[operation.Reason]string{
	operation.ReasonNoKeyMaterial:     "No key is stored for this wallet. Create a new wallet with /newwallet.",
	operation.ReasonInsufficientFunds: "Insufficient funds for this trade, including gas.",
	operation.ReasonSlippageExceeded:  "Price moved beyond your slippage tolerance. Try again or raise it with /slippage.",
	operation.ReasonTimeout:           "The trade timed out. It may still land: verify your balance manually before retrying.",
	operation.ReasonKeyMismatch:       "That key does not match this wallet.",
	operation.ReasonNotEligible:       "Your account changed during the operation. Check /wallet and try again.",
}

var onboardingTexts = map[string]string{
	profile.ReasonNotRegistered:    "Send /start to set up your account first.",
	profile.ReasonTermsNotAccepted: "Please read and accept the terms first.",
	profile.ReasonNoWallet:         "You need a wallet first. Create one with /newwallet.",
}

// Message is rendered text with optional markup. Text uses legacy Markdown.
type Message struct {
	Text   string
	Markup *tele.ReplyMarkup
}

// Renderer turns machine notifications into chat messages.
type Renderer struct {
	NativeSymbol string
}

func title(k operation.Kind) string {
	if t, ok := kindTitles[k]; ok {
		return t
	}
	return k.String()
}

// Notice renders n.
func (r Renderer) Notice(n operation.Notification) Message {
	switch n.Kind {
	case operation.NoticePrompt:
		return r.prompt(n)
	case operation.NoticeInvalid:
		return Message{
			Text:   fmt.Sprintf("⚠️ Invalid %s: %s", n.Field, format.MD(n.Hint)),
			Markup: cancelMarkup(),
		}
	case operation.NoticeNotEligible:
		return onboarding(n.Hint)
	case operation.NoticeActive:
		text := fmt.Sprintf("You already have a *%s* in progress. Finish it or /cancel.", title(n.Operation))
		if n.Field != "" {
			text += "\n" + fieldPrompts[n.Field]
		}
		return Message{Text: text, Markup: cancelMarkup()}
	case operation.NoticeConfirm:
		return r.confirm(n)
	case operation.NoticeOutcome:
		if n.Outcome == nil {
			return Message{Text: "Operation finished."}
		}
		return r.outcome(*n.Outcome)
	case operation.NoticeBusy:
		return Message{Text: "⏳ Still working on your previous request…"}
	}
	return Message{Text: "…"}
}

func (r Renderer) prompt(n operation.Notification) Message {
	var b strings.Builder
	if n.Wallet != "" {
		fmt.Fprintf(&b, "*%s* from wallet %s\n", title(n.Operation), format.Code(n.Wallet))
	}
	b.WriteString(fieldPrompts[n.Field])
	msg := Message{Text: b.String(), Markup: cancelMarkup()}
	if n.Field == operation.FieldAmount {
		msg.Markup = percentMarkup()
	}
	return msg
}

func (r Renderer) confirm(n operation.Notification) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*: please confirm\n", title(n.Operation))
	if n.Wallet != "" {
		fmt.Fprintf(&b, "Wallet: %s\n", format.Code(n.Wallet))
	}
	b.WriteString(r.describe(n.Request))
	markup := keyboard.Rows([]keyboard.Button{
		{Text: "✅ Confirm", Unique: cbConfirm, Data: n.IdempotencyKey},
		keyboard.Cancel(cbCancel),
	})
	return Message{Text: b.String(), Markup: markup}
}

// describe lists the request fields, one per line.
func (r Renderer) describe(req operation.Request) string {
	var lines []string
	add := func(label, value string) { lines = append(lines, label+": "+value) }
	switch q := req.(type) {
	case operation.BuyRequest:
		add("Token", format.Code(q.Token))
		add("Spend", r.native(q.Amount))
	case operation.SellRequest:
		add("Token", format.Code(q.Token))
		add("Sell", q.Amount.String())
	case operation.RecurringBuyRequest:
		add("Token", format.Code(q.Token))
		add("Spend per buy", r.native(q.Amount))
		add("Every", fmt.Sprintf("%dh", int(q.Interval.Hours())))
		add("Buys", fmt.Sprint(q.Repeat))
	case operation.LimitOrderRequest:
		add("Token", format.Code(q.Token))
		add("Spend", r.native(q.Amount))
		add("Limit price", q.Price.String())
		add("Expires in", q.Expiry.String())
	case operation.WithdrawRequest:
		add("Amount", r.native(q.Amount))
		add("To", format.Code(q.Recipient))
	}
	return strings.Join(lines, "\n")
}

func (r Renderer) native(d decimal.Decimal) string {
	if r.NativeSymbol == "" {
		return d.String()
	}
	return d.String() + " " + r.NativeSymbol
}

func (r Renderer) outcome(o operation.Outcome) Message {
	switch o.Status {
	case operation.Cancelled:
		return Message{Text: fmt.Sprintf("*%s* cancelled.", title(o.Kind))}
	case operation.Executed:
		if o.Kind == operation.KeyVerification {
			return Message{Text: "✅ Your key backup matches this wallet."}
		}
		text := fmt.Sprintf("✅ *%s* done.", title(o.Kind))
		if summary := r.describe(o.Request); summary != "" {
			text += "\n" + summary
		}
		if o.TxHash != "" {
			text += "\nTx: " + format.Code(o.TxHash)
		}
		if o.OrderID != "" {
			text += "\nOrder: " + format.Code(o.OrderID)
		}
		return Message{Text: text}
	}
	reason, ok := failureTexts[o.Reason]
	if !ok {
		reason = "Something went wrong. Nothing was charged unless your balance says otherwise."
	}
	return Message{Text: fmt.Sprintf("❌ *%s* failed. %s", title(o.Kind), reason)}
}

func onboarding(reason string) Message {
	text, ok := onboardingTexts[reason]
	if !ok {
		text = onboardingTexts[profile.ReasonNotRegistered]
	}
	msg := Message{Text: text}
	if reason == profile.ReasonTermsNotAccepted {
		msg.Markup = termsMarkup()
	}
	return msg
}

func cancelMarkup() *tele.ReplyMarkup {
	return keyboard.Column(keyboard.Cancel(cbCancel))
}

func percentMarkup() *tele.ReplyMarkup {
	var pcts []keyboard.Button
	for _, p := range []string{"25", "50", "75", "100"} {
		pcts = append(pcts, keyboard.Button{Text: p + "%", Unique: cbAmountPct, Data: p})
	}
	return keyboard.Grid(pcts, len(pcts), []keyboard.Button{keyboard.Cancel(cbCancel)})
}

func termsMarkup() *tele.ReplyMarkup {
	return keyboard.Column(keyboard.Button{Text: "✅ I accept", Unique: cbTermsAccept, Data: "yes"})
}

// ordersText renders an order list with one cancel button per order.
func ordersText(kind operation.OrderKind, orders []operation.OrderSummary) Message {
	label := "recurring"
	if kind == operation.OrderLimit {
		label = "limit"
	}
	if len(orders) == 0 {
		return Message{Text: fmt.Sprintf("No active %s orders.", label)}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Active %s orders*\n", label)
	buttons := make([]keyboard.Button, 0, len(orders))
	for i, o := range orders {
		fmt.Fprintf(&b, "%d. %s %s %s, %s, %s\n", i+1, format.Code(o.ID), o.Amount.String(), format.Code(o.Token),
			format.MD(o.Status), o.CreatedAt.UTC().Format("2006-01-02 15:04"))
		buttons = append(buttons, keyboard.Button{Text: "Cancel " + shortID(o.ID), Unique: cbOrderCancel, Data: o.ID})
	}
	return Message{Text: b.String(), Markup: keyboard.Grid(buttons, 2)}
}

func shortID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:4] + "…" + id[len(id)-4:]
}

func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// walletsText lists wallets, marking the primary one.
func walletsText(p profile.UserProfile) Message {
	if len(p.Wallets) == 0 {
		return Message{Text: onboardingTexts[profile.ReasonNoWallet]}
	}
	primary, _ := p.PrimaryWallet()
	var b strings.Builder
	b.WriteString("*Your wallets*\n")
	var rows [][]keyboard.Button
	for _, w := range p.Wallets {
		mark := ""
		if strings.EqualFold(w.Address, primary.Address) {
			mark = " ⭐"
		}
		fmt.Fprintf(&b, "%s%s\n", format.Code(w.Address), mark)
		row := []keyboard.Button{{Text: "🗑 " + shortAddr(w.Address), Unique: cbWalletDelete, Data: w.Address}}
		if mark == "" {
			row = append(row, keyboard.Button{Text: "⭐ " + shortAddr(w.Address), Unique: cbWalletDefault, Data: w.Address})
		}
		rows = append(rows, row)
	}
	s := p.EffectiveSettings()
	fmt.Fprintf(&b, "\nSlippage: %s%%, gas: %s", decimal.New(int64(s.SlippageBps), -2).String(), s.GasPriority)
	return Message{Text: b.String(), Markup: keyboard.Rows(rows...)}
}

const welcomeText = "👋 *Welcome to swapbot.* Trade tokens, set up recurring buys and limit orders from your own wallet."

const termsText = `*Terms of use*
1. You alone control your wallet. Keep your private key backup safe; it cannot be recovered.
2. Trades are final once submitted to the network.
3. Prices move: slippage and gas fees apply to every trade.
4. The service is provided as is, without warranty.`

const commandsText = `/buy, /sell: swap a token
/dca: recurring buy
/limit: limit order
/withdraw: send funds to another address
/orders: list and cancel orders
/wallet, /newwallet, /verifykey: manage wallets
/settings: slippage and gas`

func orderKindsMarkup() *tele.ReplyMarkup {
	return keyboard.Rows([]keyboard.Button{
		{Text: "🔁 Recurring", Unique: cbOrdersList, Data: string(operation.OrderRecurring)},
		{Text: "🎯 Limit", Unique: cbOrdersList, Data: string(operation.OrderLimit)},
	})
}

// orderCancelText renders the result of an order cancellation.
func orderCancelText(orderID string, out operation.Outcome) Message {
	if out.Status == operation.Executed {
		text := fmt.Sprintf("✅ Order %s cancelled.", format.Code(orderID))
		if out.TxHash != "" {
			text += "\nTx: " + format.Code(out.TxHash)
		}
		return Message{Text: text}
	}
	reason, ok := failureTexts[out.Reason]
	if !ok {
		reason = "Something went wrong."
	}
	return Message{Text: fmt.Sprintf("❌ Could not cancel order %s. %s The order stays active.", format.Code(orderID), reason)}
}

func walletDeletePrompt(address string) Message {
	return Message{
		Text: fmt.Sprintf("Remove wallet %s? Its stored key is deleted too. Make sure you have a backup (/verifykey).", format.Code(address)),
		Markup: keyboard.Rows([]keyboard.Button{
			{Text: "🗑 Remove", Unique: cbWalletDelete, Data: confirmDeletePrefix + address},
			{Text: "❌ Keep", Unique: cbCancel, Data: keepPayload},
		}),
	}
}

func settingsText(s profile.Settings) Message {
	text := fmt.Sprintf("*Settings*\nSlippage: %s%%\nGas priority: %s\n\nChange with /slippage <percent> or /gas standard|fast|instant.",
		decimal.New(int64(s.SlippageBps), -2).String(), s.GasPriority)
	return Message{Text: text}
}

func vaultReportText(r vault.CheckReport) Message {
	text := fmt.Sprintf("*Vault*\nRecords: %d\nUnreadable: %d", r.Total, len(r.Unreadable))
	for _, addr := range r.Unreadable {
		text += "\n" + format.Code(addr)
	}
	return Message{Text: text}
}
