package bot

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/internal/operation"
	"github.com/m3rciful/swapbot/internal/profile"
)

func buttons(m *tele.ReplyMarkup) []tele.InlineButton {
	var out []tele.InlineButton
	for _, row := range m.InlineKeyboard {
		out = append(out, row...)
	}
	return out
}

func TestAmountPromptOffersPercentages(t *testing.T) {
	msg := Renderer{}.Notice(operation.Notification{Kind: operation.NoticePrompt, Operation: operation.Buy, Field: operation.FieldAmount})
	require.NotNil(t, msg.Markup)
	btns := buttons(msg.Markup)
	require.Len(t, btns, 5)
	assert.Equal(t, "25%", btns[0].Text)
	assert.Equal(t, cbAmountPct, btns[0].Unique)
	assert.Equal(t, "100", btns[3].Data)
	assert.Equal(t, cbCancel, btns[4].Unique)
}

func TestConfirmCarriesIdempotencyKey(t *testing.T) {
	msg := Renderer{NativeSymbol: "ETH"}.Notice(operation.Notification{
		Kind:           operation.NoticeConfirm,
		Operation:      operation.RecurringBuy,
		Wallet:         "0xW",
		IdempotencyKey: "k-1",
		Request: operation.RecurringBuyRequest{
			Token:    "0xT",
			Amount:   decimal.RequireFromString("0.25"),
			Interval: 24 * time.Hour,
			Repeat:   7,
		},
	})
	assert.Contains(t, msg.Text, "0.25 ETH")
	assert.Contains(t, msg.Text, "Every: 24h")
	assert.Contains(t, msg.Text, "Buys: 7")
	btns := buttons(msg.Markup)
	require.Len(t, btns, 2)
	assert.Equal(t, cbConfirm, btns[0].Unique)
	assert.Equal(t, "k-1", btns[0].Data)
}

func TestOutcomeTexts(t *testing.T) {
	r := Renderer{}
	timeout := r.Notice(operation.Notification{Kind: operation.NoticeOutcome, Outcome: &operation.Outcome{
		Kind: operation.Buy, Status: operation.Failed, Reason: operation.ReasonTimeout,
	}})
	assert.Contains(t, timeout.Text, "verify your balance manually")

	done := r.Notice(operation.Notification{Kind: operation.NoticeOutcome, Outcome: &operation.Outcome{
		Kind: operation.LimitOrder, Status: operation.Executed, OrderID: "o-9",
	}})
	assert.Contains(t, done.Text, "`o-9`")

	unknown := r.Notice(operation.Notification{Kind: operation.NoticeOutcome, Outcome: &operation.Outcome{
		Kind: operation.Sell, Status: operation.Failed, Reason: operation.ReasonUnknown,
	}})
	assert.Contains(t, unknown.Text, "Something went wrong")

	verified := r.Notice(operation.Notification{Kind: operation.NoticeOutcome, Outcome: &operation.Outcome{
		Kind: operation.KeyVerification, Status: operation.Executed,
	}})
	assert.Contains(t, verified.Text, "matches")
}

func TestNotEligibleRedirects(t *testing.T) {
	terms := Renderer{}.Notice(operation.Notification{Kind: operation.NoticeNotEligible, Hint: profile.ReasonTermsNotAccepted})
	require.NotNil(t, terms.Markup)
	assert.Equal(t, cbTermsAccept, buttons(terms.Markup)[0].Unique)

	wallet := Renderer{}.Notice(operation.Notification{Kind: operation.NoticeNotEligible, Hint: profile.ReasonNoWallet})
	assert.Contains(t, wallet.Text, "/newwallet")
	assert.Nil(t, wallet.Markup)
}

func TestInvalidHintIsEscaped(t *testing.T) {
	msg := Renderer{}.Notice(operation.Notification{Kind: operation.NoticeInvalid, Field: operation.FieldToken, Hint: "bad_value"})
	assert.Contains(t, msg.Text, `bad\_value`)
}

func TestWalletsTextMarksPrimary(t *testing.T) {
	p := profile.UserProfile{
		Wallets:  []profile.Wallet{{Address: "0xAAAA000000000000000000000000000000000001"}, {Address: "0xBBBB000000000000000000000000000000000002"}},
		Settings: &profile.Settings{SlippageBps: 75, GasPriority: profile.GasFast, DefaultWallet: "0xbbbb000000000000000000000000000000000002"},
	}
	msg := walletsText(p)
	assert.Contains(t, msg.Text, "0xBBBB000000000000000000000000000000000002` ⭐")
	assert.Contains(t, msg.Text, "Slippage: 0.75%")
	require.Len(t, msg.Markup.InlineKeyboard, 2)
	assert.Len(t, msg.Markup.InlineKeyboard[0], 2)
	assert.Len(t, msg.Markup.InlineKeyboard[1], 1)
}

func TestNotifierSendsRenderedNotice(t *testing.T) {
	s := &fakeSender{}
	n := NewNotifier(Renderer{})
	n.Notify(context.Background(), 1, operation.Notification{Kind: operation.NoticeBusy})
	assert.Empty(t, s.texts())

	n.Attach(s)
	n.Notify(context.Background(), 1, operation.Notification{Kind: operation.NoticeBusy})
	assert.Equal(t, []string{"⏳ Still working on your previous request…"}, s.texts())
}

func TestSendSecretSchedulesDeletion(t *testing.T) {
	s := &fakeSender{}
	timers := &scheduled{}
	n := NewNotifier(Renderer{})
	n.after = timers.after
	n.Attach(s)

	require.NoError(t, n.SendSecret(context.Background(), 1, Message{Text: "secret"}, time.Minute))
	require.Equal(t, []time.Duration{time.Minute}, timers.delays)
	assert.Empty(t, s.deleted)

	timers.runAll()
	require.Len(t, s.deleted, 1)
	assert.Equal(t, 1, s.deleted[0].(*tele.Message).ID)
}
