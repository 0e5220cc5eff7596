package bot

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/swapbot/internal/operation"
	"github.com/m3rciful/swapbot/internal/profile"
)

const (
	testUser   int64 = 4242
	testKeyHex       = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testWallet       = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

type harness struct {
	h      *Handlers
	store  *profile.MemoryStore
	svc    *profile.Service
	ops    *fakeOps
	orders *fakeOrders
	keys   *fakeKeys
	sender *fakeSender
	timers *scheduled
}

// failingWallets fails AddWallet while everything else hits the service.
type failingWallets struct {
	*profile.Service
}

func (failingWallets) AddWallet(context.Context, int64, profile.Wallet) error {
	return errors.New("db down")
}

func newHarness(t *testing.T, wrap func(*profile.Service) Profiles) *harness {
	t.Helper()
	store := profile.NewMemoryStore()
	svc := profile.NewService(store, nil)
	hs := &harness{
		store:  store,
		svc:    svc,
		ops:    &fakeOps{},
		orders: &fakeOrders{},
		keys:   newFakeKeys(),
		sender: &fakeSender{},
		timers: &scheduled{},
	}
	notifier := NewNotifier(Renderer{NativeSymbol: "ETH"})
	notifier.after = hs.timers.after
	notifier.Attach(hs.sender)

	var profiles Profiles = svc
	if wrap != nil {
		profiles = wrap(svc)
	}
	h, err := New(Deps{
		Profiles:      profiles,
		Operations:    hs.ops,
		Orders:        hs.orders,
		Keys:          hs.keys,
		Notifier:      notifier,
		KeyMessageTTL: 30 * time.Second,
		NewKey:        func() (*ecdsa.PrivateKey, error) { return crypto.HexToECDSA(testKeyHex) },
	})
	require.NoError(t, err)
	hs.h = h
	return hs
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.EqualError(t, err, "bot: nil profiles")
}

func TestNewWalletSealsKeyAndRevealsOnce(t *testing.T) {
	hs := newHarness(t, nil)
	hs.store.Put(profile.UserProfile{ID: testUser, TermsAccepted: true})

	c := newFakeContext(testUser).withText("/newwallet")
	require.NoError(t, hs.h.handleNewWallet(c))

	assert.Equal(t, []byte(testKeyHex), hs.keys.stored[testWallet])

	p, err := hs.svc.Lookup(context.Background(), testUser, profile.ForceRefresh)
	require.NoError(t, err)
	require.Len(t, p.Wallets, 1)
	assert.Equal(t, testWallet, p.Wallets[0].Address)

	texts := hs.sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], testWallet)
	assert.Contains(t, texts[0], testKeyHex)
	assert.Empty(t, c.sent)

	require.Equal(t, []time.Duration{30 * time.Second}, hs.timers.delays)
	hs.timers.runAll()
	require.Len(t, hs.sender.deleted, 1)
}

func TestNewWalletRefusesWhenVaultFails(t *testing.T) {
	hs := newHarness(t, nil)
	hs.store.Put(profile.UserProfile{ID: testUser, TermsAccepted: true})
	hs.keys.storeOK = false

	c := newFakeContext(testUser).withText("/newwallet")
	require.NoError(t, hs.h.handleNewWallet(c))

	assert.Contains(t, c.last(), "no wallet was created")
	assert.Empty(t, hs.sender.texts())
	p, err := hs.svc.Lookup(context.Background(), testUser, profile.ForceRefresh)
	require.NoError(t, err)
	assert.Empty(t, p.Wallets)
}

func TestNewWalletRollsBackKeyWhenLinkFails(t *testing.T) {
	hs := newHarness(t, func(s *profile.Service) Profiles { return failingWallets{s} })
	hs.store.Put(profile.UserProfile{ID: testUser, TermsAccepted: true})

	c := newFakeContext(testUser).withText("/newwallet")
	assert.Error(t, hs.h.handleNewWallet(c))

	assert.Equal(t, []string{testWallet}, hs.keys.deleted)
	assert.Empty(t, hs.keys.stored)
	assert.Empty(t, hs.sender.texts())
}

func TestNewWalletRequiresTerms(t *testing.T) {
	hs := newHarness(t, nil)
	hs.store.Put(profile.UserProfile{ID: testUser})

	c := newFakeContext(testUser).withText("/newwallet")
	require.NoError(t, hs.h.handleNewWallet(c))
	assert.Equal(t, onboardingTexts[profile.ReasonTermsNotAccepted], c.last())
	assert.Empty(t, hs.keys.stored)

	c = newFakeContext(999).withText("/newwallet")
	require.NoError(t, hs.h.handleNewWallet(c))
	assert.Equal(t, onboardingTexts[profile.ReasonNotRegistered], c.last())
}

func TestStartAndTermsOnboarding(t *testing.T) {
	hs := newHarness(t, nil)

	c := newFakeContext(testUser).withText("/start")
	require.NoError(t, hs.h.handleStart(c))
	assert.Contains(t, c.last(), "Terms of use")
	require.NotNil(t, c.marks[len(c.marks)-1])

	c = newFakeContext(testUser).withCallback(cbTermsAccept, "yes")
	require.NoError(t, hs.h.onTermsAccept(c))

	p, err := hs.svc.Lookup(context.Background(), testUser, profile.ForceRefresh)
	require.NoError(t, err)
	assert.True(t, p.TermsAccepted)

	c = newFakeContext(testUser).withText("/start")
	require.NoError(t, hs.h.handleStart(c))
	assert.Contains(t, c.last(), "/newwallet")
}

func TestSecretInputIsDeletedBeforeSubmit(t *testing.T) {
	hs := newHarness(t, nil)
	hs.ops.snap = operation.Snapshot{Kind: operation.KeyVerification, Phase: operation.Collecting, Expected: operation.FieldSecret}

	c := newFakeContext(testUser).withText(testKeyHex)
	require.True(t, hs.h.InProgress(testUser))
	assert.True(t, hs.h.SensitiveInput(c))
	require.NoError(t, hs.h.ManagerHandler(c))

	require.Len(t, hs.sender.deleted, 1)
	assert.Same(t, c.msg, hs.sender.deleted[0])
	assert.Equal(t, []string{testKeyHex}, hs.ops.submitted)
}

func TestOrdinaryInputIsKept(t *testing.T) {
	hs := newHarness(t, nil)
	hs.ops.snap = operation.Snapshot{Kind: operation.Buy, Phase: operation.Collecting, Expected: operation.FieldAmount}
	hs.ops.err = &operation.ValidationError{Field: operation.FieldAmount, Hint: "must be positive"}

	c := newFakeContext(testUser).withText("-1")
	assert.False(t, hs.h.SensitiveInput(c))
	require.NoError(t, hs.h.ManagerHandler(c))
	assert.Empty(t, hs.sender.deleted)
	assert.Empty(t, c.sent)
}

func TestConfirmPassesIdempotencyKey(t *testing.T) {
	hs := newHarness(t, nil)
	hs.ops.snap = operation.Snapshot{Kind: operation.Buy, Phase: operation.Confirming, IdempotencyKey: "idem-1"}

	c := newFakeContext(testUser).withCallback(cbConfirm, "idem-1")
	require.NoError(t, hs.h.onConfirm(c))
	assert.Equal(t, []string{"idem-1"}, hs.ops.confirmed)
	assert.Equal(t, "⏳ Submitting…", c.last())
	assert.Equal(t, 1, c.answered)

	hs.ops.err = operation.ErrStaleConfirmation
	c = newFakeContext(testUser).withCallback(cbConfirm, "old")
	require.NoError(t, hs.h.onConfirm(c))
	assert.Equal(t, "This confirmation is no longer valid.", c.last())
}

func TestAmountPercentButton(t *testing.T) {
	hs := newHarness(t, nil)

	c := newFakeContext(testUser).withCallback(cbAmountPct, "25")
	require.NoError(t, hs.h.onAmountPercent(c))
	assert.Equal(t, []operation.Field{operation.FieldAmount}, hs.ops.fields)
	assert.Equal(t, []string{"25%"}, hs.ops.submitted)

	c = newFakeContext(testUser).withCallback(cbAmountPct, "250")
	require.NoError(t, hs.h.onAmountPercent(c))
	assert.Len(t, hs.ops.submitted, 1)
}

func TestStartOperationSwallowsNotifiedErrors(t *testing.T) {
	hs := newHarness(t, nil)
	hs.ops.err = &profile.EligibilityError{Reason: profile.ReasonNoWallet}

	c := newFakeContext(testUser).withText("/buy")
	assert.NoError(t, hs.h.startOperation(operation.Buy)(c))
	assert.Equal(t, []operation.Kind{operation.Buy}, hs.ops.started)

	hs.ops.err = errors.New("boom")
	assert.Error(t, hs.h.startOperation(operation.Sell)(c))
}

func TestCancelOrder(t *testing.T) {
	hs := newHarness(t, nil)
	hs.orders.out = operation.Outcome{Status: operation.Executed, TxHash: "0xbeef"}

	c := newFakeContext(testUser).withCallback(cbOrderCancel, "ord-1")
	require.NoError(t, hs.h.onOrderCancel(c))
	assert.Equal(t, []string{"ord-1"}, hs.orders.cancels)
	assert.Contains(t, c.last(), "cancelled")

	hs.orders.out = operation.Outcome{Status: operation.Failed, Reason: operation.ReasonNoKeyMaterial}
	c = newFakeContext(testUser).withText("/cancelorder ord-2")
	c.args = []string{"ord-2"}
	require.NoError(t, hs.h.handleCancelOrder(c))
	assert.Contains(t, c.last(), "stays active")

	hs.orders.err = operation.ErrOrderIDRequired
	c = newFakeContext(testUser).withText("/cancelorder")
	require.NoError(t, hs.h.handleCancelOrder(c))
	assert.Contains(t, c.last(), "Usage")

	hs.orders.err = &profile.EligibilityError{Reason: profile.ReasonNotRegistered}
	c = newFakeContext(testUser).withCallback(cbOrderCancel, "ord-3")
	require.NoError(t, hs.h.onOrderCancel(c))
	assert.Equal(t, onboardingTexts[profile.ReasonNotRegistered], c.last())
}

func TestOrdersList(t *testing.T) {
	hs := newHarness(t, nil)
	hs.orders.list = []operation.OrderSummary{{ID: "o1", Kind: operation.OrderLimit, Status: "open"}}

	c := newFakeContext(testUser).withCallback(cbOrdersList, "limit")
	require.NoError(t, hs.h.onOrdersList(c))
	assert.Equal(t, []operation.OrderKind{operation.OrderLimit}, hs.orders.kinds)
	assert.Contains(t, c.last(), "Active limit orders")

	c = newFakeContext(testUser).withCallback(cbOrdersList, "spot")
	require.NoError(t, hs.h.onOrdersList(c))
	assert.Len(t, hs.orders.kinds, 1)
}

func TestWalletDeleteAsksFirst(t *testing.T) {
	hs := newHarness(t, nil)
	hs.store.Put(profile.UserProfile{ID: testUser, TermsAccepted: true, Wallets: []profile.Wallet{{Address: testWallet}}})
	hs.keys.stored[testWallet] = []byte(testKeyHex)

	c := newFakeContext(testUser).withCallback(cbWalletDelete, strings.ToLower(testWallet))
	require.NoError(t, hs.h.onWalletDelete(c))
	assert.Contains(t, c.last(), "Remove wallet")
	assert.Empty(t, hs.keys.deleted)

	c = newFakeContext(testUser).withCallback(cbWalletDelete, confirmDeletePrefix+testWallet)
	require.NoError(t, hs.h.onWalletDelete(c))
	assert.Equal(t, []string{testWallet}, hs.keys.deleted)

	p, err := hs.svc.Lookup(context.Background(), testUser, profile.ForceRefresh)
	require.NoError(t, err)
	assert.Empty(t, p.Wallets)

	c = newFakeContext(testUser).withCallback(cbWalletDelete, confirmDeletePrefix+testWallet)
	require.NoError(t, hs.h.onWalletDelete(c))
	assert.Contains(t, c.last(), "not linked")
}

func TestWalletDefaultAndSettings(t *testing.T) {
	hs := newHarness(t, nil)
	other := "0x0000000000000000000000000000000000000Abc"
	hs.store.Put(profile.UserProfile{ID: testUser, TermsAccepted: true, Wallets: []profile.Wallet{{Address: testWallet}, {Address: other}}})

	c := newFakeContext(testUser).withCallback(cbWalletDefault, other)
	require.NoError(t, hs.h.onWalletDefault(c))

	c = newFakeContext(testUser).withText("/slippage 0.5")
	c.args = []string{"0.5"}
	require.NoError(t, hs.h.handleSlippage(c))

	c = newFakeContext(testUser).withText("/gas FAST")
	c.args = []string{"FAST"}
	require.NoError(t, hs.h.handleGas(c))

	p, err := hs.svc.Lookup(context.Background(), testUser, profile.ForceRefresh)
	require.NoError(t, err)
	require.NotNil(t, p.Settings)
	assert.Equal(t, profile.Settings{SlippageBps: 50, GasPriority: profile.GasFast, DefaultWallet: other}, *p.Settings)
	w, _ := p.PrimaryWallet()
	assert.Equal(t, other, w.Address)

	c = newFakeContext(testUser).withText("/gas turbo")
	c.args = []string{"turbo"}
	require.NoError(t, hs.h.handleGas(c))
	assert.Contains(t, c.last(), "must be standard")
}

func TestParseSlippage(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"0.5", 50, true},
		{"1%", 100, true},
		{"50", 5000, true},
		{"0.01", 1, true},
		{"0.005", 0, false},
		{"0", 0, false},
		{"51", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseSlippage(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestKeepButtonLeavesOperationAlone(t *testing.T) {
	hs := newHarness(t, nil)
	hs.ops.err = operation.ErrNoActive

	c := newFakeContext(testUser).withCallback(cbCancel, keepPayload)
	require.NoError(t, hs.h.onCancel(c))
	assert.Equal(t, "Nothing changed.", c.last())

	c = newFakeContext(testUser).withCallback(cbCancel, "cancel")
	require.NoError(t, hs.h.onCancel(c))
	assert.Equal(t, "There is no operation in progress.", c.last())
}

func TestGeneratedKeyEncoding(t *testing.T) {
	pk, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, hex.EncodeToString(crypto.FromECDSA(pk)))
	assert.Equal(t, testWallet, crypto.PubkeyToAddress(pk.PublicKey).Hex())
}

func TestRevealTextLivesInWipeableBuffer(t *testing.T) {
	key := []byte(testKeyHex)
	text := revealText(testWallet, key, 30*time.Second)

	assert.Equal(t,
		"🔐 *New wallet created*\nAddress: `"+testWallet+"`\nPrivate key: `"+testKeyHex+
			"`\n\nWrite the key down now. This message is deleted in 30 seconds. Check your backup any time with /verifykey.",
		string(text))

	memguard.WipeBytes(text)
	assert.NotContains(t, string(text), testKeyHex)
}
