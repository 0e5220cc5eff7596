package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPolicies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(sampleProfile())
	svc := NewService(store, NewCache())

	_, err := svc.Lookup(ctx, 5, AllowStale)
	require.NoError(t, err)
	_, err = svc.Lookup(ctx, 5, AllowStale)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Reads)

	_, err = svc.Lookup(ctx, 5, ForceRefresh)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Reads)
}

func TestLookupTreatsStoreFailureAsMiss(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(sampleProfile())
	svc := NewService(store, nil)

	_, err := svc.Lookup(ctx, 5, AllowStale)
	require.NoError(t, err)

	store.FailReads = errors.New("connection reset")
	_, err = svc.Lookup(ctx, 5, ForceRefresh)
	assert.ErrorIs(t, err, ErrNotFound)

	_, ok := svc.Cache().Get(5)
	assert.False(t, ok, "a failed forced refresh must not leave a stale entry behind")
}

func TestWalletCreationVisibleToNextEligibilityCheck(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, nil)

	require.NoError(t, svc.EnsureUser(ctx, 8))
	require.NoError(t, svc.AcceptTerms(ctx, 8))

	_, err := svc.RequireEligible(ctx, 8, AllowStale)
	var eligErr *EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, ReasonNoWallet, eligErr.Reason)
	assert.ErrorIs(t, err, ErrNotEligible)

	require.NoError(t, svc.AddWallet(ctx, 8, Wallet{Address: "0xnew"}))
	p, err := svc.RequireEligible(ctx, 8, AllowStale)
	require.NoError(t, err)
	assert.True(t, p.TradeEligible())
}

// gatedStore parks GetUserProfile after it has taken its snapshot until
// release is closed.
type gatedStore struct {
	*MemoryStore
	read    chan struct{}
	release chan struct{}
}

func (g *gatedStore) GetUserProfile(ctx context.Context, userID int64) (UserProfile, error) {
	p, err := g.MemoryStore.GetUserProfile(ctx, userID)
	g.read <- struct{}{}
	<-g.release
	return p, err
}

func TestWalletAddedDuringLookupIsNotMaskedByCache(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.Put(UserProfile{ID: 8, TermsAccepted: true})
	gated := &gatedStore{MemoryStore: mem, read: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(gated, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Lookup(ctx, 8, AllowStale)
		done <- err
	}()
	<-gated.read

	// The wallet write lands between the snapshot and the cache fill.
	require.NoError(t, svc.AddWallet(ctx, 8, Wallet{Address: "0xnew"}))
	close(gated.release)
	require.NoError(t, <-done)

	_, ok := svc.Cache().Get(8)
	assert.False(t, ok, "a snapshot older than the last write must not be cached")

	go func() { <-gated.read }()
	p, err := svc.RequireEligible(ctx, 8, AllowStale)
	require.NoError(t, err)
	assert.True(t, p.TradeEligible())
}

func TestCacheRefusesFillAfterInvalidate(t *testing.T) {
	c := NewCache()
	gen := c.Generation(5)
	c.Invalidate(5)
	assert.False(t, c.SetIfGeneration(5, gen, sampleProfile()))
	_, ok := c.Get(5)
	assert.False(t, ok)

	gen = c.Generation(5)
	assert.True(t, c.SetIfGeneration(5, gen, sampleProfile()))
	assert.False(t, c.MergeUpdate(6, Patch{}))
	assert.Equal(t, gen, c.Generation(5))
	_, ok = c.Get(5)
	assert.True(t, ok)
}

func TestRequireEligibleUnknownUser(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	_, err := svc.RequireEligible(context.Background(), 404, AllowStale)
	var eligErr *EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, ReasonNotRegistered, eligErr.Reason)
}

func TestUpdateSettingsMergesIntoCache(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(sampleProfile())
	svc := NewService(store, nil)

	_, err := svc.Lookup(ctx, 5, AllowStale)
	require.NoError(t, err)
	require.NoError(t, svc.UpdateSettings(ctx, 5, Settings{SlippageBps: 300, GasPriority: GasInstant}))

	p, ok := svc.Cache().Get(5)
	require.True(t, ok)
	assert.Equal(t, 300, p.EffectiveSettings().SlippageBps)
	assert.Equal(t, 1, store.Reads)
}

func TestRemoveWalletInvalidates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(sampleProfile())
	svc := NewService(store, nil)

	_, err := svc.Lookup(ctx, 5, AllowStale)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveWallet(ctx, 5, "0xAAA"))

	p, err := svc.Lookup(ctx, 5, AllowStale)
	require.NoError(t, err)
	require.Len(t, p.Wallets, 1)
	assert.Equal(t, "0xbbb", p.Wallets[0].Address)
}
