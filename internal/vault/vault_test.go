package vault

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/awnumar/memguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassphrase = "masterpass123-for-tests"

func newTestVault(t *testing.T, repo Repository) *Vault {
	t.Helper()
	v, err := New([]byte(testPassphrase), repo)
	require.NoError(t, err)
	return v
}

func TestSealOpenRoundTrip(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, SaltSize)
	err := WithDerivedKey([]byte(testPassphrase), salt, func(key []byte) error {
		ct, nonce, err := Seal([]byte("0xabc123"), key)
		require.NoError(t, err)
		assert.Len(t, nonce, NonceSize)

		pt, err := Open(ct, nonce, key)
		require.NoError(t, err)
		assert.Equal(t, "0xabc123", string(pt))
		return nil
	})
	require.NoError(t, err)
}

func TestOpenRejectsTampering(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, SaltSize)
	err := WithDerivedKey([]byte(testPassphrase), salt, func(key []byte) error {
		ct, nonce, err := Seal([]byte("secret"), key)
		require.NoError(t, err)

		flipped := append([]byte(nil), ct...)
		flipped[0] ^= 0x01
		pt, err := Open(flipped, nonce, key)
		assert.ErrorIs(t, err, ErrAuth)
		assert.Nil(t, pt)

		badNonce := append([]byte(nil), nonce...)
		badNonce[3] ^= 0x80
		_, err = Open(ct, badNonce, key)
		assert.ErrorIs(t, err, ErrAuth)

		_, err = Open(ct, nonce[:12], key)
		assert.ErrorIs(t, err, ErrAuth)
		return nil
	})
	require.NoError(t, err)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{9}, SaltSize)
	a, err := DeriveKey([]byte(testPassphrase), salt)
	require.NoError(t, err)
	defer a.Destroy()
	b, err := DeriveKey([]byte(testPassphrase), salt)
	require.NoError(t, err)
	defer b.Destroy()

	assert.Len(t, a.Bytes(), int(ArgonKeyLen))
	assert.True(t, bytes.Equal(a.Bytes(), b.Bytes()))
}

func TestDeriveKeyRejectsBadInput(t *testing.T) {
	_, err := DeriveKey(nil, make([]byte, SaltSize))
	var derr *DerivationError
	require.ErrorAs(t, err, &derr)

	_, err = DeriveKey([]byte("pass"), []byte("short"))
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "VAULT_DERIVATION", derr.Code())
}

func TestVaultStoreRetrieve(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	v := newTestVault(t, repo)

	require.True(t, v.Store(ctx, "0xAbC0000000000000000000000000000000000001", []byte("0xabc123")))

	got, ok := v.Retrieve(ctx, "0xabc0000000000000000000000000000000000001")
	require.True(t, ok)
	assert.Equal(t, "0xabc123", string(got))

	rec, err := repo.Get(ctx, "0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)
	nonce, err := base64.StdEncoding.DecodeString(rec.Nonce)
	require.NoError(t, err)
	assert.Len(t, nonce, NonceSize)
}

func TestNewSealedSharesKeysWithNew(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.True(t, newTestVault(t, repo).Store(ctx, "0xabc0000000000000000000000000000000000002", []byte("0xfeed")))

	sealed, err := NewSealed(memguard.NewEnclave([]byte(testPassphrase)), repo)
	require.NoError(t, err)
	got, ok := sealed.Retrieve(ctx, "0xabc0000000000000000000000000000000000002")
	require.True(t, ok)
	assert.Equal(t, "0xfeed", string(got))

	_, err = NewSealed(nil, repo)
	assert.Error(t, err)
}

func TestVaultCiphertextIsNotDeterministic(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	v := newTestVault(t, repo)

	require.True(t, v.Store(ctx, "wallet-a", []byte("same")))
	first, err := repo.Get(ctx, "wallet-a")
	require.NoError(t, err)

	require.True(t, v.Store(ctx, "wallet-a", []byte("same")))
	second, err := repo.Get(ctx, "wallet-a")
	require.NoError(t, err)

	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.Salt, second.Salt)
}

func TestVaultRetrieveFailsClosedOnBitFlip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	v := newTestVault(t, repo)
	require.True(t, v.Store(ctx, "wallet-b", []byte("0xdeadbeef")))
	orig, err := repo.Get(ctx, "wallet-b")
	require.NoError(t, err)

	flip := func(field string) string {
		raw, err := base64.StdEncoding.DecodeString(field)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0x01
		return base64.StdEncoding.EncodeToString(raw)
	}

	cases := map[string]Record{
		"ciphertext": {Ciphertext: flip(orig.Ciphertext), Nonce: orig.Nonce, Salt: orig.Salt},
		"nonce":      {Ciphertext: orig.Ciphertext, Nonce: flip(orig.Nonce), Salt: orig.Salt},
		"salt":       {Ciphertext: orig.Ciphertext, Nonce: orig.Nonce, Salt: flip(orig.Salt)},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			repo.Put("wallet-b", rec)
			got, ok := v.Retrieve(ctx, "wallet-b")
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}

func TestVaultRetrieveAbsentAndWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	v := newTestVault(t, repo)

	got, ok := v.Retrieve(ctx, "never-stored")
	assert.False(t, ok)
	assert.Nil(t, got)

	require.True(t, v.Store(ctx, "wallet-c", []byte("key")))
	other, err := New([]byte("a-different-master-passphrase"), repo)
	require.NoError(t, err)
	_, ok = other.Retrieve(ctx, "wallet-c")
	assert.False(t, ok)
}

func TestVaultDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, NewMemoryRepository())

	assert.True(t, v.Delete(ctx, "absent"))
	require.True(t, v.Store(ctx, "wallet-d", []byte("key")))
	assert.True(t, v.Delete(ctx, "WALLET-D"))
	assert.True(t, v.Delete(ctx, "wallet-d"))
	_, ok := v.Retrieve(ctx, "wallet-d")
	assert.False(t, ok)
}

func TestVaultStoreReportsPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	repo.FailWrites = errors.New("db down")
	v := newTestVault(t, repo)

	assert.False(t, v.Store(ctx, "wallet-e", []byte("key")))
	assert.False(t, v.Store(ctx, "", []byte("key")))
	assert.False(t, v.Store(ctx, "wallet-e", nil))
}

func TestVaultStoreThenRetrieveObservesLatest(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, NewMemoryRepository())

	var wg sync.WaitGroup
	for i, addr := range []string{"w1", "w2", "w3"} {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			value := []byte{byte('a' + i)}
			if !v.Store(ctx, addr, value) {
				t.Errorf("store %s failed", addr)
				return
			}
			got, ok := v.Retrieve(ctx, addr)
			if !ok || !bytes.Equal(got, value) {
				t.Errorf("retrieve %s = %q, %v", addr, got, ok)
			}
		}(i, addr)
	}
	wg.Wait()
}

func TestVaultReencrypt(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	oldVault := newTestVault(t, repo)
	require.True(t, oldVault.Store(ctx, "wallet-f", []byte("key-f")))
	repo.Put("wallet-g", Record{Ciphertext: "AAAA", Nonce: "AAAA", Salt: "AAAA"})

	newVault, err := New([]byte("rotated-master-passphrase"), repo)
	require.NoError(t, err)

	report, err := oldVault.Reencrypt(ctx, newVault)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)
	assert.Equal(t, []string{"wallet-g"}, report.Unreadable)

	got, ok := newVault.Retrieve(ctx, "wallet-f")
	require.True(t, ok)
	assert.Equal(t, "key-f", string(got))
	_, ok = oldVault.Retrieve(ctx, "wallet-f")
	assert.False(t, ok)
}

func TestVaultCheck(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	v := newTestVault(t, repo)
	require.True(t, v.Store(ctx, "wallet-h", []byte("key-h")))
	repo.Put("wallet-i", Record{Ciphertext: "AAAA", Nonce: "AAAA", Salt: "AAAA"})

	report, err := v.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, []string{"wallet-i"}, report.Unreadable)
}
