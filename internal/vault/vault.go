// Package vault seals wallet private keys under a master passphrase and stores
// them through a Repository. Retrieval only ever returns authenticated plaintext.
package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/m3rciful/swapbot/core/logger"
)

// Repository persists sealed records keyed by normalized wallet address.
type Repository interface {
	Upsert(ctx context.Context, address string, rec Record) error
	// Get returns ErrNotFound when no record exists.
	Get(ctx context.Context, address string) (Record, error)
	// Delete must not fail for an absent record.
	Delete(ctx context.Context, address string) error
	Addresses(ctx context.Context) ([]string, error)
}

// Vault is the key vault store. It is safe for concurrent use; operations on the
// same address are linearizable, different addresses proceed independently.
type Vault struct {
	master *memguard.Enclave
	repo   Repository
	locks  keyedMutex
}

// New moves passphrase into protected memory (the slice is wiped) and returns a
// vault backed by repo.
func New(passphrase []byte, repo Repository) (*Vault, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("vault: empty master passphrase")
	}
	if repo == nil {
		return nil, errors.New("vault: nil repository")
	}
	return NewSealed(memguard.NewEnclave(passphrase), repo)
}

// NewSealed builds a Vault around a master passphrase that is already sealed
// in an enclave.
func NewSealed(master *memguard.Enclave, repo Repository) (*Vault, error) {
	if master == nil {
		return nil, errors.New("vault: empty master passphrase")
	}
	if repo == nil {
		return nil, errors.New("vault: nil repository")
	}
	return &Vault{
		master: master,
		repo:   repo,
		locks:  keyedMutex{entries: make(map[string]*lockEntry)},
	}, nil
}

// Store seals privateKey and persists it for address, replacing any prior record.
// A false result means the key is NOT protected and must not be presented as such.
func (v *Vault) Store(ctx context.Context, address string, privateKey []byte) bool {
	start := time.Now()
	key := NormalizeAddress(address)
	if key == "" || len(privateKey) == 0 {
		logger.Warn(ctx, "vault", "vault.store",
			slog.String("status", "skip"),
			slog.String("reason", "invalid_input"),
		)
		return false
	}

	rec, err := v.seal(privateKey)
	if err != nil {
		logger.Error(ctx, "vault", "vault.store",
			slog.String("status", "fail"),
			slog.String("wallet", key),
			slog.String("reason", "seal"),
			slog.String("err", err.Error()),
		)
		return false
	}

	unlock := v.locks.lock(key)
	err = v.repo.Upsert(ctx, key, rec)
	unlock()
	if err != nil {
		logger.Error(ctx, "vault", "vault.store",
			slog.String("status", "fail"),
			slog.String("wallet", key),
			slog.String("reason", "persist"),
			slog.String("err", err.Error()),
		)
		return false
	}

	logger.Info(ctx, "vault", "vault.store",
		slog.String("status", "ok"),
		slog.String("wallet", key),
		slog.Duration("duration", logger.Took(start)),
	)
	return true
}

// Retrieve returns the private key for address. Missing records and records that
// fail authentication are indistinguishable to the caller. The caller should wipe
// the returned slice after use.
func (v *Vault) Retrieve(ctx context.Context, address string) ([]byte, bool) {
	key := NormalizeAddress(address)
	if key == "" {
		return nil, false
	}

	unlock := v.locks.lock(key)
	rec, err := v.repo.Get(ctx, key)
	unlock()
	if err != nil {
		reason := "persist"
		if errors.Is(err, ErrNotFound) {
			reason = "absent"
		}
		logger.Debug(ctx, "vault", "vault.retrieve",
			slog.String("status", "fail"),
			slog.String("wallet", key),
			slog.String("reason", reason),
		)
		return nil, false
	}

	plaintext, err := v.open(rec)
	if err != nil {
		logger.Warn(ctx, "vault", "vault.retrieve",
			slog.String("status", "fail"),
			slog.String("wallet", key),
			slog.String("reason", "unreadable"),
		)
		return nil, false
	}
	return plaintext, true
}

// Delete removes the record for address. Deleting an absent record succeeds.
func (v *Vault) Delete(ctx context.Context, address string) bool {
	key := NormalizeAddress(address)
	if key == "" {
		return true
	}
	unlock := v.locks.lock(key)
	err := v.repo.Delete(ctx, key)
	unlock()
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Error(ctx, "vault", "vault.delete",
			slog.String("status", "fail"),
			slog.String("wallet", key),
			slog.String("err", err.Error()),
		)
		return false
	}
	logger.Info(ctx, "vault", "vault.delete",
		slog.String("status", "ok"),
		slog.String("wallet", key),
	)
	return true
}

// ReencryptReport summarizes a migration run.
type ReencryptReport struct {
	Migrated   int
	Unreadable []string
	Failed     []string
}

// Reencrypt re-seals every record readable by v under the passphrase of to.
// Records v cannot open are reported and left untouched.
func (v *Vault) Reencrypt(ctx context.Context, to *Vault) (ReencryptReport, error) {
	var report ReencryptReport
	if to == nil {
		return report, errors.New("vault: nil target vault")
	}
	addresses, err := v.repo.Addresses(ctx)
	if err != nil {
		return report, fmt.Errorf("vault: list addresses: %w", err)
	}
	for _, addr := range addresses {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		plaintext, ok := v.Retrieve(ctx, addr)
		if !ok {
			report.Unreadable = append(report.Unreadable, addr)
			continue
		}
		stored := to.Store(ctx, addr, plaintext)
		memguard.WipeBytes(plaintext)
		if !stored {
			report.Failed = append(report.Failed, addr)
			continue
		}
		report.Migrated++
	}
	logger.Info(ctx, "vault", "vault.reencrypt",
		slog.String("status", logger.Status(nil)),
		slog.Int("count", report.Migrated),
		slog.Int("unreadable", len(report.Unreadable)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// CheckReport counts records by readability under the current passphrase.
type CheckReport struct {
	Total      int
	Unreadable []string
}

// Check opens every stored record and reports the ones that fail
// authentication. Plaintext is wiped immediately.
func (v *Vault) Check(ctx context.Context) (CheckReport, error) {
	var report CheckReport
	addresses, err := v.repo.Addresses(ctx)
	if err != nil {
		return report, fmt.Errorf("vault: list addresses: %w", err)
	}
	for _, addr := range addresses {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Total++
		plaintext, ok := v.Retrieve(ctx, addr)
		if !ok {
			report.Unreadable = append(report.Unreadable, addr)
			continue
		}
		memguard.WipeBytes(plaintext)
	}
	status := "ok"
	if len(report.Unreadable) > 0 {
		status = "fail"
	}
	logger.Info(ctx, "vault", "vault.check",
		slog.String("status", status),
		slog.Int("count", report.Total),
		slog.Int("unreadable", len(report.Unreadable)),
	)
	return report, nil
}

func (v *Vault) seal(plaintext []byte) (Record, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return Record{}, fmt.Errorf("vault: generate salt: %w", err)
	}

	master, err := v.master.Open()
	if err != nil {
		return Record{}, fmt.Errorf("vault: open master passphrase: %w", err)
	}
	defer master.Destroy()

	var ct, nonce []byte
	err = WithDerivedKey(master.Bytes(), salt, func(key []byte) error {
		var sealErr error
		ct, nonce, sealErr = Seal(plaintext, key)
		return sealErr
	})
	if err != nil {
		return Record{}, err
	}
	return encodeRecord(sealed{ciphertext: ct, nonce: nonce, salt: salt}), nil
}

func (v *Vault) open(rec Record) ([]byte, error) {
	s, err := rec.decode()
	if err != nil {
		return nil, err
	}

	master, err := v.master.Open()
	if err != nil {
		return nil, fmt.Errorf("vault: open master passphrase: %w", err)
	}
	defer master.Destroy()

	var plaintext []byte
	err = WithDerivedKey(master.Bytes(), s.salt, func(key []byte) error {
		var openErr error
		plaintext, openErr = Open(s.ciphertext, s.nonce, key)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
