package vault

import (
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Changing any of them makes every stored record unreadable
// until it is re-encrypted (see Vault.Reencrypt).
const (
	ArgonTime    uint32 = 3
	ArgonMemory  uint32 = 64 * 1024
	ArgonThreads uint8  = 1
	ArgonKeyLen  uint32 = 32

	SaltSize = 16
)

// DerivationError reports a key derivation failure. It is fatal to the calling
// operation; there is no fallback to weaker parameters.
type DerivationError struct {
	Cause error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("vault: key derivation failed: %v", e.Cause)
}

func (e *DerivationError) Unwrap() error { return e.Cause }

// Code satisfies the router's error-code convention.
func (e *DerivationError) Code() string { return "VAULT_DERIVATION" }

// DeriveKey turns passphrase and salt into a 32-byte key held in locked memory.
// The caller owns the buffer and must Destroy it.
func DeriveKey(passphrase, salt []byte) (key *memguard.LockedBuffer, err error) {
	if len(passphrase) == 0 {
		return nil, &DerivationError{Cause: fmt.Errorf("empty passphrase")}
	}
	if len(salt) != SaltSize {
		return nil, &DerivationError{Cause: fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))}
	}

	defer func() {
		if r := recover(); r != nil {
			key = nil
			err = &DerivationError{Cause: fmt.Errorf("%v", r)}
		}
	}()

	raw := argon2.IDKey(passphrase, salt, ArgonTime, ArgonMemory, ArgonThreads, ArgonKeyLen)
	// NewBufferFromBytes wipes raw.
	return memguard.NewBufferFromBytes(raw), nil
}

// WithDerivedKey derives a key, hands it to fn and destroys it when fn returns.
// fn must not retain the slice.
func WithDerivedKey(passphrase, salt []byte, fn func(key []byte) error) error {
	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return err
	}
	defer key.Destroy()
	return fn(key.Bytes())
}
