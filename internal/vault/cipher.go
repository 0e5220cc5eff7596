package vault

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the XChaCha20-Poly1305 nonce length.
const NonceSize = chacha20poly1305.NonceSizeX

// Seal encrypts plaintext under key with a fresh random nonce.
// The returned ciphertext carries the Poly1305 tag.
func Seal(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("vault: generate nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open authenticates and decrypts ciphertext. Every failure is reported as ErrAuth
// and no partial plaintext is returned.
func Open(ciphertext, nonce, key []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrAuth
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrAuth
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuth
	}
	return plaintext, nil
}
