package vault

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Record is the at-rest shape of a sealed private key: three base64 strings.
// Changing this shape requires a migration that keeps old rows readable.
type Record struct {
	Ciphertext string `db:"ciphertext" json:"ciphertext"`
	Nonce      string `db:"nonce" json:"nonce"`
	Salt       string `db:"salt" json:"salt"`
}

type sealed struct {
	ciphertext []byte
	nonce      []byte
	salt       []byte
}

func encodeRecord(s sealed) Record {
	enc := base64.StdEncoding
	return Record{
		Ciphertext: enc.EncodeToString(s.ciphertext),
		Nonce:      enc.EncodeToString(s.nonce),
		Salt:       enc.EncodeToString(s.salt),
	}
}

func (r Record) decode() (sealed, error) {
	enc := base64.StdEncoding
	ct, err := enc.DecodeString(r.Ciphertext)
	if err != nil || len(ct) == 0 {
		return sealed{}, fmt.Errorf("%w: ciphertext", ErrMalformedRecord)
	}
	nonce, err := enc.DecodeString(r.Nonce)
	if err != nil || len(nonce) != NonceSize {
		return sealed{}, fmt.Errorf("%w: nonce", ErrMalformedRecord)
	}
	salt, err := enc.DecodeString(r.Salt)
	if err != nil || len(salt) != SaltSize {
		return sealed{}, fmt.Errorf("%w: salt", ErrMalformedRecord)
	}
	return sealed{ciphertext: ct, nonce: nonce, salt: salt}, nil
}

// NormalizeAddress returns the vault key for a wallet address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
