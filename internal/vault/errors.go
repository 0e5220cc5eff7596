package vault

import "errors"

var (
	// ErrNotFound is returned by a Repository when no record exists for the address.
	ErrNotFound = errors.New("vault: record not found")
	// ErrAuth reports a failed tag verification or a malformed sealed payload.
	ErrAuth = errors.New("vault: authentication failed")
	// ErrMalformedRecord reports a stored record whose fields cannot be decoded.
	ErrMalformedRecord = errors.New("vault: malformed record")
)
