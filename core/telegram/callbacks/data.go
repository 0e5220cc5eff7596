// Package callbacks encodes and decodes inline button data.
package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// MaxDataLen is the Telegram limit for callback data in bytes.
const MaxDataLen = 64

// Encode returns the data telebot sends for a button with unique and payload.
func Encode(unique, payload string) string {
	if payload == "" {
		return "\f" + unique
	}
	return "\f" + unique + "|" + payload
}

// Fits reports whether a button with unique and payload stays within MaxDataLen.
func Fits(unique, payload string) bool {
	return len(Encode(unique, payload)) <= MaxDataLen
}

// Parse splits callback data into unique and payload. Both the raw form feed
// prefix and its escaped form are accepted.
func Parse(cb *tele.Callback) (unique, payload string) {
	if cb == nil {
		return "", ""
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	raw = strings.TrimPrefix(raw, `\f`)
	unique, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// Key returns cb.Unique if present, otherwise the unique parsed from Data.
func Key(c tele.Context) string {
	cb := c.Callback()
	if cb == nil {
		return ""
	}
	if cb.Unique != "" {
		return cb.Unique
	}
	k, _ := Parse(cb)
	return k
}

// Payload returns the raw payload. Data is parsed because cb.Unique is empty
// for updates routed through tele.OnCallback.
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}

// PayloadString returns the trimmed payload or strconv.ErrSyntax when empty.
func PayloadString(c tele.Context) (string, error) {
	p := strings.TrimSpace(Payload(c))
	if p == "" {
		return "", strconv.ErrSyntax
	}
	return p, nil
}

// PayloadInt parses the payload as an integer within [lo, hi].
func PayloadInt(c tele.Context, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(Payload(c)))
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, strconv.ErrRange
	}
	return n, nil
}
