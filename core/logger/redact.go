package logger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const redacted = "<redacted>"

// secretRe matches 64 hex digits, the shape of an EVM private key, with or
// without a 0x prefix.
var secretRe = regexp.MustCompile(`(?i)(0x)?[0-9a-f]{64}`)

// secretKeys are attribute names whose values are never written.
var secretKeys = map[string]struct{}{
	"key":         {},
	"private_key": {},
	"passphrase":  {},
	"secret":      {},
	"token":       {},
}

// publicHexKeys carry 64-hex values that are public by nature.
var publicHexKeys = map[string]struct{}{
	"tx_hash":  {},
	"order_id": {},
}

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// Redact masks private-key shaped substrings in s.
func Redact(s string) string {
	if len(s) < 64 {
		return s
	}
	return secretRe.ReplaceAllString(s, redacted)
}

// SanitizeLimit applies Sanitize and Redact and keeps at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Redact(Sanitize(s)))
	if len(r) > max {
		r = r[:max]
	}
	return string(r)
}

// redactField masks value by attribute name, looking at the last segment of
// grouped keys, and otherwise by content.
func redactField(key, value string) string {
	if _, ok := secretKeys[key[strings.LastIndexByte(key, '.')+1:]]; ok {
		return redacted
	}
	if _, ok := publicHexKeys[key]; ok {
		return value
	}
	return Redact(value)
}

// BuildRID returns a correlation id in the form updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a BuildRID value as dot separated base36 segments.
// Other inputs are returned trimmed but otherwise unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
