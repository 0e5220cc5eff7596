package logger

import (
	"strings"
	"time"
)

// Level names as written to the log.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Values accepted for the enumerated keys; anything else is dropped, except
// status which is passed through lower-cased.
var (
	statusValues = map[string]string{
		"ok":           "ok",
		"error":        "fail",
		"fail":         "fail",
		"skip":         "skip",
		"retry":        "retry",
		"rate_limited": "rate_limited",
		"cancelled":    "cancelled",
	}
	cacheValues   = []string{"hit", "miss", "stale", "refresh"}
	outcomeValues = []string{"ok", "fail", "cancelled", "rate_limited"}
)

var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"op", "cb_key", "outcome", "duration_ms",
	"messages", "kb", "alerts", "count", "cache",
	"payload", "payload_len", "redacted",
	"mode", "listen", "public_url", "http_code",
	"kind", "phase", "field", "wallet", "order_id", "idem_key", "tx_hash",
	"reason", "err", "err_code", "error_code", "error_kind",
	"attempt", "attempts", "delay_ms",
}

// Status maps err to the status value used in logs.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Took returns the rounded time elapsed since start.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to the nearest millisecond; negative values become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins up to limit values and reports whether some were cut.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}

func normalizeEnums(fields map[string]any) {
	if s, ok := fields["status"].(string); ok {
		s = strings.ToLower(s)
		if mapped, known := statusValues[s]; known {
			s = mapped
		}
		fields["status"] = s
	}
	keepIfKnown(fields, "cache", cacheValues)
	keepIfKnown(fields, "outcome", outcomeValues)
}

func keepIfKnown(fields map[string]any, key string, allowed []string) {
	v, ok := fields[key].(string)
	if !ok {
		return
	}
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			fields[key] = v
			return
		}
	}
	delete(fields, key)
}
