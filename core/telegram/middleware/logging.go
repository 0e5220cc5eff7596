package middleware

import (
	"log/slog"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/swapbot/core/telegram/helpers"
)

const startKey = "update_start"

// sensitive reports whether the text of an update must not be logged.
var sensitive atomic.Pointer[func(tele.Context) bool]

// SetSensitiveInput installs the predicate that marks updates carrying
// secrets, such as a private key typed in reply to a prompt. Their text is
// never logged; only its length is.
func SetSensitiveInput(fn func(tele.Context) bool) {
	if fn == nil {
		sensitive.Store(nil)
		return
	}
	sensitive.Store(&fn)
}

// IsSensitive applies the installed predicate.
func IsSensitive(c tele.Context) bool {
	fn := sensitive.Load()
	return fn != nil && (*fn)(c)
}

// LoggerMiddleware attaches the request context (rid, update, user and chat
// ids) to the update and logs a sampled receipt line. A second pass over the
// same update is a no-op.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, seen := c.Get(startKey).(time.Time); seen {
			return next(c)
		}
		c.Set(startKey, time.Now())
		ctx := tghelpers.BuildContext(c)

		if logger.ShouldSampleDebug() {
			attrs := append([]slog.Attr{slog.String("status", "ok")}, receiptAttrs(c)...)
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", attrs...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	var attrs []slog.Attr
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil && user.Username != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
	}

	upd := c.Update()
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.Parse(upd.Callback)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil:
		t := c.Text()
		switch {
		case t == "":
		case IsSensitive(c):
			attrs = append(attrs, slog.Bool("redacted", true), slog.Int("payload_len", len(t)))
		default:
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}
