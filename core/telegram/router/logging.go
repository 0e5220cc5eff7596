package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/logger"
	tghelpers "github.com/m3rciful/swapbot/core/telegram/helpers"
	"github.com/m3rciful/swapbot/core/telegram/middleware"
)

// handle runs fn under handlerName and writes one summary line with the
// reply counters of the update.
func handle(c tele.Context, handlerName string, start time.Time, fn func() error, extras ...slog.Attr) error {
	ctx := tghelpers.WithHandler(c, handlerName)
	err := fn()

	counters := middleware.GetCounters(c)
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("outcome", outcome),
		slog.Int("messages", counters.Messages),
		slog.Bool("kb", counters.Keyboard),
		slog.Duration("duration", logger.Took(start)),
	}
	if counters.Alerts > 0 {
		attrs = append(attrs, slog.Int("alerts", counters.Alerts))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", append(attrs, extras...)...)
	return err
}

func normalizeHandlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// errorCode prefers a Code() anywhere in the wrap chain and falls back to
// the dynamic type name.
func errorCode(err error) string {
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}
