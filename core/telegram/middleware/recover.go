package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/logger"
	tghelpers "github.com/m3rciful/swapbot/core/telegram/helpers"
)

// PanicError reports a recovered handler panic.
type PanicError struct {
	Value string
}

func (e *PanicError) Error() string { return "handler panic: " + e.Value }

// Code implements the error code convention used in handler summaries.
func (e *PanicError) Code() string { return "PANIC" }

// RecoverMiddleware turns a handler panic into a *PanicError. The panic value
// is sanitized before it is logged or returned.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			perr := &PanicError{Value: logger.SanitizeLimit(fmt.Sprint(r), 256)}
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("err", perr.Value),
				slog.String("stack", string(debug.Stack())),
			)
			err = perr
		}()
		return next(c)
	}
}
