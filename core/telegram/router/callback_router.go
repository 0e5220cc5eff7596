package router

import (
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/swapbot/core/telegram"
	"github.com/m3rciful/swapbot/core/telegram/callbacks"
	"github.com/m3rciful/swapbot/core/telegram/middleware"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute dispatches inline button presses by their unique key. The
// button spinner is cleared afterwards unless the handler answered itself.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		start := time.Now()
		key := callbacks.Key(c)
		extras := []slog.Attr{slog.String("cb_key", key)}

		run, ok := reg.GetCallback(key)
		if !ok {
			run = reg.CallbackNotFound()
			if run == nil {
				run = opts.NotFound
			}
			extras = append(extras, slog.String("reason", "not_found"))
		}

		err := handle(c, "callback."+normalizeHandlerName(key), start, func() error {
			if run == nil {
				return nil
			}
			return run(c)
		}, extras...)
		if !middleware.GetCounters(c).Responded {
			_ = c.Respond()
		}
		return err
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
