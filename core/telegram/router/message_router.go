package router

import (
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/swapbot/core/telegram"
	"github.com/m3rciful/swapbot/core/telegram/middleware"
)

// Flow owns free-form input while a multi-step conversation is open.
type Flow interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes routes text and documents to the open flow first, then to
// commands typed as text, then to the fallbacks.
func TextRoutes(flow Flow, reg *tg.Registry, opts TextOptions) []tg.Route {
	inFlow := func(c tele.Context) bool {
		return flow != nil && c.Sender() != nil && flow.InProgress(c.Sender().ID)
	}

	handler := func(c tele.Context) error {
		start := time.Now()

		if inFlow(c) {
			return handle(c, "flow.input", start, func() error {
				return flow.ManagerHandler(c)
			}, slog.Bool("sensitive", middleware.IsSensitive(c)))
		}

		// Admin-only commands are served by their own routes, which check
		// the sender; text matching never reaches them.
		if name := commandName(c.Text()); reg != nil && name != "" {
			if key, cmd, ok := reg.LookupCommand(name); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return handle(c, "cmd."+normalizeHandlerName(key), start, func() error {
					return cmd.Handler(c)
				})
			}
		}

		return handle(c, "unknown_text", start, func() error {
			return orNoop(opts.UnknownText)(c)
		})
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if inFlow(c) {
			return handle(c, "flow.document", start, func() error {
				return flow.ManagerHandler(c)
			})
		}
		return handle(c, "unexpected_document", start, func() error {
			return orNoop(opts.UnknownDocument)(c)
		})
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: handler},
		{Endpoint: tele.OnDocument, Handler: docHandler},
	}
}

// commandName extracts the leading command token of text, without arguments
// or a @botname suffix.
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return name
}

func orNoop(h tele.HandlerFunc) tele.HandlerFunc {
	if h == nil {
		return func(tele.Context) error { return nil }
	}
	return h
}
