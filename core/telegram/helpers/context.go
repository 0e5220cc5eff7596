package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/logger"
)

// storeKey holds the request context inside tele.Context.
const storeKey = "logger_ctx"

// StoreContext caches ctx on c for later handlers and middlewares.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(storeKey, ctx)
	}
}

// BuildContext returns the request context for c, creating it on first use.
// It carries the request id plus update, user and chat ids so that every log
// line of one update can be joined.
func BuildContext(c tele.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if cached, ok := c.Get(storeKey).(context.Context); ok {
		return cached
	}

	var userID, chatID int64
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		chatID = ch.ID
	}
	updateID := c.Update().ID

	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the request context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
