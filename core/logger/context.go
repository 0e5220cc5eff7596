package logger

import (
	"context"
	"log/slog"
)

type metaKey struct{}

// meta is the per-request logging metadata carried in a context.
type meta struct {
	log      *slog.Logger
	rid      string
	handler  string
	updateID int
	userID   int64
	chatID   int64
}

func metaFrom(ctx context.Context) meta {
	if ctx == nil {
		return meta{}
	}
	m, _ := ctx.Value(metaKey{}).(meta)
	return m
}

func withMeta(ctx context.Context, edit func(*meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	edit(&m)
	return context.WithValue(ctx, metaKey{}, m)
}

// WithLogger stores log in ctx for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.log = log })
}

// FromContext returns the logger stored in ctx or the base logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l := metaFrom(ctx).log; l != nil {
		return l
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *meta) { m.rid = rid })
}

// RIDFrom returns the request correlation id.
func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// WithUpdateMeta attaches the Telegram update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.updateID = updateID
		m.userID = userID
		m.chatID = chatID
	})
}

// WithHandler names the handler serving the request.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.handler = handler })
}

// HandlerFrom returns the handler name.
func HandlerFrom(ctx context.Context) string { return metaFrom(ctx).handler }

// UserIDFrom returns the Telegram user id.
func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

// ChatIDFrom returns the chat id.
func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).chatID }

// UpdateIDFrom returns the update id.
func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }

// addContextFields copies request metadata into fields without overriding
// values set explicitly on the record.
func addContextFields(ctx context.Context, fields map[string]any) {
	m := metaFrom(ctx)
	setDefault := func(key string, v any, empty bool) {
		if empty {
			return
		}
		if _, ok := fields[key]; !ok {
			fields[key] = v
		}
	}
	setDefault("rid", m.rid, m.rid == "")
	setDefault("handler", m.handler, m.handler == "")
	setDefault("update_id", m.updateID, m.updateID == 0)
	setDefault("user_id", m.userID, m.userID == 0)
	setDefault("chat_id", m.chatID, m.chatID == 0)
}
