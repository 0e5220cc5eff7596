package router

import (
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/logger"
	tg "github.com/m3rciful/swapbot/core/telegram"
	"github.com/m3rciful/swapbot/core/telegram/middleware"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes binds every command and alias, in registration order.
// Admin-only commands get the admin check on each endpoint.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	var routes []tg.Route
	for _, name := range reg.Names() {
		_, def, _ := reg.LookupCommand(name)
		handlerName := "cmd." + normalizeHandlerName(name)
		run := def.Handler
		h := func(c tele.Context) error {
			return handle(c, handlerName, time.Now(), func() error { return run(c) })
		}
		if def.AdminOnly {
			h = adminOnly(h)
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
		for _, alias := range def.Aliases {
			routes = append(routes, tg.Route{Endpoint: tg.Slashed(alias), Handler: h})
		}
	}

	logger.TWire.Info("routes.commands",
		slog.Int("commands", len(reg.Names())),
		slog.Int("endpoints", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
