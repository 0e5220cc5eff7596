package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/core/telegram/commands"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Registry holds bot commands and callbacks. Commands keep their
// registration order, which is also the order of the Telegram menu.
type Registry struct {
	commands         map[string]commands.Command
	order            []string
	aliases          map[string]string
	callbacks        map[string]tele.HandlerFunc
	callbacksMu      sync.RWMutex
	callbackNotFound tele.HandlerFunc
}

// NewRegistry creates an empty Registry with default fallbacks.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
			return nil
		},
	}
}

// Slashed returns name with a leading slash.
func Slashed(name string) string {
	name = strings.TrimSpace(name)
	if name != "" && !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}

// RegisterCommand adds a command and its aliases. Names and aliases must be
// unique across the registry.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	if r == nil || cmd.Handler == nil || cmd.Description == "" || !strings.HasPrefix(name, "/") {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return fmt.Errorf("invalid command registration: %q", name)
	}
	if r.taken(name) {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.duplicate",
			slog.String("name", name),
		)
		return fmt.Errorf("command already registered: %s", name)
	}
	for _, alias := range cmd.Aliases {
		if a := Slashed(alias); a == "" || a == name || r.taken(a) {
			return fmt.Errorf("alias %q of %s conflicts", alias, name)
		}
	}
	r.commands[name] = cmd
	r.order = append(r.order, name)
	for _, alias := range cmd.Aliases {
		r.aliases[Slashed(alias)] = name
	}
	return nil
}

func (r *Registry) taken(name string) bool {
	if _, ok := r.commands[name]; ok {
		return true
	}
	_, ok := r.aliases[name]
	return ok
}

// ListCommands returns commands in registration order, optionally without
// hidden and admin-only ones.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.order))
	for _, name := range r.order {
		meta := r.commands[name]
		if visibleOnly && !meta.Listed() {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: meta.Description})
	}
	return list
}

// LookupCommand resolves a command name or alias, with or without the slash,
// and returns the canonical name with its metadata.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = Slashed(name)
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// Names returns the canonical command names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// RegisterCallback adds a callback handler mapped to its key.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if r == nil || key == "" || handler == nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.callback.skip",
			slog.String("cb_key", key),
			slog.Bool("handler_nil", handler == nil),
		)
		return errors.New("invalid callback registration")
	}
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.callback.duplicate",
			slog.String("cb_key", key),
		)
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback safely returns handler by key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns sorted keys (for diagnostics).
func (r *Registry) ListCallbacks() []string {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetCallbackNotFound replaces the fallback handler for unknown callbacks.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h != nil {
		r.callbackNotFound = h
	}
}

// CallbackNotFound returns the current fallback callback handler.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	return r.callbackNotFound
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
	}
}
