// Package commands describes slash commands before they are bound to routes.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are gated by the admin check and kept off the menu.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Listed reports whether the command belongs in the public command menu.
func (c Command) Listed() bool {
	return !c.Hidden && !c.AdminOnly && c.Description != ""
}
