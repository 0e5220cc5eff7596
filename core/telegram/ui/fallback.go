// Package ui holds the replies shared by routes that did not match.
package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider answers updates no command, callback or open
// conversation claimed, and commands the sender may not run.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
	AdminRejected() tele.HandlerFunc
}
