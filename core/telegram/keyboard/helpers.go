// Package keyboard builds inline keyboards from plain button descriptions.
package keyboard

import (
	"context"
	"log/slog"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

const (
	// CancelText labels cancel buttons.
	CancelText = "❌ Cancel"
	// CancelPayload is the payload of a plain cancel button.
	CancelPayload = "cancel"
)

// Button describes one inline button.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Cancel returns the standard cancel button for unique.
func Cancel(unique string) Button {
	return Button{Text: CancelText, Unique: unique, Data: CancelPayload}
}

// Rows builds an inline keyboard, one slice per row. Buttons whose callback
// data exceeds the Telegram limit are dropped and logged; empty rows are skipped.
func Rows(rows ...[]Button) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		r := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			if !callbacks.Fits(b.Unique, b.Data) {
				logger.Warn(context.Background(), "tg", "keyboard.button.skip",
					slog.String("cb_key", b.Unique),
					slog.Int("data_len", len(callbacks.Encode(b.Unique, b.Data))),
				)
				continue
			}
			r = append(r, *markup.Data(b.Text, b.Unique, b.Data).Inline())
		}
		if len(r) > 0 {
			inline = append(inline, r)
		}
	}
	markup.InlineKeyboard = inline
	return markup
}

// Column places every button on its own row.
func Column(buttons ...Button) *tele.ReplyMarkup {
	rows := make([][]Button, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []Button{b})
	}
	return Rows(rows...)
}

// Grid lays buttons out perRow at a time and appends the tail rows below.
func Grid(buttons []Button, perRow int, tail ...[]Button) *tele.ReplyMarkup {
	if perRow < 1 {
		perRow = 1
	}
	var rows [][]Button
	for i := 0; i < len(buttons); i += perRow {
		rows = append(rows, buttons[i:min(i+perRow, len(buttons))])
	}
	return Rows(append(rows, tail...)...)
}
