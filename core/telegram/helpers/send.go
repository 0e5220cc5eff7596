package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/core/telegram/sender"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the queue used by Dispatch. Passing nil makes every
// call synchronous again.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// Dispatch runs an outbound call through the shared queue. Without a queue, or
// when it refuses work, run is called inline so replies are never dropped.
func Dispatch(ctx context.Context, action, endpoint string, run func() error) error {
	return dispatch(ctx, action, endpoint, run, false)
}

// DispatchOnce is Dispatch without retries, for messages that must not be
// delivered twice.
func DispatchOnce(ctx context.Context, action, endpoint string, run func() error) error {
	return dispatch(ctx, action, endpoint, run, true)
}

func dispatch(ctx context.Context, action, endpoint string, run func() error, once bool) error {
	disp := dispatcher.Load()
	if disp == nil {
		return run()
	}
	enqueue := disp.Enqueue
	if once {
		enqueue = disp.EnqueueOnce
	}
	err := enqueue(ctx, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

// SendMD replies in the current chat with Markdown text and optional markup.
func SendMD(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup}
	return Dispatch(BuildContext(c), "send.reply", "sendMessage", func() error {
		return c.Send(text, opts)
	})
}
