package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/core/telegram/helpers"
	"github.com/m3rciful/swapbot/internal/operation"
)

// Sender is the outbound part of the bot API used for notifications.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Notifier delivers machine notifications to Telegram chats. Conversation ids
// are user ids, which double as private chat ids.
type Notifier struct {
	render Renderer

	mu     sync.RWMutex
	sender Sender

	// after schedules delayed deletions; replaced in tests.
	after func(d time.Duration, fn func())
}

var _ operation.Notifier = (*Notifier)(nil)

// NewNotifier builds a notifier. Messages are dropped until Attach is called.
func NewNotifier(r Renderer) *Notifier {
	return &Notifier{
		render: r,
		after:  func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// Attach sets the bot once it exists.
func (n *Notifier) Attach(s Sender) {
	n.mu.Lock()
	n.sender = s
	n.mu.Unlock()
}

func (n *Notifier) current() Sender {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sender
}

// Notify renders and sends note to the conversation.
func (n *Notifier) Notify(ctx context.Context, conversationID int64, note operation.Notification) {
	msg := n.render.Notice(note)
	if err := n.send(ctx, conversationID, "notify", msg, nil); err != nil {
		logger.Warn(ctx, "tg", "notify.send",
			slog.String("status", "fail"),
			slog.Int("notice", int(note.Kind)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

// Send delivers a rendered message to chatID.
func (n *Notifier) Send(ctx context.Context, chatID int64, msg Message) error {
	return n.send(ctx, chatID, "text", msg, nil)
}

// SendSecret sends msg and deletes it ttl after delivery.
func (n *Notifier) SendSecret(ctx context.Context, chatID int64, msg Message, ttl time.Duration) error {
	return n.send(ctx, chatID, "secret", msg, func(sent *tele.Message) {
		if ttl > 0 {
			n.DeleteAfter(ctx, sent, ttl)
		}
	})
}

// DeleteAfter removes msg once ttl has passed.
func (n *Notifier) DeleteAfter(ctx context.Context, msg tele.Editable, ttl time.Duration) {
	ctx = context.WithoutCancel(ctx)
	n.after(ttl, func() { n.Delete(ctx, msg) })
}

// Delete removes msg now. Failures are logged only.
func (n *Notifier) Delete(ctx context.Context, msg tele.Editable) {
	s := n.current()
	if s == nil || msg == nil {
		return
	}
	err := helpers.Dispatch(ctx, "delete.message", "deleteMessage", func() error {
		return s.Delete(msg)
	})
	if err != nil {
		logger.Warn(ctx, "tg", "message.delete",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

// send runs through the shared dispatcher; onSent is called with the
// delivered message from whichever goroutine performed the send.
func (n *Notifier) send(ctx context.Context, chatID int64, action string, msg Message, onSent func(*tele.Message)) error {
	s := n.current()
	if s == nil {
		logger.Debug(ctx, "tg", "notify.send",
			slog.String("status", "skip"),
			slog.String("reason", "no_sender"),
		)
		return nil
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: msg.Markup}
	dispatch := helpers.Dispatch
	if onSent != nil {
		// A retried send could leave a copy that is never cleaned up.
		dispatch = helpers.DispatchOnce
	}
	return dispatch(ctx, "send."+action, "sendMessage", func() error {
		sent, err := s.Send(tele.ChatID(chatID), msg.Text, opts)
		if err == nil && sent != nil && onSent != nil {
			onSent(sent)
		}
		return err
	})
}
