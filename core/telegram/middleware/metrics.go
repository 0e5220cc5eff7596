package middleware

import (
	tele "gopkg.in/telebot.v4"
)

const countersKey = "reply_counters"

// Counters summarize what a handler sent back for one update.
type Counters struct {
	Messages int
	Keyboard bool
	Alerts   int
	// Responded is set once the callback query has been answered.
	Responded bool
}

// metricsContext wraps tele.Context to count replies.
type metricsContext struct{ tele.Context }

func (m metricsContext) counters() *Counters {
	if v, ok := m.Get(countersKey).(*Counters); ok {
		return v
	}
	c := &Counters{}
	m.Set(countersKey, c)
	return c
}

func (m metricsContext) sent(opts []interface{}) {
	c := m.counters()
	c.Messages++
	if hasKeyboard(opts) {
		c.Keyboard = true
	}
}

func hasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

// Send proxies tele.Context.Send while updating counters.
func (m metricsContext) Send(what interface{}, opts ...interface{}) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.sent(opts)
	}
	return err
}

// Reply proxies tele.Context.Reply while updating counters.
func (m metricsContext) Reply(what interface{}, opts ...interface{}) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.sent(opts)
	}
	return err
}

// Edit proxies tele.Context.Edit; edits count as replies.
func (m metricsContext) Edit(what interface{}, opts ...interface{}) error {
	err := m.Context.Edit(what, opts...)
	if err == nil {
		m.sent(opts)
	}
	return err
}

// Respond proxies tele.Context.Respond and counts callback alerts with text.
func (m metricsContext) Respond(resp ...*tele.CallbackResponse) error {
	err := m.Context.Respond(resp...)
	if err == nil {
		c := m.counters()
		c.Responded = true
		if len(resp) > 0 && resp[0] != nil && resp[0].Text != "" {
			c.Alerts++
		}
	}
	return err
}

// MessageMetricsMiddleware instruments the context to count replies per update.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set(countersKey, &Counters{})
		return next(metricsContext{Context: c})
	}
}

// GetCounters reads the reply counters of the update.
func GetCounters(c tele.Context) Counters {
	if v, ok := c.Get(countersKey).(*Counters); ok && v != nil {
		return *v
	}
	return Counters{}
}
