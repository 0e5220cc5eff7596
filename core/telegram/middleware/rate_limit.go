package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/swapbot/core/config"
	"github.com/m3rciful/swapbot/core/logger"
	tghelpers "github.com/m3rciful/swapbot/core/telegram/helpers"
)

// pruneAt is the tracked-user count that triggers removal of stale entries.
const pruneAt = 1024

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude holds update kinds that bypass the limit; see coreconfig.Update*.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Now defaults to time.Now.
	Now func() time.Time
}

// RateLimitMiddleware drops updates that arrive from the same user less than
// Interval after the previous accepted one.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var (
		mu       sync.Mutex
		lastSeen = make(map[int64]time.Time)
	)
	allow := func(userID int64) bool {
		mu.Lock()
		defer mu.Unlock()
		t := now()
		if last, ok := lastSeen[userID]; ok && t.Sub(last) < opts.Interval {
			return false
		}
		lastSeen[userID] = t
		if len(lastSeen) >= pruneAt {
			for id, seen := range lastSeen {
				if t.Sub(seen) >= opts.Interval {
					delete(lastSeen, id)
				}
			}
		}
		return true
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if allow(user.ID) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit", slog.String("update", kind))
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return coreconfig.UpdateCallback
	case upd.Message != nil:
		return coreconfig.UpdateMessage
	case upd.Query != nil:
		return coreconfig.UpdateInlineQuery
	}
	return "other"
}
