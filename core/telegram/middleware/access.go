package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
// With no admin configured every sender is rejected.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.AdminID == 0 || c.Sender() == nil || c.Sender().ID != opts.AdminID {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
