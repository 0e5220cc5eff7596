package netutil

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// ShouldRetry reports whether err looks like a transient transport failure:
// a timeout, a failed dial or a reset connection. Cancelled or expired
// request contexts are final.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsDialError(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

// IsDialError reports whether err happened while opening the connection.
func IsDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
