package netutil

import (
	"net/http"
	"time"
)

// RetryTransport retries transient transport failures with linear backoff.
// When IdempotentOnly is set, writes are sent once unless DialRetryWrites
// allows re-sending after a failed dial, where nothing reached the server.
type RetryTransport struct {
	Base            http.RoundTripper
	MaxRetries      int
	Backoff         time.Duration
	IdempotentOnly  bool
	DialRetryWrites bool
	// OnRetry is called before each backoff sleep.
	OnRetry func(req *http.Request, attempt int, err error)
}

// Retryable reports whether req may be re-sent under the transport policy.
func (t *RetryTransport) Retryable(req *http.Request) bool {
	if !t.IdempotentOnly {
		return true
	}
	return idempotent(req.Method)
}

func idempotent(method string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func (t *RetryTransport) retryAfter(req *http.Request, err error) bool {
	if t.Retryable(req) {
		return ShouldRetry(err)
	}
	return t.DialRetryWrites && IsDialError(err)
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.MaxRetries + 1
	if attempts < 1 || (!t.Retryable(req) && !t.DialRetryWrites) {
		attempts = 1
	}
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil && req.Body != http.NoBody {
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !t.retryAfter(req, err) || attempt == attempts {
			break
		}
		if t.OnRetry != nil {
			t.OnRetry(req, attempt, err)
		}

		delay := t.Backoff * time.Duration(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}
