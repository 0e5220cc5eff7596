package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/swapbot/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 90 * time.Second
	defaultResponseTimeout   = 10 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second

	// pollSlack covers the round trip on top of the long poll itself.
	pollSlack = 10 * time.Second
)

// BuildHTTPClient returns an HTTP client for Telegram API calls. Header and
// overall timeouts leave room for a getUpdates call held open for pollTimeout.
// Telegram methods are POSTs, so a request is re-sent only when the dial failed.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	headerTimeout := max(defaultResponseTimeout, pollTimeout+pollSlack)
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Timeout: headerTimeout + pollSlack,
		Transport: &netutil.RetryTransport{
			Base:            transport,
			MaxRetries:      defaultRetryAttempts,
			Backoff:         defaultRetryBackoff,
			IdempotentOnly:  true,
			DialRetryWrites: true,
		},
	}
}
