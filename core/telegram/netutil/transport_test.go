package netutil

import (
	"errors"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func dialErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func TestRetryTransportRetriesIdempotentReads(t *testing.T) {
	calls := 0
	rt := &RetryTransport{
		IdempotentOnly: true,
		MaxRetries:     2,
		Base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return nil, dialErr()
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
	}

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/orders", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestRetryTransportNeverRetriesPost(t *testing.T) {
	calls := 0
	rt := &RetryTransport{
		IdempotentOnly: true,
		MaxRetries:     5,
		Base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, dialErr()
		}),
	}

	req, err := http.NewRequest(http.MethodPost, "http://example.invalid/execute", http.NoBody)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryTransportResendsWritesOnlyAfterDialFailure(t *testing.T) {
	var errs []error
	rt := &RetryTransport{
		IdempotentOnly:  true,
		DialRetryWrites: true,
		MaxRetries:      3,
		Base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			err := errs[0]
			errs = errs[1:]
			if err == nil {
				return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
			}
			return nil, err
		}),
	}

	errs = []error{dialErr(), nil}
	req, err := http.NewRequest(http.MethodPost, "http://example.invalid/sendMessage", http.NoBody)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Empty(t, errs)

	reset := &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
	errs = []error{reset, nil}
	req, err = http.NewRequest(http.MethodPost, "http://example.invalid/sendMessage", http.NoBody)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, syscall.ECONNRESET)
	assert.Len(t, errs, 1)
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.True(t, ShouldRetry(dialErr()))
	assert.False(t, ShouldRetry(errors.New("plain")))
	assert.True(t, IsDialError(dialErr()))
	assert.False(t, IsDialError(errors.New("plain")))
}
