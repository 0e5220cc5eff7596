package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func dialErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func newTestDispatcher(retries int) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: retries, RetryBackoff: time.Second})
	var waits []time.Duration
	d.sleep = func(_ context.Context, w time.Duration) error {
		waits = append(waits, w)
		return nil
	}
	return d, &waits
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	d, waits := newTestDispatcher(2)
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return dialErr()
		}
		return nil
	}))
	d.Close()

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherOnceNeverRetries(t *testing.T) {
	d, _ := newTestDispatcher(3)
	var calls atomic.Int32
	require.NoError(t, d.EnqueueOnce(context.Background(), "send.secret", "sendMessage", func() error {
		calls.Add(1)
		return dialErr()
	}))
	d.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherHonoursFloodWait(t *testing.T) {
	d, waits := newTestDispatcher(1)
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) == 1 {
			return tele.FloodError{RetryAfter: 90}
		}
		return nil
	}))
	d.Close()

	assert.Equal(t, []time.Duration{maxFloodWait}, *waits)
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d, _ := newTestDispatcher(0)
	d.Close()
	err := d.Enqueue(context.Background(), "send.text", "sendMessage", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "network", ErrorKind(dialErr()))
	assert.Equal(t, "flood", ErrorKind(tele.FloodError{RetryAfter: 1}))
	assert.Equal(t, "http_4xx", ErrorKind(&tele.Error{Code: 400, Description: "bad"}))
	assert.Equal(t, "timeout", ErrorKind(context.DeadlineExceeded))
	assert.Equal(t, "unknown", ErrorKind(errors.New("x")))
}

func TestRedactToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:AAbb-cc/sendMessage": EOF`)
	assert.NotContains(t, redactToken(err), "AAbb")
}
