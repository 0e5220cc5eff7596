package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/swapbot/core/config"
)

type updateStub struct {
	*stubContext
	upd tele.Update
}

func (u updateStub) Update() tele.Update { return u.upd }

func TestRateLimitMiddleware(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{coreconfig.UpdateCallback: {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return clock },
	})
	passed := 0
	h := mw(func(tele.Context) error { passed++; return nil })

	msg := updateStub{stubContext: newStub(9), upd: tele.Update{Message: &tele.Message{}}}
	cb := updateStub{stubContext: newStub(9), upd: tele.Update{Callback: &tele.Callback{}}}

	require.NoError(t, h(msg))
	require.NoError(t, h(msg))
	require.NoError(t, h(cb))
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, limited)

	clock = clock.Add(time.Second)
	require.NoError(t, h(msg))
	assert.Equal(t, 3, passed)
}
