package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/swapbot/core/config"
)

func newTestLogger(format logFormat) (*slog.Logger, *sink, *bytes.Buffer, *bytes.Buffer) {
	all, errs := &bytes.Buffer{}, &bytes.Buffer{}
	s := newSink([]io.Writer{all}, []io.Writer{errs})
	h := newStructuredHandler(handlerConfig{level: slog.LevelInfo, out: s, format: format})
	return slog.New(h), s, all, errs
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, s, all, _ := newTestLogger(formatKV)
	ctx := WithUpdateMeta(WithRID(context.Background(), "rid-123"), 42, 7, 9)

	LogEvent(ctx, log.With("component", "app"), slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)
	require.NoError(t, s.Close())

	tokens := strings.Split(strings.TrimSpace(all.String()), " ")
	want := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	require.GreaterOrEqual(t, len(tokens), len(want))
	for i, prefix := range want {
		assert.True(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
}

func TestStructuredHandlerJSONCompactsRID(t *testing.T) {
	log, s, all, errs := newTestLogger(formatJSON)
	ctx := WithRID(context.Background(), "12:34:56")

	LogEvent(ctx, log.With("component", "service.test"), slog.LevelError, "service.failed",
		slog.String("status", "error"),
		slog.String("err", "boom"),
		slog.Duration("duration", 1500_000),
	)
	require.NoError(t, s.Close())

	line := all.String()
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.test"`, `"event":"service.failed"`, `"status":"fail"`, `"rid":"c.y.1k"`, `"rid_full":"12:34:56"`, `"ts_unix_nano"`}
	pos := -1
	for _, p := range prefixes {
		idx := strings.Index(line, p)
		require.Greater(t, idx, pos, "%s out of order in %s", p, line)
		pos = idx
	}
	assert.Contains(t, line, `"duration_ms":2`)
	assert.Equal(t, line, errs.String(), "error lines are copied to the errors output")
}

func TestStructuredHandlerRedactsSecrets(t *testing.T) {
	log, s, all, errs := newTestLogger(formatKV)
	secret := "0x" + strings.Repeat("ab", 32)
	txHash := "0x" + strings.Repeat("cd", 32)

	LogEvent(context.Background(), log, slog.LevelInfo, "operation.confirm",
		slog.String("payload", "key is "+secret),
		slog.String("tx_hash", txHash),
		slog.String("passphrase", "hunter2-hunter2-hunter2"),
		slog.Group("vault", slog.String("key", "short")),
	)
	require.NoError(t, s.Close())

	line := all.String()
	assert.NotContains(t, line, secret)
	assert.NotContains(t, line, "hunter2")
	assert.Contains(t, line, txHash)
	assert.Contains(t, line, "passphrase=<redacted>")
	assert.Contains(t, line, "vault.key=<redacted>")
	assert.Empty(t, errs.String())
}

func TestHandlerGroupsAndEnums(t *testing.T) {
	log, s, all, _ := newTestLogger(formatKV)
	log.WithGroup("req").Info("", slog.String("event", "x"))
	log.Info("", slog.String("cache", "bogus"), slog.String("outcome", "OK"))
	require.NoError(t, s.Close())

	out := all.String()
	assert.Contains(t, out, "req.event=x")
	assert.Contains(t, out, "event=unknown")
	assert.Contains(t, out, "outcome=ok")
	assert.NotContains(t, out, "cache=")
}

func TestSanitizeLimitRedacts(t *testing.T) {
	in := "paste " + strings.Repeat("f", 64) + "\x00 here"
	got := SanitizeLimit(in, 256)
	assert.NotContains(t, got, strings.Repeat("f", 64))
	assert.NotContains(t, got, "\x00")
	assert.Equal(t, "pas", SanitizeLimit("paste", 3))
	assert.Equal(t, "1.2.3", CompactRID("1:2:3"))
	assert.Equal(t, "rid-x", CompactRID("rid-x"))
}

func TestOptionsFromConfig(t *testing.T) {
	o := optionsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:       "warning",
		Profile:     "Dev",
		KeysOrder:   "event, ts",
		DebugSample: "3/2",
	}})
	assert.Equal(t, slog.LevelWarn, o.level)
	assert.Equal(t, formatKV, o.format)
	assert.Equal(t, []string{"event", "ts"}, o.keyOrder)
	assert.Equal(t, 2, o.sampleKeep)
	assert.Equal(t, 2, o.sampleEvery)

	def := optionsFrom(nil)
	assert.Equal(t, formatJSON, def.format)
	assert.Equal(t, "prod", def.profile)
}

func TestSampler(t *testing.T) {
	var s sampler
	s.set(1, 3)
	got := []bool{s.allow(), s.allow(), s.allow(), s.allow()}
	assert.Equal(t, []bool{true, false, false, true}, got)

	s.trace.Store(true)
	assert.True(t, s.allow())

	keep, every := parseRatio("0")
	assert.Zero(t, keep)
	assert.Zero(t, every)
}
