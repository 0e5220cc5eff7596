package logger

import (
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	coreconfig "github.com/m3rciful/swapbot/core/config"
)

const (
	defaultSampleKeep  = 1
	defaultSampleEvery = 50
)

type options struct {
	format      logFormat
	keyOrder    []string
	level       slog.Level
	profile     string
	sampleKeep  int
	sampleEvery int
	trace       bool
}

func optionsFrom(cfg *coreconfig.Config) options {
	o := options{
		format:      formatJSON,
		keyOrder:    defaultKeyOrder,
		level:       slog.LevelInfo,
		profile:     "prod",
		sampleKeep:  defaultSampleKeep,
		sampleEvery: defaultSampleEvery,
	}
	if cfg == nil {
		return o
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		o.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		o.format = formatKV
	case "json":
	default:
		if o.profile == "debug" || o.profile == "dev" {
			o.format = formatKV
		}
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		o.level = slog.LevelDebug
	case "warn", "warning":
		o.level = slog.LevelWarn
	case "error":
		o.level = slog.LevelError
	}
	if order := parseKeyOrder(lc.KeysOrder); len(order) > 0 {
		o.keyOrder = order
	}
	if ratio := strings.TrimSpace(lc.DebugSample); ratio != "" {
		o.sampleKeep, o.sampleEvery = parseRatio(ratio)
	}
	o.trace = lc.Trace
	return o
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var order []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			order = append(order, p)
		}
	}
	return order
}

// parseRatio reads "k/n" (keep k of every n) or "n" (keep 1 of every n).
// "0" disables sampling; anything unparsable falls back to the default.
func parseRatio(ratio string) (keep, every int) {
	if num, den, ok := strings.Cut(ratio, "/"); ok {
		k, err1 := strconv.Atoi(strings.TrimSpace(num))
		n, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 == nil && err2 == nil && k > 0 && n > 0 {
			return min(k, n), n
		}
		return defaultSampleKeep, defaultSampleEvery
	}
	n, err := strconv.Atoi(ratio)
	switch {
	case err != nil || n < 0:
		return defaultSampleKeep, defaultSampleEvery
	case n == 0:
		return 0, 0
	}
	return 1, n
}

// sampler keeps keep out of every events. With every == 0 all events pass.
type sampler struct {
	keep  atomic.Int64
	every atomic.Int64
	n     atomic.Int64
	trace atomic.Bool
}

func (s *sampler) set(keep, every int) {
	s.keep.Store(int64(keep))
	s.every.Store(int64(every))
	s.n.Store(0)
}

func (s *sampler) allow() bool {
	every := s.every.Load()
	if s.trace.Load() || every <= 0 {
		return true
	}
	return (s.n.Add(1)-1)%every < s.keep.Load()
}
