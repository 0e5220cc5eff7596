package logger

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	out      *sink
	format   logFormat
	keyOrder []string
}

// structuredHandler renders records as one flat line, JSON or key=value,
// with a stable leading key order and secrets redacted.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if len(cfg.keyOrder) == 0 {
		cfg.keyOrder = defaultKeyOrder
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.out == nil {
		return errors.New("logger: writer not initialized")
	}
	isJSON := h.cfg.format == formatJSON

	fields := make(map[string]any, 16)
	ts := r.Time.UTC().Truncate(time.Millisecond)
	fields["ts"] = ts.Format(timeFormatMillis)
	fields["level"] = levelName(r.Level)
	if isJSON {
		fields["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		collect(fields, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(fields, h.prefix, a)
		return true
	})
	addContextFields(ctx, fields)

	if rid, ok := fields["rid"].(string); ok {
		if compact := CompactRID(rid); compact != rid {
			if isJSON {
				fields["rid_full"] = rid
			}
			fields["rid"] = compact
		}
	}
	if ev, _ := fields["event"].(string); ev == "" {
		fields["event"] = cmp.Or(r.Message, "unknown")
	}
	if comp, _ := fields["component"].(string); comp == "" {
		fields["component"] = "app"
	}
	normalizeEnums(fields)

	keys := orderKeys(fields, h.cfg.keyOrder)
	var (
		line []byte
		err  error
	)
	if isJSON {
		line, err = renderJSON(fields, keys)
	} else {
		line = renderKV(fields, keys)
	}
	if err != nil {
		return err
	}
	return h.cfg.out.Write(append(line, '\n'), r.Level >= slog.LevelError)
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, prefixed(h.prefix, a))
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func prefixed(prefix string, a slog.Attr) slog.Attr {
	if prefix == "" {
		return a
	}
	return slog.Attr{Key: joinKey(prefix, a.Key), Value: a.Value}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// collect flattens groups into dotted keys and stores normalized values.
// Empty strings and nil values are skipped.
func collect(fields map[string]any, prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			collect(fields, key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := normalize(key, v); ok {
		fields[k] = val
	}
}

func normalize(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return stringValue(key, v.String())
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case error:
		return stringValue(key, x.Error())
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return stringValue(key, x.String())
	default:
		return stringValue(key, fmt.Sprint(x))
	}
}

func stringValue(key, s string) (string, any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil, false
	}
	return key, redactField(key, s), true
}

// durationKey gives duration attributes an explicit _ms suffix.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	}
	return LevelDebug
}

// orderKeys lists keys in order first, then the rest alphabetically.
func orderKeys(fields map[string]any, order []string) []string {
	keys := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(order))
	for _, k := range order {
		if _, ok := fields[k]; ok {
			keys = append(keys, k)
			seen[k] = struct{}{}
		}
	}
	head := len(keys)
	for k := range fields {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys[head:])
	return keys
}

func renderJSON(fields map[string]any, keys []string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range keys {
		val, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("logger: field %s: %w", k, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func renderKV(fields map[string]any, keys []string) []byte {
	var b bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		s := fmt.Sprint(fields[k])
		if strings.IndexFunc(s, needsQuote) >= 0 {
			s = strconv.Quote(s)
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s)
	}
	return b.Bytes()
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
