// Package logger provides the process-wide structured logger and the helpers
// used to attach request metadata and keep secrets out of log lines.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/swapbot/core/buildinfo"
	coreconfig "github.com/m3rciful/swapbot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	out      *sink
	files    []io.Closer

	levelVar slog.LevelVar
	debug    sampler

	// L is the base logger. Component loggers below are derived from it.
	L *slog.Logger

	// DB logs database connection events.
	DB *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
)

// Until InitLogger runs every logger discards its output.
func init() {
	L = slog.New(slog.DiscardHandler)
	wireComponents()
}

// InitLogger configures the global logger from cfg. Only the first call has
// any effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		opts := optionsFrom(cfg)
		levelVar.Set(opts.level)
		debug.set(opts.sampleKeep, opts.sampleEvery)
		debug.trace.Store(opts.trace)

		all, errOnly, closers, err := openOutputs(cfg)
		if err != nil {
			initErr = err
			return
		}
		files = closers
		out = newSink(all, errOnly)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			out:      out,
			format:   opts.format,
			keyOrder: opts.keyOrder,
		}))
		slog.SetDefault(L)
		wireComponents()

		L.LogAttrs(context.Background(), slog.LevelInfo, "",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", opts.profile),
		)
	})
	return initErr
}

func wireComponents() {
	DB = L.With("component", "db")
	MIG = L.With("component", "db.migrate")
	TWire = L.With("component", "tg.wire")
}

// openOutputs returns stdout plus the optional bot file, and the optional
// errors-only file. A file that cannot be opened is an error: running
// without the configured audit trail is not acceptable for a wallet bot.
func openOutputs(cfg *coreconfig.Config) (all, errOnly []io.Writer, closers []io.Closer, err error) {
	all = []io.Writer{os.Stdout}
	if cfg == nil {
		return all, nil, nil, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	if dir == "" {
		return all, nil, nil, nil
	}
	open := func(name string) (*os.File, error) {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, nil
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("logger: create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("logger: open log file: %w", err)
		}
		closers = append(closers, f)
		return f, nil
	}
	if f, err := open(cfg.Logging.BotFile); err != nil {
		return nil, nil, closers, err
	} else if f != nil {
		all = append(all, f)
	}
	if f, err := open(cfg.Logging.ErrorsFile); err != nil {
		return nil, nil, closers, err
	} else if f != nil {
		errOnly = append(errOnly, f)
	}
	return all, errOnly, closers, nil
}

// Shutdown flushes queued lines and closes log files. It is safe to call
// more than once.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()

	var errs []error
	if out != nil {
		errs = append(errs, out.Close())
		out = nil
	}
	for _, c := range files {
		errs = append(errs, c.Close())
	}
	files = nil
	return errors.Join(errs...)
}

// Component returns a logger tagged with the component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent writes attrs under event, using the logger stored in ctx when
// logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug event should be
// written. Trace mode keeps every event.
func ShouldSampleDebug() bool {
	return debug.allow()
}
