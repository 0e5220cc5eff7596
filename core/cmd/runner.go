// Package cmd runs a configured Telegram app until it is interrupted.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/swapbot/core/buildinfo"
	coreconfig "github.com/m3rciful/swapbot/core/config"
	"github.com/m3rciful/swapbot/core/logger"
	coretelegram "github.com/m3rciful/swapbot/core/telegram"
)

const component = "app"

// TelegramApp is what Run needs from the assembled application.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
	Close() error
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// ConfigPath wins over ConfigEnvVar and DefaultConfigPath when set.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(cfg *coreconfig.Config) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	// Signals end the run; defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// ResolveConfigPath picks the explicit path, then the env var, then the default.
func (o Options) ResolveConfigPath() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	env := o.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if o.DefaultConfigPath == "" {
		return "", fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
	}
	return o.DefaultConfigPath, nil
}

// Run loads configuration, bootstraps the app and serves updates until a
// signal arrives. The app is closed before the logger is flushed.
func Run(opts Options) (err error) {
	if opts.LoadConfig == nil {
		opts.LoadConfig = coreconfig.Load
	}
	if opts.Bootstrap == nil {
		return fmt.Errorf("cmd: Bootstrap is required")
	}
	if opts.ShutdownLogger == nil {
		opts.ShutdownLogger = logger.Shutdown
	}
	if opts.RunTelegram == nil {
		opts.RunTelegram = coretelegram.RunTelegram
	}
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	cfgPath, err := opts.ResolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: load config %s: %w", cfgPath, err)
	}
	if cfg == nil {
		return fmt.Errorf("cmd: loaded config is nil")
	}

	startedAt := time.Now()
	application, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() {
		if serr := opts.ShutdownLogger(); serr != nil && err == nil {
			err = fmt.Errorf("cmd: logger shutdown: %w", serr)
		}
	}()
	defer func() {
		if cerr := application.Close(); cerr != nil {
			logger.Warn(context.Background(), component, "close", slog.String("err", cerr.Error()))
		}
	}()

	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}
	runOpts.OnStart = announceStart(runOpts.OnStart, startedAt)
	runOpts.OnStop = announceStop(runOpts.OnStop)

	ctx, cancel := signal.NotifyContext(context.Background(), opts.Signals...)
	defer cancel()
	return opts.RunTelegram(ctx, runOpts)
}

func announceStart(next coretelegram.Hook, startedAt time.Time) coretelegram.Hook {
	return func(ctx context.Context, rt coretelegram.Runtime) error {
		if next != nil {
			if err := next(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, component, "ready",
			slog.String("version", buildinfo.Version),
			slog.String("commit", buildinfo.Commit),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}
}

func announceStop(next coretelegram.Hook) coretelegram.Hook {
	return func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, component, "shutdown")
		if next != nil {
			return next(ctx, rt)
		}
		return nil
	}
}
