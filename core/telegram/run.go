package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/swapbot/core/config"
	"github.com/m3rciful/swapbot/core/logger"
	tghelpers "github.com/m3rciful/swapbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/swapbot/core/telegram/sender"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to an endpoint accepted by tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options

	Middlewares []Middleware
	Routes      []Route

	OnStart Hook
	OnStop  Hook
}

// Hook runs at a lifecycle edge of RunTelegram.
type Hook func(ctx context.Context, rt Runtime) error

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot and serves updates until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	poller := BuildPoller(cfg)
	var pollTimeout time.Duration
	if lp, ok := poller.(*tele.LongPoller); ok {
		pollTimeout = lp.Timeout
	}
	started := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  BuildHTTPClient(pollTimeout),
		OnError: logHandlerError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logMode(ctx, poller, time.Since(started))

	if _, polling := poller.(*tele.LongPoller); polling {
		// A webhook left over from an earlier deploy blocks getUpdates.
		if err := bot.RemoveWebhook(false); err != nil {
			logger.Warn(ctx, "tg", "webhook.delete", slog.String("err", err.Error()))
		}
	}

	dispatcher := tgsender.NewDispatcher(opts.DispatcherOptions)
	tghelpers.SetDispatcher(dispatcher)
	defer func() {
		tghelpers.SetDispatcher(nil)
		dispatcher.Close()
	}()

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	InitBotCommands(bot, reg)

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		if !errors.Is(ctx.Err(), context.Canceled) {
			runErr = ctx.Err()
		}
	case <-done:
	}

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	return runErr
}

func logMode(ctx context.Context, poller tele.Poller, took time.Duration) {
	switch p := poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Bool("secret_token", p.SecretToken != ""),
			slog.Duration("duration", logger.RoundMS(took)),
		)
	case *tele.LongPoller:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", logger.RoundMS(took)),
		)
	}
}

// logHandlerError receives errors that escaped handlers and middlewares.
func logHandlerError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	attrs := []slog.Attr{slog.String("err", logger.SanitizeLimit(err.Error(), 256))}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		attrs = append(attrs, slog.String("error_code", coded.Code()))
	}
	logger.Error(ctx, "tg", "handler.error", attrs...)
}
