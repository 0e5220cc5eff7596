// Package app assembles swapbot from its parts and exposes it to the runner.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/swapbot/core/bootstrap"
	corecmd "github.com/m3rciful/swapbot/core/cmd"
	coreconfig "github.com/m3rciful/swapbot/core/config"
	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/core/telegram"
	"github.com/m3rciful/swapbot/core/telegram/middleware"
	"github.com/m3rciful/swapbot/core/telegram/router"
	"github.com/m3rciful/swapbot/core/telegram/ui"
	"github.com/m3rciful/swapbot/internal/bot"
	"github.com/m3rciful/swapbot/internal/chain"
	"github.com/m3rciful/swapbot/internal/operation"
	"github.com/m3rciful/swapbot/internal/profile"
	"github.com/m3rciful/swapbot/internal/store"
	"github.com/m3rciful/swapbot/internal/swapapi"
	"github.com/m3rciful/swapbot/internal/vault"
)

const (
	dialTimeout   = 10 * time.Second
	sweepInterval = time.Minute
)

// App owns the long lived components of the bot.
type App struct {
	cfg      *coreconfig.Config
	db       *sqlx.DB
	chain    *chain.Reader
	machine  *operation.Machine
	notifier *bot.Notifier
	handlers *bot.Handlers
	registry *telegram.Registry
	idle     time.Duration

	sweepEvery time.Duration
	stopSweep  context.CancelFunc
	sweepDone  sync.WaitGroup
}

var _ corecmd.TelegramApp = (*App)(nil)

// Bootstrap adapts New to the runner's bootstrap hook.
func Bootstrap(cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
	return New(cfg)
}

// New runs the infrastructure bootstrap and builds every component.
func New(cfg *coreconfig.Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	a, err := assemble(cfg, res.DB)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return a, nil
}

func assemble(cfg *coreconfig.Config, db *sqlx.DB) (*App, error) {
	pg := store.New(db)

	keys, err := vault.NewSealed(cfg.Vault.SealPassphrase(), pg)
	if err != nil {
		return nil, fmt.Errorf("app: vault: %w", err)
	}

	profiles := profile.NewService(pg, profile.NewCache())

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	reader, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.NativeDecimals)
	if err != nil {
		return nil, fmt.Errorf("app: chain: %w", err)
	}

	api, err := swapapi.New(swapapi.Config{
		BaseURL:     cfg.SwapAPI.BaseURL,
		APIKey:      cfg.SwapAPI.APIKey,
		Timeout:     time.Duration(cfg.SwapAPI.TimeoutSeconds) * time.Second,
		ReadRetries: cfg.SwapAPI.ReadRetries,
	})
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("app: swap api: %w", err)
	}

	renderer := bot.Renderer{NativeSymbol: cfg.Chain.NativeSymbol}
	notifier := bot.NewNotifier(renderer)
	execTimeout := time.Duration(cfg.Trading.ExecuteTimeoutSeconds) * time.Second

	machine, err := operation.NewMachine(operation.Deps{
		Profiles: profiles,
		Vault:    keys,
		Balances: reader,
		Executor: api,
		Notifier: notifier,
	}, operation.Options{
		Limits: operation.Limits{
			MaxAmount:        cfg.Trading.MaxAmountDecimal(),
			MaxIntervalHours: cfg.Trading.MaxIntervalHours,
		},
		ExecuteTimeout: execTimeout,
	})
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("app: machine: %w", err)
	}

	orders := operation.NewOrders(api, keys, profiles, operation.OrdersOptions{
		ActiveStatuses: cfg.Trading.ActiveOrderStatuses,
		CancelTimeout:  execTimeout,
	})

	handlers, err := bot.New(bot.Deps{
		Profiles:      profiles,
		Operations:    machine,
		Orders:        orders,
		Keys:          keys,
		Notifier:      notifier,
		Renderer:      renderer,
		KeyMessageTTL: time.Duration(cfg.Trading.KeyMessageTTLSeconds) * time.Second,
	})
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("app: handlers: %w", err)
	}

	reg := telegram.NewRegistry()
	if err := handlers.Register(reg); err != nil {
		reader.Close()
		return nil, fmt.Errorf("app: register: %w", err)
	}

	return &App{
		cfg:      cfg,
		db:       db,
		chain:    reader,
		machine:  machine,
		notifier: notifier,
		handlers: handlers,
		registry: reg,
		idle:     time.Duration(cfg.Trading.SessionIdleMinutes) * time.Minute,

		sweepEvery: sweepInterval,
	}, nil
}

// TelegramRunOptions wires routes, middlewares and lifecycle hooks.
func (a *App) TelegramRunOptions() (telegram.RunOptions, error) {
	middleware.SetSensitiveInput(a.handlers.SensitiveInput)
	routes := Routes(a.registry, a.cfg.Telegram.AdminID, a.handlers, a.handlers)

	return telegram.RunOptions{
		Config:      a.cfg,
		Registry:    a.registry,
		Middlewares: telegram.DefaultMiddlewares(a.cfg, a.handlers.Limited()),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt telegram.Runtime) error {
			a.notifier.Attach(rt.Bot)
			a.startSweeper(ctx)
			return nil
		},
		OnStop: func(context.Context, telegram.Runtime) error {
			a.stopSweeper()
			return nil
		},
	}, nil
}

// Routes binds commands, callbacks and free text. Text goes to flow while an
// operation is open.
func Routes(reg *telegram.Registry, adminID int64, flow router.Flow, fb ui.FallbackProvider) []telegram.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       adminID,
		OnAdminReject: fb.AdminRejected(),
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{
		NotFound: fb.UnknownCallback(),
	}))
	return append(routes, router.TextRoutes(flow, reg, router.TextOptions{
		UnknownText:     fb.UnknownText(),
		UnknownDocument: fb.UnknownDocument(),
	})...)
}

// startSweeper evicts idle conversations until ctx ends or Close is called.
func (a *App) startSweeper(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	a.stopSweep = cancel
	a.sweepDone.Add(1)
	go func() {
		defer a.sweepDone.Done()
		ticker := time.NewTicker(a.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-parent.Done():
				return
			case <-ticker.C:
				if dropped := a.machine.Sweep(a.idle); len(dropped) > 0 {
					logger.Debug(ctx, "app", "session.sweep", slog.Int("dropped", len(dropped)))
				}
			}
		}
	}()
}

func (a *App) stopSweeper() {
	if a.stopSweep != nil {
		a.stopSweep()
	}
	a.sweepDone.Wait()
}

// Close stops background work and releases connections.
func (a *App) Close() error {
	a.stopSweeper()
	var result *multierror.Error
	if a.chain != nil {
		if err := a.chain.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("chain: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("db: %w", err))
		}
	}
	return result.ErrorOrNil()
}
