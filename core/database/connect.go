package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/swapbot/core/logger"
)

const (
	connectTimeout  = 5 * time.Second
	readyTimeout    = 30 * time.Second
	readyPoll       = 2 * time.Second
	connMaxLifetime = 30 * time.Minute
)

// Connect opens and pings the pool and applies the configured size.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", DSN(cfg))
	if err != nil {
		logger.DB.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("status", "fail"),
			slog.String("host", cfg.Host),
			slog.String("db", cfg.Name),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(max(1, cfg.MaxConnections/2))
	}
	db.SetConnMaxLifetime(connMaxLifetime)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("status", "ok"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.Took(start)),
	)
	return db, nil
}

// waitReady pings until the server accepts connections or ctx ends.
func waitReady(ctx context.Context, dsn string) error {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready: %w", err)
		case <-ticker.C:
		}
	}
}
