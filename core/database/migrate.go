package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/migrations"
)

// ErrDirty reports a migration that failed half way. It needs a manual fix
// and `migrate force` before the bot can start.
var ErrDirty = errors.New("database schema is dirty")

// RunMigrations applies all pending up migrations. The embedded schema is
// used unless cfg.MigrationsDir points at a directory on disk.
func RunMigrations(cfg Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()
	if err := waitReady(ctx, DSN(cfg)); err != nil {
		logger.MIG.Error("db not ready",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return err
	}

	src, origin, err := migrationSource(cfg.MigrationsDir)
	if err != nil {
		return err
	}
	files := upFiles(src)
	preview, cut := logger.SummarizeStrings(files, 6)
	logger.MIG.Debug("migrations resolved",
		slog.String("event", "resolve"),
		slog.String("source", origin),
		slog.Int("files_total", len(files)),
		slog.String("files_preview", preview),
		slog.Bool("files_truncated", cut),
	)

	driver, err := iofs.New(src, ".")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", driver, URL(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case dirty:
		logger.MIG.Error("schema dirty",
			slog.String("event", "db.migrate"),
			slog.Uint64("version", uint64(from)),
		)
		return fmt.Errorf("%w at version %d", ErrDirty, from)
	}

	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return fmt.Errorf("migration execution failed: %w", err)
	}
	to, _, _ := m.Version()

	applied := appliedBetween(files, uint64(from), uint64(to))
	names, cut := logger.SummarizeStrings(applied, 6)
	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.String("files_preview", names),
		slog.Bool("files_truncated", cut),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// migrationSource returns the embedded schema, or dir resolved against the
// working directory when set.
func migrationSource(dir string) (fs.FS, string, error) {
	if strings.TrimSpace(dir) == "" {
		return migrations.FS, "embedded", nil
	}
	abs, err := resolveMigrationsDir(dir)
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, "", fmt.Errorf("migrations dir: %w", err)
	}
	return os.DirFS(abs), abs, nil
}

func resolveMigrationsDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return filepath.Join(cwd, dir), nil
}

// upFiles lists the *.up.sql names in src, sorted.
func upFiles(src fs.FS) []string {
	names, err := fs.Glob(src, "*.up.sql")
	if err != nil {
		return nil
	}
	slices.Sort(names)
	return names
}

func fileVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// appliedBetween returns the files with from < version <= to.
func appliedBetween(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := fileVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
