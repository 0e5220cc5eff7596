// Package store persists users, wallets, settings and sealed vault records in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/internal/profile"
	"github.com/m3rciful/swapbot/internal/vault"
)

// ErrWalletTaken is returned when an address is already linked to another user.
var ErrWalletTaken = errors.New("store: wallet already registered")

const uniqueViolation = "23505"

// Postgres implements profile.Store and vault.Repository on one database.
type Postgres struct {
	db *sqlx.DB
}

// New wraps an open connection.
func New(db *sqlx.DB) *Postgres { return &Postgres{db: db} }

var (
	_ profile.Store    = (*Postgres)(nil)
	_ vault.Repository = (*Postgres)(nil)
)

type userRow struct {
	ID            int64 `db:"id"`
	TermsAccepted bool  `db:"terms_accepted"`
}

// GetUserProfile loads the user with wallets and settings.
func (p *Postgres) GetUserProfile(ctx context.Context, userID int64) (profile.UserProfile, error) {
	start := time.Now()
	var u userRow
	err := p.db.GetContext(ctx, &u, `SELECT id, terms_accepted FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.UserProfile{}, profile.ErrNotFound
	}
	if err != nil {
		p.logQuery(ctx, "db.user.get", start, err)
		return profile.UserProfile{}, fmt.Errorf("get user: %w", err)
	}

	var wallets []profile.Wallet
	err = p.db.SelectContext(ctx, &wallets,
		`SELECT address, label, created_at FROM wallets WHERE user_id = $1 ORDER BY created_at, address`, userID)
	if err != nil {
		p.logQuery(ctx, "db.user.get", start, err)
		return profile.UserProfile{}, fmt.Errorf("list wallets: %w", err)
	}

	out := profile.UserProfile{ID: u.ID, TermsAccepted: u.TermsAccepted, Wallets: wallets}
	var s profile.Settings
	err = p.db.GetContext(ctx, &s,
		`SELECT slippage_bps, gas_priority, default_wallet FROM user_settings WHERE user_id = $1`, userID)
	switch {
	case err == nil:
		out.Settings = &s
	case !errors.Is(err, sql.ErrNoRows):
		p.logQuery(ctx, "db.user.get", start, err)
		return profile.UserProfile{}, fmt.Errorf("get settings: %w", err)
	}
	p.logQuery(ctx, "db.user.get", start, nil)
	return out, nil
}

// EnsureUser creates the user row if missing.
func (p *Postgres) EnsureUser(ctx context.Context, userID int64) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (p *Postgres) SetTermsAccepted(ctx context.Context, userID int64, accepted bool) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET terms_accepted = $2, updated_at = NOW() WHERE id = $1`, userID, accepted)
	return affected(res, err, "set terms")
}

// AddWallet links address to userID.
func (p *Postgres) AddWallet(ctx context.Context, userID int64, w profile.Wallet) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO wallets (user_id, address, label, created_at) VALUES ($1, $2, $3, $4)`,
		userID, strings.TrimSpace(w.Address), w.Label, w.CreatedAt)
	if isUniqueViolation(err) {
		return ErrWalletTaken
	}
	if err != nil {
		return fmt.Errorf("add wallet: %w", err)
	}
	return nil
}

// RemoveWallet unlinks address; the settings default is cleared if it pointed there.
func (p *Postgres) RemoveWallet(ctx context.Context, userID int64, address string) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("remove wallet: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM wallets WHERE user_id = $1 AND LOWER(address) = LOWER($2)`, userID, address); err != nil {
		return fmt.Errorf("remove wallet: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE user_settings SET default_wallet = '', updated_at = NOW()
		 WHERE user_id = $1 AND LOWER(default_wallet) = LOWER($2)`, userID, address); err != nil {
		return fmt.Errorf("remove wallet: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remove wallet: %w", err)
	}
	return nil
}

// SaveSettings upserts the user's settings.
func (p *Postgres) SaveSettings(ctx context.Context, userID int64, s profile.Settings) error {
	_, err := p.db.NamedExecContext(ctx,
		`INSERT INTO user_settings (user_id, slippage_bps, gas_priority, default_wallet)
		 VALUES (:user_id, :slippage_bps, :gas_priority, :default_wallet)
		 ON CONFLICT (user_id) DO UPDATE SET
		   slippage_bps = EXCLUDED.slippage_bps,
		   gas_priority = EXCLUDED.gas_priority,
		   default_wallet = EXCLUDED.default_wallet,
		   updated_at = NOW()`,
		settingsRow{UserID: userID, Settings: s})
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

type settingsRow struct {
	UserID int64 `db:"user_id"`
	profile.Settings
}

// Upsert stores a sealed record for a normalized address.
func (p *Postgres) Upsert(ctx context.Context, address string, rec vault.Record) error {
	_, err := p.db.NamedExecContext(ctx,
		`INSERT INTO vault_records (address, ciphertext, nonce, salt)
		 VALUES (:address, :ciphertext, :nonce, :salt)
		 ON CONFLICT (address) DO UPDATE SET
		   ciphertext = EXCLUDED.ciphertext,
		   nonce = EXCLUDED.nonce,
		   salt = EXCLUDED.salt,
		   updated_at = NOW()`,
		recordRow{Address: address, Record: rec})
	if err != nil {
		return fmt.Errorf("upsert vault record: %w", err)
	}
	return nil
}

type recordRow struct {
	Address string `db:"address"`
	vault.Record
}

func (p *Postgres) Get(ctx context.Context, address string) (vault.Record, error) {
	var rec vault.Record
	err := p.db.GetContext(ctx, &rec, `SELECT ciphertext, nonce, salt FROM vault_records WHERE address = $1`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.Record{}, vault.ErrNotFound
	}
	if err != nil {
		return vault.Record{}, fmt.Errorf("get vault record: %w", err)
	}
	return rec, nil
}

func (p *Postgres) Delete(ctx context.Context, address string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM vault_records WHERE address = $1`, address); err != nil {
		return fmt.Errorf("delete vault record: %w", err)
	}
	return nil
}

func (p *Postgres) Addresses(ctx context.Context) ([]string, error) {
	var out []string
	if err := p.db.SelectContext(ctx, &out, `SELECT address FROM vault_records ORDER BY address`); err != nil {
		return nil, fmt.Errorf("list vault records: %w", err)
	}
	return out, nil
}

func affected(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return profile.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

func (p *Postgres) logQuery(ctx context.Context, event string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Warn(ctx, "db", event, attrs...)
		return
	}
	logger.Debug(ctx, "db", event, attrs...)
}
