package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/swapbot/core/logger"
)

// Store is the persistent user/wallet/settings store.
type Store interface {
	// GetUserProfile returns ErrNotFound for unknown users.
	GetUserProfile(ctx context.Context, userID int64) (UserProfile, error)
	EnsureUser(ctx context.Context, userID int64) error
	SetTermsAccepted(ctx context.Context, userID int64, accepted bool) error
	AddWallet(ctx context.Context, userID int64, w Wallet) error
	RemoveWallet(ctx context.Context, userID int64, address string) error
	SaveSettings(ctx context.Context, userID int64, s Settings) error
}

// ReadPolicy selects how Lookup treats the cache.
type ReadPolicy int

const (
	// AllowStale serves any live cache entry; used to gate starting a trade.
	AllowStale ReadPolicy = iota
	// ForceRefresh always reads the store; used before moving funds.
	ForceRefresh
)

func (p ReadPolicy) String() string {
	if p == ForceRefresh {
		return "force_refresh"
	}
	return "allow_stale"
}

// Service reads profiles through the cache and writes through to the store.
// Conversation ids are Telegram user ids, so one key addresses both.
type Service struct {
	store Store
	cache *Cache
}

// NewService wires a store and cache. A nil cache gets a default one.
func NewService(store Store, cache *Cache) *Service {
	if cache == nil {
		cache = NewCache()
	}
	return &Service{store: store, cache: cache}
}

// Cache exposes the underlying cache.
func (s *Service) Cache() *Cache { return s.cache }

// Lookup returns the profile for userID. A store read failure is treated as a
// miss and surfaces as ErrNotFound.
func (s *Service) Lookup(ctx context.Context, userID int64, policy ReadPolicy) (UserProfile, error) {
	if policy == AllowStale {
		if p, ok := s.cache.Get(userID); ok {
			logger.Debug(ctx, "service.profiles", "profile.lookup",
				slog.String("status", "ok"),
				slog.String("cache", "hit"),
			)
			return p, nil
		}
	}

	start := time.Now()
	gen := s.cache.Generation(userID)
	p, err := s.store.GetUserProfile(ctx, userID)
	if err != nil {
		s.cache.Invalidate(userID)
		if !errors.Is(err, ErrNotFound) {
			logger.Warn(ctx, "service.profiles", "profile.lookup",
				slog.String("status", "fail"),
				slog.String("cache", "miss"),
				slog.String("policy", policy.String()),
				slog.String("err", err.Error()),
			)
		}
		return UserProfile{}, fmt.Errorf("profile: lookup %d: %w", userID, ErrNotFound)
	}
	p.ID = userID
	// A write that landed during the read has already invalidated; the
	// snapshot is returned but not cached.
	filled := s.cache.SetIfGeneration(userID, gen, p)

	cacheState := "miss"
	switch {
	case !filled:
		cacheState = "stale"
	case policy == ForceRefresh:
		cacheState = "refresh"
	}
	logger.Debug(ctx, "service.profiles", "profile.lookup",
		slog.String("status", "ok"),
		slog.String("cache", cacheState),
		slog.Duration("duration", logger.Took(start)),
	)
	return p.Clone(), nil
}

// RequireEligible looks the user up and checks trade eligibility. Unknown users
// get an EligibilityError with ReasonNotRegistered.
func (s *Service) RequireEligible(ctx context.Context, userID int64, policy ReadPolicy) (UserProfile, error) {
	p, err := s.Lookup(ctx, userID, policy)
	if err != nil {
		return UserProfile{}, &EligibilityError{Reason: ReasonNotRegistered}
	}
	if err := p.Eligibility(); err != nil {
		return p, err
	}
	return p, nil
}

// EnsureUser registers userID if unknown.
func (s *Service) EnsureUser(ctx context.Context, userID int64) error {
	err := s.store.EnsureUser(ctx, userID)
	s.cache.Invalidate(userID)
	s.logWrite(ctx, "profile.ensure_user", err)
	return err
}

// AcceptTerms records terms acceptance.
func (s *Service) AcceptTerms(ctx context.Context, userID int64) error {
	if err := s.store.SetTermsAccepted(ctx, userID, true); err != nil {
		s.cache.Invalidate(userID)
		s.logWrite(ctx, "profile.accept_terms", err)
		return err
	}
	accepted := true
	s.cache.MergeUpdate(userID, Patch{TermsAccepted: &accepted})
	s.logWrite(ctx, "profile.accept_terms", nil)
	return nil
}

// AddWallet persists a new wallet. The cache entry is dropped so the next
// eligibility check sees the store's wallet list.
func (s *Service) AddWallet(ctx context.Context, userID int64, w Wallet) error {
	err := s.store.AddWallet(ctx, userID, w)
	s.cache.Invalidate(userID)
	s.logWrite(ctx, "profile.add_wallet", err, slog.String("wallet", w.Address))
	return err
}

// RemoveWallet deletes a wallet from the profile.
func (s *Service) RemoveWallet(ctx context.Context, userID int64, address string) error {
	err := s.store.RemoveWallet(ctx, userID, address)
	s.cache.Invalidate(userID)
	s.logWrite(ctx, "profile.remove_wallet", err, slog.String("wallet", address))
	return err
}

// UpdateSettings saves settings and merges them into a live cache entry.
func (s *Service) UpdateSettings(ctx context.Context, userID int64, settings Settings) error {
	if err := s.store.SaveSettings(ctx, userID, settings); err != nil {
		s.cache.Invalidate(userID)
		s.logWrite(ctx, "profile.update_settings", err)
		return err
	}
	s.cache.MergeUpdate(userID, Patch{Settings: &settings})
	s.logWrite(ctx, "profile.update_settings", nil)
	return nil
}

func (s *Service) logWrite(ctx context.Context, event string, err error, attrs ...slog.Attr) {
	if err != nil {
		logger.Error(ctx, "service.profiles", event, append(attrs,
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)...)
		return
	}
	logger.Info(ctx, "service.profiles", event, append(attrs, slog.String("status", "ok"))...)
}
