// Package profile models user profiles and serves them through a short-lived
// cache that write paths keep coherent.
package profile

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound means the user is unknown or the profile could not be read.
	ErrNotFound = errors.New("profile: not found")
	// ErrNotEligible is matched by every EligibilityError.
	ErrNotEligible = errors.New("profile: not trade eligible")
)

// Eligibility failure reasons, also used as onboarding redirect keys.
const (
	ReasonNotRegistered    = "not_registered"
	ReasonTermsNotAccepted = "terms_not_accepted"
	ReasonNoWallet         = "no_wallet"
)

// EligibilityError explains why a user cannot start a trade.
type EligibilityError struct {
	Reason string
}

func (e *EligibilityError) Error() string { return "profile: not trade eligible: " + e.Reason }

// Is lets errors.Is(err, ErrNotEligible) match.
func (e *EligibilityError) Is(target error) bool { return target == ErrNotEligible }

// Code returns a stable error code for handler logs.
func (e *EligibilityError) Code() string { return "NOT_ELIGIBLE_" + strings.ToUpper(e.Reason) }

// Wallet is a custodial wallet owned by a user.
type Wallet struct {
	Address   string    `db:"address" json:"address"`
	Label     string    `db:"label" json:"label"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Gas priorities accepted in Settings.
const (
	GasStandard = "standard"
	GasFast     = "fast"
	GasInstant  = "instant"
)

// Settings are per-user trade preferences.
type Settings struct {
	SlippageBps   int    `db:"slippage_bps" json:"slippage_bps"`
	GasPriority   string `db:"gas_priority" json:"gas_priority"`
	DefaultWallet string `db:"default_wallet" json:"default_wallet"`
}

// DefaultSettings applies when a user never saved settings.
func DefaultSettings() Settings {
	return Settings{SlippageBps: 100, GasPriority: GasStandard}
}

// UserProfile is the read model used by trade flows.
type UserProfile struct {
	ID            int64
	TermsAccepted bool
	Wallets       []Wallet
	Settings      *Settings
}

// TradeEligible reports whether the user accepted terms and owns a wallet.
func (p UserProfile) TradeEligible() bool {
	return p.TermsAccepted && len(p.Wallets) > 0
}

// Eligibility returns nil or an *EligibilityError.
func (p UserProfile) Eligibility() error {
	switch {
	case !p.TermsAccepted:
		return &EligibilityError{Reason: ReasonTermsNotAccepted}
	case len(p.Wallets) == 0:
		return &EligibilityError{Reason: ReasonNoWallet}
	}
	return nil
}

// EffectiveSettings returns the saved settings or the defaults.
func (p UserProfile) EffectiveSettings() Settings {
	if p.Settings == nil {
		return DefaultSettings()
	}
	return *p.Settings
}

// PrimaryWallet returns the settings' default wallet while the user still owns
// it, otherwise the first wallet.
func (p UserProfile) PrimaryWallet() (Wallet, bool) {
	if len(p.Wallets) == 0 {
		return Wallet{}, false
	}
	if p.Settings != nil && p.Settings.DefaultWallet != "" {
		if w, ok := p.Wallet(p.Settings.DefaultWallet); ok {
			return w, true
		}
	}
	return p.Wallets[0], true
}

// Wallet finds a wallet by address, case-insensitively.
func (p UserProfile) Wallet(address string) (Wallet, bool) {
	address = strings.TrimSpace(address)
	for _, w := range p.Wallets {
		if strings.EqualFold(w.Address, address) {
			return w, true
		}
	}
	return Wallet{}, false
}

// Clone returns a deep copy so cached values never alias caller data.
func (p UserProfile) Clone() UserProfile {
	out := p
	if p.Wallets != nil {
		out.Wallets = append([]Wallet(nil), p.Wallets...)
	}
	if p.Settings != nil {
		s := *p.Settings
		out.Settings = &s
	}
	return out
}

// Patch is a partial profile update. Nil fields are left unchanged.
type Patch struct {
	TermsAccepted *bool
	Wallets       []Wallet
	Settings      *Settings
}

func (p Patch) apply(to *UserProfile) {
	if p.TermsAccepted != nil {
		to.TermsAccepted = *p.TermsAccepted
	}
	if p.Wallets != nil {
		to.Wallets = append([]Wallet(nil), p.Wallets...)
	}
	if p.Settings != nil {
		s := *p.Settings
		to.Settings = &s
	}
}
