package operation

import (
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Limits bound user input.
type Limits struct {
	MaxAmount        decimal.Decimal
	MaxIntervalHours int
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{MaxAmount: decimal.NewFromInt(1_000_000), MaxIntervalHours: 720}
}

const (
	maxRepeat     = 100
	maxExpiryUnit = 9999
	secretHexLen  = 64
)

var (
	hundred  = decimal.NewFromInt(100)
	expiryRe = regexp.MustCompile(`(?i)^(\d+)([hdwm])$`)

	expiryUnits = map[string]time.Duration{
		"h": time.Hour,
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
		"m": 30 * 24 * time.Hour,
	}
)

// Amount is an absolute quantity or a percentage of a balance resolved later.
type Amount struct {
	Value   decimal.Decimal
	Percent bool
}

func (a Amount) String() string {
	if a.Percent {
		return a.Value.String() + "%"
	}
	return a.Value.String()
}

// Expiry is a validated order lifetime such as 7D.
type Expiry struct {
	Count int
	Unit  string
}

// Duration converts the expiry to wall time; one month counts as 30 days.
func (e Expiry) Duration() time.Duration {
	return time.Duration(e.Count) * expiryUnits[strings.ToLower(e.Unit)]
}

func (e Expiry) String() string { return strconv.Itoa(e.Count) + strings.ToUpper(e.Unit) }

// AddressValidator checks and normalizes an on-chain address.
type AddressValidator func(raw string) (string, error)

// ValidateAddress accepts 0x-prefixed 20-byte hex addresses. Mixed-case input
// must carry a valid EIP-55 checksum. The checksummed form is returned.
func ValidateAddress(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", invalid(FieldToken, "address must start with 0x")
	}
	if !common.IsHexAddress(s) {
		return "", invalid(FieldToken, "not a 20-byte hex address")
	}
	addr := common.HexToAddress(s)
	body := s[2:]
	if strings.ToLower(body) != body && strings.ToUpper(body) != body && addr.Hex() != "0x"+body {
		return "", invalid(FieldToken, "address checksum mismatch")
	}
	return addr.Hex(), nil
}

// value is one collected field: its normalized display form and parsed payload.
type value struct {
	display string
	parsed  any
}

// Validators parse raw field input.
type Validators struct {
	Limits  Limits
	Address AddressValidator
}

func (v Validators) parse(field Field, raw string) (value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return value{}, invalid(field, "value is empty")
	}
	switch field {
	case FieldAmount:
		a, err := v.parseAmount(s)
		if err != nil {
			return value{}, err
		}
		return value{display: a.String(), parsed: a}, nil
	case FieldInterval:
		n, err := parseBoundedInt(field, strings.TrimSuffix(strings.ToLower(s), "h"), 1, v.Limits.MaxIntervalHours)
		if err != nil {
			return value{}, err
		}
		return value{display: strconv.Itoa(n) + "h", parsed: time.Duration(n) * time.Hour}, nil
	case FieldRepeat:
		n, err := parseBoundedInt(field, s, 1, maxRepeat)
		if err != nil {
			return value{}, err
		}
		return value{display: strconv.Itoa(n), parsed: n}, nil
	case FieldPrice:
		d, err := v.parsePositive(field, s)
		if err != nil {
			return value{}, err
		}
		return value{display: d.String(), parsed: d}, nil
	case FieldExpiry:
		e, err := parseExpiry(s)
		if err != nil {
			return value{}, err
		}
		return value{display: e.String(), parsed: e}, nil
	case FieldToken, FieldRecipient:
		validate := v.Address
		if validate == nil {
			validate = ValidateAddress
		}
		addr, err := validate(s)
		if err != nil {
			if verr, ok := err.(*ValidationError); ok {
				return value{}, &ValidationError{Field: field, Hint: verr.Hint}
			}
			return value{}, invalid(field, "%s", err.Error())
		}
		return value{display: addr, parsed: addr}, nil
	case FieldSecret:
		secret, err := parseSecret(s)
		if err != nil {
			return value{}, err
		}
		return value{display: "••••", parsed: secret}, nil
	}
	return value{}, invalid(field, "unsupported field")
}

func (v Validators) parseAmount(s string) (Amount, error) {
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		d, err := decimal.NewFromString(strings.TrimSpace(pct))
		if err != nil {
			return Amount{}, invalid(FieldAmount, "percentage must be a number followed by %%")
		}
		if !d.IsPositive() || d.GreaterThan(hundred) {
			return Amount{}, invalid(FieldAmount, "percentage must be above 0 and at most 100")
		}
		return Amount{Value: d, Percent: true}, nil
	}
	d, err := v.parsePositive(FieldAmount, s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

func (v Validators) parsePositive(field Field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid(field, "not a number")
	}
	if !d.IsPositive() {
		return decimal.Zero, invalid(field, "must be greater than 0")
	}
	if !v.Limits.MaxAmount.IsZero() && d.GreaterThan(v.Limits.MaxAmount) {
		return decimal.Zero, invalid(field, "must not exceed %s", v.Limits.MaxAmount.String())
	}
	return d, nil
}

func parseBoundedInt(field Field, s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, invalid(field, "must be a whole number")
	}
	if n < lo || (hi > 0 && n > hi) {
		return 0, invalid(field, "must be between %d and %d", lo, hi)
	}
	return n, nil
}

func parseExpiry(s string) (Expiry, error) {
	m := expiryRe.FindStringSubmatch(s)
	if m == nil {
		return Expiry{}, invalid(FieldExpiry, "use a number followed by H, D, W or M, e.g. 7D")
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > maxExpiryUnit {
		return Expiry{}, invalid(FieldExpiry, "count must be between 1 and %d", maxExpiryUnit)
	}
	return Expiry{Count: n, Unit: strings.ToUpper(m[2])}, nil
}

// parseSecret returns the key as lower-case hex without prefix.
func parseSecret(s string) ([]byte, error) {
	body := strings.ToLower(s)
	body = strings.TrimPrefix(body, "0x")
	if len(body) != secretHexLen {
		return nil, invalid(FieldSecret, "private key must be %d hex characters", secretHexLen)
	}
	if _, err := hex.DecodeString(body); err != nil {
		return nil, invalid(FieldSecret, "private key must be hexadecimal")
	}
	return []byte(body), nil
}

// ResolveAmount turns a into an absolute amount against balance. A zero
// balance, a non-positive result, or a result above balance are rejected.
func ResolveAmount(a Amount, balance decimal.Decimal) (decimal.Decimal, error) {
	if !balance.IsPositive() {
		return decimal.Zero, invalid(FieldAmount, "balance is zero")
	}
	resolved := a.Value
	if a.Percent {
		resolved = balance.Mul(a.Value).Div(hundred)
	}
	if !resolved.IsPositive() {
		return decimal.Zero, invalid(FieldAmount, "resolved amount is zero")
	}
	if resolved.GreaterThan(balance) {
		return decimal.Zero, invalid(FieldAmount, "amount %s exceeds balance %s", resolved.String(), balance.String())
	}
	return resolved, nil
}
