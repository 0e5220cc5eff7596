package operation

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/internal/profile"
	"github.com/m3rciful/swapbot/internal/session"
)

// DefaultExecuteTimeout bounds a single executor call.
const DefaultExecuteTimeout = 45 * time.Second

// State is the operation record of one conversation. It is only touched with
// the conversation lock held.
type State struct {
	kind      Kind
	phase     Phase
	values    map[Field]value
	createdAt time.Time
	wallet    string
	pending   Request
	idemKey   string
	// seq changes on every Start so in-flight work can detect a replaced state.
	seq uint64
}

func (s *State) expected() Field {
	for _, f := range fieldOrder[s.kind] {
		if _, ok := s.values[f]; !ok {
			return f
		}
	}
	return ""
}

// reset returns the conversation to Idle, wiping any collected secret.
func (s *State) reset() {
	if v, ok := s.values[FieldSecret]; ok {
		if b, ok := v.parsed.([]byte); ok {
			memguard.WipeBytes(b)
		}
	}
	*s = State{seq: s.seq}
}

// NewConversations builds the conversation store the machine runs on.
func NewConversations(opts ...session.Option[State]) *session.Store[State] {
	return session.NewStore[State](nil, opts...)
}

// Deps are the collaborators of a Machine.
type Deps struct {
	Conversations *session.Store[State]
	Profiles      Profiles
	Vault         KeyVault
	Balances      Balances
	Executor      Executor
	Notifier      Notifier
}

// Options tune a Machine. Zero values select defaults.
type Options struct {
	Limits            Limits
	ExecuteTimeout    time.Duration
	ValidateAddress   AddressValidator
	Now               func() time.Time
	NewIdempotencyKey func() string
}

// Machine is the per-conversation operation controller. Events for one
// conversation are serialized; conversations proceed independently.
type Machine struct {
	convs       *session.Store[State]
	profiles    Profiles
	vault       KeyVault
	balances    Balances
	executor    Executor
	notifier    Notifier
	validators  Validators
	execTimeout time.Duration
	now         func() time.Time
	newKey      func() string
}

// NewMachine validates deps and applies option defaults.
func NewMachine(deps Deps, opts Options) (*Machine, error) {
	switch {
	case deps.Profiles == nil:
		return nil, errors.New("operation: nil profiles")
	case deps.Vault == nil:
		return nil, errors.New("operation: nil vault")
	case deps.Balances == nil:
		return nil, errors.New("operation: nil balances")
	case deps.Executor == nil:
		return nil, errors.New("operation: nil executor")
	}
	m := &Machine{
		convs:       deps.Conversations,
		profiles:    deps.Profiles,
		vault:       deps.Vault,
		balances:    deps.Balances,
		executor:    deps.Executor,
		notifier:    deps.Notifier,
		validators:  Validators{Limits: opts.Limits, Address: opts.ValidateAddress},
		execTimeout: opts.ExecuteTimeout,
		now:         opts.Now,
		newKey:      opts.NewIdempotencyKey,
	}
	if m.convs == nil {
		m.convs = NewConversations()
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	if m.validators.Limits.MaxAmount.IsZero() {
		m.validators.Limits = DefaultLimits()
	}
	if m.execTimeout <= 0 {
		m.execTimeout = DefaultExecuteTimeout
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newKey == nil {
		m.newKey = func() string { return uuid.NewString() }
	}
	return m, nil
}

// Snapshot is a read-only view of a conversation's operation.
type Snapshot struct {
	Kind           Kind
	Phase          Phase
	Expected       Field
	Values         map[Field]string
	Wallet         string
	Request        Request
	IdempotencyKey string
	CreatedAt      time.Time
}

// Snapshot returns the current operation of conversationID.
func (m *Machine) Snapshot(conversationID int64) Snapshot {
	conv, unlock := m.convs.Lock(conversationID)
	defer unlock()
	st := &conv.State
	snap := Snapshot{
		Kind:           st.kind,
		Phase:          st.phase,
		Expected:       st.expected(),
		Values:         make(map[Field]string, len(st.values)),
		Wallet:         st.wallet,
		Request:        st.pending,
		IdempotencyKey: st.idemKey,
		CreatedAt:      st.createdAt,
	}
	if snap.Request != nil && snap.Kind == KeyVerification {
		snap.Request = KeyVerificationRequest{}
	}
	for f, v := range st.values {
		snap.Values[f] = v.display
	}
	return snap
}

// InProgress reports whether conversationID has a non-idle operation.
func (m *Machine) InProgress(conversationID int64) bool {
	conv, unlock := m.convs.Lock(conversationID)
	defer unlock()
	return conv.State.phase != Idle
}

// Sweep evicts conversations idle for at least idle. In-flight ones are kept.
func (m *Machine) Sweep(idle time.Duration) []int64 {
	return m.convs.Sweep(idle, func(st State) bool { return st.phase == Executing })
}

// Start begins an operation of kind. It is rejected while another operation is
// active or when the user is not trade eligible.
func (m *Machine) Start(ctx context.Context, conversationID int64, kind Kind) error {
	if _, ok := fieldOrder[kind]; !ok {
		return ErrUnknownKind
	}
	if err := m.rejectIfActive(ctx, conversationID); err != nil {
		return err
	}

	p, err := m.profiles.RequireEligible(ctx, conversationID, profile.AllowStale)
	if err != nil {
		reason := profile.ReasonNotRegistered
		var eligErr *profile.EligibilityError
		if errors.As(err, &eligErr) {
			reason = eligErr.Reason
		}
		m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticeNotEligible, Operation: kind, Hint: reason})
		logger.Info(ctx, "service.operations", "operation.start",
			slog.String("status", "skip"),
			slog.String("kind", kind.String()),
			slog.String("reason", reason),
		)
		return err
	}
	wallet, _ := p.PrimaryWallet()

	conv, unlock := m.convs.Lock(conversationID)
	st := &conv.State
	if st.phase != Idle {
		unlock()
		return m.rejectIfActive(ctx, conversationID)
	}
	seq := st.seq + 1
	*st = State{
		kind:      kind,
		phase:     Collecting,
		values:    make(map[Field]value),
		createdAt: m.now(),
		wallet:    wallet.Address,
		seq:       seq,
	}
	first := st.expected()
	unlock()

	logger.Info(ctx, "service.operations", "operation.start",
		slog.String("status", "ok"),
		slog.String("kind", kind.String()),
		slog.String("wallet", wallet.Address),
	)
	m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticePrompt, Operation: kind, Field: first, Wallet: wallet.Address})
	return nil
}

func (m *Machine) rejectIfActive(ctx context.Context, conversationID int64) error {
	conv, unlock := m.convs.Lock(conversationID)
	phase, kind := conv.State.phase, conv.State.kind
	n := Notification{Kind: NoticeActive, Operation: kind, Field: conv.State.expected(), IdempotencyKey: conv.State.idemKey}
	unlock()
	switch phase {
	case Idle:
		return nil
	case Executing:
		m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticeBusy, Operation: kind})
		return ErrBusy
	}
	m.notifier.Notify(ctx, conversationID, n)
	return ErrActive
}

// Submit validates raw as the next expected field of the active operation.
func (m *Machine) Submit(ctx context.Context, conversationID int64, raw string) error {
	return m.submit(ctx, conversationID, "", raw)
}

// SubmitField validates raw for field. Input for any field other than the one
// currently expected is a validation failure.
func (m *Machine) SubmitField(ctx context.Context, conversationID int64, field Field, raw string) error {
	if field == "" {
		return &ValidationError{Field: field, Hint: "field name required"}
	}
	return m.submit(ctx, conversationID, field, raw)
}

// job is the slice of State a transition needs once the lock is released.
type job struct {
	kind    Kind
	values  map[Field]value
	wallet  string
	pending Request
	idemKey string
	seq     uint64
}

func (m *Machine) submit(ctx context.Context, conversationID int64, field Field, raw string) error {
	conv, unlock := m.convs.Lock(conversationID)
	st := &conv.State
	switch st.phase {
	case Idle:
		unlock()
		return ErrNoActive
	case Executing:
		kind := st.kind
		unlock()
		m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticeBusy, Operation: kind})
		return ErrBusy
	case Confirming:
		n := Notification{Kind: NoticeConfirm, Operation: st.kind, Wallet: st.wallet, Request: st.pending, IdempotencyKey: st.idemKey}
		unlock()
		m.notifier.Notify(ctx, conversationID, n)
		return ErrAwaitingConfirmation
	}

	kind := st.kind
	expected := st.expected()
	if field != "" && field != expected {
		unlock()
		verr := &ValidationError{Field: expected, Hint: fmt.Sprintf("expected %s, not %s", expected, field)}
		m.rejectInput(ctx, conversationID, kind, verr)
		return verr
	}

	val, err := m.validators.parse(expected, raw)
	if err != nil {
		unlock()
		var verr *ValidationError
		if !errors.As(err, &verr) {
			verr = &ValidationError{Field: expected, Hint: err.Error()}
		}
		m.rejectInput(ctx, conversationID, kind, verr)
		return verr
	}
	st.values[expected] = val

	next := st.expected()
	if next != "" {
		unlock()
		logger.Debug(ctx, "service.operations", "operation.field",
			slog.String("status", "ok"),
			slog.String("kind", kind.String()),
			slog.String("field", string(expected)),
		)
		m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticePrompt, Operation: kind, Field: next})
		return nil
	}

	st.phase = Executing
	j := job{kind: kind, values: copyValues(st.values), wallet: st.wallet, seq: st.seq}
	unlock()

	if kind == KeyVerification {
		m.verifyKey(ctx, conversationID, j)
		return nil
	}
	return m.enterConfirming(ctx, conversationID, j)
}

func (m *Machine) rejectInput(ctx context.Context, conversationID int64, kind Kind, verr *ValidationError) {
	logger.Debug(ctx, "service.operations", "operation.field",
		slog.String("status", "skip"),
		slog.String("kind", kind.String()),
		slog.String("field", string(verr.Field)),
		slog.String("reason", verr.Hint),
	)
	m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticeInvalid, Operation: kind, Field: verr.Field, Hint: verr.Hint})
}

// enterConfirming resolves the amount against a live balance and, on success,
// issues the idempotency key for the confirm step.
func (m *Machine) enterConfirming(ctx context.Context, conversationID int64, j job) error {
	req, resolveErr := m.resolve(ctx, j)

	conv, unlock := m.convs.Lock(conversationID)
	st := &conv.State
	if st.seq != j.seq || st.phase != Executing {
		unlock()
		return ErrNoActive
	}
	if resolveErr != nil {
		delete(st.values, FieldAmount)
		st.phase = Collecting
		unlock()
		var verr *ValidationError
		if !errors.As(resolveErr, &verr) {
			verr = &ValidationError{Field: FieldAmount, Hint: resolveErr.Error()}
		}
		m.rejectInput(ctx, conversationID, j.kind, verr)
		m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticePrompt, Operation: j.kind, Field: FieldAmount})
		return verr
	}
	st.pending = req
	st.idemKey = m.newKey()
	st.phase = Confirming
	n := Notification{Kind: NoticeConfirm, Operation: j.kind, Wallet: st.wallet, Request: req, IdempotencyKey: st.idemKey}
	unlock()

	logger.Info(ctx, "service.operations", "operation.confirming",
		slog.String("status", "ok"),
		slog.String("kind", j.kind.String()),
		slog.String("idem_key", n.IdempotencyKey),
	)
	m.notifier.Notify(ctx, conversationID, n)
	return nil
}

func (m *Machine) resolve(ctx context.Context, j job) (Request, error) {
	amount, ok := j.values[FieldAmount].parsed.(Amount)
	if !ok {
		return nil, invalid(FieldAmount, "amount missing")
	}
	resolved := amount.Value
	if amount.Percent || j.kind == Withdraw {
		balance, err := m.balanceFor(ctx, j)
		if err != nil {
			logger.Warn(ctx, "service.operations", "operation.balance",
				slog.String("status", "fail"),
				slog.String("kind", j.kind.String()),
				slog.String("wallet", j.wallet),
				slog.String("err", err.Error()),
			)
			return nil, invalid(FieldAmount, "balance unavailable, try again")
		}
		resolved, err = ResolveAmount(amount, balance)
		if err != nil {
			return nil, err
		}
	}
	return buildRequest(j.kind, j.values, resolved)
}

// balanceFor reads the balance an amount is drawn from: the sold token for
// Sell, the native coin otherwise.
func (m *Machine) balanceFor(ctx context.Context, j job) (decimal.Decimal, error) {
	if j.kind == Sell {
		token, _ := j.values[FieldToken].parsed.(string)
		return m.balances.TokenBalance(ctx, j.wallet, token)
	}
	return m.balances.NativeBalance(ctx, j.wallet)
}

// Confirm executes the pending request. idemKey must match the key issued on
// entering confirmation; duplicates and stale keys are rejected. The operation
// always ends in Idle, whatever the result.
func (m *Machine) Confirm(ctx context.Context, conversationID int64, idemKey string) (Outcome, error) {
	conv, unlock := m.convs.Lock(conversationID)
	st := &conv.State
	switch st.phase {
	case Confirming:
	case Executing:
		kind := st.kind
		unlock()
		m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticeBusy, Operation: kind})
		return Outcome{}, ErrBusy
	default:
		unlock()
		return Outcome{}, ErrNotConfirming
	}
	if subtle.ConstantTimeCompare([]byte(idemKey), []byte(st.idemKey)) != 1 {
		unlock()
		logger.Warn(ctx, "service.operations", "operation.confirm",
			slog.String("status", "skip"),
			slog.String("reason", "stale_idem_key"),
			slog.String("idem_key", idemKey),
		)
		return Outcome{}, ErrStaleConfirmation
	}
	st.phase = Executing
	j := job{kind: st.kind, wallet: st.wallet, pending: st.pending, idemKey: st.idemKey, seq: st.seq}
	unlock()

	start := time.Now()
	out := m.runExecution(ctx, conversationID, j)
	m.finish(conversationID, j.seq)

	attrs := []slog.Attr{
		slog.String("status", out.Status.String()),
		slog.String("kind", j.kind.String()),
		slog.String("wallet", j.wallet),
		slog.String("idem_key", j.idemKey),
		slog.Duration("duration", logger.Took(start)),
	}
	if out.Reason != ReasonNone {
		attrs = append(attrs, slog.String("reason", string(out.Reason)))
	}
	if out.TxHash != "" {
		attrs = append(attrs, slog.String("tx_hash", out.TxHash))
	}
	if out.OrderID != "" {
		attrs = append(attrs, slog.String("order_id", out.OrderID))
	}
	if out.Detail != "" {
		attrs = append(attrs, slog.String("err", out.Detail))
	}
	if out.Status == Executed {
		logger.Info(ctx, "service.operations", "operation.confirm", attrs...)
	} else {
		logger.Warn(ctx, "service.operations", "operation.confirm", attrs...)
	}

	m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticeOutcome, Operation: j.kind, Wallet: j.wallet, Outcome: &out})
	return out, nil
}

func (m *Machine) runExecution(ctx context.Context, conversationID int64, j job) (out Outcome) {
	out = Outcome{Kind: j.kind, Status: Failed, Reason: ReasonUnknown, Request: j.pending}
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Kind: j.kind, Status: Failed, Reason: ReasonUnknown, Request: j.pending, Detail: fmt.Sprint(r)}
		}
	}()

	p, err := m.profiles.RequireEligible(ctx, conversationID, profile.ForceRefresh)
	if err != nil {
		out.Reason = ReasonNotEligible
		return out
	}
	if _, ok := p.Wallet(j.wallet); !ok {
		out.Reason = ReasonNotEligible
		return out
	}

	key, ok := m.vault.Retrieve(ctx, j.wallet)
	if !ok {
		out.Reason = ReasonNoKeyMaterial
		return out
	}
	defer memguard.WipeBytes(key)

	settings := p.EffectiveSettings()
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.execTimeout)
	defer cancel()

	res, err := m.executor.Execute(execCtx, Execution{
		Request:        j.pending,
		Wallet:         j.wallet,
		PrivateKey:     key,
		IdempotencyKey: j.idemKey,
		SlippageBps:    settings.SlippageBps,
		GasPriority:    settings.GasPriority,
	})
	switch {
	case err != nil:
		out.Detail = logger.SanitizeLimit(err.Error(), 256)
		out.Reason = ClassifyFailure(err.Error())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			out.Reason = ReasonTimeout
		}
	case !res.Success:
		out.Detail = logger.SanitizeLimit(res.Error, 256)
		out.Reason = ClassifyFailure(res.Error)
	default:
		out.Status = Executed
		out.Reason = ReasonNone
		out.TxHash = res.TxHash
		out.OrderID = res.OrderID
	}
	return out
}

// verifyKey compares the submitted key with the vault copy in constant time.
func (m *Machine) verifyKey(ctx context.Context, conversationID int64, j job) {
	secret, _ := j.values[FieldSecret].parsed.([]byte)
	out := Outcome{Kind: KeyVerification, Status: Failed, Request: KeyVerificationRequest{}}

	stored, ok := m.vault.Retrieve(ctx, j.wallet)
	if !ok {
		out.Reason = ReasonNoKeyMaterial
	} else {
		norm := normalizeStoredKey(stored)
		if subtle.ConstantTimeCompare(secret, norm) == 1 {
			out.Status = Executed
		} else {
			out.Reason = ReasonKeyMismatch
		}
		memguard.WipeBytes(norm)
		memguard.WipeBytes(stored)
	}
	m.finish(conversationID, j.seq)

	logger.Info(ctx, "service.operations", "operation.verify_key",
		slog.String("status", out.Status.String()),
		slog.String("wallet", j.wallet),
		slog.String("reason", string(out.Reason)),
	)
	m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticeOutcome, Operation: KeyVerification, Wallet: j.wallet, Outcome: &out})
}

// normalizeStoredKey returns a fresh lower-case hex copy without 0x prefix.
func normalizeStoredKey(stored []byte) []byte {
	out := make([]byte, 0, len(stored))
	s := strings.TrimSpace(string(stored))
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'F' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return out
}

// finish resets the conversation if it still holds the operation identified by seq.
func (m *Machine) finish(conversationID int64, seq uint64) {
	conv, unlock := m.convs.Lock(conversationID)
	defer unlock()
	if conv.State.seq == seq {
		conv.State.reset()
	}
}

// Cancel abandons the active operation. It is refused while a transition is
// in flight: once the executor is invoked its result decides the outcome.
func (m *Machine) Cancel(ctx context.Context, conversationID int64) error {
	conv, unlock := m.convs.Lock(conversationID)
	st := &conv.State
	switch st.phase {
	case Idle:
		unlock()
		return ErrNoActive
	case Executing:
		kind := st.kind
		unlock()
		m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticeBusy, Operation: kind})
		return ErrBusy
	}
	kind := st.kind
	st.reset()
	unlock()

	logger.Info(ctx, "service.operations", "operation.cancel",
		slog.String("status", "ok"),
		slog.String("kind", kind.String()),
	)
	out := Outcome{Kind: kind, Status: Cancelled}
	m.notifier.Notify(ctx, conversationID, Notification{Kind: NoticeOutcome, Operation: kind, Outcome: &out})
	return nil
}

func copyValues(in map[Field]value) map[Field]value {
	out := make(map[Field]value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
