package bot

import (
	"context"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/internal/operation"
	"github.com/m3rciful/swapbot/internal/vault"
)

// fakeContext implements the parts of tele.Context the handlers touch.
// Calling anything else panics on the nil embedded interface.
type fakeContext struct {
	tele.Context

	user  *tele.User
	msg   *tele.Message
	cb    *tele.Callback
	args  []string
	store map[string]interface{}
	sent  []string
	marks []*tele.ReplyMarkup
	// answered counts callback answers.
	answered int
}

func newFakeContext(userID int64) *fakeContext {
	return &fakeContext{
		user:  &tele.User{ID: userID},
		store: map[string]interface{}{},
	}
}

func (f *fakeContext) withText(text string) *fakeContext {
	f.msg = &tele.Message{ID: 77, Text: text, Chat: &tele.Chat{ID: f.user.ID}}
	return f
}

func (f *fakeContext) withCallback(unique, payload string) *fakeContext {
	f.cb = &tele.Callback{Data: "\f" + unique + "|" + payload}
	return f
}

func (f *fakeContext) Sender() *tele.User         { return f.user }
func (f *fakeContext) Chat() *tele.Chat           { return &tele.Chat{ID: f.user.ID} }
func (f *fakeContext) Update() tele.Update        { return tele.Update{ID: 1} }
func (f *fakeContext) Message() *tele.Message     { return f.msg }
func (f *fakeContext) Callback() *tele.Callback   { return f.cb }
func (f *fakeContext) Args() []string             { return f.args }
func (f *fakeContext) Get(key string) interface{} { return f.store[key] }
func (f *fakeContext) Set(key string, v interface{}) {
	f.store[key] = v
}

func (f *fakeContext) Text() string {
	if f.msg == nil {
		return ""
	}
	return f.msg.Text
}

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	text, _ := what.(string)
	f.sent = append(f.sent, text)
	var markup *tele.ReplyMarkup
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			markup = so.ReplyMarkup
		}
	}
	f.marks = append(f.marks, markup)
	return nil
}

func (f *fakeContext) Respond(...*tele.CallbackResponse) error {
	f.answered++
	return nil
}

func (f *fakeContext) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

// fakeSender records outbound messages of the notifier.
type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	deleted []tele.Editable
	nextID  int
}

func (s *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, _ := what.(string)
	s.sent = append(s.sent, text)
	s.nextID++
	return &tele.Message{ID: s.nextID, Text: text}, nil
}

func (s *fakeSender) Delete(msg tele.Editable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, msg)
	return nil
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// scheduled captures delayed work instead of running a timer.
type scheduled struct {
	delays []time.Duration
	fns    []func()
}

func (s *scheduled) after(d time.Duration, fn func()) {
	s.delays = append(s.delays, d)
	s.fns = append(s.fns, fn)
}

func (s *scheduled) runAll() {
	for _, fn := range s.fns {
		fn()
	}
}

// fakeOps records calls made by handlers.
type fakeOps struct {
	snap      operation.Snapshot
	submitted []string
	fields    []operation.Field
	confirmed []string
	started   []operation.Kind
	err       error
}

func (o *fakeOps) Start(_ context.Context, _ int64, kind operation.Kind) error {
	o.started = append(o.started, kind)
	return o.err
}

func (o *fakeOps) Submit(_ context.Context, _ int64, raw string) error {
	o.submitted = append(o.submitted, raw)
	return o.err
}

func (o *fakeOps) SubmitField(_ context.Context, _ int64, field operation.Field, raw string) error {
	o.fields = append(o.fields, field)
	o.submitted = append(o.submitted, raw)
	return o.err
}

func (o *fakeOps) Confirm(_ context.Context, _ int64, idem string) (operation.Outcome, error) {
	o.confirmed = append(o.confirmed, idem)
	return operation.Outcome{}, o.err
}

func (o *fakeOps) Cancel(context.Context, int64) error { return o.err }

func (o *fakeOps) InProgress(int64) bool { return o.snap.Phase != operation.Idle }

func (o *fakeOps) Snapshot(int64) operation.Snapshot { return o.snap }

type fakeOrders struct {
	list    []operation.OrderSummary
	out     operation.Outcome
	err     error
	kinds   []operation.OrderKind
	cancels []string
}

func (o *fakeOrders) ListForUser(_ context.Context, _ int64, kind operation.OrderKind) ([]operation.OrderSummary, error) {
	o.kinds = append(o.kinds, kind)
	return o.list, o.err
}

func (o *fakeOrders) Cancel(_ context.Context, _ int64, id string) (operation.Outcome, error) {
	o.cancels = append(o.cancels, id)
	return o.out, o.err
}

type fakeKeys struct {
	storeOK bool
	stored  map[string][]byte
	deleted []string
	report  vault.CheckReport
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{storeOK: true, stored: map[string][]byte{}}
}

func (k *fakeKeys) Store(_ context.Context, address string, key []byte) bool {
	if !k.storeOK {
		return false
	}
	k.stored[address] = append([]byte(nil), key...)
	return true
}

func (k *fakeKeys) Delete(_ context.Context, address string) bool {
	k.deleted = append(k.deleted, address)
	delete(k.stored, address)
	return true
}

func (k *fakeKeys) Check(context.Context) (vault.CheckReport, error) { return k.report, nil }
