// Package sender runs outbound Telegram calls on a bounded worker pool.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// maxFloodWait caps how long a single flood-control pause may last.
const maxFloodWait = 30 * time.Second

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
	once     bool
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
type Dispatcher struct {
	opts Options
	jobs chan job
	stop chan struct{}
	once sync.Once
	mu   sync.RWMutex
	wg   sync.WaitGroup
	errs atomic.Uint64

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher starts a dispatcher, filling in defaults for zero options.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{
		opts:  opts,
		jobs:  make(chan job, opts.QueueSize),
		stop:  make(chan struct{}),
		sleep: sleepCtx,
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules run. Transient failures are retried, so run must be safe
// to repeat.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	return d.enqueue(job{ctx: ctx, action: action, endpoint: endpoint, run: run})
}

// EnqueueOnce schedules run for a single attempt. Use it for messages that
// must not be duplicated, such as ones that are deleted later.
func (d *Dispatcher) EnqueueOnce(ctx context.Context, action, endpoint string, run func() error) error {
	return d.enqueue(job{ctx: ctx, action: action, endpoint: endpoint, run: run, once: true})
}

func (d *Dispatcher) enqueue(j job) error {
	if j.run == nil {
		return errors.New("telegram sender: nil run function")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}
	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close rejects new jobs, drains the queue and waits for the workers.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		close(d.stop)
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handle(j)
	}
}

func (d *Dispatcher) handle(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)
	bounded, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	attempts := d.opts.MaxRetries + 1
	if j.once {
		attempts = 1
	}
	start := time.Now()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(); err == nil {
			logger.Debug(ctx, "tg.sender", "send.success", append(jobAttrs(j),
				slog.Int("attempt", attempt),
				slog.Duration("duration", logger.RoundMS(time.Since(start))),
			)...)
			return
		}
		wait, retry := d.backoff(err, attempt)
		if !retry || attempt == attempts {
			break
		}
		logger.Debug(ctx, "tg.sender", "send.retry", append(jobAttrs(j),
			slog.Int("attempt", attempt),
			slog.Duration("delay", wait),
			slog.String("error_kind", ErrorKind(err)),
		)...)
		if serr := d.sleep(bounded, wait); serr != nil {
			err = serr
			break
		}
	}

	d.errs.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail", append(jobAttrs(j),
		slog.String("err", redactToken(err)),
		slog.String("error_kind", ErrorKind(err)),
		slog.Bool("once", j.once),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)...)
}

// backoff decides whether err is worth another attempt and how long to wait.
// Flood control dictates its own pause.
func (d *Dispatcher) backoff(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		wait := time.Duration(flood.RetryAfter) * time.Second
		if wait <= 0 {
			wait = d.opts.RetryBackoff
		}
		return min(wait, maxFloodWait), true
	}
	if netutil.ShouldRetry(err) {
		return d.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

func jobAttrs(j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}

// ErrorKind buckets an outbound failure for logs.
func ErrorKind(err error) string {
	var (
		flood  tele.FloodError
		apiErr *tele.Error
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &flood):
		return "flood"
	case errors.As(err, &apiErr):
		if apiErr.Code >= 500 {
			return "http_5xx"
		}
		return "http_4xx"
	case netutil.ShouldRetry(err):
		return "network"
	}
	return "unknown"
}

// redactToken keeps the bot token out of logs; telebot errors embed the URL.
func redactToken(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
