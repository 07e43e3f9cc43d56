// Package poll turns a status-check function into a single terminal result.
// It correlates an id with repeated checks bounded by an attempt ceiling and
// a wall-clock ceiling, whichever fires first.
package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultInterval    = 3 * time.Second
	defaultMaxAttempts = 30
	defaultMargin      = 5 * time.Second
)

// Sentinel errors for non-payload outcomes.
var (
	ErrAttemptsExhausted = eris.New("poll: maximum attempts reached")
	ErrTimeout           = eris.New("poll: timed out")
	ErrNoData            = eris.New("poll: successful but no data")
	ErrCancelled         = eris.New("poll: cancelled")
)

// Phase is the status reported by one check.
type Phase string

const (
	PhasePending Phase = "pending"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// Status is the answer to one check. Data is only read on success and
// Message only on error.
type Status[T any] struct {
	Phase   Phase
	Data    *T
	Message string
}

// CheckFunc queries the current status of id.
type CheckFunc[T any] func(ctx context.Context, id string) (Status[T], error)

// RemoteError is an explicit error status reported by the checked job.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// Result is the terminal outcome. Exactly one of Value and Err is set.
type Result[T any] struct {
	Value    *T
	Err      error
	Attempts int
}

// Option configures polling.
type Option func(*config)

type config struct {
	interval    time.Duration
	maxAttempts int
	margin      time.Duration
}

func defaultConfig() config {
	return config{
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		margin:      defaultMargin,
	}
}

// timeout is the overall ceiling: attempts × interval + margin.
func (c config) timeout() time.Duration {
	return time.Duration(c.maxAttempts)*c.interval + c.margin
}

// WithInterval sets the time between checks.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMaxAttempts sets the attempt ceiling.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithMargin sets the slack added to attempts × interval for the overall
// timeout.
func WithMargin(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.margin = d
		}
	}
}

// Future is a pending Result. It resolves exactly once.
type Future[T any] struct {
	once   sync.Once
	done   chan struct{}
	res    Result[T]
	cancel context.CancelFunc
}

// Wait starts polling id with check and returns immediately. The first check
// runs one interval after the call. A failing check counts as an attempt and
// polling continues; only an explicit error status, the attempt ceiling, the
// overall timeout or cancellation end it without a value.
func Wait[T any](ctx context.Context, id string, check CheckFunc[T], opts ...Option) *Future[T] {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout())
	f := &Future[T]{done: make(chan struct{}), cancel: cancel}
	go f.run(ctx, id, check, cfg)
	return f
}

// Done is closed once the future has resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result returns the outcome and whether the future has resolved.
func (f *Future[T]) Result() (Result[T], bool) {
	select {
	case <-f.done:
		return f.res, true
	default:
		return Result[T]{}, false
	}
}

// Await blocks until the future resolves or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (Result[T], error) {
	select {
	case <-f.done:
		return f.res, nil
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	}
}

// Cancel stops polling and resolves the future with ErrCancelled if it has
// not resolved yet.
func (f *Future[T]) Cancel() {
	f.cancel()
	f.resolve(Result[T]{Err: ErrCancelled})
}

func (f *Future[T]) resolve(r Result[T]) {
	f.once.Do(func() {
		f.res = r
		close(f.done)
	})
}

func (f *Future[T]) run(ctx context.Context, id string, check CheckFunc[T], cfg config) {
	defer f.cancel()
	log := zap.L().With(zap.String("id", id))

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			f.resolveDone(ctx, attempts, cfg)
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			f.resolveDone(ctx, attempts, cfg)
			return
		}

		attempts++
		if attempts > cfg.maxAttempts {
			f.resolve(Result[T]{
				Err:      eris.Wrapf(ErrAttemptsExhausted, "%d attempts", cfg.maxAttempts),
				Attempts: attempts - 1,
			})
			return
		}

		st, err := check(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				f.resolveDone(ctx, attempts, cfg)
				return
			}
			log.Warn("poll: status check failed", zap.Int("attempt", attempts), zap.Error(err))
			continue
		}

		switch st.Phase {
		case PhaseSuccess:
			if st.Data == nil {
				f.resolve(Result[T]{Err: ErrNoData, Attempts: attempts})
			} else {
				f.resolve(Result[T]{Value: st.Data, Attempts: attempts})
			}
			return
		case PhaseError:
			msg := st.Message
			if msg == "" {
				msg = "Polling returned an error."
			}
			f.resolve(Result[T]{Err: &RemoteError{Message: msg}, Attempts: attempts})
			return
		default:
			log.Debug("poll: still pending", zap.Int("attempt", attempts), zap.Int("max", cfg.maxAttempts))
		}
	}
}

// resolveDone resolves after ctx ended: the overall deadline is a timeout,
// anything else a cancellation.
func (f *Future[T]) resolveDone(ctx context.Context, attempts int, cfg config) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		f.resolve(Result[T]{Err: eris.Wrapf(ErrTimeout, "after %s", cfg.timeout()), Attempts: attempts})
		return
	}
	f.resolve(Result[T]{Err: ErrCancelled, Attempts: attempts})
}
