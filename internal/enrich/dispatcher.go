package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/onboard/internal/metrics"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/resilience"
)

// Outcome is the final state of one dispatch.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeDropped   Outcome = "dropped"
)

// DispatchResult reports what happened to one outbound request. A failed or
// dropped dispatch does not fail the job: the client poll times out instead.
type DispatchResult struct {
	JobID    string
	Outcome  Outcome
	Attempts int
	Err      error
	Elapsed  time.Duration
}

// Sink receives every DispatchResult.
type Sink func(DispatchResult)

// Dispatcher delivers worker requests from a bounded queue using a fixed
// pool of goroutines.
type Dispatcher struct {
	url     string
	secret  string
	http    *http.Client
	queue   chan envelope
	workers int
	limiter *rate.Limiter
	policy  resilience.Policy
	breaker *resilience.Breaker
	sink    Sink
	nowFunc func() time.Time
}

type envelope struct {
	req      model.WorkerRequest
	enqueued time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSecret sends secret as a bearer token on every dispatch.
func WithSecret(secret string) DispatcherOption {
	return func(d *Dispatcher) { d.secret = secret }
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan envelope, n)
		}
	}
}

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithRate caps outbound requests per second. Zero or less disables the cap.
func WithRate(perSec float64) DispatcherOption {
	return func(d *Dispatcher) {
		if perSec <= 0 {
			d.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.http = hc }
}

// WithPolicy replaces the retry policy.
func WithPolicy(p resilience.Policy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

// WithBreaker replaces the circuit breaker.
func WithBreaker(b *resilience.Breaker) DispatcherOption {
	return func(d *Dispatcher) { d.breaker = b }
}

// WithSink replaces the default logging sink.
func WithSink(s Sink) DispatcherOption {
	return func(d *Dispatcher) { d.sink = s }
}

// NewDispatcher creates a dispatcher posting to url.
func NewDispatcher(url string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		url:     url,
		http:    &http.Client{Timeout: 15 * time.Second},
		queue:   make(chan envelope, 256),
		workers: 4,
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		policy:  resilience.DefaultPolicy(),
		breaker: resilience.NewBreaker(5, 30*time.Second),
		sink:    LogResult,
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	if d.policy.OnRetry == nil {
		d.policy.OnRetry = resilience.RetryLogger("worker", "dispatch")
	}
	return d
}

// Submit enqueues req without blocking. It reports false when the queue is
// full; the drop is reported to the sink.
func (d *Dispatcher) Submit(req model.WorkerRequest) bool {
	env := envelope{req: req, enqueued: d.nowFunc()}
	select {
	case d.queue <- env:
		metrics.SetDispatchQueueDepth(len(d.queue))
		return true
	default:
		d.emit(DispatchResult{
			JobID:   req.JobID,
			Outcome: OutcomeDropped,
			Err:     eris.New("enrich: dispatch queue full"),
		})
		return false
	}
}

// Run starts the delivery goroutines and blocks until ctx is cancelled.
// Requests still queued at shutdown are abandoned.
func (d *Dispatcher) Run(ctx context.Context) error {
	zap.L().Info("starting worker dispatcher",
		zap.Int("workers", d.workers),
		zap.Int("queue_size", cap(d.queue)),
		zap.String("webhook_url", d.url),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case env := <-d.queue:
					metrics.SetDispatchQueueDepth(len(d.queue))
					d.emit(d.deliver(gctx, env))
				}
			}
		})
	}
	err := g.Wait()
	zap.L().Info("worker dispatcher stopped", zap.Int("abandoned", len(d.queue)))
	return err
}

func (d *Dispatcher) deliver(ctx context.Context, env envelope) DispatchResult {
	res := DispatchResult{JobID: env.req.JobID}

	if err := d.limiter.Wait(ctx); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = eris.Wrap(err, "enrich: rate limit wait")
		res.Elapsed = d.nowFunc().Sub(env.enqueued)
		return res
	}

	attempts, err := resilience.Do(ctx, d.policy, func(ctx context.Context) error {
		if err := d.breaker.Allow(); err != nil {
			return err
		}
		err := d.post(ctx, env.req)
		d.breaker.Record(err)
		return err
	})
	res.Attempts = attempts
	res.Err = err
	res.Elapsed = d.nowFunc().Sub(env.enqueued)
	if err != nil {
		res.Outcome = OutcomeFailed
	} else {
		res.Outcome = OutcomeDelivered
	}
	return res
}

func (d *Dispatcher) post(ctx context.Context, wr model.WorkerRequest) error {
	buf, err := json.Marshal(wr)
	if err != nil {
		return eris.Wrap(err, "enrich: marshal worker request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "enrich: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set("Authorization", "Bearer "+d.secret)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "enrich: post to worker")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &resilience.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (d *Dispatcher) emit(res DispatchResult) {
	metrics.ObserveDispatch(string(res.Outcome), res.Elapsed)
	if d.sink != nil {
		d.sink(res)
	}
}

// LogResult is the default Sink.
func LogResult(res DispatchResult) {
	fields := []zap.Field{
		zap.String("job_id", res.JobID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("attempts", res.Attempts),
		zap.Duration("elapsed", res.Elapsed),
	}
	if res.Err != nil {
		zap.L().Warn("enrich: worker dispatch not delivered", append(fields, zap.Error(res.Err))...)
		return
	}
	zap.L().Info("enrich: worker dispatch delivered", fields...)
}
