package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/resilience"
)

func fastPolicy(attempts int) resilience.Policy {
	return resilience.Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func startDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitResult(t *testing.T, ch <-chan DispatchResult) DispatchResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no dispatch result")
		return DispatchResult{}
	}
}

func TestDispatcher_Delivers(t *testing.T) {
	got := make(chan model.WorkerRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req model.WorkerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got <- req
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	results := make(chan DispatchResult, 1)
	d := NewDispatcher(srv.URL,
		WithSecret("s3cret"),
		WithWorkers(2),
		WithPolicy(fastPolicy(3)),
		WithSink(func(r DispatchResult) { results <- r }),
	)
	startDispatcher(t, d)

	require.True(t, d.Submit(model.WorkerRequest{JobID: "job-1", CompanyName: "Acme", CallbackURL: "http://cb"}))

	res := waitResult(t, results)
	assert.Equal(t, "job-1", res.JobID)
	assert.Equal(t, OutcomeDelivered, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.NoError(t, res.Err)

	req := <-got
	assert.Equal(t, "Acme", req.CompanyName)
	assert.Equal(t, "http://cb", req.CallbackURL)
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	results := make(chan DispatchResult, 1)
	d := NewDispatcher(srv.URL,
		WithPolicy(fastPolicy(5)),
		WithSink(func(r DispatchResult) { results <- r }),
	)
	startDispatcher(t, d)
	d.Submit(model.WorkerRequest{JobID: "job-2"})

	res := waitResult(t, results)
	assert.Equal(t, OutcomeDelivered, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
}

func TestDispatcher_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("missing company"))
	}))
	t.Cleanup(srv.Close)

	results := make(chan DispatchResult, 1)
	d := NewDispatcher(srv.URL,
		WithPolicy(fastPolicy(5)),
		WithSink(func(r DispatchResult) { results <- r }),
	)
	startDispatcher(t, d)
	d.Submit(model.WorkerRequest{JobID: "job-3"})

	res := waitResult(t, results)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	var se *resilience.StatusError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcher_QueueFullDrops(t *testing.T) {
	results := make(chan DispatchResult, 4)
	d := NewDispatcher("http://127.0.0.1:0",
		WithQueueSize(1),
		WithSink(func(r DispatchResult) { results <- r }),
	)

	// Not running: the first request fills the queue.
	assert.True(t, d.Submit(model.WorkerRequest{JobID: "a"}))
	assert.False(t, d.Submit(model.WorkerRequest{JobID: "b"}))

	res := waitResult(t, results)
	assert.Equal(t, "b", res.JobID)
	assert.Equal(t, OutcomeDropped, res.Outcome)
	assert.Error(t, res.Err)
}

func TestDispatcher_OpenBreakerFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	results := make(chan DispatchResult, 2)
	d := NewDispatcher(srv.URL,
		WithWorkers(1),
		WithPolicy(fastPolicy(2)),
		WithBreaker(resilience.NewBreaker(2, time.Hour)),
		WithSink(func(r DispatchResult) { results <- r }),
	)
	startDispatcher(t, d)

	d.Submit(model.WorkerRequest{JobID: "first"})
	first := waitResult(t, results)
	assert.Equal(t, OutcomeFailed, first.Outcome)
	assert.Equal(t, int32(2), calls.Load())

	d.Submit(model.WorkerRequest{JobID: "second"})
	second := waitResult(t, results)
	assert.Equal(t, OutcomeFailed, second.Outcome)
	assert.ErrorIs(t, second.Err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}
