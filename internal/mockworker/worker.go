// Package mockworker is a development stand-in for the enrichment worker.
// It accepts dispatches, waits, and posts a canned result back to the
// callback URL.
package mockworker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard/internal/callback"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/resilience"
)

// EnrichPath is where the worker accepts dispatches.
const EnrichPath = "/enrich"

// SamplePayload returns the canned enrichment result.
func SamplePayload() *model.EnrichmentPayload {
	return &model.EnrichmentPayload{
		CompanyName:          "Sample Company",
		EmployeeRange:        "1-10",
		Industry:             "Technology",
		CompanyDescription:   "A sample company description for testing purposes.",
		TargetAudience:       "Sample target audience description.",
		GeographicMarkets:    []string{"North America"},
		BrandVoice:           []string{"professional"},
		Competitors:          []string{"Competitor 1"},
		Differentiator:       "Sample differentiator.",
		KeyMarketingMessages: []string{"Sample message"},
		Objectives: []model.EnrichmentObjective{
			{Objective: "increase_leads", Description: "Sample objective description."},
		},
	}
}

// Option configures a Worker.
type Option func(*Worker)

// WithDelay sets how long the worker "researches" before calling back.
func WithDelay(d time.Duration) Option {
	return func(w *Worker) { w.delay = d }
}

// WithFailMessage makes every job fail with msg.
func WithFailMessage(msg string) Option {
	return func(w *Worker) { w.failMessage = msg }
}

// WithToken requires dispatches to carry "Bearer token".
func WithToken(token string) Option {
	return func(w *Worker) { w.token = token }
}

// WithCallbackSecret signs callbacks with HMAC-SHA256.
func WithCallbackSecret(secret string) Option {
	return func(w *Worker) { w.callbackSecret = secret }
}

// WithHTTPClient sets the client used for callbacks.
func WithHTTPClient(hc *http.Client) Option {
	return func(w *Worker) { w.http = hc }
}

// WithPolicy sets the callback retry policy.
func WithPolicy(p resilience.Policy) Option {
	return func(w *Worker) { w.policy = p }
}

// Worker is the mock enrichment worker.
type Worker struct {
	delay          time.Duration
	failMessage    string
	token          string
	callbackSecret string
	http           *http.Client
	policy         resilience.Policy

	wg sync.WaitGroup
}

// New creates a worker.
func New(opts ...Option) *Worker {
	w := &Worker{
		delay:  2 * time.Second,
		http:   &http.Client{Timeout: 15 * time.Second},
		policy: resilience.DefaultPolicy(),
	}
	for _, o := range opts {
		o(w)
	}
	if w.policy.OnRetry == nil {
		w.policy.OnRetry = resilience.RetryLogger("callback", "deliver")
	}
	return w
}

// Handler returns the worker's routes. Callbacks run in the background
// until ctx is cancelled.
func (w *Worker) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID, chiMiddleware.Recoverer)
	r.Get("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	})
	r.Post(EnrichPath, func(rw http.ResponseWriter, req *http.Request) {
		w.handleEnrich(ctx, rw, req)
	})
	return r
}

func (w *Worker) handleEnrich(ctx context.Context, rw http.ResponseWriter, r *http.Request) {
	if w.token != "" && r.Header.Get("Authorization") != "Bearer "+w.token {
		http.Error(rw, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req model.WorkerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(rw, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.JobID) == "" || strings.TrimSpace(req.CallbackURL) == "" {
		http.Error(rw, `{"error":"jobId and callbackUrl are required"}`, http.StatusBadRequest)
		return
	}

	zap.L().Info("mockworker: job accepted",
		zap.String("job_id", req.JobID),
		zap.String("company", req.CompanyName),
	)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.process(ctx, req)
	}()

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusAccepted)
	_, _ = rw.Write([]byte(`{"status":"accepted"}`))
}

// Wait blocks until in-flight callbacks finish.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) process(ctx context.Context, req model.WorkerRequest) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.delay):
	}

	notice := model.CallbackNotice{JobID: req.JobID, Status: callback.StatusSuccess}
	if w.failMessage != "" {
		notice.Status = callback.StatusError
		notice.Error = w.failMessage
	} else {
		notice.Data = SamplePayload()
		if req.CompanyName != "" {
			notice.Data.CompanyName = req.CompanyName
		}
	}

	attempts, err := resilience.Do(ctx, w.policy, func(ctx context.Context) error {
		return w.deliver(ctx, req.CallbackURL, notice)
	})
	log := zap.L().With(zap.String("job_id", req.JobID), zap.Int("attempts", attempts))
	if err != nil {
		log.Error("mockworker: callback failed", zap.Error(err))
		return
	}
	log.Info("mockworker: callback delivered", zap.String("status", notice.Status))
}

func (w *Worker) deliver(ctx context.Context, url string, notice model.CallbackNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return eris.Wrap(err, "mockworker: marshal notice")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "mockworker: build callback")
	}
	req.Header.Set("Content-Type", "application/json")
	if w.callbackSecret != "" {
		req.Header.Set(callback.SignatureHeader, callback.Sign(w.callbackSecret, body))
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "mockworker: post callback")
	}
	defer resp.Body.Close() //nolint:errcheck

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &resilience.StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	return nil
}
