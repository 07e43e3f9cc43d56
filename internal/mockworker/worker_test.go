package mockworker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/onboard/internal/callback"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/resilience"
)

type sink struct {
	mu      sync.Mutex
	notices []model.CallbackNotice
	sigs    []string
	bodies  [][]byte
}

func (s *sink) handler(fail *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fail != nil && fail.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var n model.CallbackNotice
		_ = json.Unmarshal(body, &n)
		s.mu.Lock()
		s.notices = append(s.notices, n)
		s.sigs = append(s.sigs, r.Header.Get(callback.SignatureHeader))
		s.bodies = append(s.bodies, body)
		s.mu.Unlock()
	}
}

func fastPolicy() resilience.Policy {
	return resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func dispatch(t *testing.T, h http.Handler, req model.WorkerRequest, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, EnrichPath, bytes.NewReader(b))
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestWorker_CallsBackWithSample(t *testing.T) {
	s := &sink{}
	cb := httptest.NewServer(s.handler(nil))
	defer cb.Close()

	w := New(WithDelay(time.Millisecond), WithPolicy(fastPolicy()), WithCallbackSecret("k"))
	rec := dispatch(t, w.Handler(context.Background()), model.WorkerRequest{
		JobID: "j1", CallbackURL: cb.URL, CompanyName: "Acme",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	w.Wait()

	require.Len(t, s.notices, 1)
	n := s.notices[0]
	assert.Equal(t, "j1", n.JobID)
	assert.Equal(t, callback.StatusSuccess, n.Status)
	require.NotNil(t, n.Data)
	assert.Equal(t, "Acme", n.Data.CompanyName)
	assert.Equal(t, "Technology", n.Data.Industry)
	assert.NoError(t, callback.VerifySignature("k", s.bodies[0], s.sigs[0]))
}

func TestWorker_FailMessage(t *testing.T) {
	s := &sink{}
	cb := httptest.NewServer(s.handler(nil))
	defer cb.Close()

	w := New(WithDelay(0), WithPolicy(fastPolicy()), WithFailMessage("LinkedIn blocked"))
	dispatch(t, w.Handler(context.Background()), model.WorkerRequest{JobID: "j1", CallbackURL: cb.URL})
	w.Wait()

	require.Len(t, s.notices, 1)
	assert.Equal(t, callback.StatusError, s.notices[0].Status)
	assert.Equal(t, "LinkedIn blocked", s.notices[0].Error)
	assert.Nil(t, s.notices[0].Data)
}

func TestWorker_RetriesTransientCallbackFailures(t *testing.T) {
	s := &sink{}
	var fail atomic.Int32
	fail.Store(2)
	cb := httptest.NewServer(s.handler(&fail))
	defer cb.Close()

	w := New(WithDelay(0), WithPolicy(fastPolicy()))
	dispatch(t, w.Handler(context.Background()), model.WorkerRequest{JobID: "j1", CallbackURL: cb.URL})
	w.Wait()

	assert.Len(t, s.notices, 1)
}

func TestWorker_RejectsBadDispatch(t *testing.T) {
	w := New(WithToken("tok"))
	h := w.Handler(context.Background())

	rec := dispatch(t, h, model.WorkerRequest{JobID: "j1", CallbackURL: "http://x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = dispatch(t, h, model.WorkerRequest{JobID: "j1"}, "Authorization", "Bearer tok")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorker_CancelledBeforeDelay(t *testing.T) {
	var calls atomic.Int32
	cb := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer cb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	w := New(WithDelay(time.Hour))
	dispatch(t, w.Handler(ctx), model.WorkerRequest{JobID: "j1", CallbackURL: cb.URL})
	cancel()
	w.Wait()

	assert.Zero(t, calls.Load())
}
