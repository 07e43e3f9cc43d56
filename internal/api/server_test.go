package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/onboard/internal/callback"
	"github.com/sells-group/onboard/internal/enrich"
	"github.com/sells-group/onboard/internal/jobstore"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/onboarding"
	"github.com/sells-group/onboard/internal/store"
)

type submitFunc func(model.WorkerRequest) bool

func (f submitFunc) Submit(r model.WorkerRequest) bool { return f(r) }

type harness struct {
	srv       *httptest.Server
	submitted chan model.WorkerRequest
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{submitted: make(chan model.WorkerRequest, 8)}
	jobs := jobstore.New()
	gw := enrich.NewGateway(st, jobs, submitFunc(func(r model.WorkerRequest) bool {
		h.submitted <- r
		return true
	}), "http://onboard.test")
	svc := onboarding.NewService(st, jobs, gw)

	h.srv = httptest.NewServer(NewServer(svc, callback.NewReceiver(st, jobs), opts...).Router())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, user string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case []byte:
		rdr = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func createBody() map[string]any {
	return map[string]any{
		"companyData": map[string]any{"name": "Acme", "linkedinUrl": "https://linkedin.com/company/acme"},
		"initialData": map[string]any{"fullName": "Ada", "role": "CEO", "resources": []string{}},
	}
}

func initiateBody() map[string]any {
	return map[string]any{"companyName": "Acme", "linkedInUrl": "https://linkedin.com/company/acme"}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOptions(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/api/onboarding/options")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out OptionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Objectives, 9)
	assert.Contains(t, out.Markets, "Europe")
	require.Len(t, out.BrandVoices, 10)
	assert.Equal(t, model.Option{Value: "bold", Label: "Bold"}, out.BrandVoices[0])
}

func TestUserRequired(t *testing.T) {
	h := newHarness(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/onboarding/create-company"},
		{http.MethodPost, "/api/onboarding/initiate"},
		{http.MethodPost, "/api/onboarding/save-progress"},
		{http.MethodGet, "/api/onboarding/load-progress"},
		{http.MethodPost, "/api/onboarding/complete"},
	} {
		resp, body := h.do(t, tc.method, tc.path, "", map[string]any{})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, tc.path)
		assert.Equal(t, "Unauthorized", body["error"], tc.path)
	}
}

func TestCreateCompany(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPost, "/api/onboarding/create-company", "u1", map[string]any{"companyData": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Company name is required", body["error"])

	resp, body = h.do(t, http.MethodPost, "/api/onboarding/create-company", "u1", []byte(`{nope`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", body["error"])

	resp, body = h.do(t, http.MethodPost, "/api/onboarding/create-company", "u1", createBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	onb := body["onboarding"].(map[string]any)
	assert.Equal(t, "loading", onb["current_step"])
}

func TestInitiate(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPost, "/api/onboarding/initiate", "u1", map[string]any{"companyName": "Acme"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing required fields: companyName and linkedInUrl", body["error"])

	resp, _ = h.do(t, http.MethodPost, "/api/onboarding/initiate", "u1", initiateBody())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no record to mark loading")

	h.do(t, http.MethodPost, "/api/onboarding/create-company", "u1", createBody())
	resp, body = h.do(t, http.MethodPost, "/api/onboarding/initiate", "u1", initiateBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	jobID, _ := body["jobId"].(string)
	assert.NotEmpty(t, jobID)

	req := <-h.submitted
	assert.Equal(t, jobID, req.JobID)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodGet, "/api/onboarding/status", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing required query parameter: jobId", body["error"])

	resp, body = h.do(t, http.MethodGet, "/api/onboarding/status?jobId=unknown", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
}

func TestCallbackFlow(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/onboarding/create-company", "u1", createBody())
	_, body := h.do(t, http.MethodPost, "/api/onboarding/initiate", "u1", initiateBody())
	jobID := body["jobId"].(string)

	resp, body := h.do(t, http.MethodPost, "/api/onboarding/callback", "", map[string]any{"status": "success"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing jobId", body["error"])

	resp, body = h.do(t, http.MethodPost, "/api/onboarding/callback", "", map[string]any{
		"jobId":  jobID,
		"status": "success",
		"data":   map[string]any{"company_name": "Sample Company", "industry": "Technology"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["acknowledged"])

	_, body = h.do(t, http.MethodGet, "/api/onboarding/status?jobId="+jobID, "", nil)
	assert.Equal(t, "success", body["status"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "Technology", data["industry"])

	_, body = h.do(t, http.MethodGet, "/api/onboarding/load-progress", "u1", nil)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "company-overview", body["currentStep"])
}

func TestCallbackUnknownJob(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, http.MethodPost, "/api/onboarding/callback", "", map[string]any{"jobId": "ghost", "status": "success"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Job not found in database", body["message"])
}

func TestCallbackSignature(t *testing.T) {
	h := newHarness(t, WithCallbackSecret("s3cret"))
	payload := []byte(`{"jobId":"ghost","status":"error","error":"x"}`)

	resp, body := h.do(t, http.MethodPost, "/api/onboarding/callback", "", payload)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid signature", body["error"])

	resp, _ = h.do(t, http.MethodPost, "/api/onboarding/callback", "", payload,
		callback.SignatureHeader, callback.Sign("wrong", payload))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/api/onboarding/callback", "", payload,
		callback.SignatureHeader, callback.Sign("s3cret", payload))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSaveAndLoadProgress(t *testing.T) {
	h := newHarness(t)

	_, body := h.do(t, http.MethodGet, "/api/onboarding/load-progress", "u1", nil)
	assert.Equal(t, false, body["success"])
	assert.Nil(t, body["data"])
	assert.Nil(t, body["currentStep"])

	resp, _ := h.do(t, http.MethodPost, "/api/onboarding/save-progress", "u1", map[string]any{
		"step": "audience", "data": map[string]any{"targetAudience": "SMBs"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	h.do(t, http.MethodPost, "/api/onboarding/create-company", "u1", createBody())

	resp, body = h.do(t, http.MethodPost, "/api/onboarding/save-progress", "u1", map[string]any{"step": "bogus", "data": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["details"], "is not a wizard step")

	resp, _ = h.do(t, http.MethodPost, "/api/onboarding/save-progress", "u1", map[string]any{"step": "audience"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/api/onboarding/save-progress", "u1", map[string]any{
		"step": "audience", "data": map[string]any{"targetAudience": "SMBs", "geographicMarkets": []string{"Europe"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "brand-styles", body["currentStep"])

	_, body = h.do(t, http.MethodGet, "/api/onboarding/load-progress", "u1", nil)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "brand-styles", body["currentStep"])
	data := body["data"].(map[string]any)
	partial := data["partialData"].(map[string]any)
	assert.Contains(t, partial, "audience")
	assert.Contains(t, partial, "initial")
}

func TestComplete(t *testing.T) {
	h := newHarness(t)
	final := model.NewWizardFormState()
	final.CompanyName = "Acme"

	resp, _ := h.do(t, http.MethodPost, "/api/onboarding/complete", "u1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := h.do(t, http.MethodPost, "/api/onboarding/complete", "u1", CompleteRequest{OnboardingData: &final})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "No company found for this user. Please complete the initial onboarding steps.", body["error"])

	h.do(t, http.MethodPost, "/api/onboarding/create-company", "u1", createBody())
	resp, body = h.do(t, http.MethodPost, "/api/onboarding/complete", "u1", CompleteRequest{OnboardingData: &final})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	_, body = h.do(t, http.MethodGet, "/api/onboarding/load-progress", "u1", nil)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["isCompleted"])
	assert.Equal(t, "completed", body["currentStep"])
}

type panicService struct{ Service }

func (panicService) LoadProgress(context.Context, string) (*model.Progress, error) {
	panic("boom")
}

func TestRecoverer(t *testing.T) {
	srv := httptest.NewServer(NewServer(panicService{}, nil).Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/onboarding/load-progress", nil)
	require.NoError(t, err)
	req.Header.Set(UserHeader, "u1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(onboarding.ErrInvalidInput))
	assert.Equal(t, http.StatusBadRequest, statusFor(enrich.ErrInvalidRequest))
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
	assert.Equal(t, http.StatusUnauthorized, statusFor(callback.ErrBadSignature))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
