// Package onboardclient is an HTTP client for the onboarding API. It
// satisfies wizard.Backend, so a wizard can run against a remote server.
package onboardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/onboard/internal/enrich"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/resilience"
	"github.com/sells-group/onboard/internal/wizard"
)

// userHeader matches the server's authenticated user header.
const userHeader = "X-User-ID"

var _ wizard.Backend = (*Client)(nil)

// APIError is a non-2xx response from the onboarding API.
type APIError struct {
	StatusCode int
	// Message is the server's "error" field, when the body carried one.
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("onboardclient: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("onboardclient: status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets the API address.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserID sets the user the client acts as.
func WithUserID(id string) Option {
	return func(c *Client) { c.userID = id }
}

// WithRetryPolicy sets the retry policy for idempotent reads.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *Client) { c.readPolicy = p }
}

// Client talks to the onboarding API as one user.
type Client struct {
	baseURL    string
	userID     string
	http       *http.Client
	readPolicy resilience.Policy
}

// New creates a client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: "http://localhost:8080",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		readPolicy: resilience.Policy{
			MaxAttempts:    3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			ShouldRetry:    retryable,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func retryable(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return resilience.IsTransientHTTPStatus(ae.StatusCode)
	}
	return resilience.IsTransient(err)
}

// CreateRecord creates the company and onboarding record from the initial
// step.
func (c *Client) CreateRecord(ctx context.Context, info model.InitialInfo) error {
	body := map[string]any{
		"companyData": map[string]string{
			"name":        info.CompanyName,
			"linkedinUrl": info.CompanyLinkedInURL,
			"websiteUrl":  info.CompanyWebsiteURL,
		},
		"initialData": map[string]any{
			"fullName":  info.FullName,
			"role":      info.Role,
			"resources": info.Resources,
		},
	}
	return c.do(ctx, http.MethodPost, "/api/onboarding/create-company", body, nil)
}

// Initiate starts enrichment and returns the job id.
func (c *Client) Initiate(ctx context.Context, req enrich.InitiateRequest) (string, error) {
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/onboarding/initiate", req, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", eris.New("onboardclient: initiate returned no job id")
	}
	return out.JobID, nil
}

// Status polls a job once.
func (c *Client) Status(ctx context.Context, jobID string) (model.JobStatusReport, error) {
	var rep model.JobStatusReport
	path := "/api/onboarding/status?jobId=" + url.QueryEscape(jobID)
	err := c.read(ctx, path, &rep)
	return rep, err
}

// SaveProgress stores the snapshot of a submitted step.
func (c *Client) SaveProgress(ctx context.Context, step model.Step, section json.RawMessage) error {
	body := map[string]any{"step": step, "data": section}
	return c.do(ctx, http.MethodPost, "/api/onboarding/save-progress", body, nil)
}

// LoadProgress returns the latest record's resumable view, or nil.
func (c *Client) LoadProgress(ctx context.Context) (*model.Progress, error) {
	var out struct {
		Success bool            `json:"success"`
		Data    *model.Progress `json:"data"`
	}
	if err := c.read(ctx, "/api/onboarding/load-progress", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Complete writes the final form.
func (c *Client) Complete(ctx context.Context, final model.WizardFormState) error {
	body := map[string]any{"onboardingData": final}
	return c.do(ctx, http.MethodPost, "/api/onboarding/complete", body, nil)
}

// read is an idempotent GET, retried on transient failures.
func (c *Client) read(ctx context.Context, path string, out any) error {
	_, err := resilience.Do(ctx, c.readPolicy, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrapf(err, "onboardclient: marshal %s", path)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrapf(err, "onboardclient: build %s", path)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userID != "" {
		req.Header.Set(userHeader, c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "onboardclient: %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return eris.Wrapf(err, "onboardclient: read %s", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ae := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil {
			ae.Message = e.Error
		}
		return ae
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return eris.Wrapf(err, "onboardclient: decode %s", path)
		}
	}
	return nil
}
