package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/onboard/internal/callback"
	"github.com/sells-group/onboard/internal/enrich"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/onboarding"
)

// CreateCompanyRequest is the body of POST /create-company.
type CreateCompanyRequest struct {
	CompanyData *onboarding.CompanyInput `json:"companyData"`
	InitialData onboarding.InitialInput  `json:"initialData"`
}

// CreateCompanyResponse is returned on success.
type CreateCompanyResponse struct {
	Success    bool                   `json:"success"`
	Company    model.Company          `json:"company"`
	Onboarding model.OnboardingRecord `json:"onboarding"`
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CompanyData == nil || strings.TrimSpace(req.CompanyData.Name) == "" {
		writeError(w, http.StatusBadRequest, "Company name is required", nil)
		return
	}

	created, err := s.svc.CreateCompany(r.Context(), userFrom(r.Context()), *req.CompanyData, req.InitialData)
	if err != nil {
		fail(w, r, "Failed to create company", err)
		return
	}
	writeJSON(w, http.StatusOK, CreateCompanyResponse{
		Success:    true,
		Company:    created.Company,
		Onboarding: created.Record,
	})
}

// InitiateResponse carries the allocated job id.
type InitiateResponse struct {
	JobID string `json:"jobId"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req enrich.InitiateRequest
	if !decode(w, r, &req) {
		return
	}
	jobID, err := s.svc.Initiate(r.Context(), userFrom(r.Context()), req)
	if err != nil {
		msg := "Failed to start enrichment"
		if statusFor(err) == http.StatusBadRequest {
			msg = "Missing required fields: companyName and linkedInUrl"
		}
		fail(w, r, msg, err)
		return
	}
	writeJSON(w, http.StatusAccepted, InitiateResponse{JobID: jobID})
}

// StatusResponse is the answer to a status poll.
type StatusResponse struct {
	model.JobStatusReport
	Message string `json:"message,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.URL.Query().Get("jobId"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "Missing required query parameter: jobId", nil)
		return
	}
	rep, err := s.svc.Status(r.Context(), jobID)
	if err != nil {
		fail(w, r, "Internal Server Error", err)
		return
	}
	resp := StatusResponse{JobStatusReport: rep}
	if rep.Status == model.JobStatusPending {
		resp.Message = "Job not found or not yet processed."
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if s.callbackSecret != "" {
		if err := callback.VerifySignature(s.callbackSecret, body, r.Header.Get(callback.SignatureHeader)); err != nil {
			zap.L().Warn("api: callback signature rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "Invalid signature", nil)
			return
		}
	}

	var notice model.CallbackNotice
	if err := json.Unmarshal(body, &notice); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ack, err := s.callbacks.Receive(r.Context(), notice)
	if err != nil {
		msg := "Failed to store results"
		if statusFor(err) == http.StatusBadRequest {
			msg = "Missing jobId"
		}
		fail(w, r, msg, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// SaveProgressRequest is the body of POST /save-progress: the snapshot of a
// submitted step.
type SaveProgressRequest struct {
	Step model.Step      `json:"step" validate:"required,step"`
	Data json.RawMessage `json:"data" validate:"required"`
}

// SaveProgressResponse reports the step the record moved to.
type SaveProgressResponse struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	CurrentStep model.Step `json:"currentStep"`
}

func (s *Server) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	var req SaveProgressRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required data: step and data are required", err)
		return
	}
	if bytes.Equal(bytes.TrimSpace(req.Data), []byte("null")) {
		writeError(w, http.StatusBadRequest, "Missing required data: step and data are required", nil)
		return
	}

	if err := s.svc.SaveProgress(r.Context(), userFrom(r.Context()), req.Step, req.Data); err != nil {
		fail(w, r, "Failed to save progress", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveProgressResponse{
		Success:     true,
		Message:     "Progress saved successfully",
		CurrentStep: req.Step.Next(),
	})
}

// LoadProgressResponse wraps the resumable view. Data is null when the user
// has no record.
type LoadProgressResponse struct {
	Success     bool            `json:"success"`
	CurrentStep *model.Step     `json:"currentStep"`
	Data        *model.Progress `json:"data"`
	Message     string          `json:"message,omitempty"`
}

func (s *Server) handleLoadProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.LoadProgress(r.Context(), userFrom(r.Context()))
	if err != nil {
		fail(w, r, "Failed to load progress", err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, LoadProgressResponse{Message: "No onboarding record found"})
		return
	}
	step := p.CurrentStep
	writeJSON(w, http.StatusOK, LoadProgressResponse{
		Success:     true,
		CurrentStep: &step,
		Data:        p,
	})
}

// CompleteRequest is the body of POST /complete.
type CompleteRequest struct {
	OnboardingData *model.WizardFormState `json:"onboardingData"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OnboardingData == nil {
		writeError(w, http.StatusBadRequest, "Missing required data: onboardingData is required", nil)
		return
	}
	if err := s.svc.Complete(r.Context(), userFrom(r.Context()), *req.OnboardingData); err != nil {
		msg := "Failed to complete onboarding"
		if statusFor(err) == http.StatusNotFound {
			msg = "No company found for this user. Please complete the initial onboarding steps."
		}
		fail(w, r, msg, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Onboarding completed successfully",
	})
}

// OptionsResponse lists the selectable values of the wizard's choice fields.
type OptionsResponse struct {
	Objectives  []model.Objective `json:"objectives"`
	Markets     []string          `json:"markets"`
	BrandVoices []model.Option    `json:"brandVoices"`
}

func handleOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, OptionsResponse{
		Objectives:  model.Objectives(),
		Markets:     model.Markets(),
		BrandVoices: model.BrandVoices(),
	})
}
