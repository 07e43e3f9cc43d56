// Package onboarding is the server-side facade over the record store, the
// enrichment gateway and the job status store.
package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard/internal/enrich"
	"github.com/sells-group/onboard/internal/jobstore"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/store"
	"github.com/sells-group/onboard/internal/validate"
)

var (
	// ErrNoRecord is returned when the user has no onboarding record.
	ErrNoRecord = eris.New("onboarding: no onboarding record for user")
	// ErrInvalidInput is returned for payloads that fail validation.
	ErrInvalidInput = eris.New("onboarding: invalid input")
)

// processingFailed is reported for failed records that carry no message.
const processingFailed = "Processing failed"

// CompanyInput describes the company being onboarded.
type CompanyInput struct {
	Name        string `json:"name" validate:"notblank"`
	LinkedInURL string `json:"linkedinUrl"`
	WebsiteURL  string `json:"websiteUrl"`
}

// InitialInput carries the rest of the initial step.
type InitialInput struct {
	FullName  string   `json:"fullName"`
	Role      string   `json:"role"`
	Resources []string `json:"resources" validate:"max=5"`
}

// Initiator starts enrichment jobs.
type Initiator interface {
	Initiate(ctx context.Context, userID string, req enrich.InitiateRequest) (string, error)
}

// Created is the result of CreateCompany.
type Created struct {
	Company model.Company          `json:"company"`
	Record  model.OnboardingRecord `json:"onboarding"`
}

// Service implements the onboarding operations for authenticated users.
type Service struct {
	store    store.Store
	jobs     *jobstore.Store
	gateway  Initiator
	validate *validate.Validator
	nowFunc  func() time.Time
}

// NewService creates a service.
func NewService(st store.Store, jobs *jobstore.Store, gateway Initiator) *Service {
	return &Service{
		store:    st,
		jobs:     jobs,
		gateway:  gateway,
		validate: validate.New(),
		nowFunc:  time.Now,
	}
}

// CreateCompany inserts the company and the user's onboarding record. The
// record starts on the loading step with the initial step completed and its
// snapshot stored, so a resume can rebuild the initial section.
func (s *Service) CreateCompany(ctx context.Context, userID string, company CompanyInput, initial InitialInput) (*Created, error) {
	company.Name = strings.TrimSpace(company.Name)
	company.LinkedInURL = strings.TrimSpace(company.LinkedInURL)
	company.WebsiteURL = strings.TrimSpace(company.WebsiteURL)
	if err := s.validate.Struct(company); err != nil {
		return nil, eris.Wrap(ErrInvalidInput, err.Error())
	}
	if err := s.validate.Struct(initial); err != nil {
		return nil, eris.Wrap(ErrInvalidInput, err.Error())
	}

	resources := make([]string, 0, len(initial.Resources))
	for _, r := range initial.Resources {
		if r = strings.TrimSpace(r); r != "" {
			resources = append(resources, r)
		}
	}

	info := model.InitialInfo{
		CompanyName:        company.Name,
		FullName:           strings.TrimSpace(initial.FullName),
		Role:               strings.TrimSpace(initial.Role),
		CompanyLinkedInURL: company.LinkedInURL,
		CompanyWebsiteURL:  company.WebsiteURL,
		Resources:          resources,
	}
	section, err := json.Marshal(info)
	if err != nil {
		return nil, eris.Wrap(err, "onboarding: marshal initial section")
	}

	c := &model.Company{
		Name:        company.Name,
		LinkedInURL: company.LinkedInURL,
		WebsiteURL:  company.WebsiteURL,
	}
	rec := &model.OnboardingRecord{
		CreatedBy:          userID,
		InitialCompanyName: company.Name,
		InitialLinkedInURL: company.LinkedInURL,
		InitialWebsiteURL:  company.WebsiteURL,
		InitialResources:   resources,
		CurrentStep:        model.StepLoading,
		CompletedSteps:     []model.Step{model.StepInitial},
		PartialData:        map[model.Step]json.RawMessage{model.StepInitial: section},
		ResearchStatus:     model.ResearchStatusPending,
	}
	if err := s.store.CreateCompany(ctx, c, rec); err != nil {
		return nil, eris.Wrap(err, "onboarding: create company")
	}

	zap.L().Info("onboarding: company created",
		zap.String("user_id", userID),
		zap.String("company_id", c.ID),
		zap.String("record_id", rec.ID),
	)
	return &Created{Company: *c, Record: *rec}, nil
}

// Initiate starts enrichment for the user's latest record.
func (s *Service) Initiate(ctx context.Context, userID string, req enrich.InitiateRequest) (string, error) {
	return s.gateway.Initiate(ctx, userID, req)
}

// Status reports the state of a job. The job store answers first; once the
// job has been evicted the durable record answers. A job known to neither
// is reported pending, since early polls can outrun registration.
func (s *Service) Status(ctx context.Context, jobID string) (model.JobStatusReport, error) {
	if j, ok := s.jobs.Get(jobID); ok {
		return model.JobStatusReport{Status: j.Status, Data: j.Data, Error: j.Error}, nil
	}

	rec, err := s.store.GetByJobID(ctx, jobID)
	if err != nil {
		return model.JobStatusReport{}, eris.Wrap(err, "onboarding: status lookup")
	}
	if rec == nil {
		return model.JobStatusReport{Status: model.JobStatusPending}, nil
	}

	switch rec.ResearchStatus {
	case model.ResearchStatusCompleted:
		return model.JobStatusReport{Status: model.JobStatusSuccess, Data: rec.AIGeneratedData}, nil
	case model.ResearchStatusFailed:
		msg := rec.ResearchError
		if msg == "" {
			msg = processingFailed
		}
		return model.JobStatusReport{Status: model.JobStatusError, Error: msg}, nil
	default:
		return model.JobStatusReport{Status: model.JobStatusPending}, nil
	}
}

// SaveProgress merges the snapshot of step into the user's latest record,
// marks step completed and moves the record to the following step.
func (s *Service) SaveProgress(ctx context.Context, userID string, step model.Step, section json.RawMessage) error {
	if step.Index() < 0 || step == model.StepCompleted {
		return eris.Wrapf(ErrInvalidInput, "step %q cannot be saved", step)
	}
	if len(section) == 0 || !json.Valid(section) {
		return eris.Wrapf(ErrInvalidInput, "section for %s is not valid JSON", step)
	}

	next := step.Next()
	err := s.store.UpdateLatestByUser(ctx, userID, model.RecordPatch{
		PartialData:   map[model.Step]json.RawMessage{step: section},
		CurrentStep:   &next,
		CompletedStep: &step,
	})
	if errors.Is(err, store.ErrNotFound) {
		return eris.Wrapf(ErrNoRecord, "user %s", userID)
	}
	if err != nil {
		return eris.Wrap(err, "onboarding: save progress")
	}

	zap.L().Debug("onboarding: progress saved",
		zap.String("user_id", userID),
		zap.String("step", string(step)),
	)
	return nil
}

// LoadProgress returns the resumable view of the user's latest record, or
// nil when the user has none.
func (s *Service) LoadProgress(ctx context.Context, userID string) (*model.Progress, error) {
	rec, err := s.store.LatestByUser(ctx, userID)
	if err != nil {
		return nil, eris.Wrap(err, "onboarding: load progress")
	}
	if rec == nil {
		return nil, nil
	}
	return model.ProgressFromRecord(rec), nil
}

// Complete writes the final form onto the user's latest record.
func (s *Service) Complete(ctx context.Context, userID string, final model.WizardFormState) error {
	err := s.store.CompleteLatest(ctx, userID, &final, s.nowFunc())
	if errors.Is(err, store.ErrNotFound) {
		return eris.Wrapf(ErrNoRecord, "user %s", userID)
	}
	if err != nil {
		return eris.Wrap(err, "onboarding: complete")
	}
	zap.L().Info("onboarding: completed", zap.String("user_id", userID))
	return nil
}
