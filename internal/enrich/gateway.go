// Package enrich starts enrichment jobs and dispatches them to the external
// worker.
package enrich

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard/internal/jobstore"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/validate"
)

// CallbackPath is where the worker posts its completion notice.
const CallbackPath = "/api/onboarding/callback"

// ErrInvalidRequest is returned when required initiate fields are missing.
var ErrInvalidRequest = eris.New("enrich: invalid request")

// InitiateRequest identifies the company to enrich.
type InitiateRequest struct {
	CompanyName string `json:"companyName" validate:"notblank"`
	LinkedInURL string `json:"linkedInUrl" validate:"notblank"`
	WebsiteURL  string `json:"websiteUrl"`
}

// RecordUpdater is the slice of the record store the gateway writes to.
type RecordUpdater interface {
	UpdateLatestByUser(ctx context.Context, userID string, patch model.RecordPatch) error
}

// Submitter queues a worker request without blocking.
type Submitter interface {
	Submit(req model.WorkerRequest) bool
}

// Gateway allocates job ids and hands work to the dispatcher.
type Gateway struct {
	records     RecordUpdater
	jobs        *jobstore.Store
	dispatch    Submitter
	callbackURL string
	validate    *validate.Validator
	newID       func() string
}

// NewGateway creates a gateway. baseURL is the externally reachable address
// of this service; the worker calls back on baseURL + CallbackPath.
func NewGateway(records RecordUpdater, jobs *jobstore.Store, dispatch Submitter, baseURL string) *Gateway {
	return &Gateway{
		records:     records,
		jobs:        jobs,
		dispatch:    dispatch,
		callbackURL: strings.TrimRight(baseURL, "/") + CallbackPath,
		validate:    validate.New(),
		newID:       uuid.NewString,
	}
}

// Initiate starts an enrichment job for the user's latest record and returns
// its id. The record is marked loading before the dispatch is queued, so a
// fast callback always finds it. Dispatch never blocks the caller.
func (g *Gateway) Initiate(ctx context.Context, userID string, req InitiateRequest) (string, error) {
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.LinkedInURL = strings.TrimSpace(req.LinkedInURL)
	req.WebsiteURL = strings.TrimSpace(req.WebsiteURL)
	if err := g.validate.Struct(req); err != nil {
		return "", eris.Wrap(ErrInvalidRequest, err.Error())
	}

	jobID := g.newID()
	log := zap.L().With(zap.String("job_id", jobID), zap.String("user_id", userID))

	step := model.StepLoading
	status := model.ResearchStatusPending
	err := g.records.UpdateLatestByUser(ctx, userID, model.RecordPatch{
		JobID:          &jobID,
		ResearchStatus: &status,
		CurrentStep:    &step,
	})
	if err != nil {
		return "", eris.Wrap(err, "enrich: mark record loading")
	}

	if _, err := g.jobs.Create(jobID); err != nil {
		return "", eris.Wrap(err, "enrich: create job")
	}

	queued := g.dispatch.Submit(model.WorkerRequest{
		JobID:              jobID,
		CallbackURL:        g.callbackURL,
		CompanyName:        req.CompanyName,
		CompanyLinkedInURL: req.LinkedInURL,
		CompanyWebsiteURL:  req.WebsiteURL,
	})
	log.Info("enrich: job initiated",
		zap.String("company", req.CompanyName),
		zap.Bool("queued", queued),
	)
	return jobID, nil
}
