package onboarding

import (
	"context"
	"encoding/json"

	"github.com/sells-group/onboard/internal/enrich"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/wizard"
)

var _ wizard.Backend = (*userBackend)(nil)

// userBackend binds the service to one user for in-process wizards.
type userBackend struct {
	svc    *Service
	userID string
}

// ForUser returns a wizard backend acting as userID.
func (s *Service) ForUser(userID string) wizard.Backend {
	return &userBackend{svc: s, userID: userID}
}

func (b *userBackend) CreateRecord(ctx context.Context, info model.InitialInfo) error {
	_, err := b.svc.CreateCompany(ctx, b.userID,
		CompanyInput{
			Name:        info.CompanyName,
			LinkedInURL: info.CompanyLinkedInURL,
			WebsiteURL:  info.CompanyWebsiteURL,
		},
		InitialInput{
			FullName:  info.FullName,
			Role:      info.Role,
			Resources: info.Resources,
		},
	)
	return err
}

func (b *userBackend) Initiate(ctx context.Context, req enrich.InitiateRequest) (string, error) {
	return b.svc.Initiate(ctx, b.userID, req)
}

func (b *userBackend) Status(ctx context.Context, jobID string) (model.JobStatusReport, error) {
	return b.svc.Status(ctx, jobID)
}

func (b *userBackend) SaveProgress(ctx context.Context, step model.Step, section json.RawMessage) error {
	return b.svc.SaveProgress(ctx, b.userID, step, section)
}

func (b *userBackend) LoadProgress(ctx context.Context) (*model.Progress, error) {
	return b.svc.LoadProgress(ctx, b.userID)
}

func (b *userBackend) Complete(ctx context.Context, final model.WizardFormState) error {
	return b.svc.Complete(ctx, b.userID, final)
}
