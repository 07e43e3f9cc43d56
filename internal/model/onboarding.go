package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Step is a position in the onboarding wizard's step graph.
type Step string

const (
	StepInitial         Step = "initial"
	StepLoading         Step = "loading"
	StepCompanyOverview Step = "company-overview"
	StepAudience        Step = "audience"
	StepBrandStyles     Step = "brand-styles"
	StepBusinessGoals   Step = "business-goals"
	StepSummary         Step = "summary"
	StepCompleted       Step = "completed"
)

// Steps lists the wizard steps in order.
var Steps = []Step{
	StepInitial,
	StepLoading,
	StepCompanyOverview,
	StepAudience,
	StepBrandStyles,
	StepBusinessGoals,
	StepSummary,
	StepCompleted,
}

// ParseStep validates s against the known steps.
func ParseStep(s string) (Step, error) {
	for _, st := range Steps {
		if string(st) == s {
			return st, nil
		}
	}
	return "", eris.Errorf("model: unknown step %q", s)
}

// Next returns the linear successor of s. The terminal step returns itself.
// The loading step's error branch back to initial is not modelled here.
func (s Step) Next() Step {
	for i, st := range Steps {
		if st == s && i+1 < len(Steps) {
			return Steps[i+1]
		}
	}
	return s
}

// Index returns the position of s in the step graph, or -1.
func (s Step) Index() int {
	for i, st := range Steps {
		if st == s {
			return i
		}
	}
	return -1
}

// ResearchStatus tracks the enrichment outcome on the durable record.
type ResearchStatus string

const (
	ResearchStatusPending    ResearchStatus = "pending"
	ResearchStatusInProgress ResearchStatus = "in_progress"
	ResearchStatusCompleted  ResearchStatus = "completed"
	ResearchStatusFailed     ResearchStatus = "failed"
)

// Company is the organisation being onboarded.
type Company struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	LinkedInURL string    `json:"linkedin_url"`
	WebsiteURL  string    `json:"website_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// OnboardingRecord is the durable per-user, per-company wizard document.
type OnboardingRecord struct {
	ID                 string                   `json:"id"`
	CompanyID          string                   `json:"company_id"`
	CreatedBy          string                   `json:"created_by"`
	InitialCompanyName string                   `json:"initial_company_name"`
	InitialLinkedInURL string                   `json:"initial_linkedin_url"`
	InitialWebsiteURL  string                   `json:"initial_website_url,omitempty"`
	InitialResources   []string                 `json:"initial_resources"`
	JobID              string                   `json:"job_id,omitempty"`
	CurrentStep        Step                     `json:"current_step"`
	CompletedSteps     []Step                   `json:"completed_steps"`
	PartialData        map[Step]json.RawMessage `json:"partial_data,omitempty"`
	AIGeneratedData    *EnrichmentPayload       `json:"ai_generated_data,omitempty"`
	AIGeneratedAt      *time.Time               `json:"ai_generated_at,omitempty"`
	ResearchStatus     ResearchStatus           `json:"research_status"`
	ResearchError      string                   `json:"research_error,omitempty"`
	FinalData          *WizardFormState         `json:"final_data,omitempty"`
	IsCompleted        bool                     `json:"is_completed"`
	CompletedAt        *time.Time               `json:"completed_at,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// ResearchData is the enrichment result as stored on the record. The
// research_data and ai_generated_data columns always hold the same payload.
func (r *OnboardingRecord) ResearchData() *EnrichmentPayload {
	return r.AIGeneratedData
}

// Done reports whether the record carries the completion signal.
func (r *OnboardingRecord) Done() bool {
	return r.IsCompleted && r.FinalData != nil
}

// RecordPatch is a sparse update to an OnboardingRecord. Nil fields are left
// unchanged. PartialData entries are merged key by key.
type RecordPatch struct {
	JobID           *string
	CurrentStep     *Step
	ResearchStatus  *ResearchStatus
	ResearchError   *string
	AIGeneratedData *EnrichmentPayload
	// ClearAIData nulls ai_generated_data; used when enrichment fails.
	ClearAIData   bool
	AIGeneratedAt *time.Time
	PartialData   map[Step]json.RawMessage
	CompletedStep *Step
}

// Empty reports whether the patch changes nothing.
func (p RecordPatch) Empty() bool {
	return p.JobID == nil && p.CurrentStep == nil && p.ResearchStatus == nil &&
		p.ResearchError == nil && p.AIGeneratedData == nil && !p.ClearAIData &&
		p.AIGeneratedAt == nil && len(p.PartialData) == 0 && p.CompletedStep == nil
}

// Progress is the resumable view of a user's most recent record.
type Progress struct {
	RecordID        string                   `json:"recordId"`
	CurrentStep     Step                     `json:"currentStep"`
	PartialData     map[Step]json.RawMessage `json:"partialData,omitempty"`
	AIGeneratedData *EnrichmentPayload       `json:"aiGeneratedData,omitempty"`
	ResearchStatus  ResearchStatus           `json:"researchStatus"`
	JobID           string                   `json:"jobId,omitempty"`
	IsCompleted     bool                     `json:"isCompleted"`
	FinalData       *WizardFormState         `json:"finalData,omitempty"`
}

// ProgressFromRecord builds the resumable view of r. FinalData is only
// exposed once the record is completed.
func ProgressFromRecord(r *OnboardingRecord) *Progress {
	p := &Progress{
		RecordID:        r.ID,
		CurrentStep:     r.CurrentStep,
		PartialData:     r.PartialData,
		AIGeneratedData: r.AIGeneratedData,
		ResearchStatus:  r.ResearchStatus,
		JobID:           r.JobID,
		IsCompleted:     r.Done(),
	}
	if p.IsCompleted {
		p.FinalData = r.FinalData
	}
	return p
}
