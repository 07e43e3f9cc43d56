package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// CompanyOverview is the company-overview step's section.
type CompanyOverview struct {
	Employees   string `json:"employees" yaml:"employees"`
	Industry    string `json:"industry" yaml:"industry"`
	Description string `json:"description" yaml:"description"`
}

// Audience is the audience step's section.
type Audience struct {
	TargetAudience    string   `json:"targetAudience" yaml:"target_audience"`
	GeographicMarkets []string `json:"geographicMarkets" yaml:"geographic_markets"`
}

// BrandStyles is the brand-styles step's section.
type BrandStyles struct {
	BrandVoices          []string `json:"brandVoices" yaml:"brand_voices"`
	Competitors          []string `json:"competitors" yaml:"competitors"`
	Differentiator       string   `json:"differentiator" yaml:"differentiator"`
	KeyMarketingMessages []string `json:"keyMarketingMessages" yaml:"key_marketing_messages"`
}

// CustomObjective is a user-defined business objective.
type CustomObjective struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// BusinessGoals is the business-goals step's section. ExpandedSections is
// display state keyed by objective id.
type BusinessGoals struct {
	SelectedObjectives    []string          `json:"selectedObjectives" yaml:"selected_objectives"`
	ObjectiveDescriptions map[string]string `json:"objectiveDescriptions" yaml:"objective_descriptions"`
	ExpandedSections      map[string]bool   `json:"expandedSections" yaml:"expanded_sections,omitempty"`
	CustomObjectives      []CustomObjective `json:"customObjectives" yaml:"custom_objectives"`
}

// InitialInfo is the initial step's section.
type InitialInfo struct {
	CompanyName        string   `json:"companyName" yaml:"company_name"`
	FullName           string   `json:"fullName" yaml:"full_name"`
	Role               string   `json:"role" yaml:"role"`
	CompanyLinkedInURL string   `json:"companyLinkedInUrl" yaml:"company_linkedin_url"`
	CompanyWebsiteURL  string   `json:"companyWebsiteUrl" yaml:"company_website_url"`
	Resources          []string `json:"resources" yaml:"resources"`
}

// WizardFormState is the in-memory aggregate edited by the wizard. On final
// submit it becomes the record's final_data.
type WizardFormState struct {
	JobID string `json:"jobId,omitempty" yaml:"job_id,omitempty"`

	InitialInfo     `yaml:",inline"`
	CompanyOverview CompanyOverview `json:"companyOverview" yaml:"company_overview"`
	Audience        Audience        `json:"audience" yaml:"audience"`
	BrandStyles     BrandStyles     `json:"brandStyles" yaml:"brand_styles"`
	BusinessGoals   BusinessGoals   `json:"businessGoals" yaml:"business_goals"`
}

// NewWizardFormState returns an empty form with one blank resource slot and
// objective descriptions seeded from the catalog defaults.
func NewWizardFormState() WizardFormState {
	descs := make(map[string]string, len(objectives))
	for _, o := range objectives {
		descs[o.ID] = o.Description
	}
	return WizardFormState{
		InitialInfo: InitialInfo{Resources: []string{""}},
		Audience:    Audience{GeographicMarkets: []string{}},
		BrandStyles: BrandStyles{
			BrandVoices:          []string{},
			Competitors:          []string{},
			KeyMarketingMessages: []string{},
		},
		BusinessGoals: BusinessGoals{
			SelectedObjectives:    []string{},
			ObjectiveDescriptions: descs,
			ExpandedSections:      map[string]bool{},
			CustomObjectives:      []CustomObjective{},
		},
	}
}

// Clone returns a deep copy of f.
func (f WizardFormState) Clone() WizardFormState {
	out := f
	out.Resources = cloneStrings(f.Resources)
	out.Audience.GeographicMarkets = cloneStrings(f.Audience.GeographicMarkets)
	out.BrandStyles.BrandVoices = cloneStrings(f.BrandStyles.BrandVoices)
	out.BrandStyles.Competitors = cloneStrings(f.BrandStyles.Competitors)
	out.BrandStyles.KeyMarketingMessages = cloneStrings(f.BrandStyles.KeyMarketingMessages)
	out.BusinessGoals.SelectedObjectives = cloneStrings(f.BusinessGoals.SelectedObjectives)
	out.BusinessGoals.ObjectiveDescriptions = make(map[string]string, len(f.BusinessGoals.ObjectiveDescriptions))
	for k, v := range f.BusinessGoals.ObjectiveDescriptions {
		out.BusinessGoals.ObjectiveDescriptions[k] = v
	}
	out.BusinessGoals.ExpandedSections = make(map[string]bool, len(f.BusinessGoals.ExpandedSections))
	for k, v := range f.BusinessGoals.ExpandedSections {
		out.BusinessGoals.ExpandedSections[k] = v
	}
	if f.BusinessGoals.CustomObjectives != nil {
		out.BusinessGoals.CustomObjectives = append([]CustomObjective{}, f.BusinessGoals.CustomObjectives...)
	}
	return out
}

// Section returns the JSON snapshot of the part of f edited on step. Steps
// without their own section (loading, summary, completed) return false.
func (f WizardFormState) Section(step Step) (json.RawMessage, bool, error) {
	var v any
	switch step {
	case StepInitial:
		v = f.InitialInfo
	case StepCompanyOverview:
		v = f.CompanyOverview
	case StepAudience:
		v = f.Audience
	case StepBrandStyles:
		v = f.BrandStyles
	case StepBusinessGoals:
		v = f.BusinessGoals
	default:
		return nil, false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false, eris.Wrapf(err, "model: marshal %s section", step)
	}
	return b, true, nil
}

// ApplySection hydrates the part of f for step from a saved snapshot.
// Unknown steps are ignored.
func (f *WizardFormState) ApplySection(step Step, raw json.RawMessage) error {
	var dst any
	switch step {
	case StepInitial:
		dst = &f.InitialInfo
	case StepCompanyOverview:
		dst = &f.CompanyOverview
	case StepAudience:
		dst = &f.Audience
	case StepBrandStyles:
		dst = &f.BrandStyles
	case StepBusinessGoals:
		dst = &f.BusinessGoals
	default:
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return eris.Wrapf(err, "model: unmarshal %s section", step)
	}
	return nil
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}
