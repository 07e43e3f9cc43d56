package wizard

import (
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/onboard/internal/model"
)

// Prefill merges an enrichment payload into the form. Non-empty values from
// the payload overwrite, empty ones keep what the form already has. The
// user's URLs are never replaced.
func (w *Wizard) Prefill(p *model.EnrichmentPayload) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step == model.StepCompleted {
		return ErrCompleted
	}
	w.prefillLocked(p)
	return nil
}

func (w *Wizard) prefillLocked(p *model.EnrichmentPayload) {
	prefill(&w.form, p)
}

func prefill(f *model.WizardFormState, p *model.EnrichmentPayload) {
	if p == nil {
		return
	}

	setString(&f.CompanyName, p.CompanyName)

	setString(&f.CompanyOverview.Employees, p.EmployeeRange)
	setString(&f.CompanyOverview.Industry, p.Industry)
	setString(&f.CompanyOverview.Description, p.CompanyDescription)

	setString(&f.Audience.TargetAudience, p.TargetAudience)
	setSlice(&f.Audience.GeographicMarkets, p.GeographicMarkets)

	setSlice(&f.BrandStyles.BrandVoices, p.BrandVoice)
	setSlice(&f.BrandStyles.Competitors, p.Competitors)
	setString(&f.BrandStyles.Differentiator, p.Differentiator)
	setSlice(&f.BrandStyles.KeyMarketingMessages, p.KeyMarketingMessages)

	g := &f.BusinessGoals
	if g.ObjectiveDescriptions == nil {
		g.ObjectiveDescriptions = map[string]string{}
	}
	for _, obj := range p.Objectives {
		std, ok := model.LookupObjective(obj.Objective)
		if !ok {
			zap.L().Info("wizard: skipping unknown objective from enrichment", zap.String("objective", obj.Objective))
			continue
		}
		if !slices.Contains(g.SelectedObjectives, obj.Objective) {
			g.SelectedObjectives = append(g.SelectedObjectives, obj.Objective)
		}
		switch {
		case obj.Description != "":
			g.ObjectiveDescriptions[obj.Objective] = obj.Description
		case g.ObjectiveDescriptions[obj.Objective] == "":
			g.ObjectiveDescriptions[obj.Objective] = std.Description
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setSlice(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = append([]string(nil), v...)
	}
}
