package wizard

import (
	"fmt"
	"strings"

	"github.com/sells-group/onboard/internal/model"
)

// ValidationError is a user-facing rejection of a step submit.
type ValidationError struct {
	Step    model.Step
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("wizard: %s: %s", e.Step, e.Message)
}

func invalid(step model.Step, msg string) error {
	return &ValidationError{Step: step, Message: msg}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func anyNonBlank(vals []string) bool {
	for _, v := range vals {
		if !blank(v) {
			return true
		}
	}
	return false
}

// validateStep checks the mandatory fields of step.
func validateStep(step model.Step, f *model.WizardFormState) error {
	switch step {
	case model.StepInitial:
		if blank(f.CompanyName) || blank(f.FullName) || blank(f.Role) || blank(f.CompanyLinkedInURL) {
			return invalid(step, "Please fill in all required fields: Company Name, Your Name, Role, and Company LinkedIn URL.")
		}
		if len(f.Resources) > model.MaxResources {
			return invalid(step, fmt.Sprintf("You can add at most %d resources.", model.MaxResources))
		}

	case model.StepCompanyOverview:
		o := f.CompanyOverview
		if blank(o.Employees) || blank(o.Industry) || blank(o.Description) {
			return invalid(step, "Please fill all company overview fields.")
		}

	case model.StepAudience:
		if blank(f.Audience.TargetAudience) {
			return invalid(step, "Please describe your target audience.")
		}
		if len(f.Audience.GeographicMarkets) == 0 {
			return invalid(step, "Please select at least one geographic market.")
		}

	case model.StepBrandStyles:
		b := f.BrandStyles
		if len(b.BrandVoices) == 0 {
			return invalid(step, "Please select at least one brand voice.")
		}
		if !anyNonBlank(b.Competitors) {
			return invalid(step, "Please add at least one competitor.")
		}
		if blank(b.Differentiator) {
			return invalid(step, "Please describe what differentiates you.")
		}
		if !anyNonBlank(b.KeyMarketingMessages) {
			return invalid(step, "Please add at least one key marketing message.")
		}

	case model.StepBusinessGoals:
		g := f.BusinessGoals
		if len(g.SelectedObjectives) == 0 && len(g.CustomObjectives) == 0 {
			return invalid(step, "Please select at least one business objective or add a custom objective")
		}
		for _, id := range g.SelectedObjectives {
			if blank(g.ObjectiveDescriptions[id]) {
				return invalid(step, "Please provide descriptions for all selected objectives")
			}
		}
		for _, c := range g.CustomObjectives {
			if blank(c.Name) || blank(c.Description) {
				return invalid(step, "Please provide both a name and description for all custom objectives")
			}
		}
	}
	return nil
}
