package wizard

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/onboard/internal/model"
)

var (
	// ErrLimitReached is returned when a list is already at its maximum size.
	ErrLimitReached = eris.New("wizard: list limit reached")
	// ErrIndexOutOfRange is returned for an index outside a list.
	ErrIndexOutOfRange = eris.New("wizard: index out of range")
	// ErrUnknownField is returned for a company overview field name that
	// does not exist.
	ErrUnknownField = eris.New("wizard: unknown field")
	// ErrUnknownOption is returned when selecting a market or brand voice
	// that is not in the catalog.
	ErrUnknownOption = eris.New("wizard: unknown option")
	// ErrUnknownCustomObjective is returned for a custom objective id that
	// is not on the form.
	ErrUnknownCustomObjective = eris.New("wizard: unknown custom objective")
)

// OverviewField names a company overview field.
type OverviewField string

const (
	FieldEmployees   OverviewField = "employees"
	FieldIndustry    OverviewField = "industry"
	FieldDescription OverviewField = "description"
)

// edit applies fn to the form under the lock. Completed wizards reject edits.
func (w *Wizard) edit(fn func(f *model.WizardFormState) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step == model.StepCompleted {
		return ErrCompleted
	}
	return fn(&w.form)
}

func (w *Wizard) SetCompanyName(v string) error {
	return w.edit(func(f *model.WizardFormState) error { f.CompanyName = v; return nil })
}

func (w *Wizard) SetFullName(v string) error {
	return w.edit(func(f *model.WizardFormState) error { f.FullName = v; return nil })
}

func (w *Wizard) SetRole(v string) error {
	return w.edit(func(f *model.WizardFormState) error { f.Role = v; return nil })
}

func (w *Wizard) SetLinkedInURL(v string) error {
	return w.edit(func(f *model.WizardFormState) error { f.CompanyLinkedInURL = v; return nil })
}

func (w *Wizard) SetWebsiteURL(v string) error {
	return w.edit(func(f *model.WizardFormState) error { f.CompanyWebsiteURL = v; return nil })
}

// AddResource appends an empty resource slot.
func (w *Wizard) AddResource() error {
	return w.edit(func(f *model.WizardFormState) error {
		return addSlot(&f.Resources, model.MaxResources)
	})
}

func (w *Wizard) UpdateResource(i int, v string) error {
	return w.edit(func(f *model.WizardFormState) error { return setAt(f.Resources, i, v) })
}

func (w *Wizard) RemoveResource(i int) error {
	return w.edit(func(f *model.WizardFormState) error { return removeAt(&f.Resources, i) })
}

// SetCompanyOverviewField sets one of employees, industry or description.
func (w *Wizard) SetCompanyOverviewField(field OverviewField, v string) error {
	return w.edit(func(f *model.WizardFormState) error {
		switch field {
		case FieldEmployees:
			f.CompanyOverview.Employees = v
		case FieldIndustry:
			f.CompanyOverview.Industry = v
		case FieldDescription:
			f.CompanyOverview.Description = v
		default:
			return eris.Wrapf(ErrUnknownField, "%q", field)
		}
		return nil
	})
}

func (w *Wizard) SetTargetAudience(v string) error {
	return w.edit(func(f *model.WizardFormState) error { f.Audience.TargetAudience = v; return nil })
}

// ToggleMarket adds market to the selection, or removes it if present.
// Only catalog markets can be added; a value from enrichment that is not in
// the catalog can still be removed.
func (w *Wizard) ToggleMarket(market string) error {
	return w.edit(func(f *model.WizardFormState) error {
		if !slices.Contains(f.Audience.GeographicMarkets, market) && !model.IsMarket(market) {
			return eris.Wrapf(ErrUnknownOption, "market %q", market)
		}
		f.Audience.GeographicMarkets = toggle(f.Audience.GeographicMarkets, market)
		return nil
	})
}

func (w *Wizard) ToggleBrandVoice(voice string) error {
	return w.edit(func(f *model.WizardFormState) error {
		if !slices.Contains(f.BrandStyles.BrandVoices, voice) && !model.IsBrandVoice(voice) {
			return eris.Wrapf(ErrUnknownOption, "brand voice %q", voice)
		}
		f.BrandStyles.BrandVoices = toggle(f.BrandStyles.BrandVoices, voice)
		return nil
	})
}

func (w *Wizard) SetDifferentiator(v string) error {
	return w.edit(func(f *model.WizardFormState) error { f.BrandStyles.Differentiator = v; return nil })
}

func (w *Wizard) AddCompetitor() error {
	return w.edit(func(f *model.WizardFormState) error {
		return addSlot(&f.BrandStyles.Competitors, model.MaxCompetitors)
	})
}

func (w *Wizard) UpdateCompetitor(i int, v string) error {
	return w.edit(func(f *model.WizardFormState) error { return setAt(f.BrandStyles.Competitors, i, v) })
}

func (w *Wizard) RemoveCompetitor(i int) error {
	return w.edit(func(f *model.WizardFormState) error { return removeAt(&f.BrandStyles.Competitors, i) })
}

func (w *Wizard) AddMarketingMessage() error {
	return w.edit(func(f *model.WizardFormState) error {
		return addSlot(&f.BrandStyles.KeyMarketingMessages, model.MaxMarketingMessages)
	})
}

func (w *Wizard) UpdateMarketingMessage(i int, v string) error {
	return w.edit(func(f *model.WizardFormState) error {
		return setAt(f.BrandStyles.KeyMarketingMessages, i, v)
	})
}

func (w *Wizard) RemoveMarketingMessage(i int) error {
	return w.edit(func(f *model.WizardFormState) error {
		return removeAt(&f.BrandStyles.KeyMarketingMessages, i)
	})
}

// ToggleObjective selects or deselects a predefined objective. Its
// description is kept either way.
func (w *Wizard) ToggleObjective(id string) error {
	return w.edit(func(f *model.WizardFormState) error {
		f.BusinessGoals.SelectedObjectives = toggle(f.BusinessGoals.SelectedObjectives, id)
		return nil
	})
}

func (w *Wizard) SetObjectiveDescription(id, desc string) error {
	return w.edit(func(f *model.WizardFormState) error {
		if f.BusinessGoals.ObjectiveDescriptions == nil {
			f.BusinessGoals.ObjectiveDescriptions = map[string]string{}
		}
		f.BusinessGoals.ObjectiveDescriptions[id] = desc
		return nil
	})
}

// ToggleExpanded flips the display state of an objective's section.
func (w *Wizard) ToggleExpanded(id string) error {
	return w.edit(func(f *model.WizardFormState) error {
		if f.BusinessGoals.ExpandedSections == nil {
			f.BusinessGoals.ExpandedSections = map[string]bool{}
		}
		f.BusinessGoals.ExpandedSections[id] = !f.BusinessGoals.ExpandedSections[id]
		return nil
	})
}

// AddCustomObjective appends an empty custom objective, expanded, and
// returns its id.
func (w *Wizard) AddCustomObjective() (string, error) {
	id := w.newID()
	err := w.edit(func(f *model.WizardFormState) error {
		g := &f.BusinessGoals
		g.CustomObjectives = append(g.CustomObjectives, model.CustomObjective{ID: id})
		if g.ExpandedSections == nil {
			g.ExpandedSections = map[string]bool{}
		}
		g.ExpandedSections[id] = true
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (w *Wizard) RemoveCustomObjective(id string) error {
	return w.edit(func(f *model.WizardFormState) error {
		g := &f.BusinessGoals
		i := customIndex(g.CustomObjectives, id)
		if i < 0 {
			return eris.Wrapf(ErrUnknownCustomObjective, "%s", id)
		}
		g.CustomObjectives = slices.Delete(g.CustomObjectives, i, i+1)
		delete(g.ExpandedSections, id)
		return nil
	})
}

func (w *Wizard) SetCustomObjectiveName(id, name string) error {
	return w.editCustom(id, func(c *model.CustomObjective) { c.Name = name })
}

func (w *Wizard) SetCustomObjectiveDescription(id, desc string) error {
	return w.editCustom(id, func(c *model.CustomObjective) { c.Description = desc })
}

// ToggleCustomObjectiveExpanded flips the display state of a custom
// objective's section.
func (w *Wizard) ToggleCustomObjectiveExpanded(id string) error {
	return w.edit(func(f *model.WizardFormState) error {
		g := &f.BusinessGoals
		if customIndex(g.CustomObjectives, id) < 0 {
			return eris.Wrapf(ErrUnknownCustomObjective, "%s", id)
		}
		if g.ExpandedSections == nil {
			g.ExpandedSections = map[string]bool{}
		}
		g.ExpandedSections[id] = !g.ExpandedSections[id]
		return nil
	})
}

func (w *Wizard) editCustom(id string, fn func(c *model.CustomObjective)) error {
	return w.edit(func(f *model.WizardFormState) error {
		i := customIndex(f.BusinessGoals.CustomObjectives, id)
		if i < 0 {
			return eris.Wrapf(ErrUnknownCustomObjective, "%s", id)
		}
		fn(&f.BusinessGoals.CustomObjectives[i])
		return nil
	})
}

func customIndex(cs []model.CustomObjective, id string) int {
	return slices.IndexFunc(cs, func(c model.CustomObjective) bool { return c.ID == id })
}

func toggle(s []string, v string) []string {
	if i := slices.Index(s, v); i >= 0 {
		return slices.Delete(slices.Clone(s), i, i+1)
	}
	return append(slices.Clone(s), v)
}

func addSlot(s *[]string, limit int) error {
	if len(*s) >= limit {
		return eris.Wrapf(ErrLimitReached, "max %d", limit)
	}
	*s = append(*s, "")
	return nil
}

func setAt(s []string, i int, v string) error {
	if i < 0 || i >= len(s) {
		return eris.Wrapf(ErrIndexOutOfRange, "index %d of %d", i, len(s))
	}
	s[i] = v
	return nil
}

func removeAt(s *[]string, i int) error {
	if i < 0 || i >= len(*s) {
		return eris.Wrapf(ErrIndexOutOfRange, "index %d of %d", i, len(*s))
	}
	*s = slices.Delete(*s, i, i+1)
	return nil
}
