package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/poll"
	"github.com/sells-group/onboard/internal/wizard"
	"github.com/sells-group/onboard/pkg/onboardclient"
)

var (
	wizardAnswers string
	wizardFresh   bool
	wizardUser    string
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Walk through onboarding against the API using an answers file",
	Long: "Runs the onboarding wizard non-interactively. Answers are read from a YAML file " +
		"shaped like the onboarding form; values left out of the file keep what enrichment " +
		"suggested. Saved progress is resumed unless --fresh is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if wizardUser != "" {
			cfg.Client.UserID = wizardUser
		}
		if err := cfg.Validate("wizard"); err != nil {
			return err
		}

		answers, err := loadAnswers(wizardAnswers)
		if err != nil {
			return err
		}

		c := onboardclient.New(
			onboardclient.WithBaseURL(cfg.Client.BaseURL),
			onboardclient.WithUserID(cfg.Client.UserID),
		)
		w := wizard.New(c, wizard.WithPollOptions(
			poll.WithInterval(cfg.Poll.Interval()),
			poll.WithMaxAttempts(cfg.Poll.MaxAttempts),
			poll.WithMargin(cfg.Poll.Margin()),
		))

		if !wizardFresh {
			step, err := w.LoadSavedProgress(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "wizard: load saved progress")
			}
			zap.L().Info("wizard: resuming", zap.String("step", string(step)))
		}

		return runWizard(cmd.Context(), w, answers, cmd.OutOrStdout())
	},
}

func loadAnswers(path string) (*model.WizardFormState, error) {
	if path == "" {
		return &model.WizardFormState{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "wizard: read answers")
	}
	var a model.WizardFormState
	if err := yaml.Unmarshal(b, &a); err != nil {
		return nil, eris.Wrap(err, "wizard: parse answers")
	}
	return &a, nil
}

// runWizard drives w from its current step to completion, applying answers
// before each submit, and prints the final form as YAML.
func runWizard(ctx context.Context, w *wizard.Wizard, answers *model.WizardFormState, out io.Writer) error {
	for {
		step := w.Step()
		switch step {
		case model.StepCompleted:
			fmt.Fprintln(out, "onboarding completed")
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(w.FinalData()); err != nil {
				return err
			}
			return enc.Close()

		case model.StepLoading:
			fmt.Fprintln(out, "researching company...")
			if err := w.RunEnrichment(ctx); err != nil {
				if errors.Is(err, wizard.ErrEnrichmentFailed) {
					return eris.Errorf("enrichment failed: %s", w.LastError())
				}
				return err
			}

		default:
			if err := applyAnswers(w, step, answers); err != nil {
				return eris.Wrapf(err, "wizard: apply %s answers", step)
			}
			if err := w.Submit(ctx); err != nil {
				var ve *wizard.ValidationError
				if errors.As(err, &ve) {
					return eris.Errorf("%s: %s", step, ve.Message)
				}
				return err
			}
		}
		fmt.Fprintf(out, "%s done\n", step)
	}
}

// applyAnswers copies the answers for step onto the form. Empty values are
// skipped so enrichment suggestions survive.
func applyAnswers(w *wizard.Wizard, step model.Step, a *model.WizardFormState) error {
	cur := w.Form()
	var errs []error
	set := func(v string, fn func(string) error) {
		if v != "" {
			errs = append(errs, fn(v))
		}
	}

	switch step {
	case model.StepInitial:
		set(a.CompanyName, w.SetCompanyName)
		set(a.FullName, w.SetFullName)
		set(a.Role, w.SetRole)
		set(a.CompanyLinkedInURL, w.SetLinkedInURL)
		set(a.CompanyWebsiteURL, w.SetWebsiteURL)
		if a.Resources != nil {
			errs = append(errs, setList(cur.Resources, a.Resources, w.AddResource, w.UpdateResource, w.RemoveResource))
		}

	case model.StepCompanyOverview:
		set(a.CompanyOverview.Employees, func(v string) error { return w.SetCompanyOverviewField(wizard.FieldEmployees, v) })
		set(a.CompanyOverview.Industry, func(v string) error { return w.SetCompanyOverviewField(wizard.FieldIndustry, v) })
		set(a.CompanyOverview.Description, func(v string) error { return w.SetCompanyOverviewField(wizard.FieldDescription, v) })

	case model.StepAudience:
		set(a.Audience.TargetAudience, w.SetTargetAudience)
		if a.Audience.GeographicMarkets != nil {
			errs = append(errs, setToggles(cur.Audience.GeographicMarkets, a.Audience.GeographicMarkets, w.ToggleMarket))
		}

	case model.StepBrandStyles:
		b := a.BrandStyles
		if b.BrandVoices != nil {
			errs = append(errs, setToggles(cur.BrandStyles.BrandVoices, b.BrandVoices, w.ToggleBrandVoice))
		}
		if b.Competitors != nil {
			errs = append(errs, setList(cur.BrandStyles.Competitors, b.Competitors, w.AddCompetitor, w.UpdateCompetitor, w.RemoveCompetitor))
		}
		set(b.Differentiator, w.SetDifferentiator)
		if b.KeyMarketingMessages != nil {
			errs = append(errs, setList(cur.BrandStyles.KeyMarketingMessages, b.KeyMarketingMessages,
				w.AddMarketingMessage, w.UpdateMarketingMessage, w.RemoveMarketingMessage))
		}

	case model.StepBusinessGoals:
		g := a.BusinessGoals
		if g.SelectedObjectives != nil {
			errs = append(errs, setToggles(cur.BusinessGoals.SelectedObjectives, g.SelectedObjectives, w.ToggleObjective))
		}
		for id, desc := range g.ObjectiveDescriptions {
			errs = append(errs, w.SetObjectiveDescription(id, desc))
		}
		for _, c := range g.CustomObjectives {
			if slices.ContainsFunc(cur.BusinessGoals.CustomObjectives, func(e model.CustomObjective) bool { return e.Name == c.Name }) {
				continue
			}
			id, err := w.AddCustomObjective()
			if err != nil {
				return err
			}
			errs = append(errs, w.SetCustomObjectiveName(id, c.Name), w.SetCustomObjectiveDescription(id, c.Description))
		}
	}
	return errors.Join(errs...)
}

// setList makes a slot list equal to want using the wizard's slot updaters.
func setList(cur, want []string, add func() error, update func(int, string) error, remove func(int) error) error {
	n := len(cur)
	for ; n > len(want); n-- {
		if err := remove(n - 1); err != nil {
			return err
		}
	}
	for i, v := range want {
		if i >= n {
			if err := add(); err != nil {
				return err
			}
			n++
		}
		if err := update(i, v); err != nil {
			return err
		}
	}
	return nil
}

// setToggles flips selections until cur matches want.
func setToggles(cur, want []string, toggle func(string) error) error {
	for _, v := range cur {
		if !slices.Contains(want, v) {
			if err := toggle(v); err != nil {
				return err
			}
		}
	}
	for i, v := range want {
		if !slices.Contains(cur, v) && !slices.Contains(want[:i], v) {
			if err := toggle(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	wizardCmd.Flags().StringVar(&wizardAnswers, "answers", "", "YAML answers file")
	wizardCmd.Flags().BoolVar(&wizardFresh, "fresh", false, "ignore saved progress and start a new onboarding")
	wizardCmd.Flags().StringVar(&wizardUser, "user", "", "user id (default from config)")
	rootCmd.AddCommand(wizardCmd)
}
