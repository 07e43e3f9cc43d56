package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/wizard"
	"github.com/sells-group/onboard/pkg/onboardclient"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the saved onboarding progress of the configured user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("wizard"); err != nil {
			return err
		}
		c := onboardclient.New(
			onboardclient.WithBaseURL(cfg.Client.BaseURL),
			onboardclient.WithUserID(cfg.Client.UserID),
		)
		return showProgress(cmd, c, cmd.OutOrStdout())
	},
}

// progressView is the YAML rendering of saved progress.
type progressView struct {
	CurrentStep    model.Step             `yaml:"current_step"`
	ResearchStatus model.ResearchStatus   `yaml:"research_status"`
	JobID          string                 `yaml:"job_id,omitempty"`
	Completed      bool                   `yaml:"completed"`
	SavedSteps     []model.Step           `yaml:"saved_steps,omitempty"`
	Form           *model.WizardFormState `yaml:"form,omitempty"`
}

func showProgress(cmd *cobra.Command, backend wizard.Backend, out io.Writer) error {
	p, err := backend.LoadProgress(cmd.Context())
	if err != nil {
		return err
	}
	if p == nil {
		_, err := fmt.Fprintln(out, "no onboarding record found")
		return err
	}

	view := progressView{
		CurrentStep:    p.CurrentStep,
		ResearchStatus: p.ResearchStatus,
		JobID:          p.JobID,
		Completed:      p.IsCompleted,
	}
	for _, st := range model.Steps {
		if _, ok := p.PartialData[st]; ok {
			view.SavedSteps = append(view.SavedSteps, st)
		}
	}

	// Rebuild the form the way a resuming wizard would.
	w := wizard.New(backend)
	if _, err := w.LoadSavedProgress(cmd.Context()); err != nil {
		return err
	}
	form := w.Form()
	view.Form = &form

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	rootCmd.AddCommand(progressCmd)
}
