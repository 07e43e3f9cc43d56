// Package wizard implements the step-sequenced onboarding state machine.
// The wizard owns the in-progress form; persistence and enrichment go
// through a Backend, either the in-process service or the HTTP client.
package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard/internal/enrich"
	"github.com/sells-group/onboard/internal/metrics"
	"github.com/sells-group/onboard/internal/model"
	"github.com/sells-group/onboard/internal/poll"
)

var (
	// ErrCompleted is returned for edits or submits after the final commit.
	ErrCompleted = eris.New("wizard: onboarding already completed")
	// ErrWrongStep is returned when an operation does not apply to the
	// current step.
	ErrWrongStep = eris.New("wizard: operation not valid on current step")
	// ErrEnrichmentFailed wraps the poll outcome when enrichment fails.
	ErrEnrichmentFailed = eris.New("wizard: enrichment failed")
)

// Backend is the wizard's persistence and enrichment port.
type Backend interface {
	// CreateRecord creates the company and its onboarding record from the
	// initial step.
	CreateRecord(ctx context.Context, info model.InitialInfo) error
	Initiate(ctx context.Context, req enrich.InitiateRequest) (string, error)
	Status(ctx context.Context, jobID string) (model.JobStatusReport, error)
	// SaveProgress stores the snapshot of a submitted step.
	SaveProgress(ctx context.Context, step model.Step, section json.RawMessage) error
	// LoadProgress returns the latest record's resumable view, or nil.
	LoadProgress(ctx context.Context) (*model.Progress, error)
	Complete(ctx context.Context, final model.WizardFormState) error
}

// Wizard holds one user's in-progress onboarding. Field edits are
// last-write-wins on a single mutex-guarded form.
type Wizard struct {
	backend  Backend
	pollOpts []poll.Option
	newID    func() string

	// submitMu serialises Submit and RunEnrichment.
	submitMu sync.Mutex

	mu        sync.Mutex
	form      model.WizardFormState
	step      model.Step
	completed []model.Step
	lastError string
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithPollOptions configures the enrichment poll.
func WithPollOptions(opts ...poll.Option) Option {
	return func(w *Wizard) { w.pollOpts = append(w.pollOpts, opts...) }
}

// WithIDFunc replaces the custom objective id generator.
func WithIDFunc(fn func() string) Option {
	return func(w *Wizard) { w.newID = fn }
}

// New returns a wizard on the initial step with an empty form.
func New(backend Backend, opts ...Option) *Wizard {
	w := &Wizard{
		backend: backend,
		newID:   func() string { return "custom_" + uuid.NewString() },
		form:    model.NewWizardFormState(),
		step:    model.StepInitial,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Step returns the current step.
func (w *Wizard) Step() model.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// CompletedSteps returns the steps submitted so far, in order.
func (w *Wizard) CompletedSteps() []model.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.Step(nil), w.completed...)
}

// Form returns a copy of the current form.
func (w *Wizard) Form() model.WizardFormState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.form.Clone()
}

// LastError returns the message of the last enrichment failure, if any.
func (w *Wizard) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

// FinalData returns the merged record committed on the summary step: the
// current form, with AI values already prefilled and user edits on top.
func (w *Wizard) FinalData() model.WizardFormState {
	return w.Form()
}

// Submit validates the current step and advances. Validation failures
// return a *ValidationError and change nothing. Persistence failures on the
// initial and summary steps are returned with the step unchanged so the
// submit can be retried; autosave failures on the other steps are logged.
func (w *Wizard) Submit(ctx context.Context) error {
	w.submitMu.Lock()
	defer w.submitMu.Unlock()

	w.mu.Lock()
	step := w.step
	form := w.form.Clone()
	w.mu.Unlock()

	switch step {
	case model.StepCompleted:
		return ErrCompleted
	case model.StepLoading:
		return eris.Wrap(ErrWrongStep, "loading advances through RunEnrichment")
	}

	if err := validateStep(step, &form); err != nil {
		metrics.WizardTransition(string(step), "invalid")
		return err
	}

	log := zap.L().With(zap.String("step", string(step)))

	switch step {
	case model.StepInitial:
		if err := w.backend.CreateRecord(ctx, form.InitialInfo); err != nil {
			metrics.WizardTransition(string(step), "failed")
			return eris.Wrap(err, "wizard: create company")
		}
	case model.StepSummary:
		if err := w.backend.Complete(ctx, form); err != nil {
			metrics.WizardTransition(string(step), "failed")
			return eris.Wrap(err, "wizard: complete onboarding")
		}
	default:
		w.autosave(ctx, step, form)
	}

	w.mu.Lock()
	w.advanceLocked(step)
	next := w.step
	w.mu.Unlock()

	metrics.WizardTransition(string(step), "advanced")
	log.Info("wizard: step submitted", zap.String("next", string(next)))
	return nil
}

func (w *Wizard) autosave(ctx context.Context, step model.Step, form model.WizardFormState) {
	section, ok, err := form.Section(step)
	if err != nil || !ok {
		zap.L().Warn("wizard: no section to save", zap.String("step", string(step)), zap.Error(err))
		return
	}
	if err := w.backend.SaveProgress(ctx, step, section); err != nil {
		zap.L().Warn("wizard: failed to save progress",
			zap.String("step", string(step)),
			zap.Error(err),
		)
	}
}

// advanceLocked records step as completed and moves to its successor.
func (w *Wizard) advanceLocked(step model.Step) {
	w.markCompletedLocked(step)
	w.step = step.Next()
}

func (w *Wizard) markCompletedLocked(step model.Step) {
	for _, s := range w.completed {
		if s == step {
			return
		}
	}
	w.completed = append(w.completed, step)
}

// RunEnrichment drives the loading step: it initiates enrichment, polls
// until a terminal outcome and then either prefills the form and moves to
// company-overview, or returns to initial with the failure in LastError.
// Cancelling ctx stops polling and leaves the wizard on loading.
func (w *Wizard) RunEnrichment(ctx context.Context) error {
	w.submitMu.Lock()
	defer w.submitMu.Unlock()

	w.mu.Lock()
	if w.step != model.StepLoading {
		w.mu.Unlock()
		return eris.Wrapf(ErrWrongStep, "enrichment runs on %s, not %s", model.StepLoading, w.step)
	}
	req := enrich.InitiateRequest{
		CompanyName: w.form.CompanyName,
		LinkedInURL: w.form.CompanyLinkedInURL,
		WebsiteURL:  w.form.CompanyWebsiteURL,
	}
	w.lastError = ""
	w.mu.Unlock()

	ctl := poll.NewController(
		func(ctx context.Context) (string, error) {
			id, err := w.backend.Initiate(ctx, req)
			if err != nil {
				return "", err
			}
			w.mu.Lock()
			defer w.mu.Unlock()
			// A stopped run must not touch the form.
			if err := ctx.Err(); err != nil {
				return "", err
			}
			w.form.JobID = id
			return id, nil
		},
		w.checkStatus,
		w.pollOpts...,
	)
	ctl.OnResolve(func(r poll.Result[model.EnrichmentPayload]) {
		outcome := "success"
		if r.Err != nil {
			outcome = "error"
		}
		metrics.EnrichmentPolled(outcome, r.Attempts)
	})
	defer ctl.Stop()

	if err := ctl.Start(ctx); err != nil {
		return err
	}
	res, err := ctl.Wait(ctx)
	if err != nil {
		return eris.Wrap(err, "wizard: enrichment interrupted")
	}

	log := zap.L().With(zap.String("job_id", ctl.JobID()))
	if res.Err != nil {
		msg := failureMessage(res.Err)
		w.mu.Lock()
		w.step = model.StepInitial
		w.lastError = msg
		w.mu.Unlock()
		metrics.WizardTransition(string(model.StepLoading), "failed")
		log.Warn("wizard: enrichment failed", zap.String("error", msg), zap.Int("attempts", res.Attempts))
		return eris.Wrap(ErrEnrichmentFailed, msg)
	}

	w.mu.Lock()
	w.prefillLocked(res.Value)
	w.advanceLocked(model.StepLoading)
	w.mu.Unlock()
	metrics.WizardTransition(string(model.StepLoading), "advanced")
	log.Info("wizard: enrichment prefilled", zap.Int("attempts", res.Attempts))
	return nil
}

func (w *Wizard) checkStatus(ctx context.Context, jobID string) (poll.Status[model.EnrichmentPayload], error) {
	rep, err := w.backend.Status(ctx, jobID)
	if err != nil {
		return poll.Status[model.EnrichmentPayload]{}, err
	}
	switch rep.Status {
	case model.JobStatusSuccess:
		return poll.Status[model.EnrichmentPayload]{Phase: poll.PhaseSuccess, Data: rep.Data}, nil
	case model.JobStatusError:
		return poll.Status[model.EnrichmentPayload]{Phase: poll.PhaseError, Message: rep.Error}, nil
	default:
		return poll.Status[model.EnrichmentPayload]{Phase: poll.PhasePending}, nil
	}
}

// failureMessage renders a poll failure for the user.
func failureMessage(err error) string {
	var re *poll.RemoteError
	switch {
	case errors.As(err, &re):
		return re.Message
	case errors.Is(err, poll.ErrNoData):
		return "Polling successful but no data received."
	case errors.Is(err, poll.ErrAttemptsExhausted):
		return "Maximum polling attempts reached."
	case errors.Is(err, poll.ErrTimeout):
		return "Polling timed out."
	default:
		return err.Error()
	}
}

// LoadSavedProgress hydrates the form from the user's latest record and
// returns the step to resume on. A completed record makes the wizard
// terminal. Without a record the wizard is left untouched.
func (w *Wizard) LoadSavedProgress(ctx context.Context) (model.Step, error) {
	p, err := w.backend.LoadProgress(ctx)
	if err != nil {
		return "", eris.Wrap(err, "wizard: load progress")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if p == nil {
		return w.step, nil
	}

	if p.IsCompleted {
		if p.FinalData != nil {
			w.form = p.FinalData.Clone()
		}
		w.step = model.StepCompleted
		w.completed = append([]model.Step(nil), model.Steps[:len(model.Steps)-1]...)
		return w.step, nil
	}

	// Replay in live order: the initial section, then the enrichment
	// prefill, then the sections submitted after loading.
	form := model.NewWizardFormState()
	var completed []model.Step
	for _, st := range model.Steps {
		if st == model.StepLoading && p.AIGeneratedData != nil {
			prefill(&form, p.AIGeneratedData)
		}
		raw, ok := p.PartialData[st]
		if !ok {
			continue
		}
		if err := form.ApplySection(st, raw); err != nil {
			return "", eris.Wrap(err, "wizard: hydrate saved progress")
		}
		completed = append(completed, st)
	}
	form.JobID = p.JobID

	step := p.CurrentStep
	if step.Index() < 0 || step == model.StepCompleted {
		step = model.StepInitial
	}

	w.form = form
	w.step = step
	w.completed = completed
	zap.L().Info("wizard: resumed saved progress",
		zap.String("step", string(step)),
		zap.Int("sections", len(completed)),
	)
	return step, nil
}
