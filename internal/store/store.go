package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/onboard/internal/model"
)

// ErrNotFound is returned by updates that match no onboarding record.
var ErrNotFound = eris.New("store: record not found")

// Store defines the persistence interface for onboarding records.
type Store interface {
	// CreateCompany inserts the company and its onboarding record in one
	// transaction. IDs and timestamps left empty are filled in.
	CreateCompany(ctx context.Context, company *model.Company, rec *model.OnboardingRecord) error

	// LatestByUser returns the user's most recently created record, or nil.
	LatestByUser(ctx context.Context, userID string) (*model.OnboardingRecord, error)
	// GetByJobID returns the record carrying jobID, or nil.
	GetByJobID(ctx context.Context, jobID string) (*model.OnboardingRecord, error)

	// UpdateLatestByUser applies patch to the user's most recent record.
	UpdateLatestByUser(ctx context.Context, userID string, patch model.RecordPatch) error
	// UpdateByJobID applies patch to the record carrying jobID.
	UpdateByJobID(ctx context.Context, jobID string, patch model.RecordPatch) error
	// CompleteLatest writes final data and the completion flags onto the
	// user's most recent record.
	CompleteLatest(ctx context.Context, userID string, final *model.WizardFormState, at time.Time) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// recordColumns is the select list shared by both backends. scanRecord
// implementations must follow this order.
const recordColumns = `id, company_id, created_by, initial_company_name, initial_linkedin_url,
	initial_website_url, initial_resources, job_id, current_step, completed_steps,
	partial_data, ai_generated_data, ai_generated_at, research_status, research_error,
	final_data, is_completed, completed_at, created_at, updated_at`

// dialect captures the SQL differences between the backends for the
// dynamically built patch statement.
type dialect struct {
	name        string
	placeholder func(n int) string
	// mergePartial returns the expression that merges the step snapshots
	// bound at phs into partial_data.
	mergePartial func(steps []model.Step, phs []string) string
	// appendStep returns the expression that adds the step bound at ph to
	// completed_steps unless already present.
	appendStep func(ph string) string
	jsonCast   string
}

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	mergePartial: func(_ []model.Step, phs []string) string {
		return "COALESCE(partial_data, '{}'::jsonb) || " + phs[0] + "::jsonb"
	},
	appendStep: func(ph string) string {
		return fmt.Sprintf("CASE WHEN jsonb_exists(completed_steps, %[1]s) THEN completed_steps ELSE completed_steps || to_jsonb(%[1]s::text) END", ph)
	},
	jsonCast: "::jsonb",
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(n int) string { return fmt.Sprintf("?%d", n) },
	mergePartial: func(steps []model.Step, phs []string) string {
		var b strings.Builder
		b.WriteString("json_set(COALESCE(partial_data, '{}')")
		for i, st := range steps {
			fmt.Fprintf(&b, `, '$."%s"', json(%s)`, st, phs[i])
		}
		b.WriteString(")")
		return b.String()
	},
	appendStep: func(ph string) string {
		return fmt.Sprintf("CASE WHEN EXISTS (SELECT 1 FROM json_each(completed_steps) WHERE value = %[1]s) THEN completed_steps ELSE json_insert(completed_steps, '$[#]', %[1]s) END", ph)
	},
}

// argList accumulates bind arguments and hands out dialect placeholders.
type argList struct {
	d    dialect
	vals []any
}

func (a *argList) add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.placeholder(len(a.vals))
}

// buildPatch renders the SET clause for patch. updated_at is always set.
func buildPatch(d dialect, patch model.RecordPatch, now time.Time) (string, *argList, error) {
	args := &argList{d: d}
	var sets []string

	if patch.JobID != nil {
		sets = append(sets, "job_id = "+args.add(*patch.JobID))
	}
	if patch.CurrentStep != nil {
		sets = append(sets, "current_step = "+args.add(string(*patch.CurrentStep)))
	}
	if patch.ResearchStatus != nil {
		sets = append(sets, "research_status = "+args.add(string(*patch.ResearchStatus)))
	}
	if patch.ResearchError != nil {
		sets = append(sets, "research_error = "+args.add(*patch.ResearchError))
	}
	switch {
	case patch.AIGeneratedData != nil:
		b, err := json.Marshal(patch.AIGeneratedData)
		if err != nil {
			return "", nil, eris.Wrapf(err, "%s: marshal ai data", d.name)
		}
		ph := args.add(string(b))
		sets = append(sets,
			"ai_generated_data = "+ph+d.jsonCast,
			"research_data = "+ph+d.jsonCast,
		)
	case patch.ClearAIData:
		sets = append(sets, "ai_generated_data = NULL", "research_data = NULL")
	}
	if patch.AIGeneratedAt != nil {
		sets = append(sets, "ai_generated_at = "+args.add(patch.AIGeneratedAt.UTC()))
	}
	if len(patch.PartialData) > 0 {
		steps := make([]model.Step, 0, len(patch.PartialData))
		for st := range patch.PartialData {
			steps = append(steps, st)
		}
		sortSteps(steps)

		var phs []string
		if d.name == "postgres" {
			b, err := json.Marshal(patch.PartialData)
			if err != nil {
				return "", nil, eris.Wrapf(err, "%s: marshal partial data", d.name)
			}
			phs = append(phs, args.add(string(b)))
		} else {
			for _, st := range steps {
				phs = append(phs, args.add(string(patch.PartialData[st])))
			}
		}
		sets = append(sets, "partial_data = "+d.mergePartial(steps, phs))
	}
	if patch.CompletedStep != nil {
		sets = append(sets, "completed_steps = "+d.appendStep(args.add(string(*patch.CompletedStep))))
	}

	sets = append(sets, "updated_at = "+args.add(now.UTC()))
	return strings.Join(sets, ", "), args, nil
}

// sortSteps orders steps by their position in the wizard so generated SQL
// is deterministic.
func sortSteps(steps []model.Step) {
	for i := 1; i < len(steps); i++ {
		for j := i; j > 0 && steps[j].Index() < steps[j-1].Index(); j-- {
			steps[j], steps[j-1] = steps[j-1], steps[j]
		}
	}
}

// recordJSON holds the JSON-encoded columns of a record as read from either
// backend. Nil slices mean SQL NULL.
type recordJSON struct {
	resources []byte
	steps     []byte
	partial   []byte
	ai        []byte
	final     []byte
}

func (j recordJSON) decode(rec *model.OnboardingRecord) error {
	if len(j.resources) > 0 {
		if err := json.Unmarshal(j.resources, &rec.InitialResources); err != nil {
			return eris.Wrap(err, "store: unmarshal initial resources")
		}
	}
	if len(j.steps) > 0 {
		if err := json.Unmarshal(j.steps, &rec.CompletedSteps); err != nil {
			return eris.Wrap(err, "store: unmarshal completed steps")
		}
	}
	if len(j.partial) > 0 {
		if err := json.Unmarshal(j.partial, &rec.PartialData); err != nil {
			return eris.Wrap(err, "store: unmarshal partial data")
		}
	}
	if len(j.ai) > 0 {
		rec.AIGeneratedData = &model.EnrichmentPayload{}
		if err := json.Unmarshal(j.ai, rec.AIGeneratedData); err != nil {
			return eris.Wrap(err, "store: unmarshal ai data")
		}
	}
	if len(j.final) > 0 {
		rec.FinalData = &model.WizardFormState{}
		if err := json.Unmarshal(j.final, rec.FinalData); err != nil {
			return eris.Wrap(err, "store: unmarshal final data")
		}
	}
	return nil
}

// createJSON holds the JSON columns written when a record is inserted.
type createJSON struct {
	resources []byte
	steps     []byte
	partial   []byte
}

// prepareCreate fills ids, defaults and timestamps for a new company and
// record, and returns the JSON columns to insert.
func prepareCreate(company *model.Company, rec *model.OnboardingRecord, newID func() string, now time.Time) (createJSON, error) {
	if company.ID == "" {
		company.ID = newID()
	}
	if company.CreatedAt.IsZero() {
		company.CreatedAt = now
	}
	if rec.ID == "" {
		rec.ID = newID()
	}
	rec.CompanyID = company.ID
	if rec.CurrentStep == "" {
		rec.CurrentStep = model.StepInitial
	}
	if rec.ResearchStatus == "" {
		rec.ResearchStatus = model.ResearchStatusPending
	}
	if rec.InitialResources == nil {
		rec.InitialResources = []string{}
	}
	if rec.CompletedSteps == nil {
		rec.CompletedSteps = []model.Step{}
	}
	if rec.PartialData == nil {
		rec.PartialData = map[model.Step]json.RawMessage{}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt

	var out createJSON
	var err error
	if out.resources, err = json.Marshal(rec.InitialResources); err != nil {
		return createJSON{}, eris.Wrap(err, "store: marshal initial resources")
	}
	if out.steps, err = json.Marshal(rec.CompletedSteps); err != nil {
		return createJSON{}, eris.Wrap(err, "store: marshal completed steps")
	}
	if out.partial, err = json.Marshal(rec.PartialData); err != nil {
		return createJSON{}, eris.Wrap(err, "store: marshal partial data")
	}
	return out, nil
}
