package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/onboard/internal/model"
)

func TestBuildPatch_OnlyUpdatedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	set, args, err := buildPatch(postgresDialect, model.RecordPatch{}, now)
	require.NoError(t, err)
	assert.Equal(t, "updated_at = $1", set)
	assert.Equal(t, []any{now}, args.vals)
}

func TestBuildPatch_PostgresPartialData(t *testing.T) {
	patch := model.RecordPatch{
		PartialData: map[model.Step]json.RawMessage{
			model.StepAudience:        json.RawMessage(`{"targetAudience":"CTOs"}`),
			model.StepCompanyOverview: json.RawMessage(`{"industry":"Software"}`),
		},
		CompletedStep: ptrStep(model.StepAudience),
	}

	set, args, err := buildPatch(postgresDialect, patch, time.Now())
	require.NoError(t, err)
	assert.Contains(t, set, "partial_data = COALESCE(partial_data, '{}'::jsonb) || $1::jsonb")
	assert.Contains(t, set, "jsonb_exists(completed_steps, $2)")
	assert.Contains(t, set, "updated_at = $3")
	require.Len(t, args.vals, 3)
	assert.JSONEq(t, `{"audience":{"targetAudience":"CTOs"},"company-overview":{"industry":"Software"}}`, args.vals[0].(string))
	assert.Equal(t, "audience", args.vals[1])
}

func TestBuildPatch_SQLitePartialDataOrdered(t *testing.T) {
	patch := model.RecordPatch{
		PartialData: map[model.Step]json.RawMessage{
			model.StepBusinessGoals:   json.RawMessage(`{}`),
			model.StepCompanyOverview: json.RawMessage(`{"industry":"Software"}`),
		},
	}

	set, args, err := buildPatch(sqliteDialect, patch, time.Now())
	require.NoError(t, err)
	assert.Contains(t, set, `json_set(COALESCE(partial_data, '{}'), '$."company-overview"', json(?1), '$."business-goals"', json(?2))`)
	assert.Contains(t, set, "updated_at = ?3")
	assert.Equal(t, `{"industry":"Software"}`, args.vals[0])
}

func TestBuildPatch_AIDataWritesBothColumns(t *testing.T) {
	patch := model.RecordPatch{AIGeneratedData: &model.EnrichmentPayload{Industry: "Software"}}

	set, args, err := buildPatch(postgresDialect, patch, time.Now())
	require.NoError(t, err)
	assert.Contains(t, set, "ai_generated_data = $1::jsonb, research_data = $1::jsonb")
	assert.Contains(t, args.vals[0].(string), `"industry":"Software"`)
}

func TestSortSteps(t *testing.T) {
	steps := []model.Step{model.StepSummary, model.StepInitial, model.StepAudience}
	sortSteps(steps)
	assert.Equal(t, []model.Step{model.StepInitial, model.StepAudience, model.StepSummary}, steps)
}

func TestPrepareCreate_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	newID := func() string {
		n++
		return []string{"company-id", "record-id"}[n-1]
	}

	company := &model.Company{Name: "Acme"}
	rec := &model.OnboardingRecord{CreatedBy: "user-1"}
	cols, err := prepareCreate(company, rec, newID, now)
	require.NoError(t, err)

	assert.Equal(t, "company-id", company.ID)
	assert.Equal(t, "record-id", rec.ID)
	assert.Equal(t, "company-id", rec.CompanyID)
	assert.Equal(t, model.StepInitial, rec.CurrentStep)
	assert.Equal(t, model.ResearchStatusPending, rec.ResearchStatus)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, "[]", string(cols.resources))
	assert.Equal(t, "[]", string(cols.steps))
	assert.Equal(t, "{}", string(cols.partial))
}
