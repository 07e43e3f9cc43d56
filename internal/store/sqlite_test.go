package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/onboard/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func createTestRecord(t *testing.T, st Store, userID, name string) *model.OnboardingRecord {
	t.Helper()
	company := &model.Company{Name: name, LinkedInURL: "https://linkedin.com/company/" + name}
	rec := &model.OnboardingRecord{
		CreatedBy:          userID,
		InitialCompanyName: name,
		InitialLinkedInURL: company.LinkedInURL,
		InitialResources:   []string{"https://example.com/deck.pdf"},
		CurrentStep:        model.StepLoading,
		CompletedSteps:     []model.Step{model.StepInitial},
	}
	require.NoError(t, st.CreateCompany(context.Background(), company, rec))
	return rec
}

func TestSQLite_CreateCompany_And_LatestByUser(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := createTestRecord(t, st, "user-1", "acme")
	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.CompanyID)

	got, err := st.LatestByUser(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "acme", got.InitialCompanyName)
	assert.Equal(t, []string{"https://example.com/deck.pdf"}, got.InitialResources)
	assert.Equal(t, model.StepLoading, got.CurrentStep)
	assert.Equal(t, []model.Step{model.StepInitial}, got.CompletedSteps)
	assert.Equal(t, model.ResearchStatusPending, got.ResearchStatus)
	assert.Empty(t, got.JobID)
	assert.Nil(t, got.AIGeneratedData)
	assert.False(t, got.IsCompleted)
}

func TestSQLite_LatestByUser_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.LatestByUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_LatestByUser_PicksMostRecent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	createTestRecord(t, st, "user-1", "first")
	second := createTestRecord(t, st, "user-1", "second")
	createTestRecord(t, st, "user-2", "other")

	got, err := st.LatestByUser(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
}

func TestSQLite_UpdateLatestByUser_JobAndStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	createTestRecord(t, st, "user-1", "acme")

	jobID := "job-123"
	step := model.StepLoading
	status := model.ResearchStatusPending
	require.NoError(t, st.UpdateLatestByUser(ctx, "user-1", model.RecordPatch{
		JobID:          &jobID,
		CurrentStep:    &step,
		ResearchStatus: &status,
	}))

	got, err := st.GetByJobID(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme", got.InitialCompanyName)
	assert.Equal(t, model.StepLoading, got.CurrentStep)
}

func TestSQLite_UpdateLatestByUser_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	step := model.StepAudience

	err := st.UpdateLatestByUser(context.Background(), "nobody", model.RecordPatch{CurrentStep: &step})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_GetByJobID_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetByJobID(context.Background(), "unknown-job")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_UpdateByJobID_SuccessThenFailure(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	createTestRecord(t, st, "user-1", "acme")

	jobID := "job-1"
	require.NoError(t, st.UpdateLatestByUser(ctx, "user-1", model.RecordPatch{JobID: &jobID}))

	completed := model.ResearchStatusCompleted
	overview := model.StepCompanyOverview
	at := time.Now().UTC().Truncate(time.Second)
	payload := &model.EnrichmentPayload{
		CompanyName:       "Acme Inc",
		Industry:          "Software",
		GeographicMarkets: []string{"Europe"},
		Objectives:        []model.EnrichmentObjective{{Objective: "grow_brand", Description: "d"}},
	}
	require.NoError(t, st.UpdateByJobID(ctx, jobID, model.RecordPatch{
		ResearchStatus:  &completed,
		CurrentStep:     &overview,
		AIGeneratedData: payload,
		AIGeneratedAt:   &at,
	}))

	got, err := st.GetByJobID(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ResearchStatusCompleted, got.ResearchStatus)
	assert.Equal(t, model.StepCompanyOverview, got.CurrentStep)
	require.NotNil(t, got.AIGeneratedData)
	assert.Equal(t, payload, got.AIGeneratedData)
	assert.Equal(t, payload, got.ResearchData())
	require.NotNil(t, got.AIGeneratedAt)
	assert.True(t, at.Equal(*got.AIGeneratedAt))

	failed := model.ResearchStatusFailed
	initial := model.StepInitial
	msg := "no profile found"
	require.NoError(t, st.UpdateByJobID(ctx, jobID, model.RecordPatch{
		ResearchStatus: &failed,
		CurrentStep:    &initial,
		ResearchError:  &msg,
		ClearAIData:    true,
	}))

	got, err = st.GetByJobID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.ResearchStatusFailed, got.ResearchStatus)
	assert.Equal(t, model.StepInitial, got.CurrentStep)
	assert.Equal(t, "no profile found", got.ResearchError)
	assert.Nil(t, got.AIGeneratedData)
}

func TestSQLite_UpdateByJobID_SuccessClearsEarlierFailure(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	createTestRecord(t, st, "user-1", "acme")

	jobID := "job-2"
	require.NoError(t, st.UpdateLatestByUser(ctx, "user-1", model.RecordPatch{JobID: &jobID}))

	failed := model.ResearchStatusFailed
	msg := "timeout"
	require.NoError(t, st.UpdateByJobID(ctx, jobID, model.RecordPatch{ResearchStatus: &failed, ResearchError: &msg}))

	completed := model.ResearchStatusCompleted
	cleared := ""
	require.NoError(t, st.UpdateByJobID(ctx, jobID, model.RecordPatch{
		ResearchStatus:  &completed,
		ResearchError:   &cleared,
		AIGeneratedData: &model.EnrichmentPayload{CompanyName: "Acme Inc"},
	}))

	got, err := st.GetByJobID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.ResearchStatusCompleted, got.ResearchStatus)
	assert.Empty(t, got.ResearchError)
}

func TestSQLite_UpdateByJobID_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	status := model.ResearchStatusCompleted

	err := st.UpdateByJobID(context.Background(), "ghost", model.RecordPatch{ResearchStatus: &status})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_PartialDataMergesPerStep(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	createTestRecord(t, st, "user-1", "acme")

	overview := json.RawMessage(`{"employees":"11-50","industry":"Software","description":"Widgets"}`)
	audience := json.RawMessage(`{"targetAudience":"CTOs","geographicMarkets":["Europe"]}`)
	next := model.StepAudience

	require.NoError(t, st.UpdateLatestByUser(ctx, "user-1", model.RecordPatch{
		PartialData:   map[model.Step]json.RawMessage{model.StepCompanyOverview: overview},
		CurrentStep:   &next,
		CompletedStep: ptrStep(model.StepCompanyOverview),
	}))
	require.NoError(t, st.UpdateLatestByUser(ctx, "user-1", model.RecordPatch{
		PartialData:   map[model.Step]json.RawMessage{model.StepAudience: audience},
		CompletedStep: ptrStep(model.StepAudience),
	}))
	// Saving the same step twice does not duplicate it in completed_steps.
	require.NoError(t, st.UpdateLatestByUser(ctx, "user-1", model.RecordPatch{
		CompletedStep: ptrStep(model.StepAudience),
	}))

	got, err := st.LatestByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got.PartialData, 2)
	assert.JSONEq(t, string(overview), string(got.PartialData[model.StepCompanyOverview]))
	assert.JSONEq(t, string(audience), string(got.PartialData[model.StepAudience]))
	assert.Equal(t, model.StepAudience, got.CurrentStep)
	assert.Equal(t, []model.Step{model.StepInitial, model.StepCompanyOverview, model.StepAudience}, got.CompletedSteps)

	// Overwriting a step replaces its whole snapshot.
	replaced := json.RawMessage(`{"employees":"51-200","industry":"Software","description":"Gadgets"}`)
	require.NoError(t, st.UpdateLatestByUser(ctx, "user-1", model.RecordPatch{
		PartialData: map[model.Step]json.RawMessage{model.StepCompanyOverview: replaced},
	}))
	got, err = st.LatestByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.JSONEq(t, string(replaced), string(got.PartialData[model.StepCompanyOverview]))
}

func TestSQLite_CompleteLatest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	createTestRecord(t, st, "user-1", "acme")

	final := model.NewWizardFormState()
	final.CompanyName = "Acme"
	final.CompanyOverview.Employees = "11-50"
	at := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, st.CompleteLatest(ctx, "user-1", &final, at))

	got, err := st.LatestByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)
	assert.True(t, got.Done())
	assert.Equal(t, model.StepCompleted, got.CurrentStep)
	require.NotNil(t, got.FinalData)
	assert.Equal(t, "Acme", got.FinalData.CompanyName)
	assert.Equal(t, "11-50", got.FinalData.CompanyOverview.Employees)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, at.Equal(*got.CompletedAt))
}

func TestSQLite_CompleteLatest_NoRecord(t *testing.T) {
	st := newTestSQLiteStore(t)
	final := model.NewWizardFormState()

	err := st.CompleteLatest(context.Background(), "nobody", &final, time.Now())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func ptrStep(s model.Step) *model.Step { return &s }

func TestSQLite_CreateCompany_StoresInitialSection(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	initial := json.RawMessage(`{"companyName":"acme","fullName":"Ada Lovelace","role":"CEO"}`)
	company := &model.Company{Name: "acme", LinkedInURL: "https://linkedin.com/company/acme"}
	rec := &model.OnboardingRecord{
		CreatedBy:          "user-1",
		InitialCompanyName: "acme",
		InitialLinkedInURL: company.LinkedInURL,
		CurrentStep:        model.StepLoading,
		CompletedSteps:     []model.Step{model.StepInitial},
		PartialData:        map[model.Step]json.RawMessage{model.StepInitial: initial},
	}
	require.NoError(t, st.CreateCompany(ctx, company, rec))

	got, err := st.LatestByUser(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, string(initial), string(got.PartialData[model.StepInitial]))
}
